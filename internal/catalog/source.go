package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Default priorities of the built-in sources.
const (
	PriorityLocal  = 100
	PriorityRemote = 50
)

// Attempt outcomes reported to an AttemptRecorder.
const (
	OutcomeHit         = "hit"
	OutcomeMiss        = "miss"
	OutcomeError       = "error"
	OutcomeUnavailable = "unavailable"
)

// DataSource resolves a barcode to a product. A nil product with a nil
// error means the source has no answer.
type DataSource interface {
	Name() string
	Priority() int
	IsAvailable(ctx context.Context) bool
	FetchProduct(ctx context.Context, barcode string) (*Product, error)
}

// AttemptRecorder receives one observation per source consulted.
type AttemptRecorder interface {
	RecordAttempt(source, outcome string)
}

// SourceManager tries registered sources in descending priority until one answers.
type SourceManager struct {
	mu       sync.RWMutex
	sources  []DataSource
	logger   *slog.Logger
	recorder AttemptRecorder
}

// NewSourceManager constructs an empty manager.
func NewSourceManager(logger *slog.Logger, recorder AttemptRecorder) *SourceManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SourceManager{logger: logger, recorder: recorder}
}

// Register appends a source and re-sorts by priority. Equal priorities keep
// registration order. Registering the same source twice is allowed.
func (m *SourceManager) Register(src DataSource) {
	if src == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
	sort.SliceStable(m.sources, func(i, j int) bool {
		return m.sources[i].Priority() > m.sources[j].Priority()
	})
}

// Sources returns a snapshot of the registered sources in lookup order.
func (m *SourceManager) Sources() []DataSource {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]DataSource, len(m.sources))
	copy(out, m.sources)
	return out
}

// FetchProduct returns the first non-nil product, or nil when no source has one.
func (m *SourceManager) FetchProduct(ctx context.Context, barcode string) *Product {
	for _, src := range m.Sources() {
		if ctx.Err() != nil {
			return nil
		}
		if !src.IsAvailable(ctx) {
			m.logger.Debug("source unavailable, skipping", slog.String("source", src.Name()), slog.String("barcode", barcode))
			m.record(src.Name(), OutcomeUnavailable)
			continue
		}
		product, err := m.attempt(ctx, src, barcode)
		if err != nil {
			m.logger.Warn("source lookup failed", slog.String("source", src.Name()), slog.String("barcode", barcode), slog.Any("error", err))
			m.record(src.Name(), OutcomeError)
			continue
		}
		if product == nil {
			m.record(src.Name(), OutcomeMiss)
			continue
		}
		m.record(src.Name(), OutcomeHit)
		return product
	}
	return nil
}

func (m *SourceManager) attempt(ctx context.Context, src DataSource, barcode string) (product *Product, err error) {
	defer func() {
		if r := recover(); r != nil {
			product = nil
			err = fmt.Errorf("catalog: source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.FetchProduct(ctx, barcode)
}

func (m *SourceManager) record(source, outcome string) {
	if m.recorder != nil {
		m.recorder.RecordAttempt(source, outcome)
	}
}
