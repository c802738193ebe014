package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// LookupPath is the remote product lookup endpoint shared by every node.
const LookupPath = "/api/productos/buscar"

// LookupResponse is the wire shape of the lookup endpoint.
type LookupResponse struct {
	Success  bool     `json:"success"`
	Producto *Product `json:"producto,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// ProbeCache memoises availability probes between lookups.
type ProbeCache interface {
	GetAvailability(ctx context.Context, target string) (available bool, found bool)
	SetAvailability(ctx context.Context, target string, available bool)
}

// RemoteConfig configures RemoteSource.
type RemoteConfig struct {
	BaseURL      string
	ProbeTimeout time.Duration
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	ProbeCache   ProbeCache
	Logger       *slog.Logger
}

// RemoteSource resolves barcodes through an upstream node and writes hits
// through into the local store.
type RemoteSource struct {
	baseURL      string
	probeTimeout time.Duration
	fetchTimeout time.Duration
	httpClient   *http.Client
	probes       ProbeCache
	store        Store
	logger       *slog.Logger
	priority     int
	now          func() time.Time
}

// NewRemoteSource builds the remote source with PriorityRemote.
func NewRemoteSource(cfg RemoteConfig, store Store) *RemoteSource {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	probeTimeout := cfg.ProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 3 * time.Second
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteSource{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		probeTimeout: probeTimeout,
		fetchTimeout: fetchTimeout,
		httpClient:   client,
		probes:       cfg.ProbeCache,
		store:        store,
		logger:       logger,
		priority:     PriorityRemote,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *RemoteSource) Name() string { return "remote" }

func (s *RemoteSource) Priority() int { return s.priority }

// IsAvailable probes the lookup endpoint with HEAD. Transport errors,
// timeouts and 5xx answers mean unavailable; nothing is returned as an error.
func (s *RemoteSource) IsAvailable(ctx context.Context) bool {
	if s.baseURL == "" {
		return false
	}
	if s.probes != nil {
		if available, found := s.probes.GetAvailability(ctx, s.baseURL); found {
			return available
		}
	}
	available := s.probe(ctx)
	if s.probes != nil {
		s.probes.SetAvailability(ctx, s.baseURL, available)
	}
	return available
}

func (s *RemoteSource) probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.baseURL+LookupPath, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Debug("remote probe failed", slog.String("url", s.baseURL), slog.Any("error", err))
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode < http.StatusInternalServerError
}

// FetchProduct queries the upstream lookup endpoint. Timeouts, non-200
// answers and success=false are all "not found".
func (s *RemoteSource) FetchProduct(ctx context.Context, barcode string) (*Product, error) {
	remote, err := s.lookup(ctx, barcode)
	if err != nil || remote == nil {
		return nil, err
	}
	return s.writeThrough(ctx, barcode, *remote)
}

func (s *RemoteSource) lookup(ctx context.Context, barcode string) (*Product, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	endpoint := s.baseURL + LookupPath + "?ean=" + url.QueryEscape(barcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build remote request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Info("remote lookup timed out", slog.String("barcode", barcode))
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: remote lookup: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}
	var payload LookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("catalog: decode remote lookup: %w", err)
	}
	if !payload.Success || payload.Producto == nil {
		return nil, nil
	}
	return payload.Producto, nil
}

func (s *RemoteSource) writeThrough(ctx context.Context, barcode string, remote Product) (*Product, error) {
	now := s.now()
	base := remote.Base
	// Upstream ids are not stable across sources; the local key is always derived.
	base.ID = BaseID(base.Brand, base.Name)
	if base.CreatedAt.IsZero() {
		base.CreatedAt = now
	}
	if base.UpdatedAt.IsZero() {
		base.UpdatedAt = base.CreatedAt
	}

	variant := remote.Variant
	variant.BaseID = base.ID
	if variant.Barcode == "" {
		variant.Barcode = barcode
	}
	if existing, err := s.store.FindVariantByBarcode(ctx, variant.Barcode); err == nil {
		// Reuse the orphaned local row instead of adding a second variant.
		variant.ID = existing.ID
		variant.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if variant.ID == "" {
		variant.ID = NewVariantID()
	}
	if variant.CreatedAt.IsZero() {
		variant.CreatedAt = now
	}
	if variant.FullName == "" {
		variant.FullName = ComposeFullName(base.Name, base.Brand, variant.Type, variant.Size, variant.Flavor)
	}

	if err := s.store.PutBase(ctx, base); err != nil {
		s.logger.Warn("write-through base failed", slog.String("barcode", barcode), slog.Any("error", err))
		return &Product{Base: base, Variant: variant}, nil
	}
	if err := s.store.PutVariant(ctx, variant); err != nil {
		s.logger.Warn("write-through variant failed", slog.String("barcode", barcode), slog.Any("error", err))
		return &Product{Base: base, Variant: variant}, nil
	}

	stored, err := NewLocalSource(s.store).FetchProduct(ctx, variant.Barcode)
	if err != nil || stored == nil {
		return &Product{Base: base, Variant: variant}, nil
	}
	return stored, nil
}
