// Package normalize turns heterogeneous raw product descriptions into one
// normalized shape through a priority-ordered chain of normalizers.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// RawProduct is an unprocessed product description from a catalog, a
// label scan or a user.
type RawProduct struct {
	Text     string `json:"text"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Category string `json:"category"`
	ImageURL string `json:"image"`
	Source   string `json:"source"`
}

// Describe returns the most specific free text available.
func (r RawProduct) Describe() string {
	if s := strings.TrimSpace(r.Name); s != "" {
		return s
	}
	return strings.TrimSpace(r.Text)
}

// Details holds the variant descriptors of a normalized product.
type Details struct {
	Type   string `json:"type,omitempty"`
	Size   string `json:"size,omitempty"`
	Flavor string `json:"flavor,omitempty"`
	Unit   string `json:"unit,omitempty"`
}

// NormalizedProduct is the canonical description produced by the chain.
type NormalizedProduct struct {
	Brand       string  `json:"brand"`
	BaseName    string  `json:"baseName"`
	VariantName string  `json:"variantName"`
	Category    string  `json:"category"`
	ImageURL    string  `json:"image"`
	Details     Details `json:"details"`
	Normalizer  string  `json:"normalizer"`
}

// Normalizer converts raw data into a NormalizedProduct. A nil result with
// a nil error is a soft failure that lets the chain continue.
type Normalizer interface {
	Name() string
	Priority() int
	CanHandle(raw RawProduct) bool
	Normalize(ctx context.Context, raw RawProduct) (*NormalizedProduct, error)
}

// Chain runs normalizers in descending priority; the first result wins.
type Chain struct {
	mu          sync.RWMutex
	normalizers []Normalizer
	logger      *slog.Logger
}

// NewChain builds a chain with the given normalizers.
func NewChain(logger *slog.Logger, normalizers ...Normalizer) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chain{logger: logger}
	for _, n := range normalizers {
		c.Add(n)
	}
	return c
}

// Add appends a normalizer and re-sorts, keeping insertion order for ties.
func (c *Chain) Add(n Normalizer) {
	if n == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.normalizers = append(c.normalizers, n)
	sort.SliceStable(c.normalizers, func(i, j int) bool {
		return c.normalizers[i].Priority() > c.normalizers[j].Priority()
	})
}

// Normalizers returns the chain order.
func (c *Chain) Normalizers() []Normalizer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Normalizer, len(c.normalizers))
	copy(out, c.normalizers)
	return out
}

// Normalize returns the first non-nil result, or nil when every candidate declined.
func (c *Chain) Normalize(ctx context.Context, raw RawProduct) *NormalizedProduct {
	for _, n := range c.Normalizers() {
		if !n.CanHandle(raw) {
			continue
		}
		result, err := c.run(ctx, n, raw)
		if err != nil {
			c.logger.Warn("normalizer failed", slog.String("normalizer", n.Name()), slog.Any("error", err))
			continue
		}
		if result == nil {
			continue
		}
		if result.Normalizer == "" {
			result.Normalizer = n.Name()
		}
		return result
	}
	return nil
}

func (c *Chain) run(ctx context.Context, n Normalizer, raw RawProduct) (result *NormalizedProduct, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("normalize: %s panicked: %v", n.Name(), r)
		}
	}()
	return n.Normalize(ctx, raw)
}
