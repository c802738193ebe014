package catalog

import (
	"context"
	"errors"
)

// LocalSource answers lookups from the local store.
type LocalSource struct {
	store    Store
	priority int
}

// NewLocalSource builds the local source with PriorityLocal.
func NewLocalSource(store Store) *LocalSource {
	return &LocalSource{store: store, priority: PriorityLocal}
}

func (s *LocalSource) Name() string { return "local" }

func (s *LocalSource) Priority() int { return s.priority }

// IsAvailable is always true; the local store is in-process or owned by the node.
func (s *LocalSource) IsAvailable(context.Context) bool { return true }

// FetchProduct loads the variant by barcode and its base. An orphan variant
// is reported as not found rather than as a partial record.
func (s *LocalSource) FetchProduct(ctx context.Context, barcode string) (*Product, error) {
	variant, err := s.store.FindVariantByBarcode(ctx, barcode)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	base, err := s.store.GetBase(ctx, variant.BaseID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Product{Base: base, Variant: variant}, nil
}
