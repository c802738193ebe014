package catalog

import "context"

// Store is the local persistence port for product bases and variants.
// Lookups of missing rows return ErrNotFound. Implementations hold no
// business logic: they never create records on their own, do not enforce
// barcode uniqueness and do not check that a variant's base exists.
type Store interface {
	GetBase(ctx context.Context, id string) (ProductBase, error)
	PutBase(ctx context.Context, base ProductBase) error
	DeleteBase(ctx context.Context, id string) error

	GetVariant(ctx context.Context, id string) (ProductVariant, error)
	PutVariant(ctx context.Context, variant ProductVariant) error
	DeleteVariant(ctx context.Context, id string) error

	// FindVariantByBarcode returns the earliest stored variant with the barcode.
	FindVariantByBarcode(ctx context.Context, barcode string) (ProductVariant, error)
	ListVariantsByBase(ctx context.Context, baseID string) ([]ProductVariant, error)
	SearchBases(ctx context.Context, term string, limit int) ([]ProductBase, error)
	ListBases(ctx context.Context) ([]ProductBase, error)
	ListVariants(ctx context.Context) ([]ProductVariant, error)
}
