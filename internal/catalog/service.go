package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/gondolapp/gondolapp/internal/catalog/normalize"
)

const defaultSearchLimit = 50

// ProductService is the single entry point for product resolution.
type ProductService struct {
	manager   *SourceManager
	chain     *normalize.Chain
	store     Store
	logger    *slog.Logger
	validator *validator.Validate
	lookups   singleflight.Group
	now       func() time.Time
}

// NewProductService wires the facade. The manager, chain and store are
// built once at startup and shared.
func NewProductService(manager *SourceManager, chain *normalize.Chain, store Store, logger *slog.Logger) *ProductService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProductService{
		manager:   manager,
		chain:     chain,
		store:     store,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateProduct resolves a barcode through the source cascade. It never
// fails: errors are logged and reported as nil, which callers treat as
// "ask the user for manual entry".
func (s *ProductService) GetOrCreateProduct(ctx context.Context, barcode string) *Product {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" || s.manager == nil {
		return nil
	}
	resultCh := s.lookups.DoChan(barcode, func() (any, error) {
		return s.resolve(context.WithoutCancel(ctx), barcode), nil
	})
	select {
	case <-ctx.Done():
		return nil
	case res := <-resultCh:
		product, _ := res.Val.(*Product)
		if product == nil {
			return nil
		}
		// Shared results must not alias between callers.
		copied := *product
		return &copied
	}
}

func (s *ProductService) resolve(ctx context.Context, barcode string) (product *Product) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("product lookup panicked", slog.String("barcode", barcode), slog.Any("panic", r))
			product = nil
		}
	}()
	return s.manager.FetchProduct(ctx, barcode)
}

// CreateManualProduct stores a user-entered product. The base is found or
// created by its deterministic identifier; a new variant is always created,
// even when the barcode already exists.
func (s *ProductService) CreateManualProduct(ctx context.Context, barcode string, desc ManualDescriptor) (*Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return nil, fmt.Errorf("%w: barcode is required", ErrValidation)
	}
	desc = trimDescriptor(desc)
	if err := s.validator.Struct(desc); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	now := s.now()
	baseID := BaseID(desc.Brand, desc.BaseName)
	base, err := s.store.GetBase(ctx, baseID)
	switch {
	case errors.Is(err, ErrNotFound):
		base = ProductBase{
			ID:        baseID,
			Name:      desc.BaseName,
			Brand:     desc.Brand,
			Category:  desc.Category,
			ImageURL:  desc.ImageURL,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.PutBase(ctx, base); err != nil {
			return nil, fmt.Errorf("catalog: create base: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("catalog: load base: %w", err)
	}

	fullName := desc.FullName
	if fullName == "" {
		fullName = ComposeFullName(desc.BaseName, desc.Brand, desc.Type, desc.Size, desc.Flavor)
	}
	variant := ProductVariant{
		ID:        NewVariantID(),
		BaseID:    base.ID,
		Barcode:   barcode,
		FullName:  fullName,
		Type:      desc.Type,
		Size:      desc.Size,
		Flavor:    desc.Flavor,
		Unit:      desc.Unit,
		ImageURL:  desc.ImageURL,
		CreatedAt: now,
	}
	if err := s.store.PutVariant(ctx, variant); err != nil {
		return nil, fmt.Errorf("catalog: create variant: %w", err)
	}
	s.logger.Info("manual product created", slog.String("barcode", barcode), slog.String("base_id", base.ID), slog.String("variant_id", variant.ID))
	return &Product{Base: base, Variant: variant}, nil
}

// NormalizeProduct runs the normalizer chain over raw data.
func (s *ProductService) NormalizeProduct(ctx context.Context, raw normalize.RawProduct) *normalize.NormalizedProduct {
	if s.chain == nil {
		return nil
	}
	return s.chain.Normalize(ctx, raw)
}

// CreateFromRaw normalizes raw data and stores it through the manual path.
func (s *ProductService) CreateFromRaw(ctx context.Context, barcode string, raw normalize.RawProduct) (*Product, error) {
	n := s.NormalizeProduct(ctx, raw)
	if n == nil {
		return nil, fmt.Errorf("%w: product description could not be normalized", ErrValidation)
	}
	return s.CreateManualProduct(ctx, barcode, ManualDescriptor{
		BaseName: n.BaseName,
		Brand:    n.Brand,
		Category: n.Category,
		ImageURL: n.ImageURL,
		FullName: n.VariantName,
		Type:     n.Details.Type,
		Size:     n.Details.Size,
		Flavor:   n.Details.Flavor,
		Unit:     n.Details.Unit,
	})
}

// SearchProducts lists bases whose name, brand or category contain term.
func (s *ProductService) SearchProducts(ctx context.Context, term string) ([]ProductBase, error) {
	return s.store.SearchBases(ctx, strings.TrimSpace(term), defaultSearchLimit)
}

// GetVariants lists the variants of one base.
func (s *ProductService) GetVariants(ctx context.Context, baseID string) ([]ProductVariant, error) {
	if strings.TrimSpace(baseID) == "" {
		return nil, fmt.Errorf("%w: base id is required", ErrValidation)
	}
	return s.store.ListVariantsByBase(ctx, baseID)
}

func trimDescriptor(d ManualDescriptor) ManualDescriptor {
	d.BaseName = strings.TrimSpace(d.BaseName)
	d.Brand = strings.TrimSpace(d.Brand)
	d.Category = strings.TrimSpace(d.Category)
	d.ImageURL = strings.TrimSpace(d.ImageURL)
	d.FullName = strings.TrimSpace(d.FullName)
	d.Type = strings.TrimSpace(d.Type)
	d.Size = strings.TrimSpace(d.Size)
	d.Flavor = strings.TrimSpace(d.Flavor)
	d.Unit = strings.TrimSpace(d.Unit)
	return d
}
