package restock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gondolapp/gondolapp/internal/catalog"
)

// RepositoryPort abstracts restock persistence.
type RepositoryPort interface {
	ListRestock(ctx context.Context) ([]Item, error)
	GetRestock(ctx context.Context, id string) (Item, error)
	// InsertRestock fails with ErrDuplicate when the variant has an open item.
	InsertRestock(ctx context.Context, item Item) error
	FindOpenRestock(ctx context.Context, variantID string) (Item, error)
	UpdateRestock(ctx context.Context, item Item) error
	DeleteRestock(ctx context.Context, id string) error
	DeleteRestocked(ctx context.Context) (int, error)
}

// VariantLookup resolves variants for list display and input checks.
type VariantLookup interface {
	GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error)
}

// Service coordinates the restock list.
type Service struct {
	repo      RepositoryPort
	variants  VariantLookup
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, variants VariantLookup, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		variants:  variants,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Add lists a variant. When the variant already has an open item its
// quantity is increased instead.
func (s *Service) Add(ctx context.Context, input AddInput) (Item, error) {
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	if err := s.validator.Struct(input); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if s.variants != nil {
		if _, err := s.variants.GetVariant(ctx, input.VariantID); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return Item{}, fmt.Errorf("%w: unknown variant %s", ErrValidation, input.VariantID)
			}
			return Item{}, err
		}
	}

	now := s.now()
	item := Item{
		ID:        uuid.NewString(),
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
		AddedAt:   now,
		UpdatedAt: now,
	}
	// The open row can be closed between a duplicate insert and the lookup,
	// so the insert is retried once before giving up.
	for attempt := 0; ; attempt++ {
		err := s.repo.InsertRestock(ctx, item)
		if err == nil {
			return item, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return Item{}, err
		}

		existing, err := s.repo.FindOpenRestock(ctx, input.VariantID)
		if errors.Is(err, ErrNotFound) && attempt == 0 {
			continue
		}
		if err != nil {
			return Item{}, err
		}
		existing.Quantity += input.Quantity
		existing.UpdatedAt = now
		if err := s.repo.UpdateRestock(ctx, existing); err != nil {
			return Item{}, err
		}
		return existing, nil
	}
}

// Update changes quantity and flags of one item.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Item, error) {
	if err := s.validator.Struct(input); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	item, err := s.repo.GetRestock(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if input.Quantity != nil {
		item.Quantity = *input.Quantity
	}
	if input.Restocked != nil {
		item.Restocked = *input.Restocked
	}
	if input.OutOfStock != nil {
		item.OutOfStock = *input.OutOfStock
	}
	item.UpdatedAt = s.now()
	if err := s.repo.UpdateRestock(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns every item, newest first, joined with its variant.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	items, err := s.repo.ListRestock(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].AddedAt.After(items[j].AddedAt)
	})
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		entry := Entry{Item: item}
		if s.variants != nil {
			variant, err := s.variants.GetVariant(ctx, item.VariantID)
			switch {
			case err == nil:
				entry.Variant = &variant
			case !errors.Is(err, catalog.ErrNotFound):
				return nil, err
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Delete removes one item.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.DeleteRestock(ctx, id)
}

// ClearRestocked removes every item flagged as restocked.
func (s *Service) ClearRestocked(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteRestocked(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("restocked items cleared", slog.Int("count", n))
	return n, nil
}
