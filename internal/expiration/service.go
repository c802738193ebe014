package expiration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/gondolapp/gondolapp/internal/catalog"
)

// RepositoryPort abstracts expiration persistence.
type RepositoryPort interface {
	ListExpirations(ctx context.Context) ([]Item, error)
	GetExpiration(ctx context.Context, id string) (Item, error)
	PutExpiration(ctx context.Context, item Item) error
	DeleteExpiration(ctx context.Context, id string) error
}

// VariantLookup resolves variants for list display and input checks.
type VariantLookup interface {
	GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error)
}

// Service coordinates expiration tracking.
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

// Add records a lot. The alert level is computed for today.
func (s *Service) Add(ctx context.Context, input AddInput) (Item, error) {
	input.ExpiresOn = strings.TrimSpace(input.ExpiresOn)
	input.LotCode = strings.TrimSpace(input.LotCode)
	if err := s.validator.Struct(input); err != nil {
		return Item{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	expiresOn, err := time.Parse("2006-01-02", input.ExpiresOn)
	if err != nil {
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
	now := s.now().UTC()
	item := Item{
		ID:        uuid.NewString(),
		VariantID: input.VariantID,
		ExpiresOn: expiresOn,
		Quantity:  input.Quantity,
		LotCode:   input.LotCode,
		AddedAt:   now,
	}
	s.grade(&item, now)
	if err := s.repo.PutExpiration(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// List returns every item graded for today, soonest expiration first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	items, err := s.repo.ListExpirations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ExpiresOn.Before(items[j].ExpiresOn)
	})
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		s.grade(&item, now)
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
	return s.repo.DeleteExpiration(ctx, id)
}

// Summary regrades every stored item, persists level changes and returns
// the count per level.
func (s *Service) Summary(ctx context.Context) (map[AlertLevel]int, error) {
	items, err := s.repo.ListExpirations(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	counts := make(map[AlertLevel]int, len(Levels))
	for _, level := range Levels {
		counts[level] = 0
	}
	for _, item := range items {
		previous := item.AlertLevel
		s.grade(&item, now)
		counts[item.AlertLevel]++
		if previous == item.AlertLevel {
			continue
		}
		if err := s.repo.PutExpiration(ctx, item); err != nil {
			return nil, err
		}
		if item.AlertLevel == AlertCritical {
			s.logger.Info("expiration became critical", slog.String("item_id", item.ID), slog.String("variant_id", item.VariantID), slog.Int("days_left", item.DaysLeft))
		}
	}
	return counts, nil
}

func (s *Service) grade(item *Item, now time.Time) {
	item.DaysLeft = DaysUntil(now, item.ExpiresOn)
	item.AlertLevel = LevelFor(item.DaysLeft)
}
