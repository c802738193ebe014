// Package integrity detects and repairs inconsistencies in the local store.
// The store enforces neither barcode uniqueness nor variant-to-base
// references, so violations are found here after the fact.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/restock"
)

// Issue kinds, also used as metric labels.
const (
	KindOrphanVariant      = "orphan_variant"
	KindDuplicateBarcode   = "duplicate_barcode"
	KindDanglingRestock    = "dangling_restock"
	KindDanglingExpiration = "dangling_expiration"
)

// StorePort is the slice of the local store the scanner needs.
type StorePort interface {
	ListBases(ctx context.Context) ([]catalog.ProductBase, error)
	ListVariants(ctx context.Context) ([]catalog.ProductVariant, error)
	DeleteVariant(ctx context.Context, id string) error
	ListRestock(ctx context.Context) ([]restock.Item, error)
	DeleteRestock(ctx context.Context, id string) error
	ListExpirations(ctx context.Context) ([]expiration.Item, error)
	DeleteExpiration(ctx context.Context, id string) error
}

// danglingDeleter is implemented by engines that can drop dangling list
// items in one statement batch.
type danglingDeleter interface {
	DeleteDangling(ctx context.Context) (restockRemoved, expirationsRemoved int, err error)
}

// DuplicateBarcode lists every variant sharing one barcode, oldest first.
type DuplicateBarcode struct {
	Barcode    string   `json:"ean"`
	VariantIDs []string `json:"variantIds"`
}

// Report is the result of one scan.
type Report struct {
	OrphanVariants      []catalog.ProductVariant `json:"orphanVariants"`
	DuplicateBarcodes   []DuplicateBarcode       `json:"duplicateBarcodes"`
	DanglingRestock     []string                 `json:"danglingRestock"`
	DanglingExpirations []string                 `json:"danglingExpirations"`
	ScannedAt           time.Time                `json:"scannedAt"`
}

// Counts returns the number of issues per kind.
func (r Report) Counts() map[string]int {
	return map[string]int{
		KindOrphanVariant:      len(r.OrphanVariants),
		KindDuplicateBarcode:   len(r.DuplicateBarcodes),
		KindDanglingRestock:    len(r.DanglingRestock),
		KindDanglingExpiration: len(r.DanglingExpirations),
	}
}

// Clean reports whether the scan found nothing.
func (r Report) Clean() bool {
	for _, n := range r.Counts() {
		if n > 0 {
			return false
		}
	}
	return true
}

// RepairResult counts rows removed by Repair.
type RepairResult struct {
	OrphanVariants      int `json:"orphanVariants"`
	DanglingRestock     int `json:"danglingRestock"`
	DanglingExpirations int `json:"danglingExpirations"`
}

// Service scans and repairs the local store.
type Service struct {
	store  StorePort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(store StorePort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Scan reads the whole store and reports every inconsistency it finds.
func (s *Service) Scan(ctx context.Context) (Report, error) {
	bases, err := s.store.ListBases(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: list bases: %w", err)
	}
	variants, err := s.store.ListVariants(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("integrity: list variants: %w", err)
	}
	baseIDs := make(map[string]struct{}, len(bases))
	for _, b := range bases {
		baseIDs[b.ID] = struct{}{}
	}

	report := Report{
		OrphanVariants:      []catalog.ProductVariant{},
		DuplicateBarcodes:   []DuplicateBarcode{},
		DanglingRestock:     []string{},
		DanglingExpirations: []string{},
		ScannedAt:           s.now(),
	}
	variantIDs := make(map[string]struct{}, len(variants))
	byBarcode := make(map[string][]string)
	for _, v := range variants {
		variantIDs[v.ID] = struct{}{}
		byBarcode[v.Barcode] = append(byBarcode[v.Barcode], v.ID)
		if _, ok := baseIDs[v.BaseID]; !ok {
			report.OrphanVariants = append(report.OrphanVariants, v)
		}
	}
	for barcode, ids := range byBarcode {
		if len(ids) > 1 {
			report.DuplicateBarcodes = append(report.DuplicateBarcodes, DuplicateBarcode{Barcode: barcode, VariantIDs: ids})
		}
	}
	sort.Slice(report.DuplicateBarcodes, func(i, j int) bool {
		return report.DuplicateBarcodes[i].Barcode < report.DuplicateBarcodes[j].Barcode
	})

	report.DanglingRestock, report.DanglingExpirations, err = s.dangling(ctx, variantIDs)
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) dangling(ctx context.Context, variantIDs map[string]struct{}) ([]string, []string, error) {
	restockItems, err := s.store.ListRestock(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: list restock: %w", err)
	}
	expirationItems, err := s.store.ListExpirations(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("integrity: list expirations: %w", err)
	}
	restockIDs := []string{}
	for _, it := range restockItems {
		if _, ok := variantIDs[it.VariantID]; !ok {
			restockIDs = append(restockIDs, it.ID)
		}
	}
	expirationIDs := []string{}
	for _, it := range expirationItems {
		if _, ok := variantIDs[it.VariantID]; !ok {
			expirationIDs = append(expirationIDs, it.ID)
		}
	}
	sort.Strings(restockIDs)
	sort.Strings(expirationIDs)
	return restockIDs, expirationIDs, nil
}

// Repair deletes orphan variants, then list items whose variant is gone.
// Duplicate barcodes are left alone; choosing the survivor is a human call.
func (s *Service) Repair(ctx context.Context) (RepairResult, error) {
	report, err := s.Scan(ctx)
	if err != nil {
		return RepairResult{}, err
	}
	var result RepairResult
	for _, v := range report.OrphanVariants {
		if err := s.store.DeleteVariant(ctx, v.ID); err != nil && !errors.Is(err, catalog.ErrNotFound) {
			return result, fmt.Errorf("integrity: delete orphan %s: %w", v.ID, err)
		}
		result.OrphanVariants++
	}

	// Removing orphans can strand list items that pointed at them.
	if bulk, ok := s.store.(danglingDeleter); ok {
		result.DanglingRestock, result.DanglingExpirations, err = bulk.DeleteDangling(ctx)
		if err != nil {
			return result, err
		}
		s.logRepair(result, len(report.DuplicateBarcodes))
		return result, nil
	}
	variants, err := s.store.ListVariants(ctx)
	if err != nil {
		return result, fmt.Errorf("integrity: list variants: %w", err)
	}
	variantIDs := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		variantIDs[v.ID] = struct{}{}
	}
	restockIDs, expirationIDs, err := s.dangling(ctx, variantIDs)
	if err != nil {
		return result, err
	}
	for _, id := range restockIDs {
		if err := s.store.DeleteRestock(ctx, id); err != nil && !errors.Is(err, restock.ErrNotFound) {
			return result, fmt.Errorf("integrity: delete restock item %s: %w", id, err)
		}
		result.DanglingRestock++
	}
	for _, id := range expirationIDs {
		if err := s.store.DeleteExpiration(ctx, id); err != nil && !errors.Is(err, expiration.ErrNotFound) {
			return result, fmt.Errorf("integrity: delete expiration item %s: %w", id, err)
		}
		result.DanglingExpirations++
	}
	s.logRepair(result, len(report.DuplicateBarcodes))
	return result, nil
}

func (s *Service) logRepair(result RepairResult, duplicates int) {
	s.logger.Info("integrity repair finished",
		slog.Int("orphan_variants", result.OrphanVariants),
		slog.Int("dangling_restock", result.DanglingRestock),
		slog.Int("dangling_expirations", result.DanglingExpirations),
		slog.Int("duplicate_barcodes", duplicates),
	)
}
