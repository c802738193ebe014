// Package localstore provides the engines behind the node's local store:
// an in-process memory engine, an embedded Badger engine and a PostgreSQL
// engine. Each implements catalog.Store, restock.RepositoryPort and
// expiration.RepositoryPort.
package localstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/restock"
)

// Memory keeps every table in maps guarded by one RWMutex. Values are
// copied in and out so callers never share state with the store.
type Memory struct {
	mu          sync.RWMutex
	seq         uint64
	bases       map[string]catalog.ProductBase
	variants    map[string]storedVariant
	restock     map[string]restock.Item
	expirations map[string]expiration.Item
}

type storedVariant struct {
	catalog.ProductVariant
	seq uint64
}

// NewMemory builds an empty memory engine.
func NewMemory() *Memory {
	return &Memory{
		bases:       make(map[string]catalog.ProductBase),
		variants:    make(map[string]storedVariant),
		restock:     make(map[string]restock.Item),
		expirations: make(map[string]expiration.Item),
	}
}

func (m *Memory) GetBase(_ context.Context, id string) (catalog.ProductBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	base, ok := m.bases[id]
	if !ok {
		return catalog.ProductBase{}, catalog.ErrNotFound
	}
	return base, nil
}

func (m *Memory) PutBase(_ context.Context, base catalog.ProductBase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bases[base.ID] = base
	return nil
}

func (m *Memory) DeleteBase(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bases[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.bases, id)
	return nil
}

func (m *Memory) GetVariant(_ context.Context, id string) (catalog.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.variants[id]
	if !ok {
		return catalog.ProductVariant{}, catalog.ErrNotFound
	}
	return v.ProductVariant, nil
}

// PutVariant inserts or replaces a variant, keeping the original insertion
// position on replace.
func (m *Memory) PutVariant(_ context.Context, variant catalog.ProductVariant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	seq := m.seq + 1
	if existing, ok := m.variants[variant.ID]; ok {
		seq = existing.seq
	} else {
		m.seq = seq
	}
	m.variants[variant.ID] = storedVariant{ProductVariant: variant, seq: seq}
	return nil
}

func (m *Memory) DeleteVariant(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.variants[id]; !ok {
		return catalog.ErrNotFound
	}
	delete(m.variants, id)
	return nil
}

func (m *Memory) FindVariantByBarcode(_ context.Context, barcode string) (catalog.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found storedVariant
		ok    bool
	)
	for _, v := range m.variants {
		if v.Barcode != barcode {
			continue
		}
		if !ok || v.seq < found.seq {
			found, ok = v, true
		}
	}
	if !ok {
		return catalog.ProductVariant{}, catalog.ErrNotFound
	}
	return found.ProductVariant, nil
}

func (m *Memory) ListVariantsByBase(_ context.Context, baseID string) ([]catalog.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedVariants(func(v storedVariant) bool { return v.BaseID == baseID }), nil
}

func (m *Memory) ListVariants(_ context.Context) ([]catalog.ProductVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedVariants(nil), nil
}

func (m *Memory) sortedVariants(keep func(storedVariant) bool) []catalog.ProductVariant {
	matched := make([]storedVariant, 0, len(m.variants))
	for _, v := range m.variants {
		if keep == nil || keep(v) {
			matched = append(matched, v)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	out := make([]catalog.ProductVariant, len(matched))
	for i, v := range matched {
		out[i] = v.ProductVariant
	}
	return out
}

// SearchBases matches term case-insensitively against name, brand and
// category. An empty term lists every base. Results are ordered by name.
func (m *Memory) SearchBases(_ context.Context, term string, limit int) ([]catalog.ProductBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]catalog.ProductBase, 0)
	for _, b := range m.bases {
		if needle == "" ||
			strings.Contains(strings.ToLower(b.Name), needle) ||
			strings.Contains(strings.ToLower(b.Brand), needle) ||
			strings.Contains(strings.ToLower(b.Category), needle) {
			out = append(out, b)
		}
	}
	sortBases(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) ListBases(_ context.Context) ([]catalog.ProductBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]catalog.ProductBase, 0, len(m.bases))
	for _, b := range m.bases {
		out = append(out, b)
	}
	sortBases(out)
	return out, nil
}

func sortBases(bases []catalog.ProductBase) {
	sort.Slice(bases, func(i, j int) bool {
		if bases[i].Name != bases[j].Name {
			return bases[i].Name < bases[j].Name
		}
		return bases[i].ID < bases[j].ID
	})
}

func (m *Memory) ListRestock(_ context.Context) ([]restock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]restock.Item, 0, len(m.restock))
	for _, item := range m.restock {
		out = append(out, item)
	}
	return out, nil
}

func (m *Memory) GetRestock(_ context.Context, id string) (restock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.restock[id]
	if !ok {
		return restock.Item{}, restock.ErrNotFound
	}
	return item, nil
}

// InsertRestock enforces one open item per variant, as the Postgres
// engine does with a partial unique index.
func (m *Memory) InsertRestock(_ context.Context, item restock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !item.Restocked && m.openRestockLocked(item.VariantID, "") {
		return restock.ErrDuplicate
	}
	m.restock[item.ID] = item
	return nil
}

func (m *Memory) FindOpenRestock(_ context.Context, variantID string) (restock.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.restock {
		if item.VariantID == variantID && !item.Restocked {
			return item, nil
		}
	}
	return restock.Item{}, restock.ErrNotFound
}

func (m *Memory) UpdateRestock(_ context.Context, item restock.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restock[item.ID]; !ok {
		return restock.ErrNotFound
	}
	if !item.Restocked && m.openRestockLocked(item.VariantID, item.ID) {
		return restock.ErrDuplicate
	}
	m.restock[item.ID] = item
	return nil
}

func (m *Memory) openRestockLocked(variantID, exceptID string) bool {
	for id, existing := range m.restock {
		if id != exceptID && existing.VariantID == variantID && !existing.Restocked {
			return true
		}
	}
	return false
}

func (m *Memory) DeleteRestock(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.restock[id]; !ok {
		return restock.ErrNotFound
	}
	delete(m.restock, id)
	return nil
}

func (m *Memory) DeleteRestocked(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, item := range m.restock {
		if item.Restocked {
			delete(m.restock, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListExpirations(_ context.Context) ([]expiration.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]expiration.Item, 0, len(m.expirations))
	for _, item := range m.expirations {
		out = append(out, copyExpiration(item))
	}
	return out, nil
}

func (m *Memory) GetExpiration(_ context.Context, id string) (expiration.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.expirations[id]
	if !ok {
		return expiration.Item{}, expiration.ErrNotFound
	}
	return copyExpiration(item), nil
}

func (m *Memory) PutExpiration(_ context.Context, item expiration.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expirations[item.ID] = copyExpiration(item)
	return nil
}

func (m *Memory) DeleteExpiration(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expirations[id]; !ok {
		return expiration.ErrNotFound
	}
	delete(m.expirations, id)
	return nil
}

func copyExpiration(item expiration.Item) expiration.Item {
	if item.Quantity != nil {
		q := *item.Quantity
		item.Quantity = &q
	}
	return item
}
