package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type fakeStore struct {
	mu       sync.Mutex
	seq      int
	bases    map[string]ProductBase
	variants map[string]ProductVariant
	order    map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bases:    make(map[string]ProductBase),
		variants: make(map[string]ProductVariant),
		order:    make(map[string]int),
	}
}

func (s *fakeStore) GetBase(_ context.Context, id string) (ProductBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bases[id]
	if !ok {
		return ProductBase{}, ErrNotFound
	}
	return b, nil
}

func (s *fakeStore) PutBase(_ context.Context, base ProductBase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bases[base.ID] = base
	return nil
}

func (s *fakeStore) DeleteBase(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bases[id]; !ok {
		return ErrNotFound
	}
	delete(s.bases, id)
	return nil
}

func (s *fakeStore) GetVariant(_ context.Context, id string) (ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.variants[id]
	if !ok {
		return ProductVariant{}, ErrNotFound
	}
	return v, nil
}

func (s *fakeStore) PutVariant(_ context.Context, v ProductVariant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.order[v.ID]; !ok {
		s.seq++
		s.order[v.ID] = s.seq
	}
	s.variants[v.ID] = v
	return nil
}

func (s *fakeStore) DeleteVariant(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.variants[id]; !ok {
		return ErrNotFound
	}
	delete(s.variants, id)
	return nil
}

func (s *fakeStore) FindVariantByBarcode(ctx context.Context, barcode string) (ProductVariant, error) {
	all, _ := s.ListVariants(ctx)
	for _, v := range all {
		if v.Barcode == barcode {
			return v, nil
		}
	}
	return ProductVariant{}, ErrNotFound
}

func (s *fakeStore) ListVariantsByBase(ctx context.Context, baseID string) ([]ProductVariant, error) {
	all, _ := s.ListVariants(ctx)
	out := []ProductVariant{}
	for _, v := range all {
		if v.BaseID == baseID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeStore) SearchBases(ctx context.Context, term string, limit int) ([]ProductBase, error) {
	all, _ := s.ListBases(ctx)
	out := []ProductBase{}
	for _, b := range all {
		if strings.Contains(strings.ToLower(b.Name+" "+b.Brand+" "+b.Category), strings.ToLower(term)) {
			out = append(out, b)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListBases(context.Context) ([]ProductBase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProductBase, 0, len(s.bases))
	for _, b := range s.bases {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) ListVariants(context.Context) ([]ProductVariant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProductVariant, 0, len(s.variants))
	for _, v := range s.variants {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out, nil
}

func (s *fakeStore) variantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.variants)
}

// stubSource is a scripted DataSource that counts its calls.
type stubSource struct {
	name      string
	priority  int
	available bool
	product   *Product
	err       error
	panics    bool
	calls     atomic.Int32
	onFetch   func()
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Priority() int { return s.priority }

func (s *stubSource) IsAvailable(context.Context) bool { return s.available }

func (s *stubSource) FetchProduct(context.Context, string) (*Product, error) {
	s.calls.Add(1)
	if s.onFetch != nil {
		s.onFetch()
	}
	if s.panics {
		panic("boom")
	}
	return s.product, s.err
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) RecordAttempt(source, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, source+":"+outcome)
}

func sampleProduct(barcode string) *Product {
	base := ProductBase{ID: BaseID("FizzCo", "Cola"), Name: "Cola", Brand: "FizzCo", Category: "Bebidas"}
	return &Product{
		Base: base,
		Variant: ProductVariant{
			ID:       "variant-" + barcode,
			BaseID:   base.ID,
			Barcode:  barcode,
			FullName: "Cola FizzCo 500ml",
			Size:     "500ml",
			Unit:     "ml",
		},
	}
}
