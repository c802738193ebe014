package restock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gondolapp/gondolapp/internal/catalog"
)

type memoryRepo struct {
	items map[string]Item
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]Item)}
}

func (r *memoryRepo) ListRestock(ctx context.Context) ([]Item, error) {
	out := make([]Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	return out, nil
}

func (r *memoryRepo) GetRestock(ctx context.Context, id string) (Item, error) {
	item, ok := r.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

func (r *memoryRepo) InsertRestock(ctx context.Context, item Item) error {
	if _, err := r.FindOpenRestock(ctx, item.VariantID); err == nil {
		return ErrDuplicate
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryRepo) FindOpenRestock(ctx context.Context, variantID string) (Item, error) {
	for _, item := range r.items {
		if item.VariantID == variantID && !item.Restocked {
			return item, nil
		}
	}
	return Item{}, ErrNotFound
}

func (r *memoryRepo) UpdateRestock(ctx context.Context, item Item) error {
	if _, ok := r.items[item.ID]; !ok {
		return ErrNotFound
	}
	r.items[item.ID] = item
	return nil
}

func (r *memoryRepo) DeleteRestock(ctx context.Context, id string) error {
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memoryRepo) DeleteRestocked(ctx context.Context) (int, error) {
	n := 0
	for id, item := range r.items {
		if item.Restocked {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}

type variantMap map[string]catalog.ProductVariant

func (m variantMap) GetVariant(ctx context.Context, id string) (catalog.ProductVariant, error) {
	v, ok := m[id]
	if !ok {
		return catalog.ProductVariant{}, catalog.ErrNotFound
	}
	return v, nil
}

func TestAddIncrementsOpenItem(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, variantMap{"v1": {ID: "v1", Barcode: "111"}}, nil)
	ctx := context.Background()

	first, err := svc.Add(ctx, AddInput{VariantID: "v1", Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, 2, first.Quantity)

	second, err := svc.Add(ctx, AddInput{VariantID: "v1", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 5, second.Quantity)
	require.Len(t, repo.items, 1)
}

func TestAddDefaultsQuantityAndRejectsUnknownVariant(t *testing.T) {
	svc := NewService(newMemoryRepo(), variantMap{"v1": {ID: "v1"}}, nil)
	ctx := context.Background()

	item, err := svc.Add(ctx, AddInput{VariantID: "v1"})
	require.NoError(t, err)
	require.Equal(t, 1, item.Quantity)

	_, err = svc.Add(ctx, AddInput{VariantID: "missing", Quantity: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Add(ctx, AddInput{VariantID: "v1", Quantity: -4})
	require.ErrorIs(t, err, ErrValidation)
}

func TestFlagsAreIndependent(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	ctx := context.Background()

	item, err := svc.Add(ctx, AddInput{VariantID: "v1", Quantity: 1})
	require.NoError(t, err)

	yes := true
	updated, err := svc.Update(ctx, item.ID, UpdateInput{OutOfStock: &yes})
	require.NoError(t, err)
	require.True(t, updated.OutOfStock)
	require.False(t, updated.Restocked)

	updated, err = svc.Update(ctx, item.ID, UpdateInput{Restocked: &yes})
	require.NoError(t, err)
	require.True(t, updated.OutOfStock)
	require.True(t, updated.Restocked)

	zero := 0
	_, err = svc.Update(ctx, item.ID, UpdateInput{Quantity: &zero})
	require.ErrorIs(t, err, ErrValidation)
}

func TestRestockedItemDoesNotAbsorbNewAdds(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	item, err := svc.Add(ctx, AddInput{VariantID: "v1", Quantity: 1})
	require.NoError(t, err)
	yes := true
	_, err = svc.Update(ctx, item.ID, UpdateInput{Restocked: &yes})
	require.NoError(t, err)

	fresh, err := svc.Add(ctx, AddInput{VariantID: "v1", Quantity: 4})
	require.NoError(t, err)
	require.NotEqual(t, item.ID, fresh.ID)

	n, err := svc.ClearRestocked(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, repo.items, 1)
}

func TestListJoinsVariantsAndKeepsDanglingItems(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.items["a"] = Item{ID: "a", VariantID: "v1", Quantity: 1, AddedAt: now}
	repo.items["b"] = Item{ID: "b", VariantID: "gone", Quantity: 1, AddedAt: now.Add(time.Hour)}
	svc := NewService(repo, variantMap{"v1": {ID: "v1", FullName: "Cola FizzCo"}}, nil)

	entries, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "b", entries[0].ID)
	require.Nil(t, entries[0].Variant)
	require.NotNil(t, entries[1].Variant)
	require.Equal(t, "Cola FizzCo", entries[1].Variant.FullName)
}

// racingRepo reports a duplicate on the first insert while the conflicting row
// has already been closed by another writer.
type racingRepo struct {
	*memoryRepo
	inserts int
}

func (r *racingRepo) InsertRestock(ctx context.Context, item Item) error {
	r.inserts++
	if r.inserts == 1 {
		return ErrDuplicate
	}
	return r.memoryRepo.InsertRestock(ctx, item)
}

func TestAddRetriesInsertWhenOpenItemVanished(t *testing.T) {
	repo := &racingRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil)

	item, err := svc.Add(context.Background(), AddInput{VariantID: "v1", Quantity: 3})
	require.NoError(t, err)
	require.Equal(t, 2, repo.inserts)
	require.Equal(t, 3, item.Quantity)
	require.Contains(t, repo.items, item.ID)
}

func TestAddGivesUpAfterSecondVanishedInsert(t *testing.T) {
	repo := &alwaysDuplicateRepo{memoryRepo: newMemoryRepo()}
	svc := NewService(repo, nil, nil)

	_, err := svc.Add(context.Background(), AddInput{VariantID: "v1", Quantity: 1})
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 2, repo.inserts)
}

type alwaysDuplicateRepo struct {
	*memoryRepo
	inserts int
}

func (r *alwaysDuplicateRepo) InsertRestock(context.Context, Item) error {
	r.inserts++
	return ErrDuplicate
}
