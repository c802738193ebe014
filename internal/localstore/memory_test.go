package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/restock"
)

var (
	_ catalog.Store             = (*Memory)(nil)
	_ restock.RepositoryPort    = (*Memory)(nil)
	_ expiration.RepositoryPort = (*Memory)(nil)
	_ catalog.Store             = (*Postgres)(nil)
	_ restock.RepositoryPort    = (*Postgres)(nil)
	_ expiration.RepositoryPort = (*Postgres)(nil)
)

func TestMemoryFindVariantByBarcodeReturnsEarliest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutVariant(ctx, catalog.ProductVariant{ID: "v1", BaseID: "b", Barcode: "779"}))
	require.NoError(t, m.PutVariant(ctx, catalog.ProductVariant{ID: "v2", BaseID: "b", Barcode: "779"}))

	// Replacing v1 keeps its original position.
	require.NoError(t, m.PutVariant(ctx, catalog.ProductVariant{ID: "v1", BaseID: "b", Barcode: "779", FullName: "renamed"}))

	got, err := m.FindVariantByBarcode(ctx, "779")
	require.NoError(t, err)
	require.Equal(t, "v1", got.ID)
	require.Equal(t, "renamed", got.FullName)

	_, err = m.FindVariantByBarcode(ctx, "000")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestMemoryDoesNotEnforceReferences(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.PutVariant(ctx, catalog.ProductVariant{ID: "orphan", BaseID: "missing", Barcode: "1"}))

	variants, err := m.ListVariantsByBase(ctx, "missing")
	require.NoError(t, err)
	require.Len(t, variants, 1)

	_, err = m.GetBase(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.ErrorIs(t, m.DeleteVariant(ctx, "nope"), catalog.ErrNotFound)
	require.ErrorIs(t, m.DeleteBase(ctx, "nope"), catalog.ErrNotFound)
}

func TestMemorySearchBases(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, b := range []catalog.ProductBase{
		{ID: "1", Name: "Galletas", Brand: "Dulcor", Category: "Snacks"},
		{ID: "2", Name: "Agua", Brand: "Fuente", Category: "Bebidas"},
		{ID: "3", Name: "Cola", Brand: "FizzCo", Category: "Bebidas"},
	} {
		require.NoError(t, m.PutBase(ctx, b))
	}

	got, err := m.SearchBases(ctx, "BEBIDAS", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Agua", got[0].Name)
	require.Equal(t, "Cola", got[1].Name)

	got, err = m.SearchBases(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = m.SearchBases(ctx, "dulc", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID)
}

func TestMemoryRestockSingleOpenItem(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Now().UTC()
	require.NoError(t, m.InsertRestock(ctx, restock.Item{ID: "r1", VariantID: "v", Quantity: 1, AddedAt: now}))
	require.ErrorIs(t, m.InsertRestock(ctx, restock.Item{ID: "r2", VariantID: "v", Quantity: 1, AddedAt: now}), restock.ErrDuplicate)

	open, err := m.FindOpenRestock(ctx, "v")
	require.NoError(t, err)
	open.Restocked = true
	require.NoError(t, m.UpdateRestock(ctx, open))

	require.NoError(t, m.InsertRestock(ctx, restock.Item{ID: "r2", VariantID: "v", Quantity: 1, AddedAt: now}))

	n, err := m.DeleteRestocked(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	items, err := m.ListRestock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "r2", items[0].ID)

	require.ErrorIs(t, m.UpdateRestock(ctx, restock.Item{ID: "ghost"}), restock.ErrNotFound)
	require.ErrorIs(t, m.DeleteRestock(ctx, "ghost"), restock.ErrNotFound)
}

func TestMemoryExpirationCopiesQuantity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	qty := 4
	require.NoError(t, m.PutExpiration(ctx, expiration.Item{ID: "e1", VariantID: "v", Quantity: &qty}))
	qty = 99

	got, err := m.GetExpiration(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got.Quantity)
	require.Equal(t, 4, *got.Quantity)

	*got.Quantity = 7
	again, err := m.GetExpiration(ctx, "e1")
	require.NoError(t, err)
	require.Equal(t, 4, *again.Quantity)

	require.NoError(t, m.DeleteExpiration(ctx, "e1"))
	_, err = m.GetExpiration(ctx, "e1")
	require.ErrorIs(t, err, expiration.ErrNotFound)
}

func TestOpenMemoryAndUnknownDriver(t *testing.T) {
	engine, closeFn, err := Open(context.Background(), Options{Driver: "memory"})
	require.NoError(t, err)
	require.NotNil(t, engine)
	closeFn()

	_, closeFn, err = Open(context.Background(), Options{Driver: "sqlite"})
	require.Error(t, err)
	closeFn()
}
