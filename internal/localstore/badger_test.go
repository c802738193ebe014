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

var _ Engine = (*Badger)(nil)

func newBadger(t *testing.T) *Badger {
	t.Helper()
	b, err := OpenBadger("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBadgerBarcodeIndexFollowsReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	require.NoError(t, b.PutVariant(ctx, catalog.ProductVariant{ID: "v1", BaseID: "b", Barcode: "779"}))
	require.NoError(t, b.PutVariant(ctx, catalog.ProductVariant{ID: "v2", BaseID: "b", Barcode: "779"}))
	require.NoError(t, b.PutVariant(ctx, catalog.ProductVariant{ID: "v1", BaseID: "b", Barcode: "779", FullName: "renamed"}))

	got, err := b.FindVariantByBarcode(ctx, "779")
	require.NoError(t, err)
	require.Equal(t, "v1", got.ID)
	require.Equal(t, "renamed", got.FullName)

	// Moving v1 to another barcode drops its old index entry.
	require.NoError(t, b.PutVariant(ctx, catalog.ProductVariant{ID: "v1", BaseID: "b", Barcode: "780"}))
	got, err = b.FindVariantByBarcode(ctx, "779")
	require.NoError(t, err)
	require.Equal(t, "v2", got.ID)

	require.NoError(t, b.DeleteVariant(ctx, "v2"))
	_, err = b.FindVariantByBarcode(ctx, "779")
	require.ErrorIs(t, err, catalog.ErrNotFound)
	require.ErrorIs(t, b.DeleteVariant(ctx, "v2"), catalog.ErrNotFound)

	// A barcode that prefixes another must not match it.
	_, err = b.FindVariantByBarcode(ctx, "78")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	variants, err := b.ListVariantsByBase(ctx, "b")
	require.NoError(t, err)
	require.Len(t, variants, 1)
	require.Equal(t, "780", variants[0].Barcode)
}

func TestBadgerBasesAndSearch(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	for _, base := range []catalog.ProductBase{
		{ID: "2", Name: "Yerba Mate", Brand: "Playadito", Category: "Infusiones"},
		{ID: "1", Name: "Cola", Brand: "FizzCo", Category: "Bebidas"},
		{ID: "3", Name: "Agua", Brand: "Sierra", Category: "Bebidas"},
	} {
		require.NoError(t, b.PutBase(ctx, base))
	}

	got, err := b.SearchBases(ctx, "BEBIDAS", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Agua", got[0].Name)
	require.Equal(t, "Cola", got[1].Name)

	got, err = b.SearchBases(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	base, err := b.GetBase(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, "Playadito", base.Brand)

	require.NoError(t, b.DeleteBase(ctx, "2"))
	_, err = b.GetBase(ctx, "2")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestBadgerRestockSingleOpenItem(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.InsertRestock(ctx, restock.Item{ID: "r1", VariantID: "v1", Quantity: 1, AddedAt: now}))
	require.ErrorIs(t, b.InsertRestock(ctx, restock.Item{ID: "r2", VariantID: "v1", Quantity: 1, AddedAt: now}), restock.ErrDuplicate)

	open, err := b.FindOpenRestock(ctx, "v1")
	require.NoError(t, err)
	require.Equal(t, "r1", open.ID)

	open.Restocked = true
	require.NoError(t, b.UpdateRestock(ctx, open))
	require.NoError(t, b.InsertRestock(ctx, restock.Item{ID: "r2", VariantID: "v1", Quantity: 3, AddedAt: now}))
	require.ErrorIs(t, b.UpdateRestock(ctx, restock.Item{ID: "missing"}), restock.ErrNotFound)

	n, err := b.DeleteRestocked(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	items, err := b.ListRestock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 3, items[0].Quantity)
}

func TestBadgerExpirations(t *testing.T) {
	ctx := context.Background()
	b := newBadger(t)
	qty := 4
	expires := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, b.PutExpiration(ctx, expiration.Item{ID: "e1", VariantID: "v1", ExpiresOn: expires, Quantity: &qty}))

	got, err := b.GetExpiration(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got.Quantity)
	require.Equal(t, 4, *got.Quantity)
	require.True(t, got.ExpiresOn.Equal(expires))

	require.NoError(t, b.DeleteExpiration(ctx, "e1"))
	require.ErrorIs(t, b.DeleteExpiration(ctx, "e1"), expiration.ErrNotFound)
	items, err := b.ListExpirations(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestOpenBadgerDriver(t *testing.T) {
	engine, closeFn, err := Open(context.Background(), Options{Driver: "badger"})
	require.NoError(t, err)
	defer closeFn()
	_, err = engine.GetBase(context.Background(), "none")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}
