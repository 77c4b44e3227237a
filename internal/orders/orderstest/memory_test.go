package orderstest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

func TestNestedTxActsAsSavepoint(t *testing.T) {
	m := NewMemoryStore()
	m.PutVariant(orders.Variant{ID: "ring", StockQuantity: 5, TrackInventory: true})
	ctx := context.Background()

	err := m.WithTx(ctx, func(tx orders.Store) error {
		_, ok, err := tx.DecrementStock(ctx, "ring", 1)
		require.NoError(t, err)
		require.True(t, ok)

		inner := tx.WithTx(ctx, func(sp orders.Store) error {
			_, _, err := sp.DecrementStock(ctx, "ring", 2)
			require.NoError(t, err)
			return errors.New("roll back savepoint")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, m.Variant("ring").StockQuantity)

	err = m.WithTx(ctx, func(tx orders.Store) error {
		_, _, _ = tx.DecrementStock(ctx, "ring", 4)
		return errors.New("roll back everything")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, m.Variant("ring").StockQuantity)
}

func TestDecrementMirrorsConditionalUpdate(t *testing.T) {
	m := NewMemoryStore()
	m.PutVariant(orders.Variant{ID: "ring", StockQuantity: 1, TrackInventory: true})
	m.PutVariant(orders.Variant{ID: "digital", StockQuantity: 0})
	ctx := context.Background()

	_, ok, err := m.DecrementStock(ctx, "ring", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = m.DecrementStock(ctx, "digital", 1)
	require.NoError(t, err)
	assert.False(t, ok, "untracked variants are never decremented")

	_, ok, err = m.DecrementStock(ctx, "ghost", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFailWith(t *testing.T) {
	m := NewMemoryStore()
	m.PutOrder(orders.Order{ID: "o-1", Status: orders.StatusPending})
	boom := errors.New("boom")
	m.FailWith(func(op, id string) error {
		if op == "GetOrder" && id == "o-1" {
			return boom
		}
		return nil
	})

	_, err := m.GetOrder(context.Background(), "o-1")
	assert.ErrorIs(t, err, boom)

	m.FailWith(nil)
	o, err := m.GetOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
}
