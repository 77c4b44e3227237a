package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

func TestProcessSaleInventory(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 5)
	f.variant("necklace", 2)

	res, err := f.ledger.ProcessSaleInventory(context.Background(), []inventory.Item{
		{VariantID: "ring", Quantity: 2}, {VariantID: "necklace", Quantity: 2},
	}, "order-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"ring", "necklace"}, res.Applied)

	assert.Equal(t, 3, f.store.Variant("ring").StockQuantity)
	assert.Equal(t, 0, f.store.Variant("necklace").StockQuantity)

	journal := f.store.Journal()
	require.Len(t, journal, 2)
	for _, txn := range journal {
		assert.Equal(t, orders.TxSale, txn.Type)
		assert.Equal(t, "order-1", txn.ReferenceID)
		assert.Equal(t, "Order sale", txn.Notes)
	}
	assert.Len(t, f.pub.messages(), 2)
}

func TestProcessSaleInventoryShortageChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 5)
	f.variant("necklace", 1)

	res, err := f.ledger.ProcessSaleInventory(context.Background(), []inventory.Item{
		{VariantID: "ring", Quantity: 2}, {VariantID: "necklace", Quantity: 3},
	}, "order-2")
	require.Error(t, err)
	assert.Equal(t, inventory.KindInsufficientStock, inventory.KindOf(err))
	assert.False(t, res.Success)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "necklace", res.Errors[0].VariantID)
	assert.Contains(t, res.Errors[0].Message, "Available: 1, Requested: 3")

	assert.Equal(t, 5, f.store.Variant("ring").StockQuantity)
	assert.Equal(t, 1, f.store.Variant("necklace").StockQuantity)
	assert.Empty(t, f.store.Journal())
	assert.Empty(t, f.pub.messages())
}

func TestProcessSaleInventoryRollsBackOnStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 5)
	f.variant("necklace", 5)
	f.store.FailWith(func(op, id string) error {
		if op == "DecrementStock" && id == "necklace" {
			return errors.New("deadlock detected")
		}
		return nil
	})

	res, err := f.ledger.ProcessSaleInventory(context.Background(), []inventory.Item{
		{VariantID: "ring", Quantity: 1}, {VariantID: "necklace", Quantity: 1},
	}, "order-3")
	require.Error(t, err)
	assert.Equal(t, inventory.KindStoreError, inventory.KindOf(err))
	assert.False(t, res.Success)
	assert.Empty(t, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "necklace", res.Errors[0].VariantID)

	assert.Equal(t, 5, f.store.Variant("ring").StockQuantity)
	assert.Empty(t, f.store.Journal())
	assert.Empty(t, f.pub.messages())
}

func TestReverseSaleInventory(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 0)
	f.variant("necklace", 3)

	res, err := f.ledger.ReverseSaleInventory(context.Background(), []inventory.Item{
		{VariantID: "ring", Quantity: 2}, {VariantID: "necklace", Quantity: 1},
	}, "order-4")
	require.NoError(t, err)
	assert.True(t, res.Success)

	ring := f.store.Variant("ring")
	assert.Equal(t, 2, ring.StockQuantity)
	assert.True(t, ring.IsAvailable)
	assert.Equal(t, 4, f.store.Variant("necklace").StockQuantity)

	for _, txn := range f.store.Journal() {
		assert.Equal(t, orders.TxReturn, txn.Type)
		assert.Equal(t, "Order cancelled", txn.Notes)
	}
}

func TestReverseSaleInventoryAttemptsEveryItem(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 1)
	f.variant("necklace", 1)

	res, err := f.ledger.ReverseSaleInventory(context.Background(), []inventory.Item{
		{VariantID: "ghost-1", Quantity: 1},
		{VariantID: "ring", Quantity: 1},
		{VariantID: "ghost-2", Quantity: 1},
		{VariantID: "necklace", Quantity: 1},
	}, "order-5")
	require.Error(t, err)
	assert.Equal(t, inventory.KindNotFound, inventory.KindOf(err))
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "ghost-1", res.Errors[0].VariantID)
	assert.Equal(t, "ghost-2", res.Errors[1].VariantID)
	assert.Len(t, res.Messages(), 2)

	// the whole reversal is rolled back so it can be retried as a unit
	assert.Equal(t, 1, f.store.Variant("ring").StockQuantity)
	assert.Equal(t, 1, f.store.Variant("necklace").StockQuantity)
	assert.Empty(t, f.store.Journal())
	assert.Empty(t, f.pub.messages())
}

func TestBulkUpdateStock(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 5)
	f.variant("necklace", 4)
	f.variant("anklet", 2)

	res, err := f.ledger.BulkUpdateStock(context.Background(), []inventory.StockUpdate{
		{VariantID: "ring", NewStock: 20, Notes: "stock take"},
		{VariantID: "necklace", NewStock: -1},
		{VariantID: "ghost", NewStock: 3},
		{VariantID: "anklet", NewStock: 2},
	})
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"ring", "anklet"}, res.Applied)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, inventory.ItemError{VariantID: "necklace", Kind: inventory.KindInvalidQuantity, Message: "Stock cannot be negative, got -1"}, res.Errors[0])
	assert.Equal(t, inventory.KindNotFound, res.Errors[1].Kind)

	assert.Equal(t, 20, f.store.Variant("ring").StockQuantity)
	assert.Equal(t, 4, f.store.Variant("necklace").StockQuantity)

	journal := f.store.Journal()
	require.Len(t, journal, 1)
	assert.Equal(t, "ring", journal[0].VariantID)
	assert.Equal(t, 15, journal[0].QuantityChange)
	assert.Equal(t, orders.TxAdjustment, journal[0].Type)
	assert.Equal(t, "stock take", journal[0].Notes)
}

func TestBulkUpdateStockToZeroMarksUnavailable(t *testing.T) {
	f := newFixture(t)
	f.variant("ring", 5)

	res, err := f.ledger.BulkUpdateStock(context.Background(), []inventory.StockUpdate{{VariantID: "ring", NewStock: 0}})
	require.NoError(t, err)
	assert.True(t, res.Success)

	v := f.store.Variant("ring")
	assert.Equal(t, 0, v.StockQuantity)
	assert.False(t, v.IsAvailable)
	require.Len(t, f.pub.messages(), 1)
	assert.Equal(t, -5, stockEvent(t, f.pub.messages()[0]).QuantityChange)
}
