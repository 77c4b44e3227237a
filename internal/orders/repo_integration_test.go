//go:build integration

package orders_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/postgres"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/settlement"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgC, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("shop"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(context.Background()) })

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool))
	require.NoError(t, postgres.Migrate(ctx, pool), "schema is re-appliable")
	return pool
}

func seedVariant(t *testing.T, pool *pgxpool.Pool, id string, stock int, backorder bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO product_variants (id, sku, stock_quantity, track_inventory, allow_backorder, is_available)
		VALUES ($1, $2, $3, true, $4, $3 > 0 OR $4)`, id, "SKU-"+id, stock, backorder)
	require.NoError(t, err)
}

func seedOrder(t *testing.T, pool *pgxpool.Pool, id string, method orders.PaymentMethod, variantID string, qty int) {
	t.Helper()
	ctx := context.Background()
	_, err := pool.Exec(ctx, `INSERT INTO orders (id, payment_method) VALUES ($1, $2)`, id, string(method))
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO order_items (order_id, variant_id, quantity, price_cents) VALUES ($1, $2, $3, 1500)`,
		id, variantID, qty)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `
		INSERT INTO order_items (order_id, variant_id, quantity, price_cents) VALUES ($1, NULL, 1, 300)`, id)
	require.NoError(t, err)
}

func TestRepoStock(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)
	seedVariant(t, pool, "custom", 1, true)

	_, err := repo.GetVariant(ctx, "ghost")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	v, ok, err := repo.DecrementStock(ctx, "ring", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, v.StockQuantity)
	assert.True(t, v.IsAvailable)

	_, ok, err = repo.DecrementStock(ctx, "ring", 3)
	require.NoError(t, err)
	assert.False(t, ok, "decrement below zero is refused")

	v, ok, err = repo.DecrementStock(ctx, "ring", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, v.StockQuantity)
	assert.False(t, v.IsAvailable)

	v, ok, err = repo.DecrementStock(ctx, "custom", 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, v.StockQuantity)
	assert.True(t, v.IsAvailable)

	v, ok, err = repo.IncrementStock(ctx, "ring", 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 4, v.StockQuantity)
	assert.True(t, v.IsAvailable)

	prev, v, err := repo.SetStock(ctx, "ring", 9)
	require.NoError(t, err)
	assert.Equal(t, 4, prev)
	assert.Equal(t, 9, v.StockQuantity)

	_, _, err = repo.SetStock(ctx, "ghost", 1)
	assert.ErrorIs(t, err, orders.ErrNotFound)
}

func TestRepoJournal(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, q := range []int{-1, -2, 3} {
		require.NoError(t, repo.InsertTransaction(ctx, orders.InventoryTransaction{
			ID: "t" + string(rune('a'+i)), VariantID: "ring", QuantityChange: q, Type: orders.TxAdjustment,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	txns, err := repo.ListTransactions(ctx, "ring", 2)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, 3, txns[0].QuantityChange)
	assert.Equal(t, -2, txns[1].QuantityChange)
	assert.Empty(t, txns[0].ReferenceID)
}

func TestRepoFailedJournalInsertKeepsTransaction(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)

	err := repo.WithTx(ctx, func(tx orders.Store) error {
		if _, _, err := tx.DecrementStock(ctx, "ring", 1); err != nil {
			return err
		}
		// foreign key violation, confined to its savepoint
		err := tx.InsertTransaction(ctx, orders.InventoryTransaction{
			ID: "bad", VariantID: "ghost", QuantityChange: -1, Type: orders.TxSale, CreatedAt: time.Now(),
		})
		require.Error(t, err)
		_, _, err = tx.DecrementStock(ctx, "ring", 1)
		return err
	})
	require.NoError(t, err)

	v, err := repo.GetVariant(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, 3, v.StockQuantity)
}

func TestRepoWithTxRollsBack(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)

	boom := errors.New("abort")
	err := repo.WithTx(ctx, func(tx orders.Store) error {
		_, _, err := tx.DecrementStock(ctx, "ring", 2)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	v, err := repo.GetVariant(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, 5, v.StockQuantity)
}

func TestRepoOrderGuards(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)
	seedOrder(t, pool, "o-1", orders.PaymentManual, "ring", 2)

	o, err := repo.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)
	require.Len(t, o.Items, 2)
	variants := []string{o.Items[0].VariantID, o.Items[1].VariantID}
	assert.ElementsMatch(t, []string{"ring", ""}, variants)

	_, err = repo.GetOrder(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrNotFound)

	ok, err := repo.ClaimInventoryReduction(ctx, "o-1", orders.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ClaimInventoryReduction(ctx, "o-1", orders.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.CancelOrder(ctx, "o-1", false, orders.StatusProcessing)
	require.NoError(t, err)
	assert.False(t, ok, "stale reduced flag")
	ok, err = repo.CancelOrder(ctx, "o-1", true, orders.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	o, err = repo.GetOrder(ctx, "o-1")
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, o.Status)
	assert.False(t, o.InventoryReduced)

	ok, err = repo.ClaimInventoryReduction(ctx, "o-1", "")
	require.NoError(t, err)
	assert.False(t, ok, "cancelled orders are never settled")
}

func TestConcurrentCompletionAgainstPostgres(t *testing.T) {
	pool := startPostgres(t)
	repo := &orders.Repo{DB: pool}
	ctx := context.Background()
	seedVariant(t, pool, "ring", 5, false)
	seedOrder(t, pool, "o-1", orders.PaymentManual, "ring", 2)

	ledger := inventory.NewLedger(repo, nil, "integration", nil)
	coord := settlement.NewCoordinator(repo, ledger, settlement.Options{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.CompleteManualOrder(ctx, "o-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err := repo.GetVariant(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, 3, v.StockQuantity)

	txns, err := repo.ListTransactions(ctx, "ring", 10)
	require.NoError(t, err)
	assert.Len(t, txns, 1)

	_, err = coord.CancelOrder(ctx, "o-1")
	require.NoError(t, err)
	v, err = repo.GetVariant(ctx, "ring")
	require.NoError(t, err)
	assert.Equal(t, 5, v.StockQuantity)
}
