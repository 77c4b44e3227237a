package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repo is the Postgres implementation of Store.
type Repo struct{ DB DBTX }

var _ Store = (*Repo)(nil)

// WithTx begins a transaction on the pool, or a savepoint when the Repo is
// already bound to a transaction.
func (r *Repo) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Repo{DB: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, payment_method, status, inventory_reduced, total_cents,
		       customer_name, customer_email, shipping_address, created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.PaymentMethod, &o.Status, &o.InventoryReduced, &o.TotalCents,
			&o.CustomerName, &o.CustomerEmail, &o.ShippingAddress, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, fmt.Errorf("select order %s: %w", id, err)
	}

	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, variant_id, quantity, price_cents
		FROM order_items WHERE order_id=$1 ORDER BY created_at, id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("select order items %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it OrderItem
		var variantID *string
		if err := rows.Scan(&it.ID, &it.OrderID, &variantID, &it.Quantity, &it.PriceCents); err != nil {
			return Order{}, err
		}
		if variantID != nil {
			it.VariantID = *variantID
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return Order{}, err
	}
	return o, nil
}

func (r *Repo) ClaimInventoryReduction(ctx context.Context, id string, status Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET inventory_reduced = true,
		    status = COALESCE(NULLIF($2, ''), status),
		    updated_at = now()
		WHERE id = $1 AND NOT inventory_reduced AND status <> 'cancelled'`, id, string(status))
	if err != nil {
		return false, fmt.Errorf("claim inventory reduction %s: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) CancelOrder(ctx context.Context, id string, reduced bool, from Status) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status = 'cancelled', inventory_reduced = false, updated_at = now()
		WHERE id = $1 AND inventory_reduced = $2 AND status = $3`, id, reduced, string(from))
	if err != nil {
		return false, fmt.Errorf("cancel order %s: %w", id, err)
	}
	return ct.RowsAffected() == 1, nil
}
