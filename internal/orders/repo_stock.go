package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const variantColumns = `id, sku, stock_quantity, track_inventory, allow_backorder, is_available, updated_at`

func scanVariant(row pgx.Row) (Variant, error) {
	var v Variant
	err := row.Scan(&v.ID, &v.SKU, &v.StockQuantity, &v.TrackInventory, &v.AllowBackorder, &v.IsAvailable, &v.UpdatedAt)
	return v, err
}

func (r *Repo) GetVariant(ctx context.Context, id string) (Variant, error) {
	v, err := scanVariant(r.DB.QueryRow(ctx, `SELECT `+variantColumns+` FROM product_variants WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, ErrNotFound
	}
	if err != nil {
		return Variant{}, fmt.Errorf("select variant %s: %w", id, err)
	}
	return v, nil
}

// DecrementStock: SET expressions see the pre-update row, so is_available is
// derived from the unclamped result.
func (r *Repo) DecrementStock(ctx context.Context, id string, qty int) (Variant, bool, error) {
	v, err := scanVariant(r.DB.QueryRow(ctx, `
		UPDATE product_variants
		SET stock_quantity = GREATEST(stock_quantity - $2, 0),
		    is_available = (stock_quantity - $2 > 0) OR allow_backorder,
		    updated_at = now()
		WHERE id = $1 AND track_inventory AND (allow_backorder OR stock_quantity >= $2)
		RETURNING `+variantColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, false, nil
	}
	if err != nil {
		return Variant{}, false, fmt.Errorf("decrement stock %s: %w", id, err)
	}
	return v, true, nil
}

func (r *Repo) IncrementStock(ctx context.Context, id string, qty int) (Variant, bool, error) {
	v, err := scanVariant(r.DB.QueryRow(ctx, `
		UPDATE product_variants
		SET stock_quantity = stock_quantity + $2, is_available = true, updated_at = now()
		WHERE id = $1 AND track_inventory
		RETURNING `+variantColumns, id, qty))
	if errors.Is(err, pgx.ErrNoRows) {
		return Variant{}, false, nil
	}
	if err != nil {
		return Variant{}, false, fmt.Errorf("increment stock %s: %w", id, err)
	}
	return v, true, nil
}

func (r *Repo) SetStock(ctx context.Context, id string, stock int) (int, Variant, error) {
	var prev int
	var v Variant
	err := r.DB.QueryRow(ctx, `
		WITH prev AS (
			SELECT id, stock_quantity FROM product_variants WHERE id = $1 FOR UPDATE
		)
		UPDATE product_variants p
		SET stock_quantity = $2::int,
		    is_available = ($2::int > 0) OR p.allow_backorder OR NOT p.track_inventory,
		    updated_at = now()
		FROM prev
		WHERE p.id = prev.id
		RETURNING prev.stock_quantity, p.id, p.sku, p.stock_quantity, p.track_inventory,
		          p.allow_backorder, p.is_available, p.updated_at`, id, stock).
		Scan(&prev, &v.ID, &v.SKU, &v.StockQuantity, &v.TrackInventory, &v.AllowBackorder, &v.IsAvailable, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, Variant{}, ErrNotFound
	}
	if err != nil {
		return 0, Variant{}, fmt.Errorf("set stock %s: %w", id, err)
	}
	return prev, v, nil
}

// InsertTransaction runs in its own savepoint: a failed journal insert must
// not abort the surrounding stock transaction.
func (r *Repo) InsertTransaction(ctx context.Context, t InventoryTransaction) error {
	return r.WithTx(ctx, func(s Store) error {
		tx := s.(*Repo)
		_, err := tx.DB.Exec(ctx, `
			INSERT INTO inventory_transactions
				(id, variant_id, quantity_change, transaction_type, reference_id, notes, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)`,
			t.ID, t.VariantID, t.QuantityChange, string(t.Type), t.ReferenceID, t.Notes, t.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert inventory transaction: %w", err)
		}
		return nil
	})
}

func (r *Repo) ListTransactions(ctx context.Context, variantID string, limit int) ([]InventoryTransaction, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, variant_id, quantity_change, transaction_type,
		       COALESCE(reference_id, ''), COALESCE(notes, ''), created_at
		FROM inventory_transactions
		WHERE variant_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, variantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list inventory transactions %s: %w", variantID, err)
	}
	defer rows.Close()

	var out []InventoryTransaction
	for rows.Next() {
		var t InventoryTransaction
		if err := rows.Scan(&t.ID, &t.VariantID, &t.QuantityChange, &t.Type, &t.ReferenceID, &t.Notes, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
