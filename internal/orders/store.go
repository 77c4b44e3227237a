package orders

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// Store is the persistence contract shared by the stock ledger and the
// order settlement coordinator. Every mutating call is a single
// conditional statement so that callers never rely on a separate
// read-then-write for correctness.
type Store interface {
	GetVariant(ctx context.Context, id string) (Variant, error)
	// DecrementStock subtracts qty from a tracked variant only when the
	// variant allows backorders or holds at least qty units. The persisted
	// stock is clamped at zero. applied is false when the condition did not
	// hold (or the variant is missing/untracked).
	DecrementStock(ctx context.Context, id string, qty int) (v Variant, applied bool, err error)
	// IncrementStock adds qty to a tracked variant and marks it available.
	IncrementStock(ctx context.Context, id string, qty int) (v Variant, applied bool, err error)
	// SetStock overwrites the stock of a variant and returns the previous level.
	SetStock(ctx context.Context, id string, stock int) (previous int, v Variant, err error)

	InsertTransaction(ctx context.Context, t InventoryTransaction) error
	ListTransactions(ctx context.Context, variantID string, limit int) ([]InventoryTransaction, error)

	// GetOrder loads an order together with its items.
	GetOrder(ctx context.Context, id string) (Order, error)
	// ClaimInventoryReduction flips inventory_reduced false->true on a
	// non-cancelled order, optionally moving it to status. It reports
	// whether this call performed the flip.
	ClaimInventoryReduction(ctx context.Context, id string, status Status) (bool, error)
	// CancelOrder moves the order to cancelled and clears inventory_reduced,
	// provided it is still in the (reduced, status) state the caller read.
	CancelOrder(ctx context.Context, id string, reduced bool, from Status) (bool, error)

	// WithTx runs fn inside a transaction. Calling WithTx on the Store handed
	// to fn opens a nested savepoint; an error returned from fn rolls back
	// only that level.
	WithTx(ctx context.Context, fn func(Store) error) error
}
