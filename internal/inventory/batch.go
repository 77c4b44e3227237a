package inventory

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

type StockUpdate struct {
	VariantID string `json:"variant_id"`
	NewStock  int    `json:"new_stock"`
	Notes     string `json:"notes,omitempty"`
}

type ItemError struct {
	VariantID string `json:"variant_id,omitempty"`
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
}

func (e ItemError) Error() string { return e.Message }

// BatchResult reports a multi-item operation. Applied lists the variants
// whose change is persisted; Errors lists every item that failed, in input
// order.
type BatchResult struct {
	Success bool        `json:"success"`
	Applied []string    `json:"applied,omitempty"`
	Errors  []ItemError `json:"errors,omitempty"`
}

// Err joins the item errors, or returns nil for a successful batch.
func (r BatchResult) Err() error {
	if r.Success {
		return nil
	}
	if len(r.Errors) == 0 {
		return Errorf(KindStoreError, "batch failed")
	}
	errs := make([]error, 0, len(r.Errors))
	for _, e := range r.Errors {
		errs = append(errs, &Error{Kind: e.Kind, Message: e.Message})
	}
	return errors.Join(errs...)
}

func (r BatchResult) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Message)
	}
	return out
}

func toItemError(variantID string, err error) ItemError {
	var e *Error
	if errors.As(err, &e) {
		return ItemError{VariantID: variantID, Kind: e.Kind, Message: e.Message}
	}
	return ItemError{VariantID: variantID, Kind: KindStoreError, Message: err.Error()}
}

// failed turns a rolled back batch into its final result.
func failed(res BatchResult, err error) BatchResult {
	res.Success = false
	res.Applied = nil
	if len(res.Errors) == 0 {
		res.Errors = []ItemError{toItemError("", err)}
	}
	return res
}

type itemOp func(ctx context.Context, s orders.Store, i int) (*adjustment, error)

// each runs op for every index in its own savepoint, so a store failure on
// one item neither stops nor poisons the following ones.
func (l *Ledger) each(ctx context.Context, ids []string, op itemOp) BatchResult {
	res := BatchResult{Success: true}
	for i, id := range ids {
		var adj *adjustment
		err := l.store.WithTx(ctx, func(sp orders.Store) error {
			var err error
			adj, err = op(ctx, sp, i)
			return err
		})
		if err != nil {
			res.Success = false
			res.Errors = append(res.Errors, toItemError(id, err))
			continue
		}
		res.Applied = append(res.Applied, id)
		l.publish(ctx, adj)
	}
	return res
}

func variantIDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.VariantID
	}
	return ids
}

// ApplySale deducts every item as a sale referencing orderID, without an
// availability gate. It is meant for a transaction-bound ledger (see Tx):
// the caller decides whether a partial result commits.
func (l *Ledger) ApplySale(ctx context.Context, items []Item, orderID string) BatchResult {
	return l.each(ctx, variantIDs(items), func(ctx context.Context, s orders.Store, i int) (*adjustment, error) {
		return l.reduce(ctx, s, items[i], orders.TxSale, orderID, "Order sale")
	})
}

// ApplyReturn restores every item as a return referencing orderID.
func (l *Ledger) ApplyReturn(ctx context.Context, items []Item, orderID string) BatchResult {
	return l.each(ctx, variantIDs(items), func(ctx context.Context, s orders.Store, i int) (*adjustment, error) {
		return l.increase(ctx, s, items[i], orders.TxReturn, orderID, "Order cancelled")
	})
}

// ProcessSaleInventory checks availability for the whole batch and, when
// every item is available, deducts them all in one transaction. Nothing is
// deducted unless every item is.
func (l *Ledger) ProcessSaleInventory(ctx context.Context, items []Item, orderID string) (BatchResult, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.ProcessSaleInventory",
		trace.WithAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items))))
	defer span.End()

	var staged *Ledger
	var res BatchResult
	err := l.store.WithTx(ctx, func(tx orders.Store) error {
		staged = l.Tx(tx)
		avail, err := staged.CheckStockAvailability(ctx, items)
		if err != nil {
			return err
		}
		if !avail.Available {
			res = BatchResult{Errors: avail.Errors()}
			return res.Err()
		}
		res = staged.ApplySale(ctx, items, orderID)
		return res.Err()
	})
	if err != nil {
		span.RecordError(err)
		res = failed(res, err)
		l.log.Info("sale not applied", zap.String("order_id", orderID), zap.Strings("errors", res.Messages()))
		return res, res.Err()
	}
	staged.Flush(ctx)
	return res, nil
}

// ReverseSaleInventory restores every item of a sale. Every item is
// attempted even when an earlier one fails; any failure rolls the whole
// reversal back so it can be retried as a unit.
func (l *Ledger) ReverseSaleInventory(ctx context.Context, items []Item, orderID string) (BatchResult, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.ReverseSaleInventory",
		trace.WithAttributes(attribute.String("order_id", orderID), attribute.Int("items", len(items))))
	defer span.End()

	var staged *Ledger
	var res BatchResult
	err := l.store.WithTx(ctx, func(tx orders.Store) error {
		staged = l.Tx(tx)
		res = staged.ApplyReturn(ctx, items, orderID)
		return res.Err()
	})
	if err != nil {
		span.RecordError(err)
		res = failed(res, err)
		l.log.Warn("sale reversal not applied", zap.String("order_id", orderID), zap.Strings("errors", res.Messages()))
		return res, res.Err()
	}
	staged.Flush(ctx)
	return res, nil
}

// BulkUpdateStock overwrites stock levels (stock takes, admin corrections).
// Items are independent: one failure does not affect the others.
func (l *Ledger) BulkUpdateStock(ctx context.Context, updates []StockUpdate) (BatchResult, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.BulkUpdateStock", trace.WithAttributes(attribute.Int("items", len(updates))))
	defer span.End()

	ids := make([]string, len(updates))
	for i, u := range updates {
		ids[i] = u.VariantID
	}
	res := l.each(ctx, ids, func(ctx context.Context, s orders.Store, i int) (*adjustment, error) {
		u := updates[i]
		if u.VariantID == "" {
			return nil, Errorf(KindInvalidArgument, "Variant id is required")
		}
		if u.NewStock < 0 {
			return nil, Errorf(KindInvalidQuantity, "Stock cannot be negative, got %d", u.NewStock)
		}
		prev, v, err := s.SetStock(ctx, u.VariantID, u.NewStock)
		if err != nil {
			return nil, variantLookupError(u.VariantID, err)
		}
		if delta := u.NewStock - prev; delta != 0 {
			adj := &adjustment{txn: l.newTxn(u.VariantID, delta, orders.TxAdjustment, "", u.Notes), variant: v}
			l.record(ctx, s, adj.txn)
			return adj, nil
		}
		return nil, nil
	})
	return res, res.Err()
}
