// Package settlement decides when an order's inventory is deducted or
// restored and guarantees it happens at most once per order.
//
// An order's inventory is either pending (inventory_reduced=false), settled
// (inventory_reduced=true) or released by cancellation. The flip of
// inventory_reduced and the stock changes it stands for always commit in the
// same store transaction.
package settlement

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	kafkax "github.com/tovarapvp/monarca-next-js-sub000/internal/kafka"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

const (
	msgAlreadyReduced = "Inventory already reduced for this order"
	msgDeferred       = "Manual order: inventory will be reduced when the order is completed"
	msgReduced        = "Inventory reduced"
	msgCompleted      = "Order completed and inventory reduced"
	msgCancelled      = "Order cancelled"
	msgRestored       = "Order cancelled and inventory restored"
	msgAlreadyCancel  = "Order already cancelled"
)

// Locker serialises coordinator calls for one order across processes.
type Locker interface {
	Lock(ctx context.Context, orderID string) (release func(), ok bool, err error)
}

type Outcome struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

type Options struct {
	// Locker is optional; store-level guards keep settlement at-most-once
	// without it.
	Locker      Locker
	Publisher   kafkax.Publisher
	ServiceName string
	Logger      *zap.Logger
}

type Coordinator struct {
	store     orders.Store
	ledger    *inventory.Ledger
	locker    Locker
	publisher kafkax.Publisher
	service   string
	log       *zap.Logger
	tracer    trace.Tracer
}

func NewCoordinator(store orders.Store, ledger *inventory.Ledger, opts Options) *Coordinator {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		store:     store,
		ledger:    ledger,
		locker:    opts.Locker,
		publisher: opts.Publisher,
		service:   opts.ServiceName,
		log:       log.Named("settlement"),
		tracer:    otel.Tracer("order-settlement"),
	}
}

// ProcessOrderInventory runs once an order is placed or paid. Gateway
// payments deduct stock immediately; manual payments defer it to
// CompleteManualOrder.
func (c *Coordinator) ProcessOrderInventory(ctx context.Context, orderID string, items []inventory.Item, method orders.PaymentMethod) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.ProcessOrderInventory",
		trace.WithAttributes(attribute.String("order_id", orderID), attribute.String("payment_method", string(method))))
	defer span.End()

	policy, err := SettlementFor(method)
	if err != nil {
		return fail(err)
	}
	release, err := c.lock(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	defer release()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	if o.PaymentMethod != method {
		return fail(inventory.Errorf(inventory.KindInvalidMethod,
			"Order %s was placed with %s, not %s", orderID, o.PaymentMethod, method))
	}
	if o.InventoryReduced {
		return Outcome{Success: true, Message: msgAlreadyReduced}, nil
	}

	switch policy {
	case SettleOnCompletion:
		c.log.Info("inventory reduction deferred", zap.String("order_id", orderID), zap.String("payment_method", string(method)))
		return Outcome{Success: true, Message: msgDeferred}, nil
	case SettleOnPayment:
		return c.settle(ctx, o, stocked(items), "", msgReduced)
	}
	return fail(inventory.Errorf(inventory.KindInvalidMethod, "Unknown payment method %q", method))
}

// CompleteManualOrder is the operator action that settles a manual order.
func (c *Coordinator) CompleteManualOrder(ctx context.Context, orderID string) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.CompleteManualOrder", trace.WithAttributes(attribute.String("order_id", orderID)))
	defer span.End()

	release, err := c.lock(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	defer release()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	if o.PaymentMethod != orders.PaymentManual {
		return fail(inventory.Errorf(inventory.KindInvalidMethod,
			"Order %s is paid via %s; only manual orders are completed by an operator", orderID, o.PaymentMethod))
	}
	if o.InventoryReduced {
		return Outcome{Success: true, Message: msgAlreadyReduced}, nil
	}
	if o.Status == orders.StatusCancelled {
		return fail(inventory.Errorf(inventory.KindInvalidTransition, "Order %s is cancelled", orderID))
	}
	return c.settle(ctx, o, orderItems(o.Items), orders.StatusProcessing, msgCompleted)
}

// CancelOrder cancels an order and, if its inventory was settled, restores it.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID string) (Outcome, error) {
	ctx, span := c.tracer.Start(ctx, "settlement.CancelOrder", trace.WithAttributes(attribute.String("order_id", orderID)))
	defer span.End()

	release, err := c.lock(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	defer release()

	o, err := c.loadOrder(ctx, orderID)
	if err != nil {
		return fail(err)
	}
	if o.Status == orders.StatusCancelled {
		return Outcome{Success: true, Message: msgAlreadyCancel}, nil
	}
	if o.Status.Terminal() {
		return fail(inventory.Errorf(inventory.KindInvalidTransition,
			"Order %s cannot be cancelled from status %s", orderID, o.Status))
	}

	items := orderItems(o.Items)
	var staged *inventory.Ledger
	var res inventory.BatchResult
	err = c.store.WithTx(ctx, func(tx orders.Store) error {
		ok, err := tx.CancelOrder(ctx, o.ID, o.InventoryReduced, o.Status)
		if err != nil {
			return inventory.NewStoreError("cancel order "+o.ID, err)
		}
		if !ok {
			return inventory.Errorf(inventory.KindConflict, "Order %s changed while cancelling, try again", o.ID)
		}
		if !o.InventoryReduced {
			return nil
		}
		staged = c.ledger.Tx(tx)
		res = staged.ApplyReturn(ctx, items, o.ID)
		return res.Err()
	})
	if err != nil {
		span.RecordError(err)
		return batchFailure("Failed to restore inventory", res, err)
	}

	if staged != nil {
		staged.Flush(ctx)
	}
	c.announce(ctx, o.ID, orders.EventOrderCancelled, orders.OrderCancelledPayload{
		OrderID: o.ID, Restored: o.InventoryReduced, Items: itemQtys(items),
	})
	c.log.Info("order cancelled", zap.String("order_id", o.ID), zap.Bool("restored", o.InventoryReduced))

	if o.InventoryReduced {
		return Outcome{Success: true, Message: msgRestored}, nil
	}
	return Outcome{Success: true, Message: msgCancelled}, nil
}

// settle checks availability, then in one transaction claims the order's
// inventory_reduced flag and deducts every item. Losing the claim means
// someone else settled (or cancelled) the order first.
func (c *Coordinator) settle(ctx context.Context, o orders.Order, items []inventory.Item, status orders.Status, doneMsg string) (Outcome, error) {
	if len(items) > 0 {
		avail, err := c.ledger.CheckStockAvailability(ctx, items)
		if err != nil {
			return fail(err)
		}
		if !avail.Available {
			res := inventory.BatchResult{Errors: avail.Errors()}
			return Outcome{Success: false, Message: "Insufficient stock for this order", Errors: res.Messages()}, res.Err()
		}
	}

	var staged *inventory.Ledger
	var res inventory.BatchResult
	var claimed bool
	var current orders.Order
	err := c.store.WithTx(ctx, func(tx orders.Store) error {
		var err error
		claimed, err = tx.ClaimInventoryReduction(ctx, o.ID, status)
		if err != nil {
			return inventory.NewStoreError("claim order "+o.ID, err)
		}
		if !claimed {
			if current, err = tx.GetOrder(ctx, o.ID); err != nil {
				return inventory.NewStoreError("fetch order "+o.ID, err)
			}
			return nil
		}
		staged = c.ledger.Tx(tx)
		res = staged.ApplySale(ctx, items, o.ID)
		return res.Err()
	})
	if err != nil {
		return batchFailure("Failed to reduce inventory", res, err)
	}
	if !claimed {
		if current.Status == orders.StatusCancelled {
			return fail(inventory.Errorf(inventory.KindInvalidTransition, "Order %s is cancelled", o.ID))
		}
		return Outcome{Success: true, Message: msgAlreadyReduced}, nil
	}

	staged.Flush(ctx)
	if status == "" {
		status = o.Status
	}
	c.announce(ctx, o.ID, orders.EventOrderInventorySettled, orders.OrderInventorySettledPayload{
		OrderID: o.ID, PaymentMethod: o.PaymentMethod, Status: status, Items: itemQtys(items),
	})
	c.log.Info("order inventory settled", zap.String("order_id", o.ID), zap.Int("items", len(items)))
	return Outcome{Success: true, Message: doneMsg}, nil
}

func (c *Coordinator) lock(ctx context.Context, orderID string) (func(), error) {
	if c.locker == nil {
		return func() {}, nil
	}
	release, ok, err := c.locker.Lock(ctx, orderID)
	if err != nil {
		c.log.Warn("order lock unavailable, relying on store guards", zap.String("order_id", orderID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, inventory.Errorf(inventory.KindConflict, "Order %s is being updated, try again", orderID)
	}
	return release, nil
}

func (c *Coordinator) loadOrder(ctx context.Context, id string) (orders.Order, error) {
	o, err := c.store.GetOrder(ctx, id)
	if errors.Is(err, orders.ErrNotFound) {
		return o, inventory.Errorf(inventory.KindOrderNotFound, "Order %s not found", id)
	}
	if err != nil {
		return o, inventory.NewStoreError("fetch order "+id, err)
	}
	return o, nil
}

func (c *Coordinator) announce(ctx context.Context, orderID, eventType string, payload any) {
	if c.publisher == nil {
		return
	}
	env := orders.NewEnvelope(eventType, c.service, orderID, kafkax.MustMarshal(payload))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	kafkax.PublishJSON(ctx, c.publisher, orders.PartitionKey(orderID), eventType, env)
}

func fail(err error) (Outcome, error) {
	return Outcome{Success: false, Message: err.Error(), Errors: []string{err.Error()}}, err
}

func batchFailure(msg string, res inventory.BatchResult, err error) (Outcome, error) {
	if len(res.Errors) == 0 {
		return fail(err)
	}
	return Outcome{Success: false, Message: msg, Errors: res.Messages()}, res.Err()
}

// stocked drops items that are not backed by a variant.
func stocked(items []inventory.Item) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		if it.VariantID != "" {
			out = append(out, it)
		}
	}
	return out
}

func orderItems(items []orders.OrderItem) []inventory.Item {
	out := make([]inventory.Item, 0, len(items))
	for _, it := range items {
		if it.VariantID == "" {
			continue
		}
		out = append(out, inventory.Item{VariantID: it.VariantID, Quantity: it.Quantity})
	}
	return out
}

func itemQtys(items []inventory.Item) []orders.ItemQty {
	out := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, orders.ItemQty{VariantID: it.VariantID, Qty: it.Quantity})
	}
	return out
}
