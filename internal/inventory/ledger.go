package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	kafkax "github.com/tovarapvp/monarca-next-js-sub000/internal/kafka"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

const (
	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

type Item struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

type UnavailableItem struct {
	VariantID string `json:"variant_id"`
	Available int    `json:"available"`
	Requested int    `json:"requested"`
	Missing   bool   `json:"missing,omitempty"`
}

type Availability struct {
	Available        bool              `json:"available"`
	UnavailableItems []UnavailableItem `json:"unavailable_items"`
}

// Errors renders every unavailable item as an itemized error.
func (a Availability) Errors() []ItemError {
	out := make([]ItemError, 0, len(a.UnavailableItems))
	for _, u := range a.UnavailableItems {
		if u.Missing {
			out = append(out, ItemError{VariantID: u.VariantID, Kind: KindNotFound, Message: "Variant " + u.VariantID + " not found"})
			continue
		}
		e := NewInsufficientStock(u.VariantID, u.Available, u.Requested)
		out = append(out, ItemError{VariantID: u.VariantID, Kind: e.Kind, Message: e.Message})
	}
	return out
}

// adjustment is a persisted stock change waiting to be announced.
type adjustment struct {
	txn     orders.InventoryTransaction
	variant orders.Variant
}

// Ledger owns every mutation of variant stock.
type Ledger struct {
	store     orders.Store
	publisher kafkax.Publisher
	service   string
	log       *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time

	// staged is set on ledgers bound to a transaction: events wait for Flush.
	staged *[]adjustment
}

// NewLedger builds a ledger over store. publisher may be nil, in which case
// no stock events are emitted.
func NewLedger(store orders.Store, publisher kafkax.Publisher, serviceName string, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		publisher: publisher,
		service:   serviceName,
		log:       log.Named("ledger"),
		tracer:    otel.Tracer("inventory-ledger"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Tx returns a copy of the ledger operating on tx. Stock events raised
// through it are held back until Flush, which the caller invokes once tx
// has committed.
func (l *Ledger) Tx(tx orders.Store) *Ledger {
	c := *l
	c.store = tx
	c.staged = &[]adjustment{}
	return &c
}

// Flush publishes the events staged by a transaction-bound ledger.
func (l *Ledger) Flush(ctx context.Context) {
	if l.staged == nil {
		return
	}
	for _, a := range *l.staged {
		l.emit(ctx, a)
	}
	*l.staged = nil
}

func (l *Ledger) ReduceStock(ctx context.Context, variantID string, qty int, typ orders.TransactionType, referenceID, notes string) error {
	ctx, span := l.tracer.Start(ctx, "inventory.ReduceStock",
		trace.WithAttributes(attribute.String("variant_id", variantID), attribute.Int("quantity", qty)))
	defer span.End()

	adj, err := l.reduce(ctx, l.store, Item{VariantID: variantID, Quantity: qty}, typ, referenceID, notes)
	if err != nil {
		span.RecordError(err)
		return err
	}
	l.publish(ctx, adj)
	return nil
}

func (l *Ledger) IncreaseStock(ctx context.Context, variantID string, qty int, typ orders.TransactionType, referenceID, notes string) error {
	ctx, span := l.tracer.Start(ctx, "inventory.IncreaseStock",
		trace.WithAttributes(attribute.String("variant_id", variantID), attribute.Int("quantity", qty)))
	defer span.End()

	adj, err := l.increase(ctx, l.store, Item{VariantID: variantID, Quantity: qty}, typ, referenceID, notes)
	if err != nil {
		span.RecordError(err)
		return err
	}
	l.publish(ctx, adj)
	return nil
}

// CheckStockAvailability never mutates. A variant that does not exist is
// reported as unavailable; any other lookup failure fails the whole check.
func (l *Ledger) CheckStockAvailability(ctx context.Context, items []Item) (Availability, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.CheckStockAvailability")
	defer span.End()

	out := Availability{Available: true, UnavailableItems: []UnavailableItem{}}
	for _, it := range items {
		v, err := l.store.GetVariant(ctx, it.VariantID)
		if errors.Is(err, orders.ErrNotFound) {
			out.Available = false
			out.UnavailableItems = append(out.UnavailableItems, UnavailableItem{
				VariantID: it.VariantID, Available: 0, Requested: it.Quantity, Missing: true,
			})
			continue
		}
		if err != nil {
			span.RecordError(err)
			return Availability{}, variantLookupError(it.VariantID, err)
		}
		if v.TrackInventory && !v.AllowBackorder && v.StockQuantity < it.Quantity {
			out.Available = false
			out.UnavailableItems = append(out.UnavailableItems, UnavailableItem{
				VariantID: it.VariantID, Available: v.StockQuantity, Requested: it.Quantity,
			})
		}
	}
	return out, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, variantID string, limit int) ([]orders.InventoryTransaction, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	limit = min(limit, maxJournalLimit)
	txns, err := l.store.ListTransactions(ctx, variantID, limit)
	if err != nil {
		return nil, NewStoreError("list inventory transactions", err)
	}
	return txns, nil
}

func validate(it Item, typ orders.TransactionType) error {
	if it.VariantID == "" {
		return Errorf(KindInvalidArgument, "Variant id is required")
	}
	if it.Quantity <= 0 {
		return NewInvalidQuantity(it.Quantity)
	}
	if !typ.Valid() {
		return Errorf(KindInvalidArgument, "Unknown transaction type %q", typ)
	}
	return nil
}

func (l *Ledger) reduce(ctx context.Context, s orders.Store, it Item, typ orders.TransactionType, referenceID, notes string) (*adjustment, error) {
	if err := validate(it, typ); err != nil {
		return nil, err
	}
	v, err := s.GetVariant(ctx, it.VariantID)
	if err != nil {
		return nil, variantLookupError(it.VariantID, err)
	}
	if !v.TrackInventory {
		return nil, nil
	}
	if v.StockQuantity-it.Quantity < 0 && !v.AllowBackorder {
		return nil, NewInsufficientStock(it.VariantID, v.StockQuantity, it.Quantity)
	}

	updated, applied, err := s.DecrementStock(ctx, it.VariantID, it.Quantity)
	if err != nil {
		return nil, NewStoreError("update stock for variant "+it.VariantID, err)
	}
	if !applied {
		// Another writer got there first; report what is left now.
		fresh, err := s.GetVariant(ctx, it.VariantID)
		if err != nil {
			return nil, variantLookupError(it.VariantID, err)
		}
		if !fresh.TrackInventory {
			return nil, nil
		}
		return nil, NewInsufficientStock(it.VariantID, fresh.StockQuantity, it.Quantity)
	}

	adj := &adjustment{txn: l.newTxn(it.VariantID, -it.Quantity, typ, referenceID, notes), variant: updated}
	l.record(ctx, s, adj.txn)
	return adj, nil
}

func (l *Ledger) increase(ctx context.Context, s orders.Store, it Item, typ orders.TransactionType, referenceID, notes string) (*adjustment, error) {
	if err := validate(it, typ); err != nil {
		return nil, err
	}
	v, err := s.GetVariant(ctx, it.VariantID)
	if err != nil {
		return nil, variantLookupError(it.VariantID, err)
	}
	if !v.TrackInventory {
		return nil, nil
	}

	updated, applied, err := s.IncrementStock(ctx, it.VariantID, it.Quantity)
	if err != nil {
		return nil, NewStoreError("update stock for variant "+it.VariantID, err)
	}
	if !applied {
		fresh, err := s.GetVariant(ctx, it.VariantID)
		if err != nil {
			return nil, variantLookupError(it.VariantID, err)
		}
		if !fresh.TrackInventory {
			return nil, nil
		}
		return nil, Errorf(KindConflict, "Stock update for variant %s was not applied", it.VariantID)
	}

	adj := &adjustment{txn: l.newTxn(it.VariantID, it.Quantity, typ, referenceID, notes), variant: updated}
	l.record(ctx, s, adj.txn)
	return adj, nil
}

func (l *Ledger) newTxn(variantID string, change int, typ orders.TransactionType, referenceID, notes string) orders.InventoryTransaction {
	return orders.InventoryTransaction{
		ID:             uuid.NewString(),
		VariantID:      variantID,
		QuantityChange: change,
		Type:           typ,
		ReferenceID:    referenceID,
		Notes:          notes,
		CreatedAt:      l.now(),
	}
}

// record appends to the journal. The journal is not authoritative: a
// failed write is logged and otherwise ignored.
func (l *Ledger) record(ctx context.Context, s orders.Store, t orders.InventoryTransaction) {
	if err := s.InsertTransaction(ctx, t); err != nil {
		l.log.Warn("inventory transaction not journaled",
			zap.String("kind", string(KindLogFailure)),
			zap.String("variant_id", t.VariantID),
			zap.Int("quantity_change", t.QuantityChange),
			zap.String("transaction_type", string(t.Type)),
			zap.String("reference_id", t.ReferenceID),
			zap.Error(err),
		)
	}
}

func (l *Ledger) publish(ctx context.Context, adj *adjustment) {
	if adj == nil {
		return
	}
	if l.staged != nil {
		*l.staged = append(*l.staged, *adj)
		return
	}
	l.emit(ctx, *adj)
}

func (l *Ledger) emit(ctx context.Context, a adjustment) {
	if l.publisher == nil {
		return
	}
	env := orders.NewEnvelope(orders.EventStockAdjusted, l.service, a.txn.VariantID,
		kafkax.MustMarshal(orders.StockAdjustedPayload{
			VariantID:       a.txn.VariantID,
			QuantityChange:  a.txn.QuantityChange,
			TransactionType: a.txn.Type,
			ReferenceID:     a.txn.ReferenceID,
			StockQuantity:   a.variant.StockQuantity,
			IsAvailable:     a.variant.IsAvailable,
		}))
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	kafkax.PublishJSON(ctx, l.publisher, orders.PartitionKey(a.txn.VariantID), orders.EventStockAdjusted, env)
}
