package settlement

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	kafkax "github.com/tovarapvp/monarca-next-js-sub000/internal/kafka"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/tracing"
)

// Deduper is satisfied by *redisx.Deduper.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// PaymentHandler consumes PaymentSettled events and settles the order's
// inventory. It is installed as a kafka consumer handler.
type PaymentHandler struct {
	Coordinator *Coordinator
	Dedup       Deduper // optional
	Log         *zap.Logger
}

func (h *PaymentHandler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// HandlePaymentSettled returns an error only for failures worth a redelivery
// (store outages, lock contention). Malformed events and business rejections
// are logged and committed.
func (h *PaymentHandler) HandlePaymentSettled(ctx context.Context, m kafkago.Message) error {
	log := h.logger()

	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Error("drop undecodable payment event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventPaymentSettled {
		return nil
	}
	ctx = tracing.ExtractKafkaHeaders(ctx, m.Headers)
	log = log.With(zap.String("event_id", env.EventID), zap.String("order_id", env.CorrelationID))

	if h.Dedup != nil && env.EventID != "" {
		fresh, err := h.Dedup.Claim(ctx, env.EventID)
		switch {
		case err != nil:
			// settlement is idempotent per order; dedup only saves work
			log.Warn("dedup unavailable", zap.Error(err))
		case !fresh:
			log.Debug("duplicate payment event")
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentSettledPayload](env.Payload)
	if err != nil {
		log.Error("drop malformed payment payload", zap.Error(err))
		return nil
	}
	items := make([]inventory.Item, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, inventory.Item{VariantID: it.VariantID, Quantity: it.Qty})
	}

	out, err := h.Coordinator.ProcessOrderInventory(ctx, p.OrderID, items, p.PaymentMethod)
	if err != nil {
		switch inventory.KindOf(err) {
		case inventory.KindStoreError, inventory.KindConflict:
			h.forget(ctx, env.EventID)
			return err
		}
		log.Warn("payment settled but inventory not reduced",
			zap.String("kind", string(inventory.KindOf(err))), zap.Strings("errors", out.Errors))
		return nil
	}
	log.Info("payment processed", zap.String("result", out.Message))
	return nil
}

func (h *PaymentHandler) forget(ctx context.Context, eventID string) {
	if h.Dedup == nil || eventID == "" {
		return
	}
	if err := h.Dedup.Forget(ctx, eventID); err != nil {
		h.logger().Warn("dedup forget failed", zap.String("event_id", eventID), zap.Error(err))
	}
}
