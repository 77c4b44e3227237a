package orders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventStockAdjusted         = "StockAdjusted"
	EventOrderInventorySettled = "OrderInventorySettled"
	EventOrderCancelled        = "OrderCancelled"
	EventPaymentSettled        = "PaymentSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or variant_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps an already encoded payload in a v1 envelope.
func NewEnvelope(eventType, producer, correlationID string, payload json.RawMessage) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// ---- payloads ----

type ItemQty struct {
	VariantID string `json:"variant_id"`
	Qty       int    `json:"qty"`
}

type StockAdjustedPayload struct {
	VariantID       string          `json:"variant_id"`
	QuantityChange  int             `json:"quantity_change"`
	TransactionType TransactionType `json:"transaction_type"`
	ReferenceID     string          `json:"reference_id,omitempty"`
	StockQuantity   int             `json:"stock_quantity"`
	IsAvailable     bool            `json:"is_available"`
}

type OrderInventorySettledPayload struct {
	OrderID       string        `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        Status        `json:"status"`
	Items         []ItemQty     `json:"items"`
}

type OrderCancelledPayload struct {
	OrderID  string    `json:"order_id"`
	Restored bool      `json:"restored"`
	Items    []ItemQty `json:"items,omitempty"`
}

// PaymentSettledPayload is emitted by the checkout webhook relay once a
// gateway (stripe/paypal) confirms payment.
type PaymentSettledPayload struct {
	OrderID       string        `json:"order_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Items         []ItemQty     `json:"items"`
}
