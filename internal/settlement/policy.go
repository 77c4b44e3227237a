package settlement

import (
	"strings"

	"github.com/tovarapvp/monarca-next-js-sub000/internal/inventory"
	"github.com/tovarapvp/monarca-next-js-sub000/internal/orders"
)

// Settlement says when an order's stock is deducted.
type Settlement int

const (
	// SettleOnPayment deducts as soon as the payment gateway confirms.
	SettleOnPayment Settlement = iota + 1
	// SettleOnCompletion waits until an operator completes the order.
	SettleOnCompletion
)

func (s Settlement) String() string {
	switch s {
	case SettleOnPayment:
		return "on_payment"
	case SettleOnCompletion:
		return "on_completion"
	}
	return "unknown"
}

func ParsePaymentMethod(s string) (orders.PaymentMethod, error) {
	m := orders.PaymentMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", inventory.Errorf(inventory.KindInvalidMethod, "Unknown payment method %q", s)
	}
	return m, nil
}

// SettlementFor maps every payment method to its settlement policy. A new
// payment method must be added here before any order can use it.
func SettlementFor(m orders.PaymentMethod) (Settlement, error) {
	switch m {
	case orders.PaymentStripe, orders.PaymentPayPal:
		return SettleOnPayment, nil
	case orders.PaymentManual:
		return SettleOnCompletion, nil
	}
	return 0, inventory.Errorf(inventory.KindInvalidMethod, "Unknown payment method %q", m)
}
