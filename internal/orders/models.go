package orders

import "time"

// PaymentMethod is the closed set of ways a storefront order can be paid.
type PaymentMethod string

const (
	PaymentStripe PaymentMethod = "stripe"
	PaymentPayPal PaymentMethod = "paypal"
	PaymentManual PaymentMethod = "manual"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentStripe, PaymentPayPal, PaymentManual:
		return true
	}
	return false
}

type TransactionType string

const (
	TxSale       TransactionType = "sale"
	TxRestock    TransactionType = "restock"
	TxAdjustment TransactionType = "adjustment"
	TxReturn     TransactionType = "return"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxSale, TxRestock, TxAdjustment, TxReturn:
		return true
	}
	return false
}

// Variant is a sellable product variant (size, metal, stone...) carrying its own stock.
type Variant struct {
	ID             string    `json:"id"`
	SKU            string    `json:"sku"`
	StockQuantity  int       `json:"stock_quantity"`
	TrackInventory bool      `json:"track_inventory"`
	AllowBackorder bool      `json:"allow_backorder"`
	IsAvailable    bool      `json:"is_available"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Available derives the is_available flag for a stock level.
func Available(stock int, trackInventory, allowBackorder bool) bool {
	return stock > 0 || allowBackorder || !trackInventory
}

type Order struct {
	ID               string        `json:"id"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	Status           Status        `json:"status"`
	InventoryReduced bool          `json:"inventory_reduced"`
	TotalCents       int64         `json:"total_cents"`
	CustomerName     string        `json:"customer_name"`
	CustomerEmail    string        `json:"customer_email"`
	ShippingAddress  string        `json:"shipping_address"`
	Items            []OrderItem   `json:"items"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type OrderItem struct {
	ID      string `json:"id"`
	OrderID string `json:"order_id"`
	// VariantID is empty for items that are not backed by a stocked variant
	// (gift wrapping, engraving fees...). Those never touch inventory.
	VariantID  string `json:"variant_id,omitempty"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// InventoryTransaction is one entry of the append-only stock journal.
type InventoryTransaction struct {
	ID             string          `json:"id"`
	VariantID      string          `json:"variant_id"`
	QuantityChange int             `json:"quantity_change"`
	Type           TransactionType `json:"transaction_type"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}
