package orders

const (
	TopicStockAdjusted  = "inventory.stock.adjusted"
	TopicOrderInventory = "order.inventory"
	TopicPaymentSettled = "order.payment.settled"
)

// PartitionKey keeps every event of one order (or one variant) on the same partition.
func PartitionKey(id string) []byte { return []byte(id) }
