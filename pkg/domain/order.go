package domain

import "time"

// OrderStatus is the kitchen status of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderServed    OrderStatus = "served"
	OrderCancelled OrderStatus = "cancelled"
)

// Order is a set of items placed from one device in a session.
type Order struct {
	OrderID           string      `bson:"orderId" json:"orderId"`
	SessionID         string      `bson:"sessionId" json:"sessionId"`
	DeviceFingerprint string      `bson:"deviceFingerprint" json:"deviceFingerprint"`
	TableNumber       int         `bson:"tableNumber" json:"tableNumber"`
	Items             []OrderItem `bson:"items" json:"items"`
	TotalAmount       float64     `bson:"totalAmount" json:"totalAmount"`
	Status            OrderStatus `bson:"status" json:"status"`
	CreatedAt         time.Time   `bson:"createdAt" json:"createdAt"`
}

// OrderItem is one menu line of an order.
type OrderItem struct {
	MenuItemID string  `bson:"menuItemId" json:"menuItemId"`
	Name       string  `bson:"name" json:"name"`
	Quantity   int     `bson:"quantity" json:"quantity"`
	UnitPrice  float64 `bson:"unitPrice" json:"unitPrice"`
}

// Total sums quantity times unit price over all items.
func (o *Order) Total() float64 {
	var total float64
	for _, it := range o.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	return total
}
