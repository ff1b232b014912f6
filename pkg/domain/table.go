package domain

import "time"

// TableStatus reports whether a table currently hosts a session.
type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

// Table is a physical table reachable through its QR code.
type Table struct {
	ID               string      `bson:"_id" json:"id"`
	TableNumber      int         `bson:"tableNumber" json:"tableNumber"`
	Status           TableStatus `bson:"status" json:"status"`
	CurrentSessionID string      `bson:"currentSessionId,omitempty" json:"currentSessionId,omitempty"`
	UpdatedAt        time.Time   `bson:"updatedAt" json:"updatedAt"`
}
