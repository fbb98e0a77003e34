package model

import "time"

// Order statuses. reserved → paid → fulfilled, with cancelled reachable from
// any non-terminal state and backordered used when recovery keeps the stock
// deltas as-is pending fulfillment.
const (
	OrderReserved    = "reserved"
	OrderPaid        = "paid"
	OrderFulfilled   = "fulfilled"
	OrderCancelled   = "cancelled"
	OrderBackordered = "backordered"
)

type OrderLine struct {
	UnitID   string `json:"unit_id" bson:"unit_id"`
	Quantity int    `json:"quantity" bson:"quantity"`
}

// Order mirrors the order/payment workflow's view of a purchase. The stock
// service maintains it so recovery can replay compensating releases per line.
type Order struct {
	ID            string      `json:"id" bson:"_id"`
	ResourceID    string      `json:"resource_id,omitempty" bson:"resource_id,omitempty"`
	ParticipantID string      `json:"participant_id,omitempty" bson:"participant_id,omitempty"`
	Status        string      `json:"status" bson:"status"`
	Lines         []OrderLine `json:"lines" bson:"lines"`
	CreatedAt     time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" bson:"updated_at"`
}

// Terminal reports whether the order can no longer change state.
func (o *Order) Terminal() bool {
	return o.Status == OrderFulfilled || o.Status == OrderCancelled
}
