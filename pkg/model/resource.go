package model

import "time"

// Sale statuses for a contended resource (an event or a drop-limited product).
const (
	SaleUpcoming  = "upcoming"
	SaleOnSale    = "on_sale"
	SaleSoldOut   = "sold_out"
	SaleClosed    = "closed"
	SaleCancelled = "cancelled"
)

// Resource is the unit of contention: a fixed capacity and a monotonic
// sequence counter that is the single source of truth for queue ordering.
// NextSequence only ever increases and is advanced exclusively through
// the repository's atomic allocation inside a transaction.
type Resource struct {
	ID           string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name         string    `json:"name" bson:"name" validate:"required,min=2,max=120"`
	SaleStatus   string    `json:"sale_status" bson:"sale_status" validate:"required,oneof=upcoming on_sale sold_out closed cancelled"`
	Capacity     int       `json:"capacity" bson:"capacity" validate:"required,min=1"`
	NextSequence uint64    `json:"next_sequence" bson:"next_sequence"`
	SaleOpensAt  time.Time `json:"sale_opens_at" bson:"sale_opens_at" validate:"required"`
	SaleClosesAt time.Time `json:"sale_closes_at" bson:"sale_closes_at" validate:"required,gtfield=SaleOpensAt"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Joinable reports whether participants may enter the queue.
func (r *Resource) Joinable() bool {
	return r.SaleStatus == SaleOnSale
}
