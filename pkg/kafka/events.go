package kafka

import "time"

// Topics for the admission core's domain events. Queue and stock events are
// fire-and-forget signals for downstream consumers (notifications, analytics);
// they are never load-bearing for admission or stock correctness.
const (
	TopicQueueEvents = "fanline.queue.events"
	TopicStockEvents = "fanline.stock.events"
	TopicAuditIssues = "fanline.audit.issues"

	// Published by the order/payment workflow, consumed by the reconciler.
	TopicOrdersSettled = "fanline.orders.settled"

	DLQSuffix = ".dlq"
)

// Event types carried in the event-type header.
const (
	EventQueueJoined    = "queue.joined"
	EventQueueAdmitted  = "queue.admitted"
	EventQueueLeft      = "queue.left"
	EventQueueExpired   = "queue.expired"

	EventCheckoutAcquired = "checkout.acquired"
	EventCheckoutReleased = "checkout.released"

	EventStockReserved  = "stock.reserved"
	EventStockReleased  = "stock.released"
	EventStockCorrected = "stock.corrected"
	EventAuditIssue     = "audit.issue"
)

type QueueEvent struct {
	ResourceID    string    `json:"resource_id"`
	ParticipantID string    `json:"participant_id"`
	Sequence      uint64    `json:"sequence,omitempty"`
	Status        string    `json:"status"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type StockEvent struct {
	UnitID     string    `json:"unit_id"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	OrderRef   string    `json:"order_ref,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	Stock      int       `json:"stock"`
	UnitStatus string    `json:"unit_status"`
	Timestamp  time.Time `json:"timestamp"`
}

type AuditIssueEvent struct {
	UnitID    string    `json:"unit_id"`
	Code      string    `json:"code"`
	Severity  string    `json:"severity"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSettledEvent is the payment workflow's signal that an order completed
// and the participant's checkout slot can be returned to the pool.
type OrderSettledEvent struct {
	OrderID       string    `json:"order_id"`
	ResourceID    string    `json:"resource_id"`
	ParticipantID string    `json:"participant_id"`
	SettledAt     time.Time `json:"settled_at"`
}
