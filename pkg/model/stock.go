package model

import "time"

// Stock unit kinds and derived availability statuses.
const (
	UnitTicket = "ticket"
	UnitMerch  = "merch"

	StockAvailable = "available"
	StockLow       = "low_stock"
	StockOut       = "out_of_stock"
)

// Ledger entry reasons. Every stock mutation is explained by exactly one.
const (
	ReasonPurchase     = "purchase"
	ReasonRestock      = "restock"
	ReasonCorrection   = "manual_correction"
	ReasonReturn       = "return"
	ReasonCancellation = "cancellation"
	ReasonDamage       = "damage"
)

// StockUnit is a sellable inventory unit (ticket type or merch variant).
// Stock mutates only through a ledger append plus projection update executed
// in one transaction; the reconciliation invariant is
// sum(ledger deltas) == Stock at all times.
type StockUnit struct {
	ID         string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ResourceID string    `json:"resource_id" bson:"resource_id" validate:"required"`
	Name       string    `json:"name" bson:"name" validate:"required,min=2,max=120"`
	Kind       string    `json:"kind" bson:"kind" validate:"required,oneof=ticket merch"`
	Capacity   int       `json:"capacity" bson:"capacity" validate:"required,min=1"`
	Stock      int       `json:"stock" bson:"stock"`
	Status     string    `json:"status" bson:"status" validate:"omitempty,oneof=available low_stock out_of_stock"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// LedgerEntry is an immutable signed delta explaining one stock change.
// Direct writes to StockUnit.Stock outside a ledger append are forbidden.
type LedgerEntry struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	UnitID    string    `json:"unit_id" bson:"unit_id"`
	Delta     int       `json:"delta" bson:"delta"`
	Reason    string    `json:"reason" bson:"reason"`
	OrderRef  string    `json:"order_ref,omitempty" bson:"order_ref,omitempty"`
	Operator  string    `json:"operator,omitempty" bson:"operator,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Audit issue severities and codes.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"

	IssueNegativeStock = "negative_stock"
	IssueLedgerDrift   = "ledger_drift"
)

// AuditIssue records detected stock/ledger divergence for admin triage.
// Issues are never auto-repaired; an explicit correction or order recovery
// is the only sanctioned fix.
type AuditIssue struct {
	ID        string    `json:"id,omitempty" bson:"_id,omitempty"`
	UnitID    string    `json:"unit_id" bson:"unit_id"`
	Code      string    `json:"code" bson:"code"`
	Severity  string    `json:"severity" bson:"severity"`
	Detail    string    `json:"detail" bson:"detail"`
	Stock     int       `json:"stock" bson:"stock"`
	LedgerSum int64     `json:"ledger_sum" bson:"ledger_sum"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
