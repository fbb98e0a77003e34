package errors

import "errors"

var (
	ErrUnitNotFound = errors.New("stock unit not found")

	ErrOrderNotFound = errors.New("order not found")

	ErrLedgerEntryNotFound = errors.New("ledger entry not found")

	ErrInvalidID = errors.New("invalid unit ID format")

	// ErrInsufficientStock means the guarded decrement missed: applying the
	// delta would have taken the unit's stock below zero.
	ErrInsufficientStock = errors.New("insufficient stock")
)
