package errors

import "errors"

var (
	ErrResourceNotFound = errors.New("resource not found")

	ErrEntryNotFound = errors.New("queue entry not found")

	ErrInvalidID = errors.New("invalid resource ID format")

	// ErrSaleClosed means the resource exists but its sale status
	// forbids new joins.
	ErrSaleClosed = errors.New("resource is not on sale")
)
