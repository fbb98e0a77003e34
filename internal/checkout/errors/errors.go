package errors

import "errors"

var (
	ErrSessionNotFound = errors.New("checkout session not found")
)
