// Package apperr holds the error kinds the API maps to status codes.
package apperr

import "errors"

var (
	// ErrNotFound marks an unknown session.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks a request the caller has to fix.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable marks a query service that cannot be reached.
	ErrUnavailable = errors.New("query service unavailable")
)
