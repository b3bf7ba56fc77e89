package service

import "errors"

var (
	// ErrUnknownBackend indicates a search for a source with no registered backend.
	ErrUnknownBackend = errors.New("service: unknown backend")

	// ErrNilBackend indicates Register was called with a nil backend.
	ErrNilBackend = errors.New("service: nil backend")

	// ErrClosed indicates the service has been shut down.
	ErrClosed = errors.New("service: closed")
)
