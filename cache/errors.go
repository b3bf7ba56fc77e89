package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrMalformedKey indicates a stored key could not be parsed back into
	// its components.
	ErrMalformedKey = errors.New("cache: malformed key")

	// ErrFetchPanicked wraps a panic raised by a fetch function.
	ErrFetchPanicked = errors.New("cache: fetch panicked")

	// ErrNilFetcher indicates a nil fetch function was supplied.
	ErrNilFetcher = errors.New("cache: fetcher is nil")

	// ErrNilStore indicates a nil Store was supplied.
	ErrNilStore = errors.New("cache: store is nil")

	// ErrSuperseded is returned by Debouncer.Fetch when a newer call for the
	// same scope replaced this one before its delay elapsed.
	ErrSuperseded = errors.New("cache: superseded by a newer request")

	// ErrUnexpectedType indicates an instrumented fetch returned a value of
	// the wrong type.
	ErrUnexpectedType = errors.New("cache: unexpected value type")
)
