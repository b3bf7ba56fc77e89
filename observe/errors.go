package observe

import (
	"errors"

	"github.com/pharmaconsult/searchcache/observe/exporters"
)

// Configuration errors.
var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: invalid tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: invalid metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: invalid log level")
)

var (
	// ErrNilObserver indicates a nil Observer was provided.
	ErrNilObserver = errors.New("observe: observer is nil")

	// ErrMissingCacheName indicates CacheMeta.Cache is empty.
	ErrMissingCacheName = errors.New("observe: cache name is required")

	// ErrEndpointNotConfigured indicates an exporter endpoint variable is unset.
	ErrEndpointNotConfigured = exporters.ErrEndpointNotConfigured
)

// RedactedFields are log field keys whose values are never written.
// Clinicians type patient details into searches, so query text is among
// them; caches log key fingerprints instead.
var RedactedFields = []string{
	"query",
	"queries",
	"password",
	"secret",
	"token",
	"api_key",
	"credential",
}
