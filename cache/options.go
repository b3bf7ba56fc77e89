package cache

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/pharmaconsult/searchcache/observe"
)

// MalformedKeyHandler is called for each stored key that ClearSource could
// not parse. The entry is left in place.
type MalformedKeyHandler func(ctx context.Context, key string, err error)

// Option configures a Store.
type Option func(*options)

type options struct {
	name        string
	policy      *Policy
	keyer       Keyer
	logger      observe.Logger
	metrics     observe.Metrics
	clock       clock.Clock
	onMalformed MalformedKeyHandler
}

// WithName names the store in logs, metrics and spans.
// Default: "default"
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithPolicy sets the TTL policy.
// Default: DefaultPresets with the store's Config.DefaultTTL as fallback.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = &p
	}
}

// WithKeyer replaces the key canonicalizer.
func WithKeyer(k Keyer) Option {
	return func(o *options) {
		o.keyer = k
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithClock sets the time source. Tests pass a clock.Mock.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithMalformedKeyHandler sets the handler ClearSource reports unparsable
// keys to. Default: log a warning with the key fingerprint.
func WithMalformedKeyHandler(h MalformedKeyHandler) Option {
	return func(o *options) {
		o.onMalformed = h
	}
}
