package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Debouncer delays fetches per scope and drops any that a newer call for
// the same scope replaces during the delay. It suits search-as-you-type
// callers, where only the last keystroke's query should reach a backend.
type Debouncer[V any] struct {
	coord *Coordinator[V]
	delay time.Duration
	clock clock.Clock

	mu      sync.Mutex
	seq     uint64
	pending map[string]*pendingCall
}

type pendingCall struct {
	id         uint64
	superseded chan struct{}
}

// NewDebouncer creates a Debouncer in front of coord. It uses the clock of
// the coordinator's store.
func NewDebouncer[V any](coord *Coordinator[V], delay time.Duration) *Debouncer[V] {
	clk := clock.New()
	if coord != nil && coord.store != nil {
		clk = coord.store.clock
	}
	return &Debouncer[V]{
		coord:   coord,
		delay:   delay,
		clock:   clk,
		pending: make(map[string]*pendingCall),
	}
}

// Fetch waits for the delay, then fetches k through the Coordinator. If a
// newer call for scope arrives first this call returns ErrSuperseded.
func (d *Debouncer[V]) Fetch(ctx context.Context, scope string, k KeyComponents, fetch FetchFunc[V]) (V, error) {
	var zero V

	d.mu.Lock()
	d.seq++
	p := &pendingCall{id: d.seq, superseded: make(chan struct{})}
	if prev, ok := d.pending[scope]; ok {
		close(prev.superseded)
	}
	d.pending[scope] = p
	d.mu.Unlock()

	if d.delay > 0 {
		t := d.clock.Timer(d.delay)
		defer t.Stop()

		select {
		case <-p.superseded:
			return zero, ErrSuperseded
		case <-ctx.Done():
			d.release(scope, p)
			return zero, ctx.Err()
		case <-t.C:
		}
	}

	d.mu.Lock()
	select {
	case <-p.superseded:
		d.mu.Unlock()
		return zero, ErrSuperseded
	default:
	}
	delete(d.pending, scope)
	d.mu.Unlock()

	return d.coord.Fetch(ctx, k, fetch)
}

// Pending returns the number of scopes with a call waiting out its delay.
func (d *Debouncer[V]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *Debouncer[V]) release(scope string, p *pendingCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending[scope] == p {
		delete(d.pending, scope)
	}
}
