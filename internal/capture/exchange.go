// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"firealarm/internal/config"
	applog "firealarm/internal/log"
)

// PoolSize is the number of windows cycled through an Exchange.
const PoolSize = 3

var (
	ErrClosed    = errors.New("capture: exchange closed")
	ErrPoolEmpty = errors.New("capture: exchange needs at least two windows")
)

// Backpressure decides what Publish does when the ready slot is occupied.
type Backpressure int

const (
	// BackpressureReplace recycles the stale ready window and keeps the new one.
	BackpressureReplace Backpressure = iota
	// BackpressureDrop discards the new window and keeps the stale one.
	BackpressureDrop
)

func (b Backpressure) String() string {
	switch b {
	case BackpressureReplace:
		return config.BackpressureReplace
	case BackpressureDrop:
		return config.BackpressureDrop
	}
	return fmt.Sprintf("Backpressure(%d)", int(b))
}

// ParseBackpressure maps a configuration value to a Backpressure policy.
func ParseBackpressure(s string) (Backpressure, error) {
	switch s {
	case config.BackpressureReplace:
		return BackpressureReplace, nil
	case config.BackpressureDrop:
		return BackpressureDrop, nil
	}
	return 0, fmt.Errorf("capture: unknown backpressure policy %q", s)
}

// ExchangeStats counts handoff outcomes.
type ExchangeStats struct {
	Published uint64 // Windows accepted into the ready slot.
	Replaced  uint64 // Ready windows recycled before analysis took them.
	Dropped   uint64 // New windows discarded because the slot was full.
}

// Exchange is the single-slot window handoff between one producer and one
// consumer. The producer calls Acquire once, then Publish for every filled
// window. The consumer calls Receive and must Release each window before the
// next Receive.
type Exchange struct {
	policy Backpressure
	ready  chan *Window
	free   chan *Window
	closed chan struct{}
	once   sync.Once
	seq    uint64 // Producer only.

	published atomic.Uint64
	replaced  atomic.Uint64
	dropped   atomic.Uint64
}

// NewExchange places windows in the free pool.
func NewExchange(windows []*Window, policy Backpressure) (*Exchange, error) {
	if len(windows) < 2 {
		return nil, ErrPoolEmpty
	}
	e := &Exchange{
		policy: policy,
		ready:  make(chan *Window, 1),
		free:   make(chan *Window, len(windows)),
		closed: make(chan struct{}),
	}
	for _, w := range windows {
		e.free <- w
	}
	return e, nil
}

// Acquire returns the first window for the producer to fill, or nil if the
// pool is exhausted.
func (e *Exchange) Acquire() *Window {
	select {
	case w := <-e.free:
		return w
	default:
		return nil
	}
}

// Publish offers w as the ready window and returns the window to fill next.
// It never blocks.
func (e *Exchange) Publish(w *Window) *Window {
	e.seq++
	w.Seq = e.seq

	select {
	case e.ready <- w:
		e.published.Add(1)
		return e.next()
	default:
	}

	if e.policy == BackpressureDrop {
		n := e.dropped.Add(1)
		applog.Warnf("Capture: analysis behind, dropped window %d (%d dropped)", w.Seq, n)
		return w
	}

	// The consumer may take the stale window between the two selects, in
	// which case the slot is simply free.
	select {
	case stale := <-e.ready:
		e.ready <- w
		e.published.Add(1)
		n := e.replaced.Add(1)
		applog.Debugf("Capture: analysis behind, replaced window %d with %d (%d replaced)", stale.Seq, w.Seq, n)
		return stale
	default:
		e.ready <- w
		e.published.Add(1)
		return e.next()
	}
}

// next takes a free window. If the consumer holds more than its share the
// ready window is reclaimed so the producer never waits.
func (e *Exchange) next() *Window {
	select {
	case w := <-e.free:
		return w
	default:
	}
	select {
	case w := <-e.free:
		return w
	case w := <-e.ready:
		e.replaced.Add(1)
		return w
	}
}

// Receive blocks until a window is ready. After Close it drains the ready
// window and then returns ErrClosed.
func (e *Exchange) Receive(ctx context.Context) (*Window, error) {
	select {
	case w := <-e.ready:
		return w, nil
	default:
	}
	select {
	case w := <-e.ready:
		return w, nil
	case <-e.closed:
		select {
		case w := <-e.ready:
			return w, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a received window to the pool.
func (e *Exchange) Release(w *Window) {
	if w == nil {
		return
	}
	select {
	case e.free <- w:
	default:
		applog.Errorf("Capture: released window %d does not belong to the pool", w.Seq)
	}
}

// Close ends the stream. It is called by the producer and is idempotent.
func (e *Exchange) Close() {
	e.once.Do(func() { close(e.closed) })
}

// Stats returns the handoff counters.
func (e *Exchange) Stats() ExchangeStats {
	return ExchangeStats{
		Published: e.published.Load(),
		Replaced:  e.replaced.Load(),
		Dropped:   e.dropped.Load(),
	}
}
