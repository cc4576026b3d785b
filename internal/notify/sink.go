// SPDX-License-Identifier: MIT

// Package notify hands alarm events from the analysis goroutine to the
// transports without ever blocking analysis.
package notify

import (
	"sync"
	"sync/atomic"

	"firealarm/internal/detect"
	applog "firealarm/internal/log"
)

// SinkStats counts sink outcomes.
type SinkStats struct {
	Published uint64
	Dropped   uint64
}

// Sink is a bounded event queue. Publish and Close are called by the single
// producer; Events is drained by the Notifier.
type Sink struct {
	events    chan detect.AlarmEvent
	closeOnce sync.Once
	closed    atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewSink returns a sink holding at most size undelivered events.
func NewSink(size int) *Sink {
	return &Sink{events: make(chan detect.AlarmEvent, max(size, 1))}
}

// Publish queues ev. It never blocks: when the queue is full, or the sink is
// closed, the event is dropped, counted and logged, and Publish returns false.
func (s *Sink) Publish(ev detect.AlarmEvent) bool {
	if s.closed.Load() {
		s.drop(ev, "sink closed")
		return false
	}
	select {
	case s.events <- ev:
		s.published.Add(1)
		return true
	default:
		s.drop(ev, "queue full")
		return false
	}
}

func (s *Sink) drop(ev detect.AlarmEvent, reason string) {
	n := s.dropped.Add(1)
	applog.Warnf("Notify: %s, dropped alarm at %d ms (%d dropped)", reason, ev.TimestampMillis, n)
}

// Events returns the receive side of the queue. It is closed by Close.
func (s *Sink) Events() <-chan detect.AlarmEvent { return s.events }

// Close ends the stream. Events already queued remain readable.
func (s *Sink) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.events)
	})
}

// Stats returns the sink counters.
func (s *Sink) Stats() SinkStats {
	return SinkStats{Published: s.published.Load(), Dropped: s.dropped.Load()}
}
