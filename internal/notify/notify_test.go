// SPDX-License-Identifier: MIT
package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"firealarm/internal/detect"
)

type recordingTransport struct {
	mu     sync.Mutex
	events []detect.AlarmEvent
	err    error
	closed bool
}

func (r *recordingTransport) Send(ev detect.AlarmEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) received() []detect.AlarmEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]detect.AlarmEvent(nil), r.events...)
}

func event(ms int64) detect.AlarmEvent {
	return detect.AlarmEvent{TimestampMillis: ms, Bin: 80, FrequencyHz: 2500}
}

func TestSink_DropsWhenFull(t *testing.T) {
	s := NewSink(2)
	if !s.Publish(event(1)) || !s.Publish(event(2)) {
		t.Fatal("Publish() into a free queue returned false")
	}

	done := make(chan bool)
	go func() { done <- s.Publish(event(3)) }()
	select {
	case ok := <-done:
		if ok {
			t.Error("Publish() into a full queue returned true")
		}
	case <-time.After(time.Second):
		t.Fatal("Publish() blocked on a full queue")
	}

	if st := s.Stats(); st.Published != 2 || st.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 2 published 1 dropped", st)
	}
	if ev := <-s.Events(); ev.TimestampMillis != 1 {
		t.Errorf("first event = %d, want oldest kept", ev.TimestampMillis)
	}
}

func TestSink_Close(t *testing.T) {
	s := NewSink(4)
	s.Publish(event(1))
	s.Close()
	s.Close()

	if s.Publish(event(2)) {
		t.Error("Publish() after Close returned true")
	}
	if ev, ok := <-s.Events(); !ok || ev.TimestampMillis != 1 {
		t.Errorf("queued event lost after Close")
	}
	if _, ok := <-s.Events(); ok {
		t.Error("Events() not closed")
	}
}

func TestNotifier_FanOut(t *testing.T) {
	s := NewSink(8)
	good := &recordingTransport{}
	bad := &recordingTransport{err: errors.New("link down")}
	n := NewNotifier(s, good, bad)

	errc := make(chan error, 1)
	go func() { errc <- n.Run(context.Background()) }()

	for ms := range int64(3) {
		s.Publish(event(ms))
	}
	s.Close()

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after the sink closed")
	}

	if got := good.received(); len(got) != 3 || got[2].TimestampMillis != 2 {
		t.Errorf("delivered %v, want 3 events in order", got)
	}
	if n.Delivered() != 3 || n.Failed() != 3 {
		t.Errorf("Delivered() = %d, Failed() = %d, want 3, 3", n.Delivered(), n.Failed())
	}

	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	if !good.closed || !bad.closed {
		t.Error("transports not closed")
	}
}

func TestNotifier_CancelDrainsQueued(t *testing.T) {
	s := NewSink(4)
	rec := &recordingTransport{}
	n := NewNotifier(s, rec)
	s.Publish(event(1))
	s.Publish(event(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if got := len(rec.received()); got != 2 {
		t.Errorf("delivered %d events after cancel, want 2", got)
	}
}
