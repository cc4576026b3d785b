// SPDX-License-Identifier: MIT
package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"firealarm/internal/detect"
	applog "firealarm/internal/log"
	"firealarm/internal/transport"
)

// Notifier drains a Sink and fans each event out to its transports.
type Notifier struct {
	sink       *Sink
	transports []transport.Transport

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewNotifier returns a notifier for sink. It takes ownership of the
// transports and closes them in Close.
func NewNotifier(sink *Sink, transports ...transport.Transport) *Notifier {
	return &Notifier{sink: sink, transports: transports}
}

// Run delivers events until the sink is closed and drained. If ctx is
// cancelled first, events already queued are still delivered.
func (n *Notifier) Run(ctx context.Context) error {
	events := n.sink.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			n.deliver(ev)
		case <-ctx.Done():
			n.drain()
			return nil
		}
	}
}

func (n *Notifier) drain() {
	for {
		select {
		case ev, ok := <-n.sink.Events():
			if !ok {
				return
			}
			n.deliver(ev)
		default:
			return
		}
	}
}

func (n *Notifier) deliver(ev detect.AlarmEvent) {
	for _, t := range n.transports {
		if err := t.Send(ev); err != nil {
			n.failed.Add(1)
			applog.Warnf("Notify: %T failed to deliver alarm: %v", t, err)
			continue
		}
		n.delivered.Add(1)
	}
}

// Delivered returns the number of successful transport sends.
func (n *Notifier) Delivered() uint64 { return n.delivered.Load() }

// Failed returns the number of failed transport sends.
func (n *Notifier) Failed() uint64 { return n.failed.Load() }

// Close closes every transport.
func (n *Notifier) Close() error {
	var errs []error
	for _, t := range n.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
