// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"firealarm/internal/detect"
	applog "firealarm/internal/log"
)

// LoggingTransport reports each alarm through the application logger.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Debugf("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs ev at warn level. It never fails.
func (lt *LoggingTransport) Send(ev detect.AlarmEvent) error {
	n := lt.sent.Add(1)
	applog.Warnf("ALARM #%d: %s", n, ev)
	return nil
}

// Sent returns the number of events logged.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error { return nil }

var _ Transport = (*LoggingTransport)(nil)
