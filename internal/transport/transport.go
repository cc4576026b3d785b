// SPDX-License-Identifier: MIT

// Package transport delivers alarm events to the outside world.
package transport

import (
	"errors"
	"fmt"

	"firealarm/internal/detect"
)

// MessageTypeAlarm is the type field of alarm messages.
const MessageTypeAlarm = "fire_alarm"

// ErrQueueFull is returned by transports that drop events under load.
var ErrQueueFull = errors.New("transport: queue full, event dropped")

// Transport delivers alarm events to one destination. Implementations must
// be safe for concurrent use and must not block the caller for long.
type Transport interface {
	Send(ev detect.AlarmEvent) error
	Close() error
}

// Message is the JSON form of an alarm event.
type Message struct {
	Type            string  `json:"type"`
	TimestampMillis int64   `json:"timestamp_ms"`
	Bin             int     `json:"bin"`
	FrequencyHz     float64 `json:"frequency_hz"`
	PowerDB         float64 `json:"power_db"`
	Mode            string  `json:"mode"`
	Message         string  `json:"message"`
}

// NewMessage converts ev to its JSON form.
func NewMessage(ev detect.AlarmEvent) Message {
	return Message{
		Type:            MessageTypeAlarm,
		TimestampMillis: ev.TimestampMillis,
		Bin:             ev.Bin,
		FrequencyHz:     ev.FrequencyHz,
		PowerDB:         ev.PowerDB,
		Mode:            ev.Mode.String(),
		Message:         fmt.Sprintf("Fire alarm detected at %.0f Hz (%.1f dB)", ev.FrequencyHz, ev.PowerDB),
	}
}

// Func adapts a function to the Transport interface. Close is a no-op.
type Func func(ev detect.AlarmEvent) error

func (f Func) Send(ev detect.AlarmEvent) error { return f(ev) }

func (f Func) Close() error { return nil }
