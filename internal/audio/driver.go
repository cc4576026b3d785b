// SPDX-License-Identifier: MIT

/*
Package audio acquires raw PCM samples for the detector.

A Driver is the narrow hardware contract: a blocking Read into an int32
buffer. Four drivers exist:

  - PortAudioDriver: blocking PortAudio input stream
  - MalgoDriver: miniaudio capture device
  - WavDriver: replays a WAV file, for offline tuning
  - ToneDriver: synthetic sine, for demos and tests

Source wraps a Driver and owns the recovery policy: short reads are
continued, read errors are logged and retried after a backoff, and only end
of stream, corrupt input or cancellation end a Fill.
*/
package audio

import (
	"errors"
	"fmt"
	"time"

	"firealarm/internal/config"
)

var (
	ErrEndOfStream   = errors.New("audio: end of stream")
	ErrDriverClosed  = errors.New("audio: driver closed")
	ErrInputCorrupt  = errors.New("audio: input corrupt")
	ErrUnknownDriver = errors.New("audio: unknown backend")
)

// Driver reads mono samples from an input device. Read blocks until at
// least one sample is available and returns the number of samples written
// to buf. Samples hold BitWidth significant bits, right-aligned.
type Driver interface {
	Read(buf []int32) (int, error)
	BitWidth() int
	SampleRate() float64
	Close() error
}

// interrupter is implemented by drivers whose Read may block indefinitely.
// Interrupt makes a blocked Read return ErrDriverClosed.
type interrupter interface {
	Interrupt()
}

// OpenDriver opens the driver selected by cfg.Backend. framesPerRead is a
// hint for drivers that read in fixed blocks.
func OpenDriver(cfg config.AudioConfig, framesPerRead int) (Driver, error) {
	switch cfg.Backend {
	case config.BackendPortAudio:
		return NewPortAudioDriver(cfg.InputDevice, cfg.SampleRate, framesPerRead)
	case config.BackendMalgo:
		return NewMalgoDriver(cfg.InputDevice, cfg.SampleRate, framesPerRead)
	case config.BackendWav:
		return NewWavDriver(cfg.InputFile, cfg.Realtime)
	case config.BackendTone:
		return NewToneDriver(ToneOptions{
			Frequency:  cfg.ToneHz,
			Amplitude:  cfg.ToneAmplitude,
			SampleRate: cfg.SampleRate,
			BitWidth:   cfg.BitWidth,
			Realtime:   cfg.Realtime,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Backend)
	}
}

// pacer throttles synthetic and file drivers to the sample rate.
type pacer struct {
	rate      float64
	start     time.Time
	delivered int64
	sleep     func(time.Duration)
}

func newPacer(rate float64) *pacer {
	return &pacer{rate: rate, sleep: time.Sleep}
}

// wait blocks until n more samples would have arrived from real hardware.
func (p *pacer) wait(n int) {
	if p.start.IsZero() {
		p.start = time.Now()
	}
	p.delivered += int64(n)
	due := p.start.Add(time.Duration(float64(p.delivered) / p.rate * float64(time.Second)))
	if d := time.Until(due); d > 0 {
		p.sleep(d)
	}
}
