// SPDX-License-Identifier: MIT

/*
Package capture assembles raw samples into fixed-size windows and hands them
from the acquisition goroutine to the analysis goroutine.

Two strategies fill a window:

  - ping-pong: one source fill covers the whole window
  - chunked: short chunks are copied into the window at an advancing offset
    until chunksPerWindow chunks have arrived

Completed windows pass through an Exchange, a single-slot handoff backed by a
fixed pool of three windows: one being filled, at most one ready, at most one
held by the analyzer. Publishing never blocks the producer.
*/
package capture

import (
	"context"
	"fmt"
	"time"

	"firealarm/internal/config"
)

// Window is a completed block of raw samples.
type Window struct {
	Samples    []int32
	BitWidth   int
	SampleRate float64
	Seq        uint64    // Set by Exchange.Publish, starting at 1.
	Captured   time.Time // When the last sample arrived.
}

// Frames returns the number of complete size-sample frames in the window.
func (w *Window) Frames(size int) int {
	if size <= 0 {
		return 0
	}
	return len(w.Samples) / size
}

// Frame returns the i-th size-sample frame.
func (w *Window) Frame(i, size int) []int32 {
	return w.Samples[i*size : (i+1)*size]
}

// Reader fills buffers with raw samples. *audio.Source implements it.
type Reader interface {
	Fill(ctx context.Context, buf []int32) error
	BitWidth() int
	SampleRate() float64
}

// Strategy selects how windows are assembled.
type Strategy int

const (
	StrategyPingPong Strategy = iota
	StrategyChunked
)

func (s Strategy) String() string {
	switch s {
	case StrategyPingPong:
		return config.StrategyPingPong
	case StrategyChunked:
		return config.StrategyChunked
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy maps a configuration value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case config.StrategyPingPong:
		return StrategyPingPong, nil
	case config.StrategyChunked:
		return StrategyChunked, nil
	}
	return 0, fmt.Errorf("capture: unknown strategy %q", s)
}
