// SPDX-License-Identifier: MIT
package detect

import (
	"fmt"
	"time"

	"firealarm/internal/analysis"
	applog "firealarm/internal/log"
)

// Stats counts engine activity.
type Stats struct {
	Frames    uint64
	Decisions uint64
	Hits      uint64
	Alarms    uint64
}

// Engine is the detection state machine. It is owned by the analysis
// goroutine and is not safe for concurrent use.
type Engine struct {
	cfg     Config
	policy  policy
	counter int
	clock   func() time.Time
	stats   Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New validates cfg and returns an engine with a zero counter.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.DetectCount < 1 {
		return nil, fmt.Errorf("%w: detect count must be at least 1, got %d", ErrInvalidConfig, cfg.DetectCount)
	}

	e := &Engine{cfg: cfg, clock: time.Now}
	switch cfg.Mode {
	case ShortWindow:
		e.policy = &shortWindow{threshold: cfg.ThresholdDB}
	case LongWindow:
		if cfg.LongWindowFrames < 1 {
			return nil, fmt.Errorf("%w: long window needs at least one frame, got %d", ErrInvalidConfig, cfg.LongWindowFrames)
		}
		e.policy = &longWindow{threshold: cfg.ThresholdDB, frames: cfg.LongWindowFrames}
	default:
		return nil, fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, cfg.Mode)
	}
	for _, opt := range opts {
		opt(e)
	}

	applog.Infof("Detect: %s window mode, threshold %.1f dB, limit %d", cfg.Mode, cfg.ThresholdDB, cfg.DetectCount)
	return e, nil
}

// Observe feeds one spectrum to the state machine. It returns an event and
// true when this frame completes the debounce run.
func (e *Engine) Observe(s *analysis.Spectrum) (AlarmEvent, bool) {
	e.stats.Frames++
	d := e.policy.observe(s)
	if !d.evaluated {
		return AlarmEvent{}, false
	}

	e.stats.Decisions++
	if d.detected {
		e.stats.Hits++
	}
	e.counter = e.policy.update(e.counter, d)
	applog.Debugf("Detect: detected=%v peak %.1f Hz %.1f dB, counter %d/%d",
		d.detected, s.Frequency(d.bin), d.powerDB, e.counter, e.cfg.DetectCount)

	if e.counter < e.cfg.DetectCount {
		return AlarmEvent{}, false
	}

	e.counter = 0
	e.stats.Alarms++
	return AlarmEvent{
		TimestampMillis: e.clock().UnixMilli(),
		Bin:             d.bin,
		FrequencyHz:     s.Frequency(d.bin),
		PowerDB:         d.powerDB,
		Mode:            e.cfg.Mode,
	}, true
}

// State returns a snapshot of the debounce state.
func (e *Engine) State() State {
	st := State{Counter: e.counter, Mode: e.cfg.Mode}
	e.policy.state(&st)
	return st
}

// Reset clears the counter and any accumulated average.
func (e *Engine) Reset() {
	e.counter = 0
	e.policy.reset()
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats { return e.stats }

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }
