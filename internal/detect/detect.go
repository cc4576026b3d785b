// SPDX-License-Identifier: MIT

// Package detect decides, frame by frame, whether the monitored band carries
// an alarm tone and debounces those decisions into discrete AlarmEvents.
//
// Two policies are available, chosen once at construction:
//
//   - short window: every frame is a decision; a hit increments the counter
//     and a miss decrements it, floored at zero
//   - long window: per-bin magnitudes are averaged over a fixed number of
//     frames and the average is judged once; a miss resets the counter
//
// When the counter reaches the limit an event is raised and the counter
// returns to zero. There is no latched alarm state.
package detect

import (
	"errors"
	"fmt"
	"time"

	"firealarm/internal/analysis"
	"firealarm/internal/config"
)

var ErrInvalidConfig = errors.New("detect: invalid configuration")

// Mode selects the decision policy.
type Mode int

const (
	ShortWindow Mode = iota
	LongWindow
)

func (m Mode) String() string {
	switch m {
	case ShortWindow:
		return config.ModeShort
	case LongWindow:
		return config.ModeLong
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText renders the mode as its configuration name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case config.ModeShort:
		return ShortWindow, nil
	case config.ModeLong:
		return LongWindow, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

// Config parameterizes an Engine.
type Config struct {
	Mode             Mode
	ThresholdDB      float64
	DetectCount      int // Consecutive decisions required to raise an event.
	LongWindowFrames int // Frames averaged per decision in LongWindow mode.
}

// ConfigFrom derives the engine configuration from the application settings.
func ConfigFrom(cfg *config.Config) (Config, error) {
	mode, err := ParseMode(cfg.Detection.Mode)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Mode:             mode,
		ThresholdDB:      cfg.Detection.ThresholdDB,
		DetectCount:      cfg.DetectCountOrDefault(),
		LongWindowFrames: cfg.LongWindowFrames(),
	}, nil
}

// AlarmEvent is raised when the debounce limit is reached.
type AlarmEvent struct {
	TimestampMillis int64   `json:"timestamp_ms"`
	Bin             int     `json:"bin"`
	FrequencyHz     float64 `json:"frequency_hz"`
	PowerDB         float64 `json:"power_db"`
	Mode            Mode    `json:"mode"`
}

// Time returns the event timestamp.
func (e AlarmEvent) Time() time.Time { return time.UnixMilli(e.TimestampMillis) }

func (e AlarmEvent) String() string {
	return fmt.Sprintf("fire alarm at %s: %.1f Hz (bin %d) %.1f dB, %s window",
		e.Time().Format(time.RFC3339Nano), e.FrequencyHz, e.Bin, e.PowerDB, e.Mode)
}

// State is a snapshot of the debounce state.
type State struct {
	Counter           int
	Mode              Mode
	RunningAverage    []float64 // Long window only; a copy.
	FramesAccumulated int
}

// decision is the verdict of one policy step.
type decision struct {
	evaluated bool // A decision was made this step.
	detected  bool
	bin       int
	powerDB   float64
}

type policy interface {
	observe(s *analysis.Spectrum) decision
	// update returns the counter after applying d.
	update(counter int, d decision) int
	reset()
	state(st *State)
}
