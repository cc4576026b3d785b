// SPDX-License-Identifier: MIT
package detect

import (
	"errors"
	"testing"
	"time"

	"firealarm/internal/analysis"
	"firealarm/internal/config"
	"firealarm/pkg/signal"
)

const (
	testSize       = 512
	testSampleRate = 16000
)

var fixedClock = func() time.Time { return time.UnixMilli(1_700_000_000_000) }

func newTestAnalyzer(t *testing.T) *analysis.Analyzer {
	t.Helper()
	a, err := analysis.New(analysis.Options{
		Size:        testSize,
		SampleRate:  testSampleRate,
		BandStartHz: 2000,
		BandEndHz:   3000,
	})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

type frames struct {
	a     *analysis.Analyzer
	tone  []int32
	quiet []int32
}

func newFrames(t *testing.T) *frames {
	return &frames{
		a:     newTestAnalyzer(t),
		tone:  signal.GenerateSineWave(testSize, testSampleRate, 2500, 0.5),
		quiet: signal.Silence(testSize),
	}
}

func (f *frames) toneFrame() *analysis.Spectrum  { return f.a.Analyze(f.tone, 32) }
func (f *frames) quietFrame() *analysis.Spectrum { return f.a.Analyze(f.quiet, 32) }

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, WithClock(fixedClock))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestShortWindow_RaisesOnceAtLimit(t *testing.T) {
	f := newFrames(t)
	e := newEngine(t, Config{Mode: ShortWindow, ThresholdDB: -10, DetectCount: 5})

	for i := 1; i <= 4; i++ {
		if _, ok := e.Observe(f.toneFrame()); ok {
			t.Fatalf("event raised after %d frames", i)
		}
		if got := e.State().Counter; got != i {
			t.Fatalf("counter = %d after %d frames", got, i)
		}
	}

	ev, ok := e.Observe(f.toneFrame())
	if !ok {
		t.Fatal("no event after the 5th qualifying frame")
	}
	if ev.Bin != 80 || ev.FrequencyHz != 2500 {
		t.Errorf("event at bin %d (%v Hz), want bin 80 (2500 Hz)", ev.Bin, ev.FrequencyHz)
	}
	if ev.PowerDB < -6.1 || ev.PowerDB > -5.9 {
		t.Errorf("event power = %.2f dB, want about -6.02", ev.PowerDB)
	}
	if ev.TimestampMillis != fixedClock().UnixMilli() || ev.Mode != ShortWindow {
		t.Errorf("event = %+v", ev)
	}
	if got := e.State().Counter; got != 0 {
		t.Errorf("counter = %d after alarm, want 0", got)
	}

	if _, ok := e.Observe(f.quietFrame()); ok {
		t.Error("silent frame raised an event")
	}
	if s := e.Stats(); s.Alarms != 1 || s.Frames != 6 || s.Hits != 5 {
		t.Errorf("Stats() = %+v", s)
	}
}

func TestShortWindow_Decay(t *testing.T) {
	f := newFrames(t)
	e := newEngine(t, Config{Mode: ShortWindow, ThresholdDB: -10, DetectCount: 5})

	e.Observe(f.toneFrame())
	e.Observe(f.toneFrame())
	e.Observe(f.toneFrame())
	e.Observe(f.quietFrame())
	if got := e.State().Counter; got != 2 {
		t.Fatalf("counter = %d after 3 hits and a miss, want 2", got)
	}

	for range 5 {
		if _, ok := e.Observe(f.quietFrame()); ok {
			t.Fatal("quiet frames raised an event")
		}
	}
	if got := e.State().Counter; got != 0 {
		t.Errorf("counter = %d, want floor of 0", got)
	}

	// Alternating hits and misses never reach the limit.
	for range 20 {
		e.Observe(f.toneFrame())
		if _, ok := e.Observe(f.quietFrame()); ok {
			t.Fatal("alternating frames raised an event")
		}
	}
	if got := e.State().Counter; got != 0 {
		t.Errorf("counter = %d after alternating frames, want 0", got)
	}
}

func TestShortWindow_ThresholdIsStrict(t *testing.T) {
	s := &analysis.Spectrum{StartBin: 4, BinHz: 10, PowerDB: []float64{-30, -10, -40}}
	e := newEngine(t, Config{Mode: ShortWindow, ThresholdDB: -10, DetectCount: 1})
	if _, ok := e.Observe(s); ok {
		t.Error("bin equal to the threshold counted as detected")
	}
	s.PowerDB[1] = -9.99
	ev, ok := e.Observe(s)
	if !ok || ev.Bin != 5 || ev.FrequencyHz != 50 {
		t.Errorf("Observe() = %+v, %v, want an event at bin 5", ev, ok)
	}
}

func TestLongWindow_EvaluatesOncePerWindow(t *testing.T) {
	f := newFrames(t)
	e := newEngine(t, Config{Mode: LongWindow, ThresholdDB: -10, DetectCount: 2, LongWindowFrames: 4})

	for i := 1; i <= 3; i++ {
		e.Observe(f.toneFrame())
		st := e.State()
		if st.FramesAccumulated != i || st.Counter != 0 {
			t.Fatalf("after %d frames: accumulated %d, counter %d", i, st.FramesAccumulated, st.Counter)
		}
	}
	if e.Stats().Decisions != 0 {
		t.Fatal("decision made before the window filled")
	}

	if _, ok := e.Observe(f.toneFrame()); ok {
		t.Fatal("event after the first window, limit is 2")
	}
	st := e.State()
	if st.Counter != 1 || st.FramesAccumulated != 0 {
		t.Fatalf("after one window: counter %d, accumulated %d", st.Counter, st.FramesAccumulated)
	}
	for i, v := range st.RunningAverage {
		if v != 0 {
			t.Fatalf("average[%d] = %v not cleared after evaluation", i, v)
		}
	}
	if e.Stats().Decisions != 1 {
		t.Errorf("Decisions = %d, want 1", e.Stats().Decisions)
	}

	var ev AlarmEvent
	var raised int
	for range 4 {
		if got, ok := e.Observe(f.toneFrame()); ok {
			ev = got
			raised++
		}
	}
	if raised != 1 || ev.Bin != 80 || ev.Mode != LongWindow {
		t.Errorf("raised %d events, last %+v", raised, ev)
	}
	if e.State().Counter != 0 {
		t.Errorf("counter = %d after alarm", e.State().Counter)
	}
}

func TestLongWindow_MissResets(t *testing.T) {
	f := newFrames(t)
	e := newEngine(t, Config{Mode: LongWindow, ThresholdDB: -10, DetectCount: 3, LongWindowFrames: 2})

	for range 4 {
		e.Observe(f.toneFrame())
	}
	if got := e.State().Counter; got != 2 {
		t.Fatalf("counter = %d after two loud windows, want 2", got)
	}
	e.Observe(f.quietFrame())
	e.Observe(f.quietFrame())
	if got := e.State().Counter; got != 0 {
		t.Errorf("counter = %d after a quiet window, want hard reset to 0", got)
	}
}

func TestLongWindow_AveragesMagnitudes(t *testing.T) {
	f := newFrames(t)
	// One loud frame averaged with three silent ones is 12 dB quieter.
	e := newEngine(t, Config{Mode: LongWindow, ThresholdDB: -10, DetectCount: 1, LongWindowFrames: 4})

	e.Observe(f.toneFrame())
	e.Observe(f.quietFrame())
	e.Observe(f.quietFrame())
	if _, ok := e.Observe(f.quietFrame()); ok {
		t.Error("averaged window at about -18 dB crossed a -10 dB threshold")
	}

	e = newEngine(t, Config{Mode: LongWindow, ThresholdDB: -20, DetectCount: 1, LongWindowFrames: 4})
	e.Observe(f.toneFrame())
	e.Observe(f.quietFrame())
	e.Observe(f.quietFrame())
	ev, ok := e.Observe(f.quietFrame())
	if !ok {
		t.Fatal("averaged window at about -18 dB did not cross a -20 dB threshold")
	}
	if ev.PowerDB > -17.9 || ev.PowerDB < -18.2 {
		t.Errorf("averaged power = %.2f dB, want about -18.06", ev.PowerDB)
	}
}

func TestReset(t *testing.T) {
	f := newFrames(t)
	e := newEngine(t, Config{Mode: LongWindow, ThresholdDB: -10, DetectCount: 2, LongWindowFrames: 3})
	e.Observe(f.toneFrame())
	e.Reset()
	if st := e.State(); st.Counter != 0 || st.FramesAccumulated != 0 {
		t.Errorf("State() after Reset = %+v", st)
	}
}

func TestNew_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero count", Config{Mode: ShortWindow, DetectCount: 0}},
		{"long without frames", Config{Mode: LongWindow, DetectCount: 2}},
		{"unknown mode", Config{Mode: Mode(7), DetectCount: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Detection.Mode = config.ModeLong

	got, err := ConfigFrom(cfg)
	if err != nil {
		t.Fatalf("ConfigFrom() error = %v", err)
	}
	want := Config{Mode: LongWindow, ThresholdDB: -50, DetectCount: config.DefaultLongDetectCount, LongWindowFrames: 94}
	if got != want {
		t.Errorf("ConfigFrom() = %+v, want %+v", got, want)
	}

	cfg.Detection.Mode = "medium"
	if _, err := ConfigFrom(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("ConfigFrom() error = %v, want ErrInvalidConfig", err)
	}
}

func TestModeText(t *testing.T) {
	b, _ := LongWindow.MarshalText()
	if string(b) != "long" || ShortWindow.String() != "short" {
		t.Errorf("mode names = %q, %q", b, ShortWindow.String())
	}
}
