// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"firealarm/internal/audio"
	"firealarm/internal/capture"
	"firealarm/internal/config"
	"firealarm/internal/detect"
	"firealarm/internal/transport"
	"firealarm/pkg/signal"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.Backend = config.BackendTone
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Realtime = false
	cfg.Audio.ToneHz = 2500
	cfg.Audio.ToneAmplitude = 0.5
	cfg.Analysis.FFTSize = 512
	cfg.Analysis.BandStartHz = 2000
	cfg.Analysis.BandEndHz = 3000
	cfg.Detection.ThresholdDB = -10
	cfg.Notify.WebSocketEnabled = false
	return cfg
}

// collector returns a transport that forwards events to a channel without blocking.
func collector() (transport.Transport, <-chan detect.AlarmEvent) {
	ch := make(chan detect.AlarmEvent, 64)
	return transport.Func(func(ev detect.AlarmEvent) error {
		select {
		case ch <- ev:
		default:
		}
		return nil
	}), ch
}

func TestEngine_ToneRaisesAlarm(t *testing.T) {
	for _, strategy := range []string{config.StrategyPingPong, config.StrategyChunked} {
		t.Run(strategy, func(t *testing.T) {
			cfg := testConfig()
			cfg.Capture.Strategy = strategy
			tr, events := collector()

			e, err := NewEngine(cfg, WithTransports(tr))
			if err != nil {
				t.Fatalf("NewEngine() error = %v", err)
			}
			defer e.Close()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			done := make(chan error, 1)
			go func() { done <- e.Run(ctx) }()

			select {
			case ev := <-events:
				if ev.Bin != 80 || ev.FrequencyHz != 2500 {
					t.Errorf("alarm at bin %d (%v Hz), want bin 80 (2500 Hz)", ev.Bin, ev.FrequencyHz)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("no alarm from a continuous in-band tone")
			}

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("Run() error = %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Run() did not stop after cancel")
			}
			if st := e.Stats(); st.Detect.Alarms == 0 || st.Sink.Published == 0 {
				t.Errorf("Stats() = %+v", st)
			}
		})
	}
}

func TestEngine_WavReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alarm.wav")
	rec, err := audio.NewRecorder(path, 16000, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Write(signal.GenerateSineWave(3*16000, 16000, 3000, 0.5)); err != nil {
		t.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	// Default band and transform, configured rate differs from the file.
	cfg := config.Default()
	cfg.Audio.Backend = config.BackendWav
	cfg.Audio.InputFile = path
	cfg.Audio.Realtime = false
	cfg.Notify.WebSocketEnabled = false
	tr, events := collector()

	e, err := NewEngine(cfg, WithTransports(tr), WithClock(func() time.Time { return time.UnixMilli(99) }))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	defer e.Close()
	if got := e.Config().Audio.SampleRate; got != 16000 {
		t.Errorf("effective sample rate = %v, want the file's 16000", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("Run() only returned at the deadline, end of file was not a clean stop")
	}

	select {
	case ev := <-events:
		if ev.FrequencyHz != 3000 || ev.TimestampMillis != 99 {
			t.Errorf("alarm = %+v, want 3000 Hz at 99 ms", ev)
		}
	default:
		t.Fatal("replayed alarm tone raised no event")
	}
}

func TestNewEngine_NoCaptureBuffer(t *testing.T) {
	cfg := testConfig()
	cfg.Capture.HeapMemoryBytes = 1

	_, err := NewEngine(cfg)
	if !errors.Is(err, capture.ErrNoCaptureBuffer) {
		t.Fatalf("NewEngine() error = %v, want ErrNoCaptureBuffer", err)
	}
}

func TestNewEngine_MissingInput(t *testing.T) {
	cfg := testConfig()
	cfg.Audio.Backend = config.BackendWav
	cfg.Audio.InputFile = filepath.Join(t.TempDir(), "missing.wav")

	if _, err := NewEngine(cfg); err == nil {
		t.Fatal("NewEngine() with a missing file returned nil error")
	}
}

func TestNewEngine_WebSocket(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.WebSocketEnabled = true
	cfg.Notify.ListenAddr = "127.0.0.1:0"

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	if e.WebSocket() == nil || e.WebSocket().Addr() == nil {
		t.Error("websocket transport not listening")
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestGuard(t *testing.T) {
	err := guard("test", func() error { panic("boom") })()
	if err == nil {
		t.Fatal("guard() swallowed a panic")
	}
	want := errors.New("plain")
	if err := guard("test", func() error { return want })(); !errors.Is(err, want) {
		t.Errorf("guard() = %v, want %v", err, want)
	}
}
