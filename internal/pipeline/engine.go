// SPDX-License-Identifier: MIT

// Package pipeline wires the detector together and runs it.
//
// Three goroutines run under one errgroup:
//
//  1. acquisition: Assembler.Fill then Exchange.Publish, never waiting on analysis
//  2. analysis: Exchange.Receive, then per frame Analyze, Observe and Sink.Publish
//  3. notification: Notifier.Run draining the sink into the transports
//
// Shutdown flows downstream. Acquisition stops on cancellation or end of
// stream and closes the exchange; analysis drains the ready window and closes
// the sink; the notifier delivers what is queued and returns.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"firealarm/internal/analysis"
	"firealarm/internal/audio"
	"firealarm/internal/capture"
	"firealarm/internal/config"
	"firealarm/internal/detect"
	applog "firealarm/internal/log"
	"firealarm/internal/notify"
	"firealarm/internal/transport"
	"firealarm/internal/transport/udp"
)

// Engine owns every pipeline component. It is built once by NewEngine and
// run once by Run.
type Engine struct {
	cfg *config.Config

	source    *audio.Source
	pipe      *capture.Pipe
	analyzer  *analysis.Analyzer
	detector  *detect.Engine
	sink      *notify.Sink
	notifier  *notify.Notifier
	publisher *udp.Publisher
	websocket *transport.WebSocketTransport

	driver     audio.Driver
	transports []transport.Transport
	detectOpts []detect.Option

	closeOnce sync.Once
	closeErr  error
}

// Option customizes NewEngine.
type Option func(*Engine)

// WithDriver uses d instead of opening the configured backend.
func WithDriver(d audio.Driver) Option {
	return func(e *Engine) { e.driver = d }
}

// WithTransports adds transports next to the configured ones.
func WithTransports(ts ...transport.Transport) Option {
	return func(e *Engine) { e.transports = append(e.transports, ts...) }
}

// WithClock sets the time source for alarm timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.detectOpts = append(e.detectOpts, detect.WithClock(clock)) }
}

// NewEngine opens the sample source and allocates every buffer. Failure to
// allocate capture storage returns an error wrapping
// capture.ErrNoCaptureBuffer.
func NewEngine(cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.driver == nil {
		e.driver, err = audio.OpenDriver(cfg.Audio, framesPerRead(cfg))
		if err != nil {
			return nil, fmt.Errorf("open %s input: %w", cfg.Audio.Backend, err)
		}
	}
	if err := e.adoptSourceFormat(); err != nil {
		return nil, err
	}

	var rec *audio.Recorder
	if cfg.Audio.RecordFile != "" {
		rec, err = audio.NewRecorder(cfg.Audio.RecordFile, e.driver.SampleRate(), e.driver.BitWidth())
		if err != nil {
			return nil, err
		}
	}
	e.source = audio.NewSource(e.driver, cfg.Audio, rec)

	copts, err := capture.OptionsFromConfig(e.cfg)
	if err != nil {
		return nil, err
	}
	if e.pipe, err = capture.New(copts, e.source); err != nil {
		return nil, err
	}

	e.analyzer, err = analysis.New(analysis.Options{
		Size:          e.cfg.Analysis.FFTSize,
		SampleRate:    e.source.SampleRate(),
		BandStartHz:   e.cfg.Analysis.BandStartHz,
		BandEndHz:     e.cfg.Analysis.BandEndHz,
		GateThreshold: e.cfg.Analysis.GateThreshold,
	})
	if err != nil {
		return nil, err
	}

	dcfg, err := detect.ConfigFrom(e.cfg)
	if err != nil {
		return nil, err
	}
	if e.detector, err = detect.New(dcfg, e.detectOpts...); err != nil {
		return nil, err
	}

	e.sink = notify.NewSink(e.cfg.Notify.QueueSize)
	transports, err := e.openTransports()
	if err != nil {
		return nil, err
	}
	e.notifier = notify.NewNotifier(e.sink, transports...)
	return e, nil
}

// adoptSourceFormat replaces the configured sample rate with the source's
// when they differ, as with a WAV file, and revalidates.
func (e *Engine) adoptSourceFormat() error {
	rate := e.driver.SampleRate()
	if rate == e.cfg.Audio.SampleRate {
		return nil
	}
	applog.Warnf("Engine: source runs at %.0f Hz, configured %.0f Hz; using the source rate", rate, e.cfg.Audio.SampleRate)
	cfg := *e.cfg
	cfg.Audio.SampleRate = rate
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid at source rate %.0f Hz: %w", rate, err)
	}
	e.cfg = &cfg
	return nil
}

func (e *Engine) openTransports() ([]transport.Transport, error) {
	ts := []transport.Transport{transport.NewLoggingTransport()}

	if e.cfg.Notify.WebSocketEnabled {
		wst, err := transport.ListenWebSocket(e.cfg.Notify.ListenAddr)
		if err != nil {
			closeAll(ts)
			return nil, err
		}
		e.websocket = wst
		ts = append(ts, wst)
	}
	if e.cfg.Notify.UDPEnabled {
		sender, err := udp.NewSender(e.cfg.Notify.UDPTargetAddress)
		if err != nil {
			closeAll(ts)
			return nil, err
		}
		pub, err := udp.NewPublisher(e.cfg.Notify.HeartbeatInterval, sender)
		if err != nil {
			sender.Close()
			closeAll(ts)
			return nil, err
		}
		e.publisher = pub
		ts = append(ts, pub)
	}
	return append(ts, e.transports...), nil
}

func closeAll(ts []transport.Transport) {
	for _, t := range ts {
		t.Close()
	}
}

// framesPerRead is the driver block size hint: one chunk or one window.
func framesPerRead(cfg *config.Config) int {
	if cfg.Capture.Strategy == config.StrategyChunked {
		return cfg.ChunkSamples()
	}
	return cfg.Analysis.FFTSize
}

// Run processes audio until ctx is cancelled or the source ends. A replayed
// file that reaches its end is a clean stop and returns nil.
func (e *Engine) Run(ctx context.Context) error {
	applog.Infof("Engine: %s capture of %d-sample windows, %d-point transform at %.0f Hz, band %.0f-%.0f Hz",
		e.cfg.Capture.Strategy, e.pipe.Backing.Layout.WindowSamples(), e.analyzer.Size(), e.analyzer.SampleRate(),
		e.cfg.Analysis.BandStartHz, e.cfg.Analysis.BandEndHz)

	if e.publisher != nil {
		e.publisher.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	// Downstream stages end when their input closes, never on cancellation,
	// so in-flight windows and events are drained.
	drain := context.WithoutCancel(ctx)

	g.Go(guard("acquisition", func() error { return e.acquire(gctx) }))
	g.Go(guard("analysis", func() error { return e.analyze(drain) }))
	g.Go(guard("notification", func() error { return e.notifier.Run(drain) }))

	err := g.Wait()
	e.logSummary()
	return err
}

func (e *Engine) acquire(ctx context.Context) error {
	ex := e.pipe.Exchange
	defer ex.Close()

	stop := context.AfterFunc(ctx, e.source.Interrupt)
	defer stop()

	w := ex.Acquire()
	for {
		if err := e.pipe.Assembler.Fill(ctx, w); err != nil {
			switch {
			case errors.Is(err, audio.ErrEndOfStream):
				applog.Infof("Engine: end of input stream")
				return nil
			case ctx.Err() != nil:
				return nil
			default:
				return fmt.Errorf("acquisition: %w", err)
			}
		}
		w = ex.Publish(w)
	}
}

func (e *Engine) analyze(ctx context.Context) error {
	defer e.sink.Close()

	ex := e.pipe.Exchange
	size := e.analyzer.Size()
	for {
		w, err := ex.Receive(ctx)
		if errors.Is(err, capture.ErrClosed) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("analysis: %w", err)
		}

		for i := range w.Frames(size) {
			sp := e.analyzer.Analyze(w.Frame(i, size), w.BitWidth)
			if ev, ok := e.detector.Observe(sp); ok {
				e.sink.Publish(ev)
			}
		}
		ex.Release(w)
	}
}

// guard turns a panic in fn into an error so the group shuts down cleanly.
func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				applog.Errorf("Engine: %s panicked: %v\n%s", name, r, debug.Stack())
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	}
}

func (e *Engine) logSummary() {
	src := e.source.Stats()
	ex := e.pipe.Exchange.Stats()
	det := e.detector.Stats()
	sink := e.sink.Stats()
	applog.Infof("Engine: reads %d (short %d, faults %d); windows %d (replaced %d, dropped %d); frames %d, alarms %d; events queued %d, dropped %d",
		src.Reads, src.ShortReads, src.Faults, ex.Published, ex.Replaced, ex.Dropped,
		det.Frames, det.Alarms, sink.Published, sink.Dropped)
}

// Stats is a snapshot of pipeline counters. Call it after Run returns.
type Stats struct {
	Source   audio.Stats
	Exchange capture.ExchangeStats
	Detect   detect.Stats
	Sink     notify.SinkStats
}

// Stats returns the pipeline counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Source:   e.source.Stats(),
		Exchange: e.pipe.Exchange.Stats(),
		Detect:   e.detector.Stats(),
		Sink:     e.sink.Stats(),
	}
}

// Config returns the effective configuration, including a sample rate
// adopted from the source.
func (e *Engine) Config() *config.Config { return e.cfg }

// WebSocket returns the WebSocket transport, or nil when disabled.
func (e *Engine) WebSocket() *transport.WebSocketTransport { return e.websocket }

// Close releases transports, the recorder and the driver. It is safe to
// call more than once and on a partially built engine.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.notifier != nil {
			errs = append(errs, e.notifier.Close())
		}
		if e.source != nil {
			errs = append(errs, e.source.Close())
		} else if e.driver != nil {
			errs = append(errs, e.driver.Close())
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
