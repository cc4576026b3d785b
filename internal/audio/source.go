// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"firealarm/internal/config"
	applog "firealarm/internal/log"
)

// Stats counts Source activity since construction.
type Stats struct {
	Reads      uint64
	ShortReads uint64
	Faults     uint64
}

// Source fills caller buffers from a Driver. It is used by a single
// acquisition goroutine; Interrupt and Stats may be called from others.
type Source struct {
	driver   Driver
	interval time.Duration // Timer pacing; 0 reads back to back.
	backoff  time.Duration
	recorder *Recorder

	ticker *time.Ticker

	reads      atomic.Uint64
	shortReads atomic.Uint64
	faults     atomic.Uint64
}

// NewSource wraps d. In timer mode each driver read waits for the next tick
// of cfg.ReadInterval. rec may be nil.
func NewSource(d Driver, cfg config.AudioConfig, rec *Recorder) *Source {
	s := &Source{
		driver:   d,
		backoff:  cfg.RetryBackoff,
		recorder: rec,
	}
	if cfg.ReadMode == config.ReadTimer && cfg.ReadInterval > 0 {
		s.interval = cfg.ReadInterval
	}
	return s
}

// Fill blocks until buf is completely filled. Short reads are continued and
// read errors are logged and retried after the backoff. It returns
// ErrEndOfStream when the driver is exhausted, ErrInputCorrupt when its data
// cannot be decoded, or the context error.
func (s *Source) Fill(ctx context.Context, buf []int32) error {
	filled := 0
	for filled < len(buf) {
		if err := s.waitTick(ctx); err != nil {
			return err
		}

		n, err := s.driver.Read(buf[filled:])
		s.reads.Add(1)
		if n > 0 {
			s.record(buf[filled : filled+n])
			filled += n
		}

		if err != nil {
			if errors.Is(err, ErrInputCorrupt) {
				return err
			}
			if errors.Is(err, io.EOF) {
				return ErrEndOfStream
			}
			if errors.Is(err, ErrDriverClosed) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return err
			}
			s.faults.Add(1)
			applog.Warnf("Source: read failed with %d/%d samples buffered, retrying in %s: %v",
				filled, len(buf), s.backoff, err)
			if err := sleep(ctx, s.backoff); err != nil {
				return err
			}
			continue
		}

		if filled < len(buf) {
			s.shortReads.Add(1)
			applog.Debugf("Source: short read, %d/%d samples", filled, len(buf))
		}
	}
	return nil
}

func (s *Source) waitTick(ctx context.Context) error {
	if s.interval <= 0 {
		return ctx.Err()
	}
	if s.ticker == nil {
		s.ticker = time.NewTicker(s.interval)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ticker.C:
		return nil
	}
}

func (s *Source) record(samples []int32) {
	if s.recorder == nil || !s.recorder.Recording() {
		return
	}
	if err := s.recorder.Write(samples); err != nil {
		applog.Debugf("Source: recording write failed: %v", err)
	}
}

// BitWidth returns the driver's sample width.
func (s *Source) BitWidth() int { return s.driver.BitWidth() }

// SampleRate returns the driver's sample rate.
func (s *Source) SampleRate() float64 { return s.driver.SampleRate() }

// Stats returns the read counters.
func (s *Source) Stats() Stats {
	return Stats{
		Reads:      s.reads.Load(),
		ShortReads: s.shortReads.Load(),
		Faults:     s.faults.Load(),
	}
}

// Interrupt unblocks a Fill waiting on a driver that may block indefinitely.
func (s *Source) Interrupt() {
	if i, ok := s.driver.(interrupter); ok {
		i.Interrupt()
	}
}

// Close stops the ticker, the recorder and the driver.
func (s *Source) Close() error {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	var errs []error
	if s.recorder != nil {
		errs = append(errs, s.recorder.Close())
	}
	errs = append(errs, s.driver.Close())
	return errors.Join(errs...)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
