// SPDX-License-Identifier: MIT
package audio

import (
	"firealarm/pkg/signal"
)

// ToneOptions configures a ToneDriver.
type ToneOptions struct {
	Frequency  float64
	Amplitude  float64 // Relative to full scale.
	SampleRate float64
	BitWidth   int  // 16, 24 or 32.
	Realtime   bool // Pace reads at SampleRate.
	OnSamples  int  // Keying: samples on, 0 for a continuous tone.
	OffSamples int  // Keying: samples off.
}

// ToneDriver produces a synthetic sine. It never fails.
type ToneDriver struct {
	osc      signal.Oscillator
	bitWidth int
	shift    uint
	pace     *pacer
}

func NewToneDriver(opts ToneOptions) *ToneDriver {
	bitWidth := opts.BitWidth
	if bitWidth <= 0 || bitWidth > 32 {
		bitWidth = 32
	}
	d := &ToneDriver{
		osc: signal.Oscillator{
			Frequency:  opts.Frequency,
			SampleRate: opts.SampleRate,
			Amplitude:  opts.Amplitude,
			OnSamples:  opts.OnSamples,
			OffSamples: opts.OffSamples,
		},
		bitWidth: bitWidth,
		shift:    uint(32 - bitWidth),
	}
	if opts.Realtime {
		d.pace = newPacer(opts.SampleRate)
	}
	return d
}

func (d *ToneDriver) Read(buf []int32) (int, error) {
	d.osc.Fill(buf)
	if d.shift > 0 {
		for i := range buf {
			buf[i] >>= d.shift
		}
	}
	if d.pace != nil {
		d.pace.wait(len(buf))
	}
	return len(buf), nil
}

func (d *ToneDriver) BitWidth() int { return d.bitWidth }

func (d *ToneDriver) SampleRate() float64 { return d.osc.SampleRate }

func (d *ToneDriver) Close() error { return nil }

var _ Driver = (*ToneDriver)(nil)
