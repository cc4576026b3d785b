// SPDX-License-Identifier: MIT

/*
Package analysis turns windows of raw PCM into band-limited power spectra.

One analysis pass over a frame of N samples:

 1. normalize int32 samples to [-1, 1] by the source bit width
 2. multiply by precomputed Hamming coefficients
 3. forward complex transform of size N
 4. for each bin in the band: magnitude, doubled except at DC and Nyquist,
    then powerDB = 20*log10(magnitude/sum(window) + 1e-12)

With this scaling a bin-aligned sine of amplitude A reads 20*log10(A) dB,
so 0 dB is a full-scale tone.

An Analyzer is owned by a single goroutine. All buffers are allocated in New
and the returned Spectrum aliases them until the next call.
*/
package analysis

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	applog "firealarm/internal/log"
	"firealarm/pkg/bitint"
)

// Epsilon keeps PowerDB finite for silent bins.
const Epsilon = 1e-12

var (
	ErrInvalidSize       = errors.New("analysis: transform size must be a power of 2")
	ErrInvalidSampleRate = errors.New("analysis: sample rate must be positive")
	ErrInvalidBand       = errors.New("analysis: invalid frequency band")
)

// Options configures an Analyzer.
type Options struct {
	Size          int     // Transform size N, a power of two.
	SampleRate    float64 // Hz.
	BandStartHz   float64
	BandEndHz     float64
	GateThreshold float64 // Fraction of full scale; frames whose peak is below skip the transform. 0 disables.
}

// Pre-allocated buffers for one analysis pass.
type workspace struct {
	frame     []float64    // Normalized input frame.
	window    []float64    // Hamming coefficients.
	input     []complex128 // Windowed frame, transform input.
	output    []complex128 // Transform output, natural bin order.
	magnitude []float64    // Band magnitudes.
	power     []float64    // Band power in dB.
}

// Analyzer computes band power spectra for fixed-size frames.
type Analyzer struct {
	fft        *fourier.CmplxFFT
	size       int
	sampleRate float64
	startBin   int
	endBin     int
	windowSum  float64
	gate       float64
	workspace  workspace
	spectrum   Spectrum
}

// New validates opts and allocates the transform plan, window and buffers.
func New(opts Options) (*Analyzer, error) {
	if !bitint.IsPowerOfTwo(opts.Size) || opts.Size < 2 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidSize, opts.Size)
	}
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("%w, got %f", ErrInvalidSampleRate, opts.SampleRate)
	}
	if opts.BandStartHz < 0 || opts.BandEndHz < opts.BandStartHz {
		return nil, fmt.Errorf("%w: %v..%v Hz", ErrInvalidBand, opts.BandStartHz, opts.BandEndHz)
	}

	startBin := BinIndex(opts.BandStartHz, opts.SampleRate, opts.Size)
	endBin := BinIndex(opts.BandEndHz, opts.SampleRate, opts.Size)
	bins := endBin - startBin + 1

	coeffs := HammingWindow(opts.Size)
	var sum float64
	for _, c := range coeffs {
		sum += c
	}

	a := &Analyzer{
		fft:        fourier.NewCmplxFFT(opts.Size),
		size:       opts.Size,
		sampleRate: opts.SampleRate,
		startBin:   startBin,
		endBin:     endBin,
		windowSum:  sum,
		gate:       math.Max(opts.GateThreshold, 0),
		workspace: workspace{
			frame:     make([]float64, opts.Size),
			window:    coeffs,
			input:     make([]complex128, opts.Size),
			output:    make([]complex128, opts.Size),
			magnitude: make([]float64, bins),
			power:     make([]float64, bins),
		},
	}
	a.spectrum = Spectrum{
		StartBin:   startBin,
		EndBin:     endBin,
		BinHz:      opts.SampleRate / float64(opts.Size),
		WindowSum:  sum,
		Magnitudes: a.workspace.magnitude,
		PowerDB:    a.workspace.power,
	}

	applog.Infof("Analysis: Initializing Analyzer (Size: %d, SampleRate: %.1f Hz, Band: bins %d-%d, %.1f-%.1f Hz)",
		opts.Size, opts.SampleRate, startBin, endBin, a.spectrum.Frequency(startBin), a.spectrum.Frequency(endBin))

	return a, nil
}

// HammingWindow returns n coefficients 0.54 - 0.46*cos(2*pi*i/(n-1)).
func HammingWindow(n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	return window.Hamming(coeffs)
}

// BinIndex maps a frequency to the nearest bin, clamped to [0, size/2].
func BinIndex(freq, sampleRate float64, size int) int {
	bin := int(math.Round(freq * float64(size) / sampleRate))
	return min(max(bin, 0), size/2)
}

// Normalize converts samples carrying bitWidth significant bits to [-1, 1].
// The most negative sample maps to exactly -1. dst must be at least len(src).
func Normalize(dst []float64, src []int32, bitWidth int) {
	scale := 1.0 / float64(int64(1)<<(bitWidth-1))
	for i, s := range src {
		v := float64(s) * scale
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		dst[i] = v
	}
}

// BinMagnitude returns the single-sided magnitude of bin. NaN components are
// treated as zero. All bins except DC and Nyquist are doubled to account for
// the mirrored negative frequency.
func BinMagnitude(c complex128, bin, size int) float64 {
	re, im := real(c), imag(c)
	if math.IsNaN(re) {
		re = 0
	}
	if math.IsNaN(im) {
		im = 0
	}
	mag := math.Sqrt(re*re + im*im)
	if bin != 0 && bin != size/2 {
		mag *= 2
	}
	return mag
}

// PowerDB converts a magnitude to decibels relative to a full-scale tone.
func PowerDB(mag, windowSum float64) float64 {
	return 20 * math.Log10(mag/windowSum+Epsilon)
}

// Transform windows frame and returns its spectrum in natural bin order. A
// frame shorter than the transform size is zero-padded. The result aliases
// the analyzer's workspace.
func (a *Analyzer) Transform(frame []float64) []complex128 {
	ws := &a.workspace
	n := min(len(frame), a.size)
	for i := range n {
		ws.input[i] = complex(frame[i]*ws.window[i], 0)
	}
	for i := n; i < a.size; i++ {
		ws.input[i] = 0
	}
	return a.fft.Coefficients(ws.output, ws.input)
}

// Analyze runs one pass over the first Size samples of raw. Frames whose
// peak amplitude is below the gate threshold are reported as silent without
// running the transform.
func (a *Analyzer) Analyze(raw []int32, bitWidth int) *Spectrum {
	ws := &a.workspace
	n := min(len(raw), a.size)
	frame := raw[:n]
	a.spectrum.Gated = false

	if a.gate > 0 && PeakAmplitude(frame) < GateLevel(a.gate, bitWidth) {
		silent := PowerDB(0, a.windowSum)
		for i := range ws.magnitude {
			ws.magnitude[i] = 0
			ws.power[i] = silent
		}
		a.spectrum.Gated = true
		return &a.spectrum
	}

	Normalize(ws.frame, frame, bitWidth)
	for i := n; i < a.size; i++ {
		ws.frame[i] = 0
	}

	out := a.Transform(ws.frame)
	for i := range ws.magnitude {
		bin := a.startBin + i
		mag := BinMagnitude(out[bin], bin, a.size)
		ws.magnitude[i] = mag
		ws.power[i] = PowerDB(mag, a.windowSum)
	}
	return &a.spectrum
}

// Size returns the transform size.
func (a *Analyzer) Size() int { return a.size }

// SampleRate returns the configured sample rate.
func (a *Analyzer) SampleRate() float64 { return a.sampleRate }

// WindowSum returns the sum of the Hamming coefficients.
func (a *Analyzer) WindowSum() float64 { return a.windowSum }

// Band returns the inclusive bin range scanned by Analyze.
func (a *Analyzer) Band() (startBin, endBin int) { return a.startBin, a.endBin }
