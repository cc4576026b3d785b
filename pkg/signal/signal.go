// SPDX-License-Identifier: MIT

// Package signal generates synthetic 32-bit PCM test signals and provides
// small helpers for inspecting spectra. It backs the tone driver, the
// self-test command, and the package tests.
package signal

import "math"

// FullScale is the magnitude of the most negative 32-bit sample.
const FullScale = float64(1 << 31)

// ToInt32 converts a sample in [-1, 1] to 32-bit PCM, clamping out-of-range input.
func ToInt32(x float64) int32 {
	v := math.Round(x * FullScale)
	if v >= math.MaxInt32 {
		return math.MaxInt32
	}
	if v <= math.MinInt32 {
		return math.MinInt32
	}
	return int32(v)
}

// GenerateSineWave returns size samples of a sine at frequency Hz with the
// given amplitude relative to full scale.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []int32 {
	buffer := make([]int32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = ToInt32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// Silence returns size zero samples.
func Silence(size int) []int32 {
	return make([]int32, size)
}

// Oscillator produces a continuous sine across successive Fill calls. When
// OnSamples and OffSamples are both positive the tone is keyed on and off,
// which mimics the temporal pattern of an alarm sounder.
type Oscillator struct {
	Frequency  float64
	SampleRate float64
	Amplitude  float64
	OnSamples  int
	OffSamples int

	position int64
}

// Fill writes the next len(dst) samples.
func (o *Oscillator) Fill(dst []int32) {
	step := 2 * math.Pi * o.Frequency / o.SampleRate
	period := int64(o.OnSamples + o.OffSamples)
	keyed := o.OnSamples > 0 && o.OffSamples > 0

	for i := range dst {
		n := o.position + int64(i)
		if keyed && n%period >= int64(o.OnSamples) {
			dst[i] = 0
			continue
		}
		dst[i] = ToInt32(o.Amplitude * math.Sin(step*float64(n)))
	}
	o.position += int64(len(dst))
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
// Out-of-range bounds are clamped. An empty slice yields 0.
func FindPeakBin(values []float64, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(values) {
		endBin = len(values) - 1
	}
	if startBin > endBin {
		return startBin
	}

	peakBin := startBin
	peakValue := values[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}
	return peakBin
}
