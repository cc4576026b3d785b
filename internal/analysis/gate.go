// SPDX-License-Identifier: MIT
package analysis

import "math"

var negInf = math.Inf(-1)

// PeakAmplitude returns the largest absolute sample value in samples. The
// result is unsigned so the most negative int32 reports 1<<31.
func PeakAmplitude(samples []int32) uint32 {
	var peak uint32
	for _, s := range samples {
		mask := s >> 31
		amplitude := uint32((s ^ mask) - mask)
		if amplitude > peak {
			peak = amplitude
		}
	}
	return peak
}

// GateLevel converts a fraction of full scale into an absolute amplitude for
// samples carrying bitWidth significant bits.
func GateLevel(fraction float64, bitWidth int) uint32 {
	if fraction <= 0 {
		return 0
	}
	full := float64(uint64(1) << (bitWidth - 1))
	return uint32(math.Min(fraction, 1) * full)
}
