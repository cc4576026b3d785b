// SPDX-License-Identifier: MIT
package analysis

// Spectrum is the band-limited result of one analysis pass. Magnitudes and
// PowerDB are indexed from StartBin, so PowerDB[0] belongs to bin StartBin.
type Spectrum struct {
	StartBin   int
	EndBin     int
	BinHz      float64 // Width of one bin, sampleRate/N.
	WindowSum  float64
	Magnitudes []float64
	PowerDB    []float64
	Gated      bool // Frame was below the gate and not transformed.
}

// Frequency returns the centre frequency of an absolute bin index.
func (s *Spectrum) Frequency(bin int) float64 {
	return float64(bin) * s.BinHz
}

// Peak returns the absolute bin with the highest power in the band. Ties go
// to the lowest bin. An empty band returns StartBin and negative infinity.
func (s *Spectrum) Peak() (bin int, powerDB float64) {
	best := -1
	for i, p := range s.PowerDB {
		if best < 0 || p > s.PowerDB[best] {
			best = i
		}
	}
	if best < 0 {
		return s.StartBin, negInf
	}
	return s.StartBin + best, s.PowerDB[best]
}

// Bins returns the number of bins in the band.
func (s *Spectrum) Bins() int { return len(s.PowerDB) }
