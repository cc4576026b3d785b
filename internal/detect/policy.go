// SPDX-License-Identifier: MIT
package detect

import (
	"firealarm/internal/analysis"
)

// shortWindow decides on every frame and decays the counter on a miss.
type shortWindow struct {
	threshold float64
}

func (p *shortWindow) observe(s *analysis.Spectrum) decision {
	bin, db := s.Peak()
	return decision{evaluated: true, detected: db > p.threshold, bin: bin, powerDB: db}
}

func (p *shortWindow) update(counter int, d decision) int {
	if d.detected {
		return counter + 1
	}
	return max(counter-1, 0)
}

func (p *shortWindow) reset() {}

func (p *shortWindow) state(*State) {}

// longWindow averages band magnitudes over a fixed number of frames, decides
// once on the average, and clears it. A miss resets the counter.
type longWindow struct {
	threshold float64
	frames    int
	average   []float64
	n         int
}

func (p *longWindow) observe(s *analysis.Spectrum) decision {
	if len(p.average) != len(s.Magnitudes) {
		p.average = make([]float64, len(s.Magnitudes))
		p.n = 0
	}
	n := float64(p.n)
	for i, mag := range s.Magnitudes {
		p.average[i] = (p.average[i]*n + mag) / (n + 1)
	}
	p.n++
	if p.n < p.frames {
		return decision{}
	}

	best, bestDB := -1, 0.0
	for i, mag := range p.average {
		db := analysis.PowerDB(mag, s.WindowSum)
		if best < 0 || db > bestDB {
			best, bestDB = i, db
		}
	}
	p.reset()
	if best < 0 {
		return decision{evaluated: true, bin: s.StartBin, powerDB: analysis.PowerDB(0, s.WindowSum)}
	}
	return decision{
		evaluated: true,
		detected:  bestDB > p.threshold,
		bin:       s.StartBin + best,
		powerDB:   bestDB,
	}
}

func (p *longWindow) update(counter int, d decision) int {
	if d.detected {
		return counter + 1
	}
	return 0
}

func (p *longWindow) reset() {
	for i := range p.average {
		p.average[i] = 0
	}
	p.n = 0
}

func (p *longWindow) state(st *State) {
	st.RunningAverage = append([]float64(nil), p.average...)
	st.FramesAccumulated = p.n
}
