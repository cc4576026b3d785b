// SPDX-License-Identifier: MIT
package signal

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 16000
	testFrequency  = 2500.0
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)
	for i := range testMagnitudes {
		// A "hill" peaking at testSize/4.
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}
	os.Exit(m.Run())
}

func TestToInt32(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want int32
	}{
		{"Zero", 0, 0},
		{"Negative Full Scale", -1, math.MinInt32},
		{"Positive Full Scale Clamps", 1, math.MaxInt32},
		{"Over Range", 2.5, math.MaxInt32},
		{"Under Range", -3, math.MinInt32},
		{"Half", 0.5, 1 << 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToInt32(tt.in); got != tt.want {
				t.Errorf("ToInt32(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		frequency  float64
		amplitude  float64
	}{
		{"Alarm Band", 16000, 2500, 0.5},
		{"Default Rate", 48000, 3000, 0.9},
		{"Low Tone", 16000, 50, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(testSize, tt.sampleRate, tt.frequency, tt.amplitude)
			if len(result) != testSize {
				t.Fatalf("len = %d, want %d", len(result), testSize)
			}

			var peak int64
			for _, v := range result {
				if a := int64(math.Abs(float64(v))); a > peak {
					peak = a
				}
			}
			limit := int64(tt.amplitude*FullScale) + 1
			if peak > limit {
				t.Errorf("peak %d exceeds amplitude limit %d", peak, limit)
			}

			samplesPerCycle := tt.sampleRate / tt.frequency
			if float64(testSize) > samplesPerCycle {
				crossCount := 0
				for i := 1; i < testSize; i++ {
					if (result[i-1] < 0 && result[i] >= 0) || (result[i-1] >= 0 && result[i] < 0) {
						crossCount++
					}
				}
				expected := float64(testSize) / (samplesPerCycle / 2)
				if math.Abs(float64(crossCount)-expected) > 0.2*expected+2 {
					t.Errorf("zero crossings = %d, expected about %.1f", crossCount, expected)
				}
			}
		})
	}
}

func TestOscillatorContinuity(t *testing.T) {
	whole := GenerateSineWave(testSize, testSampleRate, testFrequency, 0.5)

	osc := &Oscillator{Frequency: testFrequency, SampleRate: testSampleRate, Amplitude: 0.5}
	pieces := make([]int32, 0, testSize)
	chunk := make([]int32, 100)
	for len(pieces) < testSize {
		n := min(len(chunk), testSize-len(pieces))
		osc.Fill(chunk[:n])
		pieces = append(pieces, chunk[:n]...)
	}

	for i := range whole {
		if d := int64(whole[i]) - int64(pieces[i]); d > 1 || d < -1 {
			t.Fatalf("sample %d: chunked %d, whole %d", i, pieces[i], whole[i])
		}
	}
}

func TestOscillatorKeying(t *testing.T) {
	osc := &Oscillator{
		Frequency:  testFrequency,
		SampleRate: testSampleRate,
		Amplitude:  0.5,
		OnSamples:  64,
		OffSamples: 64,
	}
	buf := make([]int32, 256)
	osc.Fill(buf)

	for i := 64; i < 128; i++ {
		if buf[i] != 0 {
			t.Fatalf("sample %d = %d during off period, want 0", i, buf[i])
		}
	}
	nonZero := false
	for _, v := range buf[128:192] {
		if v != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Error("second on period is silent")
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Partial Range End", testMagnitudes, 0, testSize / 3, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindPeakBin(tt.mags, tt.start, tt.end); got != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func BenchmarkOscillatorFill(b *testing.B) {
	osc := &Oscillator{Frequency: testFrequency, SampleRate: testSampleRate, Amplitude: 0.5}
	buf := make([]int32, 512)
	for b.Loop() {
		osc.Fill(buf)
	}
}
