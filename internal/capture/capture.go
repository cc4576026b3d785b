// SPDX-License-Identifier: MIT
package capture

import (
	"fmt"

	"firealarm/internal/config"
	"firealarm/pkg/bitint"
)

// Region names used by New.
const (
	RegionFast = "fast"
	RegionHeap = "heap"
)

// Options configures New.
type Options struct {
	Strategy              Strategy
	Backpressure          Backpressure
	FFTSize               int
	ChunkSamples          int   // Chunked only.
	WindowSamples         int   // Chunked only, rounded up to whole chunks.
	FallbackWindowSamples int   // Chunked only.
	FastMemoryBytes       int64 // 0 disables the fast region.
	HeapMemoryBytes       int64 // 0 means unlimited.
}

// OptionsFromConfig derives Options from the capture, audio and analysis
// settings.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	strategy, err := ParseStrategy(cfg.Capture.Strategy)
	if err != nil {
		return Options{}, err
	}
	policy, err := ParseBackpressure(cfg.Capture.Backpressure)
	if err != nil {
		return Options{}, err
	}
	samples := func(seconds float64) int { return int(seconds*cfg.Audio.SampleRate + 0.5) }
	return Options{
		Strategy:              strategy,
		Backpressure:          policy,
		FFTSize:               cfg.Analysis.FFTSize,
		ChunkSamples:          cfg.ChunkSamples(),
		WindowSamples:         samples(cfg.Capture.WindowDuration.Seconds()),
		FallbackWindowSamples: samples(cfg.Capture.FallbackWindowDuration.Seconds()),
		FastMemoryBytes:       cfg.Capture.FastMemoryBytes,
		HeapMemoryBytes:       cfg.Capture.HeapMemoryBytes,
	}, nil
}

// Layouts returns the full and fallback pool layouts for opts.
func (o Options) Layouts() (full, fallback Layout) {
	if o.Strategy == StrategyPingPong {
		l := Layout{ChunkSamples: o.FFTSize, ChunksPerWindow: 1, Windows: PoolSize}
		return l, l
	}
	chunks := func(n int) int { return max(bitint.CeilDiv(n, o.ChunkSamples), 1) }
	full = Layout{ChunkSamples: o.ChunkSamples, ChunksPerWindow: chunks(o.WindowSamples), Windows: PoolSize, ChunkBuffer: true}
	fallback = Layout{ChunkSamples: o.ChunkSamples, ChunksPerWindow: chunks(o.FallbackWindowSamples), Windows: PoolSize, ChunkBuffer: true}
	return full, fallback
}

// Pipe is an assembler with its exchange and backing storage.
type Pipe struct {
	Assembler Assembler
	Exchange  *Exchange
	Backing   *Backing
}

// New allocates the window pool and builds the assembler for opts.
func New(opts Options, src Reader) (*Pipe, error) {
	if opts.FFTSize <= 0 || (opts.Strategy == StrategyChunked && opts.ChunkSamples <= 0) {
		return nil, fmt.Errorf("capture: invalid sizes, fft %d chunk %d", opts.FFTSize, opts.ChunkSamples)
	}

	var fast *Region
	if opts.FastMemoryBytes > 0 {
		fast = NewRegion(RegionFast, opts.FastMemoryBytes)
	}
	heapLimit := opts.HeapMemoryBytes
	if heapLimit == 0 {
		heapLimit = Unlimited
	}
	heap := NewRegion(RegionHeap, heapLimit)

	full, fallback := opts.Layouts()
	backing, err := AllocateBacking(fast, heap, full, fallback)
	if err != nil {
		return nil, err
	}
	if n := backing.Layout.WindowSamples(); n < opts.FFTSize {
		return nil, fmt.Errorf("%w: window of %d samples is shorter than fft size %d",
			ErrNoCaptureBuffer, n, opts.FFTSize)
	}

	exchange, err := NewExchange(backing.Windows, opts.Backpressure)
	if err != nil {
		return nil, err
	}

	var asm Assembler
	switch opts.Strategy {
	case StrategyPingPong:
		asm = NewPingPong(src, backing.Layout.WindowSamples())
	default:
		asm = NewChunked(src, backing.Chunk, backing.Layout.ChunksPerWindow)
	}
	return &Pipe{Assembler: asm, Exchange: exchange, Backing: backing}, nil
}
