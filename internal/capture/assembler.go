// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"time"
)

// Assembler fills one window per call from a Reader.
type Assembler interface {
	Fill(ctx context.Context, w *Window) error
	WindowSamples() int
}

// PingPongAssembler fills the whole window with a single source fill.
type PingPongAssembler struct {
	src  Reader
	size int
	now  func() time.Time
}

// NewPingPong returns an assembler producing windows of size samples.
func NewPingPong(src Reader, size int) *PingPongAssembler {
	return &PingPongAssembler{src: src, size: size, now: time.Now}
}

func (a *PingPongAssembler) Fill(ctx context.Context, w *Window) error {
	w.Samples = w.Samples[:a.size]
	if err := a.src.Fill(ctx, w.Samples); err != nil {
		return err
	}
	stamp(w, a.src, a.now())
	return nil
}

func (a *PingPongAssembler) WindowSamples() int { return a.size }

// ChunkedAssembler reads fixed-size chunks and copies them into the window
// at an advancing write offset. The window completes after chunksPerWindow
// chunks and the offset returns to zero.
type ChunkedAssembler struct {
	src             Reader
	chunk           []int32
	chunksPerWindow int
	offset          int
	now             func() time.Time
}

// NewChunked returns an assembler that reads into chunk and surfaces a
// window every chunksPerWindow chunks.
func NewChunked(src Reader, chunk []int32, chunksPerWindow int) *ChunkedAssembler {
	return &ChunkedAssembler{
		src:             src,
		chunk:           chunk,
		chunksPerWindow: chunksPerWindow,
		now:             time.Now,
	}
}

func (a *ChunkedAssembler) Fill(ctx context.Context, w *Window) error {
	size := a.WindowSamples()
	w.Samples = w.Samples[:size]
	a.offset = 0
	for range a.chunksPerWindow {
		if err := a.src.Fill(ctx, a.chunk); err != nil {
			return err
		}
		a.offset += copy(w.Samples[a.offset:], a.chunk)
	}
	stamp(w, a.src, a.now())
	a.offset = 0
	return nil
}

func (a *ChunkedAssembler) WindowSamples() int { return len(a.chunk) * a.chunksPerWindow }

// Offset returns the write offset of the window being filled.
func (a *ChunkedAssembler) Offset() int { return a.offset }

func stamp(w *Window, src Reader, t time.Time) {
	w.BitWidth = src.BitWidth()
	w.SampleRate = src.SampleRate()
	w.Captured = t
}
