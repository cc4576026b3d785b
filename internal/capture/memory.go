// SPDX-License-Identifier: MIT
package capture

import (
	"errors"
	"fmt"

	applog "firealarm/internal/log"
)

// SampleBytes is the storage size of one raw sample.
const SampleBytes = 4

// Unlimited marks a Region without a budget.
const Unlimited int64 = -1

var (
	ErrRegionExhausted = errors.New("capture: memory region exhausted")
	ErrNoCaptureBuffer = errors.New("capture: no capture buffer could be allocated")
)

// Region is a named memory budget that capture buffers are carved from.
// A zero Limit means the region is absent and every allocation fails.
type Region struct {
	Name  string
	Limit int64 // Bytes, or Unlimited.
	used  int64
}

// NewRegion returns a region with the given budget.
func NewRegion(name string, limit int64) *Region {
	return &Region{Name: name, Limit: limit}
}

// Available returns the remaining budget in bytes, or Unlimited.
func (r *Region) Available() int64 {
	if r.Limit == Unlimited {
		return Unlimited
	}
	return r.Limit - r.used
}

// Used returns the bytes allocated so far.
func (r *Region) Used() int64 { return r.used }

// Alloc returns a zeroed buffer of samples samples charged to the region.
func (r *Region) Alloc(samples int) ([]int32, error) {
	bytes := int64(samples) * SampleBytes
	if r.Limit != Unlimited && r.used+bytes > r.Limit {
		return nil, fmt.Errorf("%w: %s region needs %d bytes, %d of %d available",
			ErrRegionExhausted, r.Name, bytes, r.Limit-r.used, r.Limit)
	}
	r.used += bytes
	return make([]int32, samples), nil
}

// Layout describes the window pool for one allocation attempt.
type Layout struct {
	ChunkSamples    int
	ChunksPerWindow int
	Windows         int
	ChunkBuffer     bool // Reserve a separate chunk buffer after the windows.
}

// WindowSamples returns the length of one window.
func (l Layout) WindowSamples() int { return l.ChunkSamples * l.ChunksPerWindow }

// Samples returns the total samples needed by the windows and chunk buffer.
func (l Layout) Samples() int {
	n := l.WindowSamples() * l.Windows
	if l.ChunkBuffer {
		n += l.ChunkSamples
	}
	return n
}

// Bytes returns the storage size of the layout.
func (l Layout) Bytes() int64 { return int64(l.Samples()) * SampleBytes }

// Backing is the storage behind an Exchange pool and its chunk buffer.
type Backing struct {
	Region   string
	Layout   Layout
	Windows  []*Window
	Chunk    []int32
	Fallback bool // Allocated at the reduced window length.
}

type tier struct {
	region   *Region
	layout   Layout
	fallback bool
}

// AllocateBacking carves the window pool from the first tier that fits:
// the fast region at full length, the heap region at full length, then the
// heap region at the fallback length. A nil fast region is skipped. When
// every tier fails the error wraps ErrNoCaptureBuffer and names each attempt.
func AllocateBacking(fast, heap *Region, full, fallback Layout) (*Backing, error) {
	var tiers []tier
	if fast != nil {
		tiers = append(tiers, tier{fast, full, false})
	}
	tiers = append(tiers, tier{heap, full, false})
	if fallback != full {
		tiers = append(tiers, tier{heap, fallback, true})
	}

	var errs []error
	for _, t := range tiers {
		buf, err := t.region.Alloc(t.layout.Samples())
		if err != nil {
			applog.Debugf("Capture: %v", err)
			errs = append(errs, err)
			continue
		}
		b := carve(buf, t.layout)
		b.Region = t.region.Name
		b.Fallback = t.fallback
		if t.fallback {
			applog.Warnf("Capture: using fallback window of %d samples from %s region", t.layout.WindowSamples(), t.region.Name)
		}
		applog.Infof("Capture: allocated %d windows of %d samples (%d bytes) from %s region",
			t.layout.Windows, t.layout.WindowSamples(), t.layout.Bytes(), t.region.Name)
		return b, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNoCaptureBuffer, errors.Join(errs...))
}

// carve splits one contiguous allocation into windows and a chunk buffer.
func carve(buf []int32, l Layout) *Backing {
	size := l.WindowSamples()
	b := &Backing{Layout: l, Windows: make([]*Window, l.Windows)}
	for i := range b.Windows {
		b.Windows[i] = &Window{Samples: buf[i*size : (i+1)*size : (i+1)*size]}
	}
	if l.ChunkBuffer {
		b.Chunk = buf[l.Windows*size:]
	}
	return b
}
