// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	applog "firealarm/internal/log"
)

// PortAudioDriver reads mono 32-bit samples from a blocking PortAudio input
// stream. The stream delivers fixed blocks of framesPerRead samples; callers
// asking for fewer receive the remainder on the next Read.
type PortAudioDriver struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	block      []int32 // Stream buffer, filled by each Stream.Read.
	pending    []int32 // Unconsumed tail of block.
	sampleRate float64
	closed     bool
}

// NewPortAudioDriver initializes PortAudio and starts an input stream on
// deviceID (-1 for the default input).
func NewPortAudioDriver(deviceID int, sampleRate float64, framesPerRead int) (*PortAudioDriver, error) {
	if framesPerRead <= 0 {
		return nil, fmt.Errorf("PortAudio: frames per read must be positive, got %d", framesPerRead)
	}
	if err := Initialize(); err != nil {
		return nil, err
	}

	device, err := InputDevice(deviceID)
	if err != nil {
		Terminate()
		return nil, err
	}

	block := make([]int32, framesPerRead)
	params := portaudio.HighLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = sampleRate
	params.FramesPerBuffer = framesPerRead

	stream, err := portaudio.OpenStream(params, block)
	if err != nil {
		Terminate()
		return nil, fmt.Errorf("PortAudio: open input stream on %q: %w", device.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		Terminate()
		return nil, fmt.Errorf("PortAudio: start input stream: %w", err)
	}

	applog.Infof("PortAudio: Capturing from %q at %.0f Hz, %d frames per read (latency %s)",
		device.Name, sampleRate, framesPerRead, device.DefaultHighInputLatency)

	return &PortAudioDriver{
		stream:     stream,
		block:      block,
		sampleRate: sampleRate,
	}, nil
}

// Read copies buffered samples into buf, reading a new block from the
// stream when none are pending. An input overflow is returned as an error
// after the block has been discarded.
func (d *PortAudioDriver) Read(buf []int32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDriverClosed
	}
	if len(d.pending) == 0 {
		if err := d.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				return 0, fmt.Errorf("PortAudio: input overflowed: %w", err)
			}
			return 0, fmt.Errorf("PortAudio: read: %w", err)
		}
		d.pending = d.block
	}

	n := copy(buf, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// BitWidth reports 32: PortAudio delivers paInt32 samples.
func (d *PortAudioDriver) BitWidth() int { return 32 }

func (d *PortAudioDriver) SampleRate() float64 { return d.sampleRate }

// Close stops the stream and releases PortAudio.
func (d *PortAudioDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	var errs []error
	if err := d.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("PortAudio: stop stream: %w", err))
	}
	if err := d.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("PortAudio: close stream: %w", err))
	}
	if err := Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

var _ Driver = (*PortAudioDriver)(nil)
