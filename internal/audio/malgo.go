// SPDX-License-Identifier: MIT
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	applog "firealarm/internal/log"
)

// malgoQueueDepth is the number of device periods buffered between the
// capture callback and Read.
const malgoQueueDepth = 64

// MalgoDriver captures mono S32 samples through miniaudio. The device
// callback converts each period and queues it without blocking; periods that
// arrive while the queue is full are counted and dropped.
type MalgoDriver struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	periods    chan []int32
	done       chan struct{}
	doneOnce   sync.Once
	closeOnce  sync.Once
	pending    []int32
	sampleRate float64
	dropped    atomic.Uint64
}

// NewMalgoDriver opens capture device deviceID (-1 for the default) and starts it.
func NewMalgoDriver(deviceID int, sampleRate float64, framesPerRead int) (*MalgoDriver, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("malgo: init context: %w", err)
	}

	d := &MalgoDriver{
		ctx:        ctx,
		periods:    make(chan []int32, malgoQueueDepth),
		done:       make(chan struct{}),
		sampleRate: sampleRate,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	if framesPerRead > 0 {
		deviceConfig.PeriodSizeInFrames = uint32(framesPerRead)
	}

	if deviceID >= 0 {
		infos, err := ctx.Devices(malgo.Capture)
		if err != nil {
			d.freeContext()
			return nil, fmt.Errorf("malgo: enumerate devices: %w", err)
		}
		if deviceID >= len(infos) {
			d.freeContext()
			return nil, fmt.Errorf("malgo: device index %d out of range (have %d devices)", deviceID, len(infos))
		}
		deviceConfig.Capture.DeviceID = infos[deviceID].ID.Pointer()
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: d.onData})
	if err != nil {
		d.freeContext()
		return nil, fmt.Errorf("malgo: init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		d.freeContext()
		return nil, fmt.Errorf("malgo: start device: %w", err)
	}
	d.device = device

	applog.Infof("malgo: Capturing at %.0f Hz", sampleRate)
	return d, nil
}

func (d *MalgoDriver) onData(_, input []byte, frameCount uint32) {
	if len(input) == 0 {
		return
	}
	period := decodeS32(input)
	select {
	case d.periods <- period:
	default:
		d.dropped.Add(1)
	}
}

// decodeS32 converts little-endian signed 32-bit PCM to samples.
func decodeS32(data []byte) []int32 {
	samples := make([]int32, len(data)/4)
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}

// Read blocks until a captured period is available or the driver is
// interrupted or closed.
func (d *MalgoDriver) Read(buf []int32) (int, error) {
	if len(d.pending) == 0 {
		select {
		case period := <-d.periods:
			d.pending = period
		case <-d.done:
			return 0, ErrDriverClosed
		}
	}
	if n := d.dropped.Swap(0); n > 0 {
		applog.Warnf("malgo: %d capture periods dropped, reader too slow", n)
	}

	n := copy(buf, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

// Interrupt unblocks a pending Read.
func (d *MalgoDriver) Interrupt() {
	d.doneOnce.Do(func() { close(d.done) })
}

func (d *MalgoDriver) BitWidth() int { return 32 }

func (d *MalgoDriver) SampleRate() float64 { return d.sampleRate }

// Close stops the device and releases the miniaudio context.
func (d *MalgoDriver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.Interrupt()
		if d.device != nil {
			if stopErr := d.device.Stop(); stopErr != nil {
				err = fmt.Errorf("malgo: stop device: %w", stopErr)
			}
			d.device.Uninit()
		}
		err = errors.Join(err, d.freeContext())
	})
	return err
}

func (d *MalgoDriver) freeContext() error {
	if d.ctx == nil {
		return nil
	}
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return fmt.Errorf("malgo: uninit context: %w", err)
	}
	return nil
}

var (
	_ Driver      = (*MalgoDriver)(nil)
	_ interrupter = (*MalgoDriver)(nil)
)
