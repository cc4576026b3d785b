// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "firealarm/internal/log"
)

var ErrInvalidWav = errors.New("audio: not a valid WAV file")

// WavDriver replays the first channel of a 16, 24 or 32-bit PCM WAV file.
// Read returns io.EOF once the file is exhausted and ErrInputCorrupt when
// the data cannot be decoded.
type WavDriver struct {
	file       *os.File
	decoder    *wav.Decoder
	buf        audio.IntBuffer
	channels   int
	bitWidth   int
	sampleRate float64
	pace       *pacer
}

// NewWavDriver opens path. With realtime set, reads are paced to the file's
// sample rate.
func NewWavDriver(path string, realtime bool) (*WavDriver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wav: open %s: %w", path, err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrInvalidWav, path)
	}

	switch decoder.BitDepth {
	case 16, 24, 32:
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s: unsupported %d-bit samples", ErrInvalidWav, path, decoder.BitDepth)
	}

	format := decoder.Format()
	d := &WavDriver{
		file:       f,
		decoder:    decoder,
		buf:        audio.IntBuffer{Format: format},
		channels:   max(format.NumChannels, 1),
		bitWidth:   int(decoder.BitDepth),
		sampleRate: float64(format.SampleRate),
	}
	if realtime {
		d.pace = newPacer(d.sampleRate)
	}

	applog.Infof("wav: Replaying %s (%.0f Hz, %d-bit, %d channel(s))", path, d.sampleRate, d.bitWidth, d.channels)
	return d, nil
}

// Read decodes up to len(buf) frames and keeps the first channel.
func (d *WavDriver) Read(buf []int32) (int, error) {
	want := len(buf) * d.channels
	if cap(d.buf.Data) < want {
		d.buf.Data = make([]int, want)
	}
	d.buf.Data = d.buf.Data[:want]

	n, err := d.decoder.PCMBuffer(&d.buf)
	if err != nil {
		return 0, fmt.Errorf("%w: wav decode: %w", ErrInputCorrupt, err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	frames := n / d.channels
	for i := range frames {
		buf[i] = int32(d.buf.Data[i*d.channels])
	}
	if d.pace != nil {
		d.pace.wait(frames)
	}
	return frames, nil
}

func (d *WavDriver) BitWidth() int { return d.bitWidth }

func (d *WavDriver) SampleRate() float64 { return d.sampleRate }

func (d *WavDriver) Close() error {
	return d.file.Close()
}

var _ Driver = (*WavDriver)(nil)
