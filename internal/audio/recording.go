// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "firealarm/internal/log"
)

// maxConsecutiveWriteFailures stops a recording whose writes keep failing.
const maxConsecutiveWriteFailures = 5

var ErrNotRecording = errors.New("audio: recorder stopped")

// Recorder writes raw captured samples to a mono PCM WAV file so alarms
// can be replayed later through the wav backend.
type Recorder struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
	recording atomic.Bool
	failures  int
	written   int64
}

// NewRecorder creates path and starts recording.
func NewRecorder(path string, sampleRate float64, bitWidth int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: create %s: %w", path, err)
	}

	r := &Recorder{
		path:    path,
		file:    file,
		encoder: wav.NewEncoder(file, int(sampleRate), bitWidth, 1, 1),
		sampleBuf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: int(sampleRate)},
			SourceBitDepth: bitWidth,
		},
	}
	r.recording.Store(true)

	applog.Infof("Recorder: Writing raw input to %s (%d-bit)", path, bitWidth)
	return r, nil
}

// Write appends samples. After repeated failures the recording is stopped
// and ErrNotRecording is returned for every further call.
func (r *Recorder) Write(samples []int32) error {
	if !r.recording.Load() {
		return ErrNotRecording
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cap(r.sampleBuf.Data) < len(samples) {
		r.sampleBuf.Data = make([]int, len(samples))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(samples)]
	for i, s := range samples {
		r.sampleBuf.Data[i] = int(s)
	}

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		r.failures++
		if r.failures >= maxConsecutiveWriteFailures {
			applog.Errorf("Recorder: %d consecutive write failures, stopping: %v", r.failures, err)
			r.recording.Store(false)
		}
		return fmt.Errorf("recorder: write: %w", err)
	}
	r.failures = 0
	r.written += int64(len(samples))
	return nil
}

// Recording reports whether samples are still being written.
func (r *Recorder) Recording() bool {
	return r.recording.Load()
}

// Samples returns the number of samples written so far.
func (r *Recorder) Samples() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close finalizes the WAV header and closes the file.
func (r *Recorder) Close() error {
	r.recording.Store(false)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}

	var errs []error
	if err := r.encoder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: finalize %s: %w", r.path, err))
	}
	if err := r.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("recorder: close %s: %w", r.path, err))
	}
	r.file = nil

	applog.Infof("Recorder: Saved %d samples to %s", r.written, r.path)
	return errors.Join(errs...)
}
