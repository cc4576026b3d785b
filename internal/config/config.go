// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	applog "firealarm/internal/log"
	"firealarm/pkg/bitint"
)

const (
	AppName = "firealarm"

	// Audio backends.
	BackendPortAudio = "portaudio"
	BackendMalgo     = "malgo"
	BackendWav       = "wav"
	BackendTone      = "tone"

	// Read pacing.
	ReadContinuous = "continuous"
	ReadTimer      = "timer"

	// Window assembly strategies.
	StrategyPingPong = "pingpong"
	StrategyChunked  = "chunked"

	// Window backpressure policies.
	BackpressureReplace = "replace"
	BackpressureDrop    = "drop"

	// Detection modes.
	ModeShort = "short"
	ModeLong  = "long"

	// Default debounce limits per detection mode.
	DefaultShortDetectCount = 5
	DefaultLongDetectCount  = 2

	// Hardware and processing limits.
	MinDeviceID   = -1 // -1 selects the system default device
	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinFFTSize    = 64
	MaxFFTSize    = 65536
)

// Config is the complete runtime configuration. It is assembled by Load from
// defaults, an optional YAML file, FIREALARM_* environment variables and
// command line flags, in increasing order of precedence.
type Config struct {
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
	Analysis  AnalysisConfig  `mapstructure:"analysis" yaml:"analysis"`
	Detection DetectionConfig `mapstructure:"detection" yaml:"detection"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
}

// AudioConfig selects and parameterizes the sample source.
type AudioConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`               // portaudio, malgo, wav or tone.
	InputDevice   int           `mapstructure:"input_device" yaml:"input_device"`     // Device index, -1 for the default input.
	SampleRate    float64       `mapstructure:"sample_rate" yaml:"sample_rate"`       // Hz.
	BitWidth      int           `mapstructure:"bit_width" yaml:"bit_width"`           // Significant bits per sample: 16, 24 or 32.
	InputFile     string        `mapstructure:"input_file" yaml:"input_file"`         // WAV file replayed by the wav backend.
	Realtime      bool          `mapstructure:"realtime" yaml:"realtime"`             // Pace wav and tone backends at the sample rate.
	ReadMode      string        `mapstructure:"read_mode" yaml:"read_mode"`           // continuous or timer.
	ReadInterval  time.Duration `mapstructure:"read_interval" yaml:"read_interval"`   // Tick period in timer mode.
	RetryBackoff  time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`   // Pause after a failed read.
	RecordFile    string        `mapstructure:"record_file" yaml:"record_file"`       // Optional WAV capture of the raw input.
	ToneHz        float64       `mapstructure:"tone_hz" yaml:"tone_hz"`               // Tone backend frequency.
	ToneAmplitude float64       `mapstructure:"tone_amplitude" yaml:"tone_amplitude"` // Tone backend amplitude, 0..1 of full scale.
}

// CaptureConfig controls window assembly and capture buffer allocation.
type CaptureConfig struct {
	Strategy               string        `mapstructure:"strategy" yaml:"strategy"`
	ChunkDuration          time.Duration `mapstructure:"chunk_duration" yaml:"chunk_duration"`
	WindowDuration         time.Duration `mapstructure:"window_duration" yaml:"window_duration"`
	FallbackWindowDuration time.Duration `mapstructure:"fallback_window_duration" yaml:"fallback_window_duration"`
	FastMemoryBytes        int64         `mapstructure:"fast_memory_bytes" yaml:"fast_memory_bytes"` // 0 disables the fast region.
	HeapMemoryBytes        int64         `mapstructure:"heap_memory_bytes" yaml:"heap_memory_bytes"` // 0 means unlimited.
	Backpressure           string        `mapstructure:"backpressure" yaml:"backpressure"`
}

// AnalysisConfig sets the transform size and the monitored band.
type AnalysisConfig struct {
	FFTSize     int     `mapstructure:"fft_size" yaml:"fft_size"`
	BandStartHz float64 `mapstructure:"band_start_hz" yaml:"band_start_hz"`
	BandEndHz   float64 `mapstructure:"band_end_hz" yaml:"band_end_hz"`

	GateThreshold float64 `mapstructure:"gate_threshold" yaml:"gate_threshold"` // Fraction of full scale, 0 disables.
}

// DetectionConfig sets the decision policy.
type DetectionConfig struct {
	Mode               string        `mapstructure:"mode" yaml:"mode"`
	ThresholdDB        float64       `mapstructure:"threshold_db" yaml:"threshold_db"`
	DetectCount        int           `mapstructure:"detect_count" yaml:"detect_count"` // 0 selects the mode default.
	LongWindowDuration time.Duration `mapstructure:"long_window_duration" yaml:"long_window_duration"`
}

// NotifyConfig configures the event queue and the transports.
type NotifyConfig struct {
	QueueSize         int           `mapstructure:"queue_size" yaml:"queue_size"`
	WebSocketEnabled  bool          `mapstructure:"websocket_enabled" yaml:"websocket_enabled"`
	ListenAddr        string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	UDPEnabled        bool          `mapstructure:"udp_enabled" yaml:"udp_enabled"`
	UDPTargetAddress  string        `mapstructure:"udp_target_address" yaml:"udp_target_address"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			Backend:       BackendPortAudio,
			InputDevice:   MinDeviceID,
			SampleRate:    48000,
			BitWidth:      32,
			Realtime:      true,
			ReadMode:      ReadContinuous,
			ReadInterval:  20 * time.Millisecond,
			RetryBackoff:  20 * time.Millisecond,
			ToneHz:        3000,
			ToneAmplitude: 0.5,
		},
		Capture: CaptureConfig{
			Strategy:               StrategyChunked,
			ChunkDuration:          20 * time.Millisecond,
			WindowDuration:         time.Second,
			FallbackWindowDuration: 250 * time.Millisecond,
			Backpressure:           BackpressureReplace,
		},
		Analysis: AnalysisConfig{
			FFTSize:     2048,
			BandStartHz: 2750,
			BandEndHz:   3250,
		},
		Detection: DetectionConfig{
			Mode:               ModeShort,
			ThresholdDB:        -50,
			LongWindowDuration: 4 * time.Second,
		},
		Notify: NotifyConfig{
			QueueSize:         5,
			WebSocketEnabled:  true,
			ListenAddr:        ":8080",
			UDPTargetAddress:  "127.0.0.1:9090",
			HeartbeatInterval: 5 * time.Second,
		},
	}
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	// Audio
	a := c.Audio
	switch a.Backend {
	case BackendPortAudio, BackendMalgo, BackendTone:
	case BackendWav:
		if a.InputFile == "" {
			add("audio.input_file is required for the wav backend")
		}
	default:
		add("audio.backend must be one of portaudio, malgo, wav, tone, got %q", a.Backend)
	}
	if a.InputDevice < MinDeviceID {
		add("audio.input_device must be >= %d, got %d", MinDeviceID, a.InputDevice)
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		add("audio.sample_rate must be between %d and %d Hz, got %v", MinSampleRate, MaxSampleRate, a.SampleRate)
	}
	switch a.BitWidth {
	case 16, 24, 32:
	default:
		add("audio.bit_width must be 16, 24 or 32, got %d", a.BitWidth)
	}
	switch a.ReadMode {
	case ReadContinuous:
	case ReadTimer:
		if a.ReadInterval <= 0 {
			add("audio.read_interval must be positive in timer mode, got %s", a.ReadInterval)
		}
	default:
		add("audio.read_mode must be continuous or timer, got %q", a.ReadMode)
	}
	if a.RetryBackoff < 0 {
		add("audio.retry_backoff must not be negative, got %s", a.RetryBackoff)
	}
	if a.Backend == BackendTone {
		if a.ToneHz <= 0 || a.ToneHz >= a.SampleRate/2 {
			add("audio.tone_hz must be between 0 and Nyquist (%v Hz), got %v", a.SampleRate/2, a.ToneHz)
		}
		if a.ToneAmplitude < 0 || a.ToneAmplitude > 1 {
			add("audio.tone_amplitude must be between 0 and 1, got %v", a.ToneAmplitude)
		}
	}

	// Analysis
	n := c.Analysis.FFTSize
	if !bitint.IsPowerOfTwo(n) || n < MinFFTSize || n > MaxFFTSize {
		add("analysis.fft_size must be a power of 2 between %d and %d, got %d", MinFFTSize, MaxFFTSize, n)
	}
	nyquist := a.SampleRate / 2
	if c.Analysis.BandStartHz < 0 || c.Analysis.BandEndHz <= c.Analysis.BandStartHz {
		add("analysis band must satisfy 0 <= band_start_hz < band_end_hz, got %v..%v",
			c.Analysis.BandStartHz, c.Analysis.BandEndHz)
	}
	if c.Analysis.BandEndHz > nyquist {
		add("analysis.band_end_hz (%v Hz) must not exceed Nyquist (%v Hz)", c.Analysis.BandEndHz, nyquist)
	}
	if c.Analysis.GateThreshold < 0 || c.Analysis.GateThreshold >= 1 {
		add("analysis.gate_threshold must be in [0, 1), got %v", c.Analysis.GateThreshold)
	}

	// Capture
	cp := c.Capture
	switch cp.Strategy {
	case StrategyPingPong:
	case StrategyChunked:
		if cp.ChunkDuration <= 0 {
			add("capture.chunk_duration must be positive, got %s", cp.ChunkDuration)
		}
		if cp.WindowDuration < cp.ChunkDuration {
			add("capture.window_duration (%s) must be at least one chunk (%s)", cp.WindowDuration, cp.ChunkDuration)
		}
		if cp.FallbackWindowDuration <= 0 || cp.FallbackWindowDuration > cp.WindowDuration {
			add("capture.fallback_window_duration must be in (0, window_duration], got %s", cp.FallbackWindowDuration)
		}
		if samples := durationSamples(cp.FallbackWindowDuration, a.SampleRate); n > 0 && samples < n {
			add("capture.fallback_window_duration (%s) holds %d samples, fewer than fft_size %d",
				cp.FallbackWindowDuration, samples, n)
		}
	default:
		add("capture.strategy must be pingpong or chunked, got %q", cp.Strategy)
	}
	if cp.FastMemoryBytes < 0 || cp.HeapMemoryBytes < 0 {
		add("capture memory budgets must not be negative")
	}
	switch cp.Backpressure {
	case BackpressureReplace, BackpressureDrop:
	default:
		add("capture.backpressure must be replace or drop, got %q", cp.Backpressure)
	}

	// Detection
	d := c.Detection
	switch d.Mode {
	case ModeShort, ModeLong:
	default:
		add("detection.mode must be short or long, got %q", d.Mode)
	}
	if math.IsNaN(d.ThresholdDB) || math.IsInf(d.ThresholdDB, 0) {
		add("detection.threshold_db must be finite")
	}
	if d.DetectCount < 0 {
		add("detection.detect_count must not be negative, got %d", d.DetectCount)
	}
	if d.Mode == ModeLong && d.LongWindowDuration <= 0 {
		add("detection.long_window_duration must be positive, got %s", d.LongWindowDuration)
	}

	// Notify
	nc := c.Notify
	if nc.QueueSize < 1 {
		add("notify.queue_size must be at least 1, got %d", nc.QueueSize)
	}
	if nc.WebSocketEnabled && nc.ListenAddr == "" {
		add("notify.listen_addr must be set when the websocket transport is enabled")
	}
	if nc.UDPEnabled {
		if nc.UDPTargetAddress == "" {
			add("notify.udp_target_address must be set when UDP is enabled")
		}
		if nc.HeartbeatInterval <= 0 {
			add("notify.heartbeat_interval must be positive when UDP is enabled, got %s", nc.HeartbeatInterval)
		}
	}

	return errors.Join(errs...)
}

// DetectCountOrDefault returns the debounce limit, falling back to the
// default for the configured mode.
func (c *Config) DetectCountOrDefault() int {
	if c.Detection.DetectCount > 0 {
		return c.Detection.DetectCount
	}
	if c.Detection.Mode == ModeLong {
		return DefaultLongDetectCount
	}
	return DefaultShortDetectCount
}

// LongWindowFrames is the number of transform frames averaged per evaluation
// in long-window mode: ceil(duration * sampleRate / fftSize).
func (c *Config) LongWindowFrames() int {
	samples := int(math.Ceil(c.Detection.LongWindowDuration.Seconds() * c.Audio.SampleRate))
	return max(bitint.CeilDiv(samples, c.Analysis.FFTSize), 1)
}

// BandBins returns the inclusive transform bin range covering the band,
// each edge rounded to the nearest bin and clamped to [0, fftSize/2].
func (c *Config) BandBins() (startBin, endBin int) {
	n := c.Analysis.FFTSize
	bin := func(hz float64) int {
		b := int(math.Round(hz * float64(n) / c.Audio.SampleRate))
		return min(max(b, 0), n/2)
	}
	return bin(c.Analysis.BandStartHz), bin(c.Analysis.BandEndHz)
}

// ChunkSamples is the number of samples read per chunk by the chunked strategy.
func (c *Config) ChunkSamples() int {
	return durationSamples(c.Capture.ChunkDuration, c.Audio.SampleRate)
}

func durationSamples(d time.Duration, sampleRate float64) int {
	return int(math.Round(d.Seconds() * sampleRate))
}
