// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"firealarm/internal/config"
	"firealarm/internal/detect"
	"firealarm/internal/pipeline"
	"firealarm/internal/transport"
)

// SelfTestTimeout bounds a self-test run.
const SelfTestTimeout = 10 * time.Second

var ErrSelfTestFailed = errors.New("self-test failed")

// PrintConfig writes cfg as YAML.
func PrintConfig(w io.Writer, cfg *config.Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// SelfTestConfig derives the self-test configuration from cfg: a synthetic
// tone at the centre of the band, replayed as fast as it can be analyzed,
// with network transports disabled.
func SelfTestConfig(cfg *config.Config) *config.Config {
	st := *cfg
	st.Audio.Backend = config.BackendTone
	st.Audio.ToneHz = (cfg.Analysis.BandStartHz + cfg.Analysis.BandEndHz) / 2
	st.Audio.ToneAmplitude = 0.5
	st.Audio.Realtime = false
	st.Audio.RecordFile = ""
	st.Notify.WebSocketEnabled = false
	st.Notify.UDPEnabled = false
	return &st
}

// RunSelfTest runs the full pipeline against SelfTestConfig(cfg) until the
// first alarm and reports the outcome to w.
func RunSelfTest(ctx context.Context, cfg *config.Config, w io.Writer) error {
	st := SelfTestConfig(cfg)
	fmt.Fprintf(w, "Self-test: %.0f Hz tone at half scale, %s mode, threshold %.1f dB\n",
		st.Audio.ToneHz, st.Detection.Mode, st.Detection.ThresholdDB)

	alarms := make(chan detect.AlarmEvent, 1)
	first := transport.Func(func(ev detect.AlarmEvent) error {
		select {
		case alarms <- ev:
		default:
		}
		return nil
	})

	engine, err := pipeline.NewEngine(st, pipeline.WithTransports(first))
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithTimeout(ctx, SelfTestTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()

	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)

	var result error
	select {
	case ev := <-alarms:
		pass.Fprint(w, "PASS")
		fmt.Fprintf(w, " alarm at %.1f Hz (bin %d), %.1f dB\n", ev.FrequencyHz, ev.Bin, ev.PowerDB)
	case <-ctx.Done():
		fail.Fprint(w, "FAIL")
		fmt.Fprintf(w, " no alarm within %s\n", SelfTestTimeout)
		result = ErrSelfTestFailed
	}
	cancel()
	if err := <-done; err != nil {
		return err
	}
	return result
}
