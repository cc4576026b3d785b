// SPDX-License-Identifier: MIT

// Package udp publishes alarm and heartbeat packets over UDP.
package udp

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"time"

	"firealarm/internal/detect"
	applog "firealarm/internal/log"
	"firealarm/internal/transport"
)

// Publisher sends an alarm packet per event and a heartbeat packet on a
// fixed interval so listeners can tell the detector is alive. Heartbeats run
// between Start and Stop.
type Publisher struct {
	sender   *Sender
	interval time.Duration
	now      func() time.Time

	ticker   *time.Ticker   // Ticker that triggers heartbeats.
	doneChan chan struct{}  // Signals the heartbeat goroutine to stop.
	stopOnce sync.Once      // Stop logic runs once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the heartbeat goroutine during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	sendMu      sync.Mutex // Serializes packet construction.
	sequenceNum uint32
	packet      bytes.Buffer // Reusable packet buffer.
}

// NewPublisher creates a publisher on top of sender. An interval <= 0
// disables heartbeats.
func NewPublisher(interval time.Duration, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp: sender cannot be nil")
	}
	applog.Infof("UDPPublisher: Initializing (Heartbeat: %s, Target: %s)", interval, sender.Target())
	p := &Publisher{sender: sender, interval: interval, now: time.Now}
	p.packet.Grow(PacketSize)
	return p, nil
}

// Start launches the heartbeat goroutine. Subsequent calls are no-ops while
// it is running.
func (p *Publisher) Start() {
	if p.interval <= 0 {
		return
	}
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, doneChan := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.heartbeat()
		for {
			select {
			case <-ticker.C:
				p.heartbeat()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the heartbeat goroutine and waits for it to exit.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Heartbeat stopped.")
	return nil
}

func (p *Publisher) heartbeat() {
	if err := p.send(Packet{Kind: KindHeartbeat, TimestampMillis: p.now().UnixMilli()}); err != nil {
		applog.Debugf("UDPPublisher: heartbeat failed: %v", err)
	}
}

// Send publishes an alarm packet for ev.
func (p *Publisher) Send(ev detect.AlarmEvent) error {
	return p.send(Packet{
		Kind:            KindAlarm,
		TimestampMillis: ev.TimestampMillis,
		Bin:             uint16(min(max(ev.Bin, 0), math.MaxUint16)),
		FrequencyHz:     float32(ev.FrequencyHz),
		PowerDB:         float32(ev.PowerDB),
	})
}

func (p *Publisher) send(pkt Packet) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.sequenceNum++
	pkt.Seq = p.sequenceNum
	p.packet.Reset()
	if err := pkt.encode(&p.packet); err != nil {
		return fmt.Errorf("udp: encode %s packet: %w", pkt.Kind, err)
	}
	if err := p.sender.Send(p.packet.Bytes()); err != nil {
		return err
	}
	applog.Debugf("UDPPublisher: Sent %s packet %d", pkt.Kind, pkt.Seq)
	return nil
}

// Close stops heartbeats and closes the sender.
func (p *Publisher) Close() error {
	p.Stop()
	return p.sender.Close()
}

var _ transport.Transport = (*Publisher)(nil)
