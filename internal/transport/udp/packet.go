// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

/*
Packet layout (big endian, 23 bytes):

	|<- 4 ->|<- 1 ->|<---- 8 ---->|<- 2 ->|<--- 4 --->|<--- 4 --->|
	+-------+-------+-------------+-------+-----------+-----------+
	|  seq  | kind  | timestamp   |  bin  | frequency |  power    |
	|uint32 | uint8 | int64 (ms)  |uint16 | float32Hz | float32dB |
	+-------+-------+-------------+-------+-----------+-----------+

Heartbeats carry zero bin, frequency and power.
*/

// Kind identifies the packet type.
type Kind uint8

const (
	KindHeartbeat Kind = 1
	KindAlarm     Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindAlarm:
		return "alarm"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// PacketSize is the encoded size of a Packet.
const PacketSize = 23

var ErrShortPacket = errors.New("udp: short packet")

// Packet is one datagram.
type Packet struct {
	Seq             uint32
	Kind            Kind
	TimestampMillis int64
	Bin             uint16
	FrequencyHz     float32
	PowerDB         float32
}

// MarshalBinary encodes p in the wire layout.
func (p Packet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(PacketSize)
	if err := p.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p Packet) encode(buf *bytes.Buffer) error {
	return binary.Write(buf, binary.BigEndian, p)
}

// UnmarshalBinary decodes a datagram.
func (p *Packet) UnmarshalBinary(data []byte) error {
	if len(data) < PacketSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrShortPacket, len(data), PacketSize)
	}
	return binary.Read(bytes.NewReader(data[:PacketSize]), binary.BigEndian, p)
}
