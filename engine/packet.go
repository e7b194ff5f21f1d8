package engine

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"

	"github.com/sockmesh/socketio/pkg/types"
)

// PacketType is an Engine.IO (v3) packet type.
type PacketType byte

const (
	OPEN PacketType = iota
	CLOSE
	PING
	PONG
	MESSAGE
	UPGRADE
	NOOP
)

// String returns the string representation of the packet type.
func (t PacketType) String() string {
	switch t {
	case OPEN:
		return "OPEN"
	case CLOSE:
		return "CLOSE"
	case PING:
		return "PING"
	case PONG:
		return "PONG"
	case MESSAGE:
		return "MESSAGE"
	case UPGRADE:
		return "UPGRADE"
	case NOOP:
		return "NOOP"
	default:
		return "UNKNOWN"
	}
}

// Packet is one Engine.IO packet. Binary marks packets whose body is
// raw bytes rather than text; only MESSAGE packets carry binary.
type Packet struct {
	Type   PacketType
	Binary bool
	Data   []byte
}

// Codec errors.
var (
	ErrInvalidPacket  = errors.New("invalid engine.io packet")
	ErrInvalidPayload = errors.New("invalid engine.io payload")
)

// EncodePacket renders one packet for a websocket transport: text
// packets as "<type-digit><body>", binary packets as a raw frame with
// a leading type byte.
func EncodePacket(p Packet) types.Frame {
	if p.Binary {
		data := make([]byte, 0, 1+len(p.Data))
		data = append(data, byte(p.Type))
		data = append(data, p.Data...)
		return types.Frame{Binary: true, Data: data}
	}
	data := make([]byte, 0, 1+len(p.Data))
	data = append(data, byte(p.Type)+'0')
	data = append(data, p.Data...)
	return types.Frame{Data: data}
}

// DecodePacket parses one websocket frame into a packet.
func DecodePacket(frame types.Frame) (Packet, error) {
	if len(frame.Data) == 0 {
		return Packet{}, ErrInvalidPacket
	}
	body := frame.Data[1:]
	if len(body) == 0 {
		body = nil
	}
	if frame.Binary {
		t := PacketType(frame.Data[0])
		if t > NOOP {
			return Packet{}, ErrInvalidPacket
		}
		return Packet{Type: t, Binary: true, Data: body}, nil
	}
	t := PacketType(frame.Data[0] - '0')
	if t > NOOP {
		return Packet{}, ErrInvalidPacket
	}
	return Packet{Type: t, Data: body}, nil
}

// EncodePayload batches packets for a polling response. Each entry is
// "<len>:<packet>"; binary packets ride as base64 with a "b" marker,
// so the whole payload stays text.
func EncodePayload(packets []Packet) []byte {
	var buf bytes.Buffer
	for _, p := range packets {
		var body string
		if p.Binary {
			body = "b" + string(byte(p.Type)+'0') + base64.StdEncoding.EncodeToString(p.Data)
		} else {
			body = string(byte(p.Type)+'0') + string(p.Data)
		}
		buf.WriteString(strconv.Itoa(len(body)))
		buf.WriteByte(':')
		buf.WriteString(body)
	}
	return buf.Bytes()
}

// DecodePayload parses a polling request body into its packets.
func DecodePayload(payload []byte) ([]Packet, error) {
	var packets []Packet
	for len(payload) > 0 {
		sep := bytes.IndexByte(payload, ':')
		if sep < 1 {
			return nil, ErrInvalidPayload
		}
		length, err := strconv.Atoi(string(payload[:sep]))
		if err != nil || length < 1 || sep+1+length > len(payload) {
			return nil, ErrInvalidPayload
		}
		body := payload[sep+1 : sep+1+length]
		payload = payload[sep+1+length:]

		if body[0] == 'b' {
			if len(body) < 2 {
				return nil, ErrInvalidPayload
			}
			data, err := base64.StdEncoding.DecodeString(string(body[2:]))
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
			t := PacketType(body[1] - '0')
			if t > NOOP {
				return nil, ErrInvalidPacket
			}
			packets = append(packets, Packet{Type: t, Binary: true, Data: data})
			continue
		}

		t := PacketType(body[0] - '0')
		if t > NOOP {
			return nil, ErrInvalidPacket
		}
		data := body[1:]
		if len(data) == 0 {
			data = nil
		}
		packets = append(packets, Packet{Type: t, Data: data})
	}
	return packets, nil
}

// Handshake is the body of the OPEN packet.
type Handshake struct {
	Sid          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"` // milliseconds
	PingTimeout  int64    `json:"pingTimeout"`  // milliseconds
}
