package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sockmesh/socketio/parser/serializer"
	"github.com/sockmesh/socketio/pkg/log"
	"github.com/sockmesh/socketio/pkg/types"
)

// parserLog is the logger for the parser package.
var parserLog = log.NewLog("socket.io:parser")

// Decoder errors. These are structural protocol errors, surfaced to
// whoever fed the bad frame; they are never sent to the peer.
var (
	ErrPlaintextDuringReconstruction = errors.New("got plaintext data when reconstructing a packet")
	ErrBinaryWithoutReconstruction   = errors.New("got binary data when not reconstructing a packet")
	ErrInvalidPayload                = errors.New("invalid payload")
	ErrIllegalNamespace              = errors.New("illegal namespace")
	ErrIllegalID                     = errors.New("illegal id")
)

type decoder struct {
	types.EventEmitter

	json          serializer.JSONSerializer
	reconstructor *binaryReconstructor
}

// NewDecoder creates a Decoder using the given payload serializer.
func NewDecoder(json serializer.JSONSerializer) Decoder {
	if json == nil {
		json = serializer.NewStdJSON()
	}
	return &decoder{EventEmitter: types.NewEventEmitter(), json: json}
}

// Add processes one frame from the engine and emits a "decoded" event
// for every completed packet. Text frames decode immediately; binary
// frames feed the reconstruction opened by the preceding binary-typed
// text frame. Feeding more binary frames than the announced attachment
// count is an error.
func (d *decoder) Add(frame types.Frame) error {
	if frame.Binary {
		if d.reconstructor == nil {
			return ErrBinaryWithoutReconstruction
		}
		packet, err := d.reconstructor.takeBinaryData(frame.Data)
		if err != nil {
			d.reconstructor = nil
			return fmt.Errorf("decode error: %w", err)
		}
		if packet != nil {
			// received final buffer, packet is complete
			d.reconstructor = nil
			d.Emit("decoded", packet)
		}
		return nil
	}

	if d.reconstructor != nil {
		return ErrPlaintextDuringReconstruction
	}

	packet, err := d.decodePacket(frame.Data)
	if err != nil {
		parserLog.Debug("decode error: %v", err)
		return err
	}

	if packet.Type.Binary() && *packet.Attachments > 0 {
		d.reconstructor = newBinaryReconstructor(packet)
	} else {
		packet.Attachments = nil
		d.Emit("decoded", packet)
	}
	return nil
}

// decodePacket parses the text-frame grammar:
//
//	<type-digit> [<attachment-count> "-"] ["/" <ns> ","] [<id>] [<payload>]
func (d *decoder) decodePacket(data []byte) (*Packet, error) {
	buffer := bytes.NewBuffer(data)
	packet := &Packet{}

	if err := d.parsePacketType(buffer, packet); err != nil {
		return nil, err
	}
	if err := d.parseAttachments(buffer, packet); err != nil {
		return nil, err
	}
	if err := d.parseNamespace(buffer, packet); err != nil {
		return nil, err
	}
	if err := d.parsePacketID(buffer, packet); err != nil {
		return nil, err
	}
	if err := d.parsePayload(buffer, packet); err != nil {
		return nil, err
	}

	parserLog.Debug("decoded %s as %v", data, packet)
	return packet, nil
}

func (d *decoder) parsePacketType(buffer *bytes.Buffer, packet *Packet) error {
	typeByte, err := buffer.ReadByte()
	if err != nil {
		return ErrInvalidPayload
	}

	packet.Type = PacketType(int(typeByte) - '0')
	if !packet.Type.Valid() {
		return fmt.Errorf("unknown packet type %d", packet.Type)
	}
	return nil
}

func (d *decoder) parseAttachments(buffer *bytes.Buffer, packet *Packet) error {
	if !packet.Type.Binary() {
		return nil
	}

	attachmentStr, err := buffer.ReadString('-')
	if err != nil {
		return ErrIllegalAttachments
	}

	if len(attachmentStr) < 2 { // at least one digit plus the dash
		return ErrIllegalAttachments
	}

	attachments, err := strconv.ParseUint(attachmentStr[:len(attachmentStr)-1], 10, 64)
	if err != nil {
		return ErrIllegalAttachments
	}

	packet.Attachments = &attachments
	return nil
}

func (d *decoder) parseNamespace(buffer *bytes.Buffer, packet *Packet) error {
	packet.Nsp = "/"

	if buffer.Len() == 0 {
		return nil
	}
	firstByte, _ := buffer.ReadByte()
	if firstByte != '/' {
		return buffer.UnreadByte()
	}

	nsp, err := buffer.ReadString(',')
	if err == nil {
		nsp = nsp[:len(nsp)-1] // trailing comma
	}
	// some clients mistakenly append the connection query string
	if q := strings.IndexByte(nsp, '?'); q != -1 {
		nsp = nsp[:q]
	}
	packet.Nsp = "/" + nsp
	return nil
}

func (d *decoder) parsePacketID(buffer *bytes.Buffer, packet *Packet) error {
	if buffer.Len() == 0 {
		return nil
	}

	var idBuilder strings.Builder
	for buffer.Len() > 0 {
		b, _ := buffer.ReadByte()
		if b >= '0' && b <= '9' {
			idBuilder.WriteByte(b)
			continue
		}
		if err := buffer.UnreadByte(); err != nil {
			return ErrIllegalID
		}
		break
	}

	if idBuilder.Len() > 0 {
		id, err := strconv.ParseUint(idBuilder.String(), 10, 64)
		if err != nil {
			return ErrIllegalID
		}
		packet.Id = &id
	}
	return nil
}

func (d *decoder) parsePayload(buffer *bytes.Buffer, packet *Packet) error {
	if buffer.Len() == 0 {
		return validatePayload(packet.Type, nil)
	}

	var payload any
	if err := d.json.Unmarshal(buffer.Bytes(), &payload); err != nil {
		return ErrInvalidPayload
	}
	if err := validatePayload(packet.Type, payload); err != nil {
		return err
	}
	packet.Data = payload
	return nil
}

// Destroy releases the decoder's resources and drops any ongoing
// reconstruction.
func (d *decoder) Destroy() {
	d.reconstructor = nil
	d.Clear()
}

func validatePayload(packetType PacketType, payload any) error {
	valid := false
	switch packetType {
	case CONNECT, DISCONNECT:
		valid = payload == nil
	case ERROR:
		valid = true
	case EVENT, BINARY_EVENT:
		if payload == nil {
			valid = true
		} else if data, ok := payload.([]any); ok && len(data) > 0 {
			_, valid = data[0].(string)
		}
	case ACK, BINARY_ACK:
		if payload == nil {
			valid = true
		} else {
			_, valid = payload.([]any)
		}
	}
	if !valid {
		return ErrInvalidPayload
	}
	return nil
}
