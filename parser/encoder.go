package parser

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/sockmesh/socketio/parser/serializer"
	"github.com/sockmesh/socketio/pkg/types"
)

// Encoder errors.
var (
	ErrBinaryNotAllowed = errors.New("packet type does not allow binary data")
	ErrNoBinaryData     = errors.New("binary packet type carries no binary data")
)

type encoder struct {
	json serializer.JSONSerializer
}

// NewEncoder creates an Encoder using the given payload serializer.
func NewEncoder(json serializer.JSONSerializer) Encoder {
	if json == nil {
		json = serializer.NewStdJSON()
	}
	return &encoder{json: json}
}

// Encode a packet as a single text frame if non-binary, or as a frame
// sequence headed by the text frame, depending on packet type. EVENT
// and ACK packets whose data carries binary leaves are upgraded to
// their binary counterparts.
func (e *encoder) Encode(packet *Packet) ([]types.Frame, error) {
	parserLog.Debug("encoding packet %v", packet)
	if HasBinary(packet.Data) {
		switch packet.Type {
		case EVENT, BINARY_EVENT:
			packet.Type = BINARY_EVENT
		case ACK, BINARY_ACK:
			packet.Type = BINARY_ACK
		default:
			return nil, ErrBinaryNotAllowed
		}
		return e.encodeAsBinary(packet)
	}
	if packet.Type.Binary() {
		return nil, ErrNoBinaryData
	}
	frame, err := e.encodeAsString(packet)
	if err != nil {
		return nil, err
	}
	return []types.Frame{frame}, nil
}

// Encode packet as a text frame.
func (e *encoder) encodeAsString(packet *Packet) (types.Frame, error) {
	var str bytes.Buffer
	// first is type
	str.WriteByte(byte(packet.Type) + '0')
	// attachments if we have them
	if packet.Type.Binary() && packet.Attachments != nil {
		str.WriteString(strconv.FormatUint(*packet.Attachments, 10))
		str.WriteByte('-')
	}
	// if we have a namespace other than `/`
	// we append it followed by a comma `,`
	if len(packet.Nsp) > 0 && "/" != packet.Nsp {
		str.WriteString(packet.Nsp)
		str.WriteByte(',')
	}
	// immediately followed by the id
	if nil != packet.Id {
		str.WriteString(strconv.FormatUint(*packet.Id, 10))
	}
	// serialized data
	if nil != packet.Data {
		b, err := e.json.Marshal(packet.Data)
		if err != nil {
			return types.Frame{}, err
		}
		str.Write(b)
	}
	parserLog.Debug("encoded %v as %s", packet, str.String())
	return types.Frame{Data: str.Bytes()}, nil
}

// Encode packet as a frame sequence by pulling out the binary leaves
// and writing them as trailing binary frames.
func (e *encoder) encodeAsBinary(obj *Packet) ([]types.Frame, error) {
	packet, buffers := DeconstructPacket(obj)
	if len(buffers) == 0 {
		return nil, ErrNoBinaryData
	}
	head, err := e.encodeAsString(packet)
	if err != nil {
		return nil, err
	}
	frames := make([]types.Frame, 0, 1+len(buffers))
	frames = append(frames, head)
	for _, buffer := range buffers {
		frames = append(frames, types.BinaryFrame(buffer))
	}
	return frames, nil
}
