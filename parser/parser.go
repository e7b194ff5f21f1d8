package parser

import (
	"github.com/sockmesh/socketio/parser/serializer"
	"github.com/sockmesh/socketio/pkg/types"
)

// Protocol is the Socket.IO protocol revision implemented here.
const Protocol = 4

type (
	// Encoder turns a packet into the frame sequence to hand to the
	// transport engine: one text frame, plus one binary frame per
	// attachment for binary packet types.
	Encoder interface {
		Encode(*Packet) ([]types.Frame, error)
	}

	// Decoder consumes frames from the transport engine and emits a
	// "decoded" event with a *Packet once a packet is complete. Text
	// frames decode immediately; a binary-typed text frame opens a
	// reconstruction that the following binary frames feed.
	Decoder interface {
		types.EventEmitter

		Add(types.Frame) error
		Destroy()
	}

	// Parser creates Encoder and Decoder instances sharing one
	// payload serializer.
	Parser interface {
		NewEncoder() Encoder
		NewDecoder() Decoder
	}

	parser struct {
		json serializer.JSONSerializer
	}
)

// NewParser creates a Parser using the given payload serializer.
// A nil serializer selects the standard JSON implementation.
func NewParser(json serializer.JSONSerializer) Parser {
	if json == nil {
		json = serializer.NewStdJSON()
	}
	return &parser{json: json}
}

func (p *parser) NewEncoder() Encoder {
	return NewEncoder(p.json)
}

func (p *parser) NewDecoder() Decoder {
	return NewDecoder(p.json)
}
