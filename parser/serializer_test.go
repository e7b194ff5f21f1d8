package parser

import (
	"reflect"
	"testing"

	"github.com/sockmesh/socketio/parser/serializer"
)

// opaqueSerializer stands in for a custom payload implementation: the
// wire bytes are a lookup key, not anything JSON-shaped.
type opaqueSerializer struct {
	stored map[string]any
}

func (s *opaqueSerializer) Marshal(v any) ([]byte, error) {
	key := string(rune('A' + len(s.stored)))
	s.stored[key] = v
	return []byte(key), nil
}

func (s *opaqueSerializer) Unmarshal(data []byte, v any) error {
	*(v.(*any)) = s.stored[string(data)]
	return nil
}

func roundTripWith(t *testing.T, json serializer.JSONSerializer) {
	t.Helper()
	p := NewParser(json)
	e := p.NewEncoder()
	d := p.NewDecoder()

	var decoded *Packet
	d.On("decoded", func(args ...any) {
		decoded = args[0].(*Packet)
	})

	id := uint64(9)
	frames, err := e.Encode(&Packet{Type: EVENT, Nsp: "/chat", Id: &id, Data: []any{"greet", "hello"}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for _, frame := range frames {
		if err := d.Add(frame); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if decoded == nil {
		t.Fatalf("No packet decoded")
	}
	if decoded.Nsp != "/chat" || decoded.Id == nil || *decoded.Id != 9 {
		t.Errorf("Envelope corrupted: %+v", decoded)
	}
	data, ok := decoded.Data.([]any)
	if !ok || len(data) != 2 || data[0] != "greet" || data[1] != "hello" {
		t.Errorf("Payload corrupted: %v", decoded.Data)
	}
}

func TestRoundTripWithMsgpackSerializer(t *testing.T) {
	roundTripWith(t, serializer.NewMsgpack())
}

func TestRoundTripWithOpaqueSerializer(t *testing.T) {
	roundTripWith(t, &opaqueSerializer{stored: map[string]any{}})
}

func TestMsgpackBinaryReassembly(t *testing.T) {
	p := NewParser(serializer.NewMsgpack())
	e := p.NewEncoder()
	d := p.NewDecoder()

	var decoded *Packet
	d.On("decoded", func(args ...any) {
		decoded = args[0].(*Packet)
	})

	frames, err := e.Encode(&Packet{Type: EVENT, Data: []any{"blob", []byte{1, 2}}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	for _, frame := range frames {
		if err := d.Add(frame); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	if decoded == nil {
		t.Fatalf("No packet decoded")
	}
	data := decoded.Data.([]any)
	if !reflect.DeepEqual(data[1], []byte{1, 2}) {
		t.Errorf("Binary leaf corrupted: %v", data[1])
	}
}
