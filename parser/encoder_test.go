package parser

import (
	"bytes"
	"errors"
	"testing"
)

func encodeOne(t *testing.T, packet *Packet) string {
	t.Helper()
	e := NewEncoder(nil)
	frames, err := e.Encode(packet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Binary {
		t.Fatalf("Expected a text frame")
	}
	return string(frames[0].Data)
}

func TestEncodeDefaultPacket(t *testing.T) {
	if got := encodeOne(t, &Packet{Type: EVENT}); got != "2" {
		t.Errorf("Expected %q, got %q", "2", got)
	}
}

func TestEncodeTextEvent(t *testing.T) {
	packet := &Packet{Type: EVENT, Data: []any{"foo"}}
	if got := encodeOne(t, packet); got != `2["foo"]` {
		t.Errorf("Expected %q, got %q", `2["foo"]`, got)
	}
}

func TestEncodeNamespaceAndId(t *testing.T) {
	id := uint64(123)
	packet := &Packet{Type: EVENT, Nsp: "/bar", Id: &id, Data: []any{"foo"}}
	if got := encodeOne(t, packet); got != `2/bar,123["foo"]` {
		t.Errorf("Expected %q, got %q", `2/bar,123["foo"]`, got)
	}
}

func TestEncodeAckWithId(t *testing.T) {
	id := uint64(1000)
	packet := &Packet{Type: ACK, Id: &id, Data: []any{"foo"}}
	if got := encodeOne(t, packet); got != `31000["foo"]` {
		t.Errorf("Expected %q, got %q", `31000["foo"]`, got)
	}
}

func TestEncodeNamespaceNoData(t *testing.T) {
	packet := &Packet{Type: EVENT, Nsp: "/foo"}
	if got := encodeOne(t, packet); got != "2/foo," {
		t.Errorf("Expected %q, got %q", "2/foo,", got)
	}
}

func TestEncodeBinaryEvent(t *testing.T) {
	e := NewEncoder(nil)
	packet := &Packet{Type: EVENT, Data: []any{"bin", []byte{1, 2, 3}}}
	frames, err := e.Encode(packet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if packet.Type != BINARY_EVENT {
		t.Errorf("Expected type upgrade to BINARY_EVENT, got %v", packet.Type)
	}
	if len(frames) != 2 {
		t.Fatalf("Expected 2 frames, got %d", len(frames))
	}
	expected := `51-["bin",{"_placeholder":true,"num":0}]`
	if got := string(frames[0].Data); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	if !frames[1].Binary || !bytes.Equal(frames[1].Data, []byte{1, 2, 3}) {
		t.Errorf("Unexpected attachment frame %v", frames[1])
	}
}

func TestEncodeBinaryAckUpgrade(t *testing.T) {
	e := NewEncoder(nil)
	id := uint64(4)
	packet := &Packet{Type: ACK, Id: &id, Data: []any{[]byte("reply")}}
	frames, err := e.Encode(packet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if packet.Type != BINARY_ACK {
		t.Errorf("Expected type upgrade to BINARY_ACK, got %v", packet.Type)
	}
	expected := `61-4[{"_placeholder":true,"num":0}]`
	if got := string(frames[0].Data); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
}

func TestEncodeManyBinary(t *testing.T) {
	e := NewEncoder(nil)
	packet := &Packet{Type: EVENT, Data: map[string]any{
		"a": "123",
		"b": []byte("456"),
		"c": []any{[]byte("789"), float64(123)},
	}}
	frames, err := e.Encode(packet)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(frames))
	}
	expected := `52-{"a":"123","b":{"_placeholder":true,"num":0},"c":[{"_placeholder":true,"num":1},123]}`
	if got := string(frames[0].Data); got != expected {
		t.Errorf("Expected %q, got %q", expected, got)
	}
	if !bytes.Equal(frames[1].Data, []byte("456")) {
		t.Errorf("Attachment 0 should be 456, got %q", frames[1].Data)
	}
	if !bytes.Equal(frames[2].Data, []byte("789")) {
		t.Errorf("Attachment 1 should be 789, got %q", frames[2].Data)
	}
}

func TestEncodeBinaryInNonBinaryType(t *testing.T) {
	e := NewEncoder(nil)
	_, err := e.Encode(&Packet{Type: CONNECT, Data: map[string]any{"k": []byte{1}}})
	if !errors.Is(err, ErrBinaryNotAllowed) {
		t.Errorf("Expected ErrBinaryNotAllowed, got %v", err)
	}
}

func TestEncodeBinaryTypeWithoutBinary(t *testing.T) {
	e := NewEncoder(nil)
	_, err := e.Encode(&Packet{Type: BINARY_EVENT, Data: []any{"foo"}})
	if !errors.Is(err, ErrNoBinaryData) {
		t.Errorf("Expected ErrNoBinaryData, got %v", err)
	}
}
