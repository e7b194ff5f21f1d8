package engine

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/sockmesh/socketio/pkg/types"
)

func TestEncodePacketText(t *testing.T) {
	frame := EncodePacket(Packet{Type: MESSAGE, Data: []byte(`2["foo"]`)})
	if frame.Binary {
		t.Errorf("Expected a text frame")
	}
	if got := string(frame.Data); got != `42["foo"]` {
		t.Errorf("Expected %q, got %q", `42["foo"]`, got)
	}
}

func TestEncodePacketBinary(t *testing.T) {
	frame := EncodePacket(Packet{Type: MESSAGE, Binary: true, Data: []byte{1, 2}})
	if !frame.Binary {
		t.Errorf("Expected a binary frame")
	}
	if !bytes.Equal(frame.Data, []byte{4, 1, 2}) {
		t.Errorf("Expected a leading type byte, got %v", frame.Data)
	}
}

func TestDecodePacketRoundTrip(t *testing.T) {
	packets := []Packet{
		{Type: OPEN, Data: []byte(`{"sid":"x"}`)},
		{Type: PING, Data: []byte("probe")},
		{Type: PONG},
		{Type: MESSAGE, Data: []byte("hello")},
		{Type: MESSAGE, Binary: true, Data: []byte{0, 1, 2}},
		{Type: CLOSE},
	}
	for _, p := range packets {
		decoded, err := DecodePacket(EncodePacket(p))
		if err != nil {
			t.Fatalf("DecodePacket failed for %v: %v", p, err)
		}
		if decoded.Type != p.Type || decoded.Binary != p.Binary {
			t.Errorf("Round trip changed %v into %v", p, decoded)
		}
		if !bytes.Equal(decoded.Data, p.Data) {
			t.Errorf("Round trip changed data %q into %q", p.Data, decoded.Data)
		}
	}
}

func TestDecodePacketInvalid(t *testing.T) {
	if _, err := DecodePacket(types.Frame{}); err == nil {
		t.Errorf("Expected an error for an empty frame")
	}
	if _, err := DecodePacket(types.TextFrame("9")); err == nil {
		t.Errorf("Expected an error for an unknown type")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	packets := []Packet{
		{Type: MESSAGE, Data: []byte(`2["foo"]`)},
		{Type: MESSAGE, Binary: true, Data: []byte{9, 8, 7}},
		{Type: NOOP},
	}
	decoded, err := DecodePayload(EncodePayload(packets))
	if err != nil {
		t.Fatalf("DecodePayload failed: %v", err)
	}
	if !reflect.DeepEqual(decoded, packets) {
		t.Errorf("Round trip changed %v into %v", packets, decoded)
	}
}

func TestPayloadSingle(t *testing.T) {
	payload := EncodePayload([]Packet{{Type: MESSAGE, Data: []byte("hi")}})
	if got := string(payload); got != "3:4hi" {
		t.Errorf("Expected %q, got %q", "3:4hi", got)
	}
}

func TestPayloadBinaryBase64(t *testing.T) {
	payload := EncodePayload([]Packet{{Type: MESSAGE, Binary: true, Data: []byte{1, 2, 3}}})
	if got := string(payload); got != "6:b4AQID" {
		t.Errorf("Expected %q, got %q", "6:b4AQID", got)
	}
}

func TestDecodePayloadInvalid(t *testing.T) {
	for _, bad := range []string{":", "x:4hi", "99:4hi", "3:9ab"} {
		if _, err := DecodePayload([]byte(bad)); err == nil {
			t.Errorf("Expected an error for %q", bad)
		}
	}
}
