package parser

import (
	"errors"
	"io"
	"sort"
)

// ErrIllegalAttachments is returned when a placeholder references an
// attachment index that was never supplied, and by the decoder when a
// binary-typed frame has a malformed attachment count.
var ErrIllegalAttachments = errors.New("illegal attachments")

// DeconstructPacket extracts every binary leaf from the packet's data
// in deterministic order (slice order; map keys sorted), replacing
// each with a numbered placeholder. It sets the attachment count and
// returns the extracted buffers in placeholder order.
func DeconstructPacket(packet *Packet) (*Packet, [][]byte) {
	var buffers [][]byte
	packet.Data = deconstructData(packet.Data, &buffers)
	attachments := uint64(len(buffers))
	packet.Attachments = &attachments
	return packet, buffers
}

func deconstructData(data any, buffers *[][]byte) any {
	if data == nil {
		return nil
	}

	if IsBinary(data) {
		return extractBinaryData(data, buffers)
	}

	switch typedData := data.(type) {
	case []any:
		result := make([]any, 0, len(typedData))
		for _, item := range typedData {
			result = append(result, deconstructData(item, buffers))
		}
		return result
	case map[string]any:
		keys := make([]string, 0, len(typedData))
		for key := range typedData {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		result := make(map[string]any, len(typedData))
		for _, key := range keys {
			result[key] = deconstructData(typedData[key], buffers)
		}
		return result
	default:
		return data
	}
}

func extractBinaryData(data any, buffers *[][]byte) map[string]any {
	placeholder := map[string]any{"_placeholder": true, "num": int64(len(*buffers))}

	var buffer []byte
	switch typedData := data.(type) {
	case io.Reader:
		if closer, ok := data.(io.Closer); ok {
			defer closer.Close()
		}
		buffer, _ = io.ReadAll(typedData)
	case []byte:
		buffer = typedData
	}

	*buffers = append(*buffers, buffer)
	return placeholder
}

// ReconstructPacket replaces every placeholder in the packet's data
// with the attachment buffer it references and clears the attachment
// count.
func ReconstructPacket(packet *Packet, buffers [][]byte) (*Packet, error) {
	data, err := reconstructData(packet.Data, buffers)
	if err != nil {
		return nil, err
	}
	packet.Data = data
	packet.Attachments = nil
	return packet, nil
}

func reconstructData(data any, buffers [][]byte) (any, error) {
	switch typedData := data.(type) {
	case nil:
		return nil, nil
	case []any:
		result := make([]any, 0, len(typedData))
		for _, item := range typedData {
			reconstructed, err := reconstructData(item, buffers)
			if err != nil {
				return nil, err
			}
			result = append(result, reconstructed)
		}
		return result, nil
	case map[string]any:
		return reconstructMap(typedData, buffers)
	default:
		return data, nil
	}
}

func reconstructMap(data map[string]any, buffers [][]byte) (any, error) {
	if num, ok := placeholderNum(data); ok {
		if num >= 0 && num < int64(len(buffers)) {
			return buffers[num], nil
		}
		return nil, ErrIllegalAttachments
	}

	result := make(map[string]any, len(data))
	for key, value := range data {
		reconstructed, err := reconstructData(value, buffers)
		if err != nil {
			return nil, err
		}
		result[key] = reconstructed
	}
	return result, nil
}

func placeholderNum(data map[string]any) (int64, bool) {
	if len(data) != 2 {
		return 0, false
	}
	flag, ok := data["_placeholder"].(bool)
	if !ok || !flag {
		return 0, false
	}
	// json decodes numbers as float64, msgpack as int64/uint64/int8.
	switch num := data["num"].(type) {
	case float64:
		return int64(num), true
	case int64:
		return num, true
	case uint64:
		return int64(num), true
	case int8:
		return int64(num), true
	case int:
		return int64(num), true
	default:
		return 0, false
	}
}

// binaryReconstructor accumulates binary frames for an incomplete
// binary-typed packet until the expected attachment count is reached.
type binaryReconstructor struct {
	packet  *Packet
	buffers [][]byte
}

func newBinaryReconstructor(packet *Packet) *binaryReconstructor {
	return &binaryReconstructor{packet: packet}
}

// takeBinaryData appends one attachment. It returns the reconstructed
// packet when all expected attachments have arrived, nil otherwise.
func (br *binaryReconstructor) takeBinaryData(data []byte) (*Packet, error) {
	br.buffers = append(br.buffers, data)
	if br.packet.Attachments != nil && uint64(len(br.buffers)) == *br.packet.Attachments {
		packet, buffers := br.packet, br.buffers
		br.packet, br.buffers = nil, nil
		return ReconstructPacket(packet, buffers)
	}
	return nil, nil
}
