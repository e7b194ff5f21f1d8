package serializer

import "encoding/json"

// JSONSerializer converts packet payloads to and from their wire
// bytes. The codec treats the output as opaque: any implementation
// whose Unmarshal inverts its Marshal may be plugged in.
type JSONSerializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type stdJSON struct{}

// NewStdJSON returns the default serializer backed by encoding/json.
func NewStdJSON() JSONSerializer {
	return &stdJSON{}
}

func (s *stdJSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *stdJSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
