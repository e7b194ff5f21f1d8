package serializer

import "github.com/vmihailenco/msgpack/v5"

type msgpackSerializer struct{}

// NewMsgpack returns a serializer that writes payloads as MessagePack
// instead of JSON. Both peers must be configured with it; the framing
// around the payload is unchanged.
func NewMsgpack() JSONSerializer {
	return &msgpackSerializer{}
}

func (s *msgpackSerializer) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (s *msgpackSerializer) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
