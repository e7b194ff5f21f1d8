package parser

import "io"

// IsBinary returns true if the data is a binary leaf. Byte slices and
// readers are terminal values: the walk never recurses into them, and
// text strings are never classified as binary.
func IsBinary(data any) bool {
	switch data.(type) {
	case []byte, io.Reader:
		return true
	default:
		return false
	}
}

// HasBinary checks recursively if the data contains any binary leaves.
func HasBinary(data any) bool {
	switch v := data.(type) {
	case nil:
		return false
	case []any:
		for _, item := range v {
			if HasBinary(item) {
				return true
			}
		}
	case map[string]any:
		for _, value := range v {
			if HasBinary(value) {
				return true
			}
		}
	default:
		return IsBinary(data)
	}
	return false
}
