package engine

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	eio "github.com/sockmesh/socketio/engine"
)

// writePayload renders a polling response, compressed with whatever
// the client accepts once the body is worth compressing.
func (s *Server) writePayload(w http.ResponseWriter, r *http.Request, packets []eio.Packet) {
	payload := eio.EncodePayload(packets)
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")

	if s.opts.compression() && len(payload) >= s.opts.compressionThreshold() {
		if encoding := acceptedEncoding(r); encoding != "" {
			compressed, err := compress(payload, encoding)
			if err == nil {
				w.Header().Set("Content-Encoding", encoding)
				w.Write(compressed)
				return
			}
			serverLog.Debug("compression failed, sending plain: %v", err)
		}
	}
	w.Write(payload)
}

func acceptedEncoding(r *http.Request) string {
	accepted := r.Header.Get("Accept-Encoding")
	for _, encoding := range []string{"gzip", "br", "zstd"} {
		if strings.Contains(accepted, encoding) {
			return encoding
		}
	}
	return ""
}

func compress(data []byte, encoding string) ([]byte, error) {
	var buf bytes.Buffer
	var writer io.WriteCloser
	switch encoding {
	case "gzip":
		writer = gzip.NewWriter(&buf)
	case "br":
		writer = brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		writer = zw
	default:
		return data, nil
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// readBody returns a polling request body, transparently inflating
// compressed uploads.
func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	switch r.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "br":
		reader = brotli.NewReader(r.Body)
	case "zstd":
		zr, err := zstd.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		reader = zr
	}
	return io.ReadAll(reader)
}
