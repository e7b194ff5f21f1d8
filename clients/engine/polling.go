package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	eio "github.com/sockmesh/socketio/engine"
	"resty.dev/v3"
)

// pollingClient wraps the HTTP client used by the polling transport,
// with brotli and zstd response decompression on top of the built-in
// gzip handling.
type pollingClient struct {
	client *resty.Client
}

func newPollingClient() *pollingClient {
	client := resty.New()
	client.AddContentDecompresser("br", decompressBrotli)
	client.AddContentDecompresser("zstd", decompressZstd)
	client.SetTimeout(70 * time.Second)
	return &pollingClient{client: client}
}

// decompressReader feeds response bytes through a decompressor while
// keeping the network stream closable. Closing it releases the
// decompressor first (when it holds resources) and then the stream.
type decompressReader struct {
	io.Reader
	stream  io.Closer
	release func()
}

func (r *decompressReader) Close() error {
	if r.release != nil {
		r.release()
	}
	return r.stream.Close()
}

func decompressBrotli(body io.ReadCloser) (io.ReadCloser, error) {
	return &decompressReader{Reader: brotli.NewReader(body), stream: body}, nil
}

func decompressZstd(body io.ReadCloser) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(body, nil)
	if err != nil {
		return nil, err
	}
	return &decompressReader{Reader: zr, stream: body, release: zr.Close}, nil
}

func (p *pollingClient) get(url string, headers map[string]string) ([]byte, error) {
	res, err := p.client.R().SetHeaders(headers).Get(url)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return nil, fmt.Errorf("polling request failed with status %d", res.StatusCode())
	}
	return io.ReadAll(res.Body)
}

func (p *pollingClient) post(url string, headers map[string]string, body []byte) error {
	res, err := p.client.R().
		SetHeaders(headers).
		SetHeader("Content-Type", "text/plain; charset=UTF-8").
		SetBody(body).
		Post(url)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode() < 200 || res.StatusCode() > 299 {
		return fmt.Errorf("polling request failed with status %d", res.StatusCode())
	}
	return nil
}

// pollingHandshake runs the initial GET that mints the session.
func (c *Client) pollingHandshake(httpURL string, headers map[string]string) (*eio.Handshake, error) {
	body, err := c.http.get(httpURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	packets, err := eio.DecodePayload(body)
	if err != nil || len(packets) == 0 || packets[0].Type != eio.OPEN {
		return nil, ErrBadHandshake
	}
	var handshake eio.Handshake
	if err := json.Unmarshal(packets[0].Data, &handshake); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHandshake, err)
	}
	clientLog.Debug("session %s opened over polling", handshake.Sid)
	return &handshake, nil
}

// pollingReadLoop cycles long-poll GETs until the session is over.
func (c *Client) pollingReadLoop(sid string) {
	defer c.teardown()

	for {
		c.mu.Lock()
		if !c.connected || c.ws != nil {
			c.mu.Unlock()
			return
		}
		url := c.baseURL + "&sid=" + sid
		headers := c.headers
		done := c.done
		c.mu.Unlock()

		select {
		case <-done:
			return
		default:
		}

		body, err := c.http.get(url, headers)
		if err != nil {
			clientLog.Debug("polling cycle failed: %v", err)
			return
		}
		packets, err := eio.DecodePayload(body)
		if err != nil {
			clientLog.Debug("bad payload: %v", err)
			return
		}
		for _, p := range packets {
			if !c.handlePacket(p) {
				return
			}
		}
	}
}

// pollingSend posts packets to the session endpoint.
func (c *Client) pollingSend(sid string, packets []eio.Packet) error {
	c.mu.Lock()
	url := c.baseURL + "&sid=" + sid
	headers := c.headers
	c.mu.Unlock()

	return c.http.post(url, headers, eio.EncodePayload(packets))
}
