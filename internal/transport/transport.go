// Package transport implements a synchronous HTTP transport: a request
// body carried base64-encoded in a header (to work around platform
// restrictions some webview runtimes place on synchronous XHR bodies),
// reaching one of two endpoints — replies to callbacks the peer initiated,
// and outbound calls from JS to the peer.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"golang.org/x/net/http2"
)

// PayloadHeader is the header carrying the base64-encoded message buffer,
// used instead of a request body because some embedded webview runtimes
// restrict synchronous XHR to headers-only payloads on certain platforms.
const PayloadHeader = "X-Ipcbridge-Payload"

// CallIDHeader correlates a request with its reply across logs, independent
// of HTTP's own request pipelining.
const CallIDHeader = "X-Ipcbridge-Call-Id"

// CompressionHeader advertises that the payload header is brotli-compressed.
const CompressionHeader = "X-Ipcbridge-Compressed"

// Endpoint names the two fixed synchronous endpoints the bridge posts to.
type Endpoint string

const (
	// EndpointReply is used to deliver a Respond for a callback the peer
	// initiated.
	EndpointReply Endpoint = "/ipcbridge/reply"
	// EndpointCall is used for an outbound call from JS to the peer (a
	// peer-function or peer-object wrapper invocation).
	EndpointCall Endpoint = "/ipcbridge/call"
)

// Transport performs one synchronous round trip per call, matching
// dispatch.Sender's shape.
type Transport struct {
	BaseURL     string
	Client      *http.Client
	Compress    bool
	MinCompress int // payloads smaller than this are sent uncompressed
}

// New builds a Transport backed by an HTTP/2 client. HTTP/2 lets many small
// synchronous round trips share one connection without head-of-line
// blocking across concurrent calls.
func New(baseURL string, callTimeout time.Duration) (*Transport, error) {
	rt := defaultTransport()
	if err := http2.ConfigureTransport(rt); err != nil {
		return nil, fmt.Errorf("configuring http2 transport: %w", err)
	}
	client := &http.Client{Timeout: callTimeout, Transport: rt}
	return &Transport{BaseURL: baseURL, Client: client, Compress: true, MinCompress: 512}, nil
}

func defaultTransport() *http.Transport {
	return http.DefaultTransport.(*http.Transport).Clone()
}

// Reply implements dispatch.Sender for the "replies to callbacks the peer
// initiated" endpoint.
func (t *Transport) Reply(buf []byte) ([]byte, error) {
	return t.roundTrip(context.Background(), EndpointReply, buf)
}

// Call implements dispatch.Sender for the "outbound calls from JS to the
// peer" endpoint.
func (t *Transport) Call(buf []byte) ([]byte, error) {
	return t.roundTrip(context.Background(), EndpointCall, buf)
}

func (t *Transport) roundTrip(ctx context.Context, ep Endpoint, buf []byte) ([]byte, error) {
	payload := buf
	compressed := false
	if t.Compress && len(buf) >= t.MinCompress {
		var b bytes.Buffer
		w := brotli.NewWriter(&b)
		if _, err := w.Write(buf); err != nil {
			return nil, fmt.Errorf("compressing payload: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing brotli writer: %w", err)
		}
		payload = b.Bytes()
		compressed = true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+string(ep), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(PayloadHeader, base64.StdEncoding.EncodeToString(payload))
	req.Header.Set(CallIDHeader, uuid.NewString())
	if compressed {
		req.Header.Set(CompressionHeader, "br")
	}

	resp, err := t.Client.Do(req)
	if err != nil {
		// Failed transports return null; the dispatch handler treats a nil
		// reply as an empty response and raises a protocol error.
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("peer endpoint %s returned status %d: %s", ep, resp.StatusCode, body)
	}

	respB64 := resp.Header.Get(PayloadHeader)
	if respB64 == "" {
		return nil, nil
	}
	respPayload, err := base64.StdEncoding.DecodeString(respB64)
	if err != nil {
		return nil, fmt.Errorf("decoding response payload: %w", err)
	}
	if resp.Header.Get(CompressionHeader) == "br" {
		r := brotli.NewReader(bytes.NewReader(respPayload))
		respPayload, err = io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("decompressing response payload: %w", err)
		}
	}
	return respPayload, nil
}
