package deepseekchat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

const (
	completionsPath = "/chat/completions"
	ssePrefix       = "data:"
	sseDone         = "[DONE]"

	// scanBufSize bounds a single SSE line. Argument fragments are small, but
	// a full completion chunk with a large tool schema can run long.
	scanBufSize = 1 << 20
)

// Client talks to an OpenAI-compatible chat-completions gateway. The HTTP
// transport is injected per call so authentication and instrumentation wrap
// at the edge, matching how handlers pass their configured transport down.
type Client struct {
	baseURL     string
	idleTimeout time.Duration
}

// NewClient builds a gateway client. idleTimeout bounds the silence between
// stream reads; zero disables the watchdog.
func NewClient(baseURL string, idleTimeout time.Duration) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		idleTimeout: idleTimeout,
	}
}

// Complete performs a non-streaming completion call.
func (c *Client) Complete(ctx context.Context, transport http.RoundTripper, req *ChatRequest, thinking bool) (*ChatResponse, error) {
	resp, err := c.post(ctx, transport, req, thinking)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &claudeadapter.UpstreamTransportError{Err: fmt.Errorf("read response body: %w", err)}
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &claudeadapter.UpstreamProtocolError{Reason: fmt.Sprintf("decode completion response: %v", err)}
	}
	return &out, nil
}

// Stream performs a streaming completion call and returns an iterator over
// decoded chunks. The iterator yields at most one error as its final element
// and closes the response body when the consumer stops.
func (c *Client) Stream(ctx context.Context, transport http.RoundTripper, req *ChatRequest, thinking bool) (iter.Seq2[*ChatChunk, error], error) {
	resp, err := c.post(ctx, transport, req, thinking)
	if err != nil {
		return nil, err
	}

	return func(yield func(*ChatChunk, error) bool) {
		defer resp.Body.Close()

		watchdog := newIdleWatchdog(ctx, c.idleTimeout, resp.Body)
		defer watchdog.stop()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 4096), scanBufSize)

		for scanner.Scan() {
			watchdog.reset()

			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, ssePrefix) {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, ssePrefix))
			if payload == "" {
				continue
			}
			if payload == sseDone {
				return
			}

			var chunk ChatChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield(nil, &claudeadapter.UpstreamProtocolError{
					Reason: fmt.Sprintf("decode stream chunk: %v", err),
				})
				return
			}
			if !yield(&chunk, nil) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}
			if watchdog.fired() {
				yield(nil, &claudeadapter.UpstreamTransportError{
					Err: fmt.Errorf("stream idle for %s: %w", c.idleTimeout, err),
				})
				return
			}
			yield(nil, &claudeadapter.UpstreamTransportError{Err: fmt.Errorf("read stream: %w", err)})
		}
	}, nil
}

// post sends the serialized request and returns a 2xx response, translating
// failures into the gateway error taxonomy.
func (c *Client) post(ctx context.Context, transport http.RoundTripper, req *ChatRequest, thinking bool) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if thinking {
		body, err = injectThinking(body)
		if err != nil {
			return nil, fmt.Errorf("inject thinking flag: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	httpClient := &http.Client{Transport: transport}
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return nil, &claudeadapter.UpstreamTransportError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &claudeadapter.UpstreamTransportError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("%s", readGatewayError(resp.Body)),
		}
	}
	return resp, nil
}

// readGatewayError extracts the error message from a non-2xx body, falling
// back to the raw body when it does not match the error envelope.
func readGatewayError(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 8192))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}
	var envelope gatewayError
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return strings.TrimSpace(string(raw))
}

// idleWatchdog closes the stream body when no read activity happens within
// the timeout, unblocking the scanner. A zero timeout disables it.
type idleWatchdog struct {
	timeout time.Duration
	timer   *time.Timer
	trip    chan struct{}
	once    sync.Once
	active  bool
}

func newIdleWatchdog(ctx context.Context, timeout time.Duration, body io.Closer) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout, trip: make(chan struct{})}
	if timeout <= 0 {
		return w
	}
	w.active = true
	w.timer = time.AfterFunc(timeout, func() {
		// The scanner may still drain buffered lines after the body closes,
		// re-arming the timer through reset. Tripping must stay one-shot or
		// the second expiry would close a closed channel and take the
		// process down.
		w.once.Do(func() {
			close(w.trip)
			body.Close()
		})
	})
	context.AfterFunc(ctx, func() { w.timer.Stop() })
	return w
}

func (w *idleWatchdog) reset() {
	if w.active && !w.fired() {
		w.timer.Reset(w.timeout)
	}
}

func (w *idleWatchdog) stop() {
	if w.active {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) fired() bool {
	select {
	case <-w.trip:
		return true
	default:
		return false
	}
}
