package deepseekchat

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// Adapter implements the Claude Messages contract against an
// OpenAI-compatible DeepSeek gateway. The adapter itself is stateless and
// safe for concurrent use; per-exchange state lives in a ConversionContext
// created per call.
type Adapter struct {
	client *Client
	// model overrides the outbound model name; the client-requested name is
	// still echoed back in responses.
	model string
}

var _ claudeadapter.MessagesAdapter = (*Adapter)(nil)

// NewAdapter builds an adapter over the given gateway client. model, when
// non-empty, is the upstream model name sent on every request regardless of
// what the client asked for.
func NewAdapter(client *Client, model string) *Adapter {
	return &Adapter{client: client, model: model}
}

// ProcessRequest translates the request, performs a non-streaming completion
// and translates the result back.
func (a *Adapter) ProcessRequest(ctx context.Context, clientReq claudeadapter.MessagesRequest, transport http.RoundTripper) (*claudeadapter.MessagesResponse, error) {
	cctx := NewConversionContext()
	creq, err := TranslateRequest(&clientReq, cctx)
	if err != nil {
		return nil, err
	}
	if a.model != "" {
		creq.Model = a.model
	}

	slog.DebugContext(ctx, "dispatching completion",
		"task", cctx.Task, "thinking", cctx.Thinking, "model", creq.Model)

	resp, err := a.client.Complete(ctx, transport, creq, cctx.Thinking)
	if err != nil {
		return nil, err
	}

	out, err := TranslateResponse(resp, cctx)
	if err != nil {
		return nil, err
	}
	out.Model = clientReq.Model
	return out, nil
}

// ProcessStreamingRequest translates the request, opens the gateway stream
// and returns an iterator of Claude events. The iterator yields at most one
// error, as its final element; a mid-stream upstream failure surfaces as a
// terminal error event followed by the error itself.
func (a *Adapter) ProcessStreamingRequest(ctx context.Context, clientReq claudeadapter.MessagesRequest, transport http.RoundTripper) (iter.Seq2[claudeadapter.StreamEvent, error], error) {
	cctx := NewConversionContext()
	creq, err := TranslateRequest(&clientReq, cctx)
	if err != nil {
		return nil, err
	}
	creq.Stream = true
	creq.StreamOptions = &StreamOptions{IncludeUsage: true}
	if a.model != "" {
		creq.Model = a.model
	}

	slog.DebugContext(ctx, "dispatching streaming completion",
		"task", cctx.Task, "thinking", cctx.Thinking, "model", creq.Model)

	chunks, err := a.client.Stream(ctx, transport, creq, cctx.Thinking)
	if err != nil {
		return nil, err
	}

	return func(yield func(claudeadapter.StreamEvent, error) bool) {
		transcoder := NewTranscoder(cctx, clientReq.Model)

		for chunk, err := range chunks {
			if err != nil {
				detail, _ := claudeadapter.ToErrorResponse(err)
				for _, ev := range transcoder.Fail(detail.Err) {
					if !yield(ev, nil) {
						return
					}
				}
				yield(nil, err)
				return
			}
			for _, ev := range transcoder.Process(chunk) {
				if !yield(ev, nil) {
					return
				}
			}
		}

		for _, ev := range transcoder.Done() {
			if !yield(ev, nil) {
				return
			}
		}
	}, nil
}
