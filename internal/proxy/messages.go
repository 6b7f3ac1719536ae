package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"localhost/deepseek-proxy/internal/cache"
	"localhost/deepseek-proxy/internal/claudeadapter"
	"localhost/deepseek-proxy/internal/claudeadapter/deepseekchat"
	"localhost/deepseek-proxy/internal/observability"
	"localhost/deepseek-proxy/internal/observability/middleware"
)

// MessagesHandler serves the Claude Messages endpoint, dispatching to the
// adapter for translation and the upstream call. Non-streaming responses go
// through the cache; streaming responses are transcoded event by event.
type MessagesHandler struct {
	Adapter   claudeadapter.MessagesAdapter
	Transport http.RoundTripper
	Cache     *cache.Cache // nil disables caching
	Metrics   *observability.Metrics
	Validate  *validator.Validate
}

// Compile-time check that MessagesHandler implements http.Handler.
var _ http.Handler = (*MessagesHandler)(nil)

func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req claudeadapter.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
			writeJSON(ctx, w, claudeadapter.NewErrorResponse(
				claudeadapter.ErrTypeInvalidRequest,
				http.StatusText(http.StatusRequestEntityTooLarge)),
				http.StatusRequestEntityTooLarge)
			return
		}
		slog.ErrorContext(ctx, "failed to decode request", "error", err)
		writeClaudeError(ctx, w, claudeadapter.NewErrorResponse(
			claudeadapter.ErrTypeInvalidRequest, "request body is not valid JSON"))
		return
	}

	if err := h.Validate.StructCtx(ctx, &req); err != nil {
		slog.WarnContext(ctx, "request failed validation", "error", err)
		writeClaudeError(ctx, w, claudeadapter.NewErrorResponse(
			claudeadapter.ErrTypeInvalidRequest, err.Error()))
		return
	}

	task := deepseekchat.ClassifyTask(req.LatestUserText())
	middleware.SetLogAttrs(ctx, slog.String("task", string(task)), slog.String("model", req.Model))
	if h.Metrics != nil {
		h.Metrics.Classifications.Add(ctx, 1, metric.WithAttributes(attribute.String("task", string(task))))
	}

	if req.Stream {
		h.streamResponse(ctx, w, req)
	} else {
		h.writeResponse(ctx, w, req, task)
	}
}

// writeResponse serves a non-streaming exchange, consulting the cache first.
func (h *MessagesHandler) writeResponse(ctx context.Context, w http.ResponseWriter, req claudeadapter.MessagesRequest, task deepseekchat.TaskType) {
	if ctx.Err() != nil {
		return
	}

	key := h.cacheKey(ctx, &req)
	if key != "" {
		if resp, ok := h.Cache.Get(key); ok {
			slog.DebugContext(ctx, "serving response from cache")
			middleware.SetLogAttrs(ctx, slog.Bool("cache_hit", true))
			if h.Metrics != nil {
				h.Metrics.CacheHits.Add(ctx, 1)
			}
			writeJSON(ctx, w, resp, http.StatusOK)
			return
		}
		if h.Metrics != nil {
			h.Metrics.CacheMisses.Add(ctx, 1)
		}
	}

	start := time.Now()
	response, err := h.Adapter.ProcessRequest(ctx, req, h.Transport)
	h.recordUpstream(ctx, start)
	if err != nil {
		h.failRequest(ctx, w, err)
		return
	}

	if key != "" {
		h.Cache.Store(key, response, cache.ClassForRequest(string(task), req.LatestUserText()))
	}
	writeJSON(ctx, w, response, http.StatusOK)
}

// streamResponse serves a streaming exchange over SSE. Once the stream is
// open, failures travel as terminal error events; only pre-stream failures
// produce a JSON error body.
func (h *MessagesHandler) streamResponse(ctx context.Context, w http.ResponseWriter, req claudeadapter.MessagesRequest) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	stream, err := h.Adapter.ProcessStreamingRequest(ctx, req, h.Transport)
	if err != nil {
		h.recordUpstream(ctx, start)
		h.failRequest(ctx, w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		slog.ErrorContext(ctx, "SSE not supported", "error", err)
		writeClaudeError(ctx, w, claudeadapter.NewErrorResponse(
			claudeadapter.ErrTypeAPI, http.StatusText(http.StatusInternalServerError)))
		return
	}

	if h.Metrics != nil {
		h.Metrics.ActiveStreams.Add(ctx, 1)
		defer h.Metrics.ActiveStreams.Add(context.WithoutCancel(ctx), -1)
	}
	defer h.recordUpstream(ctx, start)

	for event, err := range stream {
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "client disconnected during stream")
			return
		}
		if err != nil {
			// The adapter already emitted the terminal error event; nothing
			// more may be written to this stream.
			slog.ErrorContext(ctx, "stream failed", "error", err)
			h.countTranslationError(ctx, err)
			return
		}
		if writeErr := sse.WriteNamedEvent(event.Event(), event); writeErr != nil {
			slog.ErrorContext(ctx, "failed to write stream event", "error", writeErr)
			return
		}
	}
}

// cacheKey returns the fingerprint for a cacheable request, or empty when the
// exchange bypasses the cache. Fingerprint failures degrade to a miss.
func (h *MessagesHandler) cacheKey(ctx context.Context, req *claudeadapter.MessagesRequest) string {
	if h.Cache == nil || !cache.Cacheable(req) {
		return ""
	}
	key, err := h.Cache.Key(req)
	if err != nil {
		slog.WarnContext(ctx, "cache fingerprint failed, bypassing cache", "error", err)
		return ""
	}
	return key
}

func (h *MessagesHandler) failRequest(ctx context.Context, w http.ResponseWriter, err error) {
	slog.ErrorContext(ctx, "request failed", "error", err)
	h.countTranslationError(ctx, err)
	writeError(ctx, w, err)
}

func (h *MessagesHandler) recordUpstream(ctx context.Context, start time.Time) {
	if h.Metrics != nil {
		h.Metrics.UpstreamLatency.Record(ctx, time.Since(start).Seconds())
	}
}

// countTranslationError bumps the error counter with a stable kind label.
func (h *MessagesHandler) countTranslationError(ctx context.Context, err error) {
	if h.Metrics == nil {
		return
	}

	kind := "internal"
	var (
		unsupp    *claudeadapter.UnsupportedContentError
		malformed *claudeadapter.MalformedToolArgumentsError
		transport *claudeadapter.UpstreamTransportError
		protocol  *claudeadapter.UpstreamProtocolError
	)
	switch {
	case errors.As(err, &unsupp):
		kind = "unsupported_content"
	case errors.As(err, &malformed):
		kind = "malformed_tool_arguments"
	case errors.As(err, &transport):
		kind = "upstream_transport"
	case errors.As(err, &protocol):
		kind = "upstream_protocol"
	}
	h.Metrics.TranslationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
