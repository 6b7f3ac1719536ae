// Package middleware provides the HTTP middleware the gateway mounts around
// its routes: request logging, request-id handling and W3C trace-context
// extraction.
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/httplog/v3"
)

// Logging logs every gateway request with method, path, status and duration.
// Bodies and most headers are never logged: prompts and completions routinely
// contain sensitive content.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Schema: httplog.SchemaECS.Concise(true),

		LogRequestHeaders:  []string{"Content-Type", "Origin"},
		LogResponseHeaders: []string{},
		LogRequestBody:     nil,
		LogResponseBody:    nil,

		RecoverPanics: false, // the Recovery middleware owns panics
	})
}

// SetLogAttrs attaches attributes to the request log line, such as the task
// classification or a cache hit marker. No-op outside a logged request.
func SetLogAttrs(ctx context.Context, attrs ...slog.Attr) {
	httplog.SetAttrs(ctx, attrs...)
}
