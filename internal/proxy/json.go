package proxy

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"localhost/deepseek-proxy/internal/claudeadapter"
)

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status are written before encoding to avoid buffering.
	// If encoding fails, the client may receive a partial response.
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

// writeClaudeError writes a Claude-format error envelope with the HTTP status
// conventionally paired with its error type.
func writeClaudeError(ctx context.Context, w http.ResponseWriter, errResp *claudeadapter.ErrorResponse) {
	resp, status := claudeadapter.ToErrorResponse(errResp)
	writeJSON(ctx, w, resp, status)
}

// writeError maps any error from the translation or transport layers onto a
// Claude-format error body and status.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	resp, status := claudeadapter.ToErrorResponse(err)
	writeJSON(ctx, w, resp, status)
}
