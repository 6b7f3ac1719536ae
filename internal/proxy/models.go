package proxy

import (
	_ "embed"
	"log/slog"
	"net/http"
)

//go:embed models.json
var modelsJSON []byte

// modelsHandler returns a static list of the DeepSeek models served through
// this gateway. The upstream gateway's model listing is not authenticated the
// same way as completions, so a cached response is served to enable model
// selection in clients.
//
// The response uses a merged format compatible with both Claude and OpenAI
// clients, combining fields from both API specifications. This approach
// assumes that most clients ignore unknown fields.
func modelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(modelsJSON); err != nil {
			slog.ErrorContext(r.Context(), "failed to write response", "error", err)
		}
	}
}
