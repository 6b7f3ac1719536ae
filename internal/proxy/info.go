package proxy

import "net/http"

// serviceInfo is the discovery document served at the root path so clients
// and operators can see what the gateway is and where its surfaces live.
type serviceInfo struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

func infoHandler(version string) http.HandlerFunc {
	info := serviceInfo{
		Service: "dsgate",
		Version: version,
		Status:  "running",
		Endpoints: map[string]string{
			"messages":  "/v1/messages",
			"models":    "/v1/models",
			"liveness":  "/healthz/live",
			"readiness": "/healthz/ready",
			"metrics":   "/metrics",
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, info, http.StatusOK)
	}
}
