package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"localhost/deepseek-proxy/internal/authgate"
	"localhost/deepseek-proxy/internal/cache"
	"localhost/deepseek-proxy/internal/claudeadapter"
	"localhost/deepseek-proxy/internal/observability"
	"localhost/deepseek-proxy/internal/observability/middleware"
)

// ReadinessChecker reports whether the application is ready to serve traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// Options carries the collaborators the server wires into its routes.
type Options struct {
	Adapter   claudeadapter.MessagesAdapter
	Transport http.RoundTripper
	Cache     *cache.Cache           // nil disables response caching
	Metrics   *observability.Metrics // nil disables instrumentation
	// MetricsHandler serves the scrape endpoint; nil disables the route.
	MetricsHandler http.Handler
	Gate           *authgate.Gate
	Readiness      ReadinessChecker

	// Version is reported by the root service-info endpoint; empty means
	// "dev".
	Version string

	// MaxRequestBytes bounds the request body; zero applies the default.
	MaxRequestBytes int64
}

const defaultMaxRequestBytes = 10 << 20

// Proxy is the client-facing HTTP server.
type Proxy struct {
	server *http.Server
}

// New assembles the server and its routes.
func New(opts Options) (*Proxy, error) {
	if opts.Adapter == nil {
		return nil, errors.New("adapter is required")
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}
	if opts.Gate == nil {
		opts.Gate = authgate.New(nil, 0, 0)
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = defaultMaxRequestBytes
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	messages := &MessagesHandler{
		Adapter:   opts.Adapter,
		Transport: opts.Transport,
		Cache:     opts.Cache,
		Metrics:   opts.Metrics,
		Validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", infoHandler(opts.Version))
	mux.Handle("POST /v1/messages", applyMiddlewares(messages,
		Auth(opts.Gate),
		RequestSizeLimit(opts.MaxRequestBytes),
		Instrument(opts.Metrics, "messages"),
	))
	mux.Handle("GET /v1/models", applyMiddlewares(modelsHandler(),
		Auth(opts.Gate),
		Instrument(opts.Metrics, "models"),
	))
	mux.Handle("GET /healthz/live", livenessHandler())
	if opts.Readiness != nil {
		mux.Handle("GET /healthz/ready", readinessHandler(opts.Readiness))
	}
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	handler := applyMiddlewares(mux,
		middleware.RequestIDGeneration,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		middleware.RequestIDPropagation,
		Recovery,
	)

	return &Proxy{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: streaming responses stay open for as long as
			// the upstream produces events.
		},
	}, nil
}

// Handler exposes the assembled handler chain, primarily for tests.
func (p *Proxy) Handler() http.Handler {
	return p.server.Handler
}

// Start begins serving on addr. It returns a channel that delivers the
// serve-loop error, if any, once the server stops.
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	p.server.BaseContext = func(net.Listener) context.Context { return ctx }

	slog.InfoContext(ctx, "listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := p.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// Shutdown drains in-flight requests and stops the server.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
