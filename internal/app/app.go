package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"localhost/deepseek-proxy/internal/authgate"
	"localhost/deepseek-proxy/internal/cache"
	"localhost/deepseek-proxy/internal/claudeadapter/deepseekchat"
	"localhost/deepseek-proxy/internal/config"
	"localhost/deepseek-proxy/internal/observability"
	"localhost/deepseek-proxy/internal/proxy"
	"localhost/deepseek-proxy/internal/tokensource"
)

// App orchestrates the lifecycle of the proxy server and related services.
type App struct {
	cfg    *config.Config
	proxy  *proxy.Proxy
	health *Health
}

// New assembles the application from configuration: upstream client and
// adapter, response cache, auth gate, metrics and the HTTP server. version is
// the build version reported by the service-info endpoint.
func New(cfg *config.Config, version string) (*App, error) {
	metrics, metricsHandler, err := observability.SetupMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	var responseCache *cache.Cache
	if cfg.Cache.Enabled {
		ttls := make(map[cache.Class]time.Duration)
		for class, ttl := range cfg.Cache.TTLs() {
			ttls[cache.Class(class)] = ttl
		}
		responseCache, err = cache.New(cfg.Cache.Size, time.Duration(cfg.Cache.DefaultTTLSeconds)*time.Second, ttls)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
	}

	client := deepseekchat.NewClient(
		cfg.Upstream.BaseURL,
		time.Duration(cfg.Upstream.IdleTimeoutSeconds)*time.Second,
	)

	health := NewHealth()
	proxyServer, err := proxy.New(proxy.Options{
		Adapter:         deepseekchat.NewAdapter(client, cfg.Upstream.Model),
		Transport:       tokensource.Transport(cfg.Upstream.APIKey, http.DefaultTransport),
		Cache:           responseCache,
		Metrics:         metrics,
		MetricsHandler:  metricsHandler,
		Gate:            authgate.New(cfg.Auth.Keys, cfg.Auth.RequestsPerSec, cfg.Auth.Burst),
		Readiness:       health,
		Version:         version,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:    cfg,
		proxy:  proxyServer,
		health: health,
	}, nil
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "addr", a.cfg.Server.Addr)
	proxyErrCh, err := a.proxy.Start(gCtx, a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)
	a.health.SetReady(true)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
