// Package app wires the julesmcp subsystems into a running server.
//
// New builds the Jules client, the tool registry and the MCP server from a
// validated config. Run serves them over the configured transport until the
// context is cancelled, and Shutdown releases everything in order.
//
// For testing, inject doubles via functional options (WithCredentials,
// WithHTTPClient, WithMetrics). When an option is not provided, New derives
// the real implementation from the config.
package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/julesmcp/internal/config"
	"github.com/MrWong99/julesmcp/internal/health"
	"github.com/MrWong99/julesmcp/internal/jules"
	"github.com/MrWong99/julesmcp/internal/mcp"
	"github.com/MrWong99/julesmcp/internal/mcp/mcpserver"
	"github.com/MrWong99/julesmcp/internal/mcp/tools/julestools"
	"github.com/MrWong99/julesmcp/internal/observe"
)

const (
	// Name is the implementation name announced to MCP clients.
	Name = "jules_mcp"

	// shutdownTimeout bounds the graceful HTTP drain.
	shutdownTimeout = 15 * time.Second

	// readHeaderTimeout guards the HTTP listener against slow clients.
	readHeaderTimeout = 10 * time.Second
)

// Version is the implementation version announced to MCP clients. It is
// overridden at build time via -ldflags.
var Version = "dev"

// App owns the lifetime of every julesmcp subsystem.
type App struct {
	cfg *config.Config

	creds          jules.CredentialSource
	httpClient     *http.Client
	metrics        *observe.Metrics
	metricsHandler http.Handler

	client   *jules.Client
	registry *mcpserver.Registry
	server   *mcpsdk.Server

	// closers are called in order during Shutdown.
	closers []func(context.Context) error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithCredentials replaces the env-derived credential source.
func WithCredentials(src jules.CredentialSource) Option {
	return func(a *App) { a.creds = src }
}

// WithHTTPClient replaces the HTTP client used for Jules API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(a *App) { a.httpClient = hc }
}

// WithMetrics records tool and API metrics into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics in HTTP mode.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithCloser registers fn to run during Shutdown after the app's own
// subsystems.
func WithCloser(fn func(context.Context) error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. cfg must already be validated.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: nil config")
	}
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.creds == nil {
		a.creds = jules.EnvCredential(cfg.Jules.APIKeyEnv)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	clientOpts := []jules.Option{
		jules.WithBaseURL(cfg.Jules.BaseURL),
		jules.WithMetrics(a.metrics),
	}
	if a.httpClient != nil {
		clientOpts = append(clientOpts, jules.WithHTTPClient(a.httpClient))
	}
	a.client = jules.New(a.creds, clientOpts...)

	ts, err := julestools.Tools(a.client)
	if err != nil {
		return nil, fmt.Errorf("app: build tools: %w", err)
	}
	a.registry, err = mcpserver.New(ts, mcpserver.WithMetrics(a.metrics))
	if err != nil {
		return nil, fmt.Errorf("app: build registry: %w", err)
	}
	a.server = a.registry.Server(&mcpsdk.Implementation{Name: Name, Version: Version})

	return a, nil
}

// Server returns the MCP server with every tool attached.
func (a *App) Server() *mcpsdk.Server { return a.server }

// Registry returns the tool registry.
func (a *App) Registry() *mcpserver.Registry { return a.registry }

// ─── HTTP ────────────────────────────────────────────────────────────────────

// Handler returns the HTTP surface used by the streamable-http transport:
//
//   - /mcp      the MCP endpoint, behind bearer auth when a token is set
//   - /healthz  liveness
//   - /readyz   readiness (the API key resolves)
//   - /metrics  Prometheus exposition, when a metrics handler was given
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(a.metrics))

	health.New(health.CredentialChecker(a.creds)).Register(r)
	if a.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", a.metricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(a.cfg.Server.AuthToken))
		r.Handle("/mcp", mcpserver.HTTPHandler(a.server))
	})
	return r
}

// bearerAuth rejects requests whose Authorization header does not carry
// token. An empty token disables the check.
func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte("Bearer " + token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if token == "" || subtle.ConstantTimeCompare(got, want) == 1 {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("WWW-Authenticate", `Bearer realm="julesmcp"`)
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
		})
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the MCP server over the configured transport and blocks until
// ctx is cancelled or the transport fails.
func (a *App) Run(ctx context.Context) error {
	switch a.cfg.Server.Transport {
	case mcp.TransportStdio:
		slog.Info("serving MCP over stdio", "tools", len(a.registry.Descriptors()))
		err := a.server.Run(ctx, &mcpsdk.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("app: stdio: %w", err)
		}
		return nil
	case mcp.TransportStreamableHTTP:
		ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
		return a.Serve(ctx, ln)
	default:
		return fmt.Errorf("app: unsupported transport %q", a.cfg.Server.Transport)
	}
}

// Serve runs the HTTP surface on ln until ctx is cancelled, then drains
// in-flight requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("serving MCP over streamable HTTP", "addr", ln.Addr().String(), "auth", a.cfg.Server.AuthToken != "")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs the registered closers in order. It respects the context
// deadline: if ctx expires first, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		var errs []error
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(ctx); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
				errs = append(errs, err)
			}
		}
		shutdownErr = errors.Join(errs...)
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
