// Command julesmcp is an MCP server that exposes the Jules coding-automation
// API as tools over stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/MrWong99/julesmcp/internal/app"
	"github.com/MrWong99/julesmcp/internal/config"
	"github.com/MrWong99/julesmcp/internal/jules"
	"github.com/MrWong99/julesmcp/internal/mcp"
	"github.com/MrWong99/julesmcp/internal/observe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath string
	envFile    string
	transport  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("julesmcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "path to a YAML or TOML configuration file (optional)")
	fs.StringVar(&o.envFile, "env-file", "", "path to a .env file loaded before the API key is resolved")
	fs.StringVar(&o.transport, "transport", "", "override server.transport (stdio or streamable-http)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// loadConfig reads the config file if one was given and applies flag
// overrides.
func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.transport != "" {
		cfg.Server.Transport = mcp.Transport(o.transport)
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func run(args []string, stderr io.Writer) int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// ── Environment ───────────────────────────────────────────────────────────
	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil {
			fmt.Fprintf(stderr, "julesmcp: load env file: %v\n", err)
			return 1
		}
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(opts)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(stderr, "julesmcp: config file %q not found\n", opts.configPath)
		} else {
			fmt.Fprintf(stderr, "julesmcp: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// stdout carries the stdio transport, so logs always go to stderr.
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: &level})))

	// ── Credential ────────────────────────────────────────────────────────────
	creds := jules.EnvCredential(cfg.Jules.APIKeyEnv)
	if _, err := creds.Resolve(); err != nil {
		fmt.Fprintf(stderr, "ERROR: %s environment variable is required to authenticate with the Jules API.\n", cfg.Jules.APIKeyEnv)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	provider, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: app.Version,
		Registry:       reg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	application, err := app.New(cfg,
		app.WithCredentials(creds),
		app.WithMetricsHandler(provider.MetricsHandler()),
		app.WithCloser(provider.Shutdown),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if opts.configPath != "" {
		w, err := config.NewWatcher(ctx, opts.configPath, func(_, _ *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged {
				level.Set(d.NewLogLevel.Level())
				slog.Info("log level changed", "log_level", d.NewLogLevel)
			}
			if len(d.RestartRequired) > 0 {
				slog.Warn("config changes require a restart", "keys", d.RestartRequired)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("julesmcp starting",
		"version", app.Version,
		"config", opts.configPath,
		"transport", cfg.Server.Transport,
		"log_level", cfg.Server.LogLevel,
		"base_url", cfg.Jules.BaseURL,
	)

	runErr := application.Run(ctx)
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}
