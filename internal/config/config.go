// Package config provides the configuration schema, loader, and file watcher
// for the julesmcp server.
package config

import (
	"log/slog"

	"github.com/MrWong99/julesmcp/internal/jules"
	"github.com/MrWong99/julesmcp/internal/mcp"
)

// LogLevel controls log verbosity for the julesmcp server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto an [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultListenAddr is the address used by the streamable HTTP transport
// when none is configured.
const DefaultListenAddr = ":8080"

// Config is the root configuration structure for julesmcp.
// It is typically loaded from a YAML or TOML file using [Load].
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`
	Jules  JulesConfig  `yaml:"jules" toml:"jules"`
}

// ServerConfig holds transport and logging settings.
type ServerConfig struct {
	// Transport selects how the MCP server is exposed. Defaults to stdio.
	Transport mcp.Transport `yaml:"transport" toml:"transport"`

	// ListenAddr is the TCP address for the streamable-http transport
	// (e.g., ":8080"). Ignored for stdio.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level" toml:"log_level"`

	// AuthToken, when set, is the static Bearer token every request to the
	// /mcp endpoint must carry. Ignored for stdio.
	AuthToken string `yaml:"auth_token" toml:"auth_token"`
}

// JulesConfig configures the upstream Jules API.
type JulesConfig struct {
	// BaseURL overrides the API origin. Leave empty for the public endpoint.
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key. The
	// key itself is never read from the config file.
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:  mcp.TransportStdio,
			ListenAddr: DefaultListenAddr,
			LogLevel:   LogInfo,
		},
		Jules: JulesConfig{
			BaseURL:   jules.DefaultBaseURL,
			APIKeyEnv: jules.DefaultAPIKeyEnv,
		},
	}
}
