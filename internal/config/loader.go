package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/julesmcp/internal/mcp"
)

// Format identifies a config file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the encoding from the file extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("config: unsupported file extension %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Load reads the configuration file at path and returns a validated [Config].
// The encoding is chosen by [FormatFor]. Fields absent from the file keep
// their [Default] values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(path, data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// parse decodes data in the encoding implied by path.
func parse(path string, data []byte) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	if format == FormatTOML {
		return LoadTOMLFromReader(bytes.NewReader(data))
	}
	return LoadFromReader(bytes.NewReader(data))
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Unknown keys are rejected. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOMLFromReader decodes a TOML config from r and validates the result.
// Unknown keys are rejected.
func LoadTOMLFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: decode toml: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: stdio, streamable-http", cfg.Server.Transport))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Transport == mcp.TransportStreamableHTTP && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required when transport is streamable-http"))
	}
	if cfg.Server.Transport == mcp.TransportStdio && cfg.Server.AuthToken != "" {
		slog.Warn("server.auth_token is ignored for the stdio transport")
	}

	// Jules
	if cfg.Jules.APIKeyEnv == "" {
		errs = append(errs, errors.New("jules.api_key_env must not be empty"))
	}
	if cfg.Jules.BaseURL != "" {
		u, err := url.Parse(cfg.Jules.BaseURL)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("jules.base_url %q is invalid: %w", cfg.Jules.BaseURL, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = append(errs, fmt.Errorf("jules.base_url %q must use http or https", cfg.Jules.BaseURL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("jules.base_url %q has no host", cfg.Jules.BaseURL))
		}
	}

	return errors.Join(errs...)
}
