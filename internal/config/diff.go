package config

// ConfigDiff describes what changed between two configs.
// Only the log level can be applied to a running server; every other change
// is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the keys of changed settings that only take
	// effect after a restart.
	RestartRequired []string
}

// Changed reports whether d carries any change at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := []struct {
		key     string
		changed bool
	}{
		{"server.transport", old.Server.Transport != new.Server.Transport},
		{"server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr},
		{"server.auth_token", old.Server.AuthToken != new.Server.AuthToken},
		{"jules.base_url", old.Jules.BaseURL != new.Jules.BaseURL},
		{"jules.api_key_env", old.Jules.APIKeyEnv != new.Jules.APIKeyEnv},
	}
	for _, r := range restart {
		if r.changed {
			d.RestartRequired = append(d.RestartRequired, r.key)
		}
	}

	return d
}
