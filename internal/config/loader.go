package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields resolves ${ENV_VAR} references in credentials and headers.
func expandSensitiveFields(cfg *Config) {
	cfg.Desk.Auth.Token = expandEnvVars(cfg.Desk.Auth.Token)
	cfg.Desk.Auth.Password = expandEnvVars(cfg.Desk.Auth.Password)
	if cfg.Desk.IRC != nil {
		cfg.Desk.IRC.Password = expandEnvVars(cfg.Desk.IRC.Password)
	}
	for k, v := range cfg.API.Headers {
		cfg.API.Headers[k] = expandEnvVars(v)
	}
}

// Load reads the config file, applies defaults and environment overrides.
// A missing file yields defaults only.
func Load(path string) (Config, error) {
	cfg := Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(&cfg)
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return Defaults(), err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields.
func applyDefaults(cfg *Config) {
	api := &cfg.API
	if api.BaseURL == "" {
		api.BaseURL = "http://127.0.0.1:8088"
	}
	if api.TimeoutMs == 0 {
		api.TimeoutMs = 10000
	}
	ep := &api.Endpoints
	if ep.Presence == "" {
		ep.Presence = "/api/chat/status"
	}
	if ep.InitialMessage == "" {
		ep.InitialMessage = "/api/chat/initial-message"
	}
	if ep.CreateSession == "" {
		ep.CreateSession = "/api/chat/sessions"
	}
	if ep.Transfer == "" {
		ep.Transfer = "/api/chat/transfer"
	}
	if ep.Messages == "" {
		ep.Messages = "/api/chat/messages"
	}

	w := &cfg.Widget
	if w.PollIntervalMs == 0 {
		w.PollIntervalMs = DefaultPollIntervalMs
	}
	if w.PresenceIntervalMs == 0 {
		w.PresenceIntervalMs = DefaultPresenceIntervalMs
	}
	if w.RevealDelayMs == 0 {
		w.RevealDelayMs = DefaultRevealDelayMs
	}
	if w.PromptDelayMs == 0 {
		w.PromptDelayMs = DefaultPromptDelayMs
	}
	if w.GreetingDelayMs == 0 {
		w.GreetingDelayMs = DefaultGreetingDelayMs
	}
	if w.PromptText == "" {
		w.PromptText = DefaultPromptText
	}
	if w.GreetingText == "" {
		w.GreetingText = DefaultGreetingText
	}
	if w.SessionStore == "" {
		w.SessionStore = "memory"
	}
	if w.Sound.Player == "" {
		w.Sound.Player = "bell"
	}
	if w.Sound.Frequency == 0 {
		w.Sound.Frequency = 800
	}
	if w.Sound.DurationMs == 0 {
		w.Sound.DurationMs = 500
	}

	d := &cfg.Desk
	if d.Port == 0 {
		d.Port = 8088
	}
	if d.Bind == "" {
		d.Bind = "loopback"
	}
	if d.Database == "" {
		d.Database = "desk.db"
	}
	if d.Auth.Mode == "" {
		d.Auth.Mode = "token"
	}
	if d.RateLimit.PerMinute == 0 {
		d.RateLimit.PerMinute = 60
	}
	if d.RateLimit.Burst == 0 {
		d.RateLimit.Burst = 10
	}
	if d.IRC != nil && d.IRC.Port == 0 {
		if d.IRC.UseTLS {
			d.IRC.Port = 6697
		} else {
			d.IRC.Port = 6667
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads LIVECHAT_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LIVECHAT_API_URL"); v != "" {
		cfg.API.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv("LIVECHAT_DESK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Desk.Port = port
		}
	}
	if v := os.Getenv("LIVECHAT_DESK_BIND"); v != "" {
		cfg.Desk.Bind = v
	}
	if v := os.Getenv("LIVECHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
