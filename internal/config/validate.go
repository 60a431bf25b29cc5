package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

func oneOf(issues []ValidationIssue, path, value string, valid []string) []ValidationIssue {
	if value != "" && !slices.Contains(valid, value) {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
		})
	}
	return issues
}

func nonNegative(issues []ValidationIssue, path string, v int) []ValidationIssue {
	if v < 0 {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must not be negative, got %d", v),
		})
	}
	return issues
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.API.BaseURL != "" {
		u, err := url.Parse(cfg.API.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "api.baseUrl",
				Message: fmt.Sprintf("must be an absolute http(s) URL, got %q", cfg.API.BaseURL),
			})
		}
	}
	issues = nonNegative(issues, "api.timeoutMs", cfg.API.TimeoutMs)

	w := cfg.Widget
	issues = nonNegative(issues, "widget.pollIntervalMs", w.PollIntervalMs)
	issues = nonNegative(issues, "widget.presenceIntervalMs", w.PresenceIntervalMs)
	issues = nonNegative(issues, "widget.revealDelayMs", w.RevealDelayMs)
	issues = nonNegative(issues, "widget.promptDelayMs", w.PromptDelayMs)
	issues = nonNegative(issues, "widget.greetingDelayMs", w.GreetingDelayMs)
	issues = oneOf(issues, "widget.sessionStore", w.SessionStore, []string{"memory", "sqlite"})
	issues = oneOf(issues, "widget.sound.player", w.Sound.Player, []string{"bell", "command", "none"})
	if w.Sound.Player == "command" && w.Sound.Command == "" {
		issues = append(issues, ValidationIssue{
			Path:    "widget.sound.command",
			Message: "required when player is command",
		})
	}

	d := cfg.Desk
	if d.Port < 0 || d.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "desk.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", d.Port),
		})
	}
	issues = oneOf(issues, "desk.bind", d.Bind, []string{"loopback", "lan", "custom"})
	if d.Bind == "custom" && d.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "desk.customBindHost",
			Message: "required when bind is custom",
		})
	}
	issues = oneOf(issues, "desk.auth.mode", d.Auth.Mode, []string{"token", "password"})
	issues = nonNegative(issues, "desk.rateLimit.perMinute", d.RateLimit.PerMinute)
	issues = nonNegative(issues, "desk.rateLimit.burst", d.RateLimit.Burst)

	if d.IRC != nil {
		irc := d.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{Path: "desk.irc.server", Message: "server is required"})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{Path: "desk.irc.nick", Message: "nick is required"})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{Path: "desk.irc.channel", Message: "channel is required"})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "desk.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "desk.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	for i, h := range cfg.Hooks {
		path := fmt.Sprintf("hooks[%d]", i)
		if h.Event == "" {
			issues = append(issues, ValidationIssue{Path: path + ".event", Message: "event is required"})
		}
		if h.Command == "" {
			issues = append(issues, ValidationIssue{Path: path + ".command", Message: "command is required"})
		}
		issues = nonNegative(issues, path+".timeoutMs", h.TimeoutMs)
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	issues = oneOf(issues, "logging.level", cfg.Logging.Level, validLogLevels)
	issues = oneOf(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "compact", "json"})

	return issues
}
