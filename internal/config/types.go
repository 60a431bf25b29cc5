package config

import "time"

// Config is the root configuration for livechat.
type Config struct {
	API     APIConfig     `yaml:"api,omitempty"`
	Widget  WidgetConfig  `yaml:"widget,omitempty"`
	Desk    DeskConfig    `yaml:"desk,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
	Hooks   []HookConfig  `yaml:"hooks,omitempty"`
}

// APIConfig points the widget at the remote chat API.
type APIConfig struct {
	BaseURL   string            `yaml:"baseUrl,omitempty"`
	TimeoutMs int               `yaml:"timeoutMs,omitempty"`
	Endpoints EndpointsConfig   `yaml:"endpoints,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
}

// EndpointsConfig holds the path of each remote capability, relative to BaseURL.
type EndpointsConfig struct {
	Presence       string `yaml:"presence,omitempty"`
	InitialMessage string `yaml:"initialMessage,omitempty"`
	CreateSession  string `yaml:"createSession,omitempty"`
	Transfer       string `yaml:"transfer,omitempty"`
	Messages       string `yaml:"messages,omitempty"` // GET fetch, POST send
}

// WidgetConfig controls the chat widget's timers and canned texts.
type WidgetConfig struct {
	PollIntervalMs     int         `yaml:"pollIntervalMs,omitempty"`
	PresenceIntervalMs int         `yaml:"presenceIntervalMs,omitempty"`
	RevealDelayMs      int         `yaml:"revealDelayMs,omitempty"`
	PromptDelayMs      int         `yaml:"promptDelayMs,omitempty"`
	GreetingDelayMs    int         `yaml:"greetingDelayMs,omitempty"`
	PromptText         string      `yaml:"promptText,omitempty"`
	GreetingText       string      `yaml:"greetingText,omitempty"` // {name} is replaced by the contact name
	StrictContact      bool        `yaml:"strictContact,omitempty"`
	SessionStore       string      `yaml:"sessionStore,omitempty"` // "memory" | "sqlite"
	Sound              SoundConfig `yaml:"sound,omitempty"`
}

// SoundConfig configures the new-message notification cue.
type SoundConfig struct {
	Player     string  `yaml:"player,omitempty"` // "bell" | "command" | "none"
	Command    string  `yaml:"command,omitempty"`
	Frequency  float64 `yaml:"frequency,omitempty"`
	DurationMs int     `yaml:"durationMs,omitempty"`
}

// DeskConfig controls the reference chat API server agents work from.
type DeskConfig struct {
	Port           int             `yaml:"port,omitempty"`
	Bind           string          `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string          `yaml:"customBindHost,omitempty"`
	Database       string          `yaml:"database,omitempty"`
	ForceOnline    bool            `yaml:"forceOnline,omitempty"`
	AllowedOrigins []string        `yaml:"allowedOrigins,omitempty"`
	Auth           DeskAuth        `yaml:"auth,omitempty"`
	RateLimit      RateLimitConfig `yaml:"rateLimit,omitempty"`
	IRC            *IRCConfig      `yaml:"irc,omitempty"`
}

// DeskAuth configures agent console authentication.
type DeskAuth struct {
	Mode     string `yaml:"mode,omitempty"` // "token" | "password"
	Token    string `yaml:"token,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// RateLimitConfig bounds visitor writes per client IP.
type RateLimitConfig struct {
	PerMinute int `yaml:"perMinute,omitempty"`
	Burst     int `yaml:"burst,omitempty"`
}

// IRCConfig relays visitor conversations into an IRC channel.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
	OpOnly   *bool  `yaml:"opOnly,omitempty"` // only channel operators may reply; defaults to true
}

// HookConfig runs a shell command whenever a lifecycle event fires.
type HookConfig struct {
	Event     string `yaml:"event"`
	Command   string `yaml:"command"`
	TimeoutMs int    `yaml:"timeoutMs,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "compact" | "json"
	File         string `yaml:"file,omitempty"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Timeout returns the per-request timeout of the API client.
func (a APIConfig) Timeout() time.Duration { return ms(a.TimeoutMs) }

// Default widget timings, in milliseconds.
const (
	DefaultPollIntervalMs     = 3000
	DefaultPresenceIntervalMs = 30000
	DefaultRevealDelayMs      = 4000
	DefaultPromptDelayMs      = 1000
	DefaultGreetingDelayMs    = 1000
)

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithTimingDefaults returns a copy of w where every non-positive interval or
// delay, and an empty prompt or greeting, is replaced by its default.
func (w WidgetConfig) WithTimingDefaults() WidgetConfig {
	w.PollIntervalMs = orDefault(w.PollIntervalMs, DefaultPollIntervalMs)
	w.PresenceIntervalMs = orDefault(w.PresenceIntervalMs, DefaultPresenceIntervalMs)
	w.RevealDelayMs = orDefault(w.RevealDelayMs, DefaultRevealDelayMs)
	w.PromptDelayMs = orDefault(w.PromptDelayMs, DefaultPromptDelayMs)
	w.GreetingDelayMs = orDefault(w.GreetingDelayMs, DefaultGreetingDelayMs)
	if w.PromptText == "" {
		w.PromptText = DefaultPromptText
	}
	if w.GreetingText == "" {
		w.GreetingText = DefaultGreetingText
	}
	return w
}

func (w WidgetConfig) PollInterval() time.Duration     { return ms(w.PollIntervalMs) }
func (w WidgetConfig) PresenceInterval() time.Duration { return ms(w.PresenceIntervalMs) }
func (w WidgetConfig) RevealDelay() time.Duration      { return ms(w.RevealDelayMs) }
func (w WidgetConfig) PromptDelay() time.Duration      { return ms(w.PromptDelayMs) }
func (w WidgetConfig) GreetingDelay() time.Duration    { return ms(w.GreetingDelayMs) }

// Timeout bounds one run of the hook command; it defaults to 10s.
func (h HookConfig) Timeout() time.Duration {
	if h.TimeoutMs <= 0 {
		return 10 * time.Second
	}
	return ms(h.TimeoutMs)
}

// OpOnlyEnabled reports whether replies are restricted to channel operators.
func (c IRCConfig) OpOnlyEnabled() bool {
	if c.OpOnly == nil {
		return true
	}
	return *c.OpOnly
}
