package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, "http://127.0.0.1:8088", cfg.API.BaseURL)
	assert.Equal(t, "/api/chat/status", cfg.API.Endpoints.Presence)
	assert.Equal(t, "/api/chat/messages", cfg.API.Endpoints.Messages)
	assert.Equal(t, 3*time.Second, cfg.Widget.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.Widget.PresenceInterval())
	assert.Equal(t, 4*time.Second, cfg.Widget.RevealDelay())
	assert.Equal(t, time.Second, cfg.Widget.PromptDelay())
	assert.Equal(t, time.Second, cfg.Widget.GreetingDelay())
	assert.Equal(t, 10*time.Second, cfg.API.Timeout())
	assert.Equal(t, "memory", cfg.Widget.SessionStore)
	assert.Equal(t, "bell", cfg.Widget.Sound.Player)
	assert.Equal(t, 8088, cfg.Desk.Port)
	assert.Equal(t, "loopback", cfg.Desk.Bind)
	assert.Equal(t, "token", cfg.Desk.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Contains(t, cfg.Widget.GreetingText, "{name}")
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Desk.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
api:
  baseUrl: https://chat.example.com
  endpoints:
    presence: /v2/status
widget:
  pollIntervalMs: 1500
  greetingText: "Hello {name}"
  sound:
    player: command
    command: paplay
desk:
  port: 9999
  bind: lan
  auth:
    mode: password
    password: secret123
  irc:
    server: irc.libera.chat
    nick: deskbot
    channel: "#support"
    useTLS: true
logging:
  level: debug
  consoleStyle: json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com", cfg.API.BaseURL)
	assert.Equal(t, "/v2/status", cfg.API.Endpoints.Presence)
	assert.Equal(t, "/api/chat/sessions", cfg.API.Endpoints.CreateSession)
	assert.Equal(t, 1500*time.Millisecond, cfg.Widget.PollInterval())
	assert.Equal(t, "Hello {name}", cfg.Widget.GreetingText)
	assert.Equal(t, "paplay", cfg.Widget.Sound.Command)
	assert.Equal(t, 9999, cfg.Desk.Port)
	assert.Equal(t, "lan", cfg.Desk.Bind)
	assert.Equal(t, "password", cfg.Desk.Auth.Mode)
	assert.Equal(t, "secret123", cfg.Desk.Auth.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)

	require.NotNil(t, cfg.Desk.IRC)
	assert.Equal(t, "irc.libera.chat", cfg.Desk.IRC.Server)
	assert.Equal(t, 6697, cfg.Desk.IRC.Port)
	assert.Equal(t, "#support", cfg.Desk.IRC.Channel)
	assert.True(t, cfg.Desk.IRC.OpOnlyEnabled())
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LIVECHAT_DESK_PORT", "12345")
	t.Setenv("LIVECHAT_LOG_LEVEL", "TRACE")
	t.Setenv("LIVECHAT_API_URL", "https://override.example.com/")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Desk.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "https://override.example.com", cfg.API.BaseURL)
}

func TestLoadExpandsSecrets(t *testing.T) {
	t.Setenv("DESK_TOKEN", "s3cret")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("desk:\n  auth:\n    token: ${DESK_TOKEN}\napi:\n  headers:\n    X-Key: ${UNSET_LIVECHAT_VAR}\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Desk.Auth.Token)
	assert.Equal(t, "${UNSET_LIVECHAT_VAR}", cfg.API.Headers["X-Key"])
}

func TestOpOnlyExplicitFalse(t *testing.T) {
	off := false
	assert.False(t, IRCConfig{OpOnly: &off}.OpOnlyEnabled())
	assert.True(t, IRCConfig{}.OpOnlyEnabled())
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"widget", "pollIntervalMs"}, 2000)
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"widget", "pollIntervalMs"})
	require.True(t, ok)
	assert.Equal(t, 2000, val)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Widget.PollInterval())
}
