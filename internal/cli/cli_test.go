package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/desk"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with a silent logger and returns its stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("LIVECHAT_HOME", home)
	return home
}

func testDesk(t *testing.T) (*httptest.Server, *store.ChatStore) {
	t.Helper()
	db, err := store.Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	chats := store.NewChatStore(db)

	cfg := config.Defaults().Desk
	cfg.ForceOnline = true
	cfg.Auth = config.DeskAuth{Mode: "token", Token: "cli-test"}
	srv := desk.New(cfg, chats, logging.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, chats
}

func TestVersionCmd(t *testing.T) {
	testHome(t)
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "livechat")
}

func TestConfigCmd_SetGetUnset(t *testing.T) {
	home := testHome(t)

	out, err := runCLI(t, "config", "set", "desk.port", "9100")
	require.NoError(t, err)
	assert.Contains(t, out, "Set desk.port = 9100")
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	out, err = runCLI(t, "config", "get", "desk.port")
	require.NoError(t, err)
	assert.Equal(t, "9100\n", out)

	cfg, err := config.Load(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Desk.Port)

	_, err = runCLI(t, "config", "set", "desk.irc.nick", "deskbot")
	require.NoError(t, err)
	out, err = runCLI(t, "config", "get", "desk")
	require.NoError(t, err)
	assert.Contains(t, out, "nick: deskbot")

	out, err = runCLI(t, "config", "unset", "desk.port")
	require.NoError(t, err)
	assert.Contains(t, out, "Unset desk.port")

	_, err = runCLI(t, "config", "get", "desk.port")
	assert.ErrorContains(t, err, "not found")
}

func TestConfigCmd_BlockedKey(t *testing.T) {
	testHome(t)
	_, err := runCLI(t, "config", "set", "__proto__.x", "1")
	assert.ErrorContains(t, err, "blocked key")
}

func TestConfigCmd_Path(t *testing.T) {
	home := testHome(t)
	out, err := runCLI(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	custom := filepath.Join(t.TempDir(), "alt.yaml")
	out, err = runCLI(t, "--config", custom, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, custom+"\n", out)
}

func TestConfigCmd_Validate(t *testing.T) {
	home := testHome(t)

	out, err := runCLI(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")

	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte("desk:\n  bind: everywhere\n"), 0o600))
	out, err = runCLI(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "desk.bind")
}

func TestDotEnvLoaded(t *testing.T) {
	home := testHome(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("LIVECHAT_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LIVECHAT_TEST_DOTENV") })

	_, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "from-file", os.Getenv("LIVECHAT_TEST_DOTENV"))
}

func TestLoadDotEnv_MissingIsQuiet(t *testing.T) {
	assert.Empty(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestStatusCmd(t *testing.T) {
	testHome(t)
	ts, _ := testDesk(t)
	t.Setenv("LIVECHAT_API_URL", ts.URL)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "API:     "+ts.URL)
	assert.Contains(t, out, "Agents:  online")
	assert.Contains(t, out, "IRC:     (not configured)")
}

func TestStatusCmd_TrimsConfiguredBaseURL(t *testing.T) {
	testHome(t)
	ts, _ := testDesk(t)
	_, err := runCLI(t, "config", "set", "api.baseUrl", ts.URL+"/")
	require.NoError(t, err)

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "API:     "+ts.URL+" (timeout")
	assert.Contains(t, out, "Agents:  online")
}

func TestStatusCmd_Unreachable(t *testing.T) {
	testHome(t)
	ts, _ := testDesk(t)
	t.Setenv("LIVECHAT_API_URL", ts.URL)
	ts.Close()

	out, err := runCLI(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Agents:  offline (network)")
}

func TestMessageCmd_SendAndList(t *testing.T) {
	testHome(t)
	ts, chats := testDesk(t)
	_, err := chats.CreateSession(context.Background(), domain.ChatSession{ID: "S1", ClientName: "Ana"})
	require.NoError(t, err)

	out, err := runCLI(t, "message", "send", "--api", ts.URL, "--name", "Ana", "S1", "bonjour", "à", "tous")
	require.NoError(t, err)
	assert.Contains(t, out, "sent to S1")

	_, err = runCLI(t, "message", "send", "--api", ts.URL, "--agent", "--name", "Marc", "S1", "bienvenue")
	require.NoError(t, err)

	out, err = runCLI(t, "message", "list", "--api", ts.URL, "S1")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana (client): bonjour à tous")
	assert.Contains(t, out, "Marc (agent): bienvenue")
}

func TestMessageCmd_UnknownSession(t *testing.T) {
	testHome(t)
	ts, _ := testDesk(t)

	_, err := runCLI(t, "message", "list", "--api", ts.URL, "nope")
	require.Error(t, err)
	assert.True(t, api.IsKind(err, api.KindStatus))
}

func TestPrintMessages(t *testing.T) {
	client := api.New(config.APIConfig{BaseURL: "https://chat.example.com"})

	var buf bytes.Buffer
	printMessages(&buf, client, nil)
	assert.Equal(t, "(no messages)\n", buf.String())

	buf.Reset()
	printMessages(&buf, client, []api.RemoteMessage{
		{SenderType: domain.SenderAgent, ImageURL: "/uploads/a.png"},
	})
	assert.Equal(t, "agent: [image https://chat.example.com/uploads/a.png]\n", buf.String())
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", 42},
		{"1.5", 1.5},
		{"#support", "#support"},
		{"12abc", "12abc"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseValue(tt.in), tt.in)
	}
}
