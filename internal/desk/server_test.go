package desk

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/channel"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token-123"

func testChatStore(t *testing.T) *store.ChatStore {
	t.Helper()
	db, err := store.Open(":memory:", logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewChatStore(db)
}

func testServer(t *testing.T, mutate func(*config.DeskConfig), opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	cfg := config.Defaults().Desk
	cfg.Auth = config.DeskAuth{Mode: "token", Token: testToken}
	cfg.RateLimit = config.RateLimitConfig{PerMinute: 600, Burst: 100}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := New(cfg, testChatStore(t), logging.Nop(), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func testClient(ts *httptest.Server) *api.Client {
	cfg := config.Defaults().API
	cfg.BaseURL = ts.URL
	return api.New(cfg)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", strings.NewReader(string(raw)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
	assert.Empty(t, health.Version)
}

func TestNotFoundEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "livechat_desk_sessions_created_total")
}

func TestPresence(t *testing.T) {
	ctx := context.Background()

	t.Run("offline without agents", func(t *testing.T) {
		_, ts := testServer(t, nil)
		online, err := testClient(ts).Presence(ctx)
		require.NoError(t, err)
		assert.False(t, online)
	})

	t.Run("forced online", func(t *testing.T) {
		_, ts := testServer(t, func(c *config.DeskConfig) { c.ForceOnline = true })
		online, err := testClient(ts).Presence(ctx)
		require.NoError(t, err)
		assert.True(t, online)
	})

	t.Run("connected relay", func(t *testing.T) {
		reg := channel.NewRegistry(logging.Nop())
		reg.Register(&fakeRelay{id: "irc", connected: true})
		_, ts := testServer(t, nil, WithChannels(reg))
		online, err := testClient(ts).Presence(ctx)
		require.NoError(t, err)
		assert.True(t, online)
	})

	t.Run("console agent", func(t *testing.T) {
		_, ts := testServer(t, nil)
		conn := authenticatedConn(t, ts)
		defer conn.Close()

		online, err := testClient(ts).Presence(ctx)
		require.NoError(t, err)
		assert.True(t, online)

		call(t, conn, "s1", "agent.status", agentStatusParams{Online: false})
		online, err = testClient(ts).Presence(ctx)
		require.NoError(t, err)
		assert.False(t, online)
	})
}

func TestChatAPIRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	client := testClient(ts)

	require.NoError(t, client.StoreInitialMessage(ctx, "temp_1_abc", "Bonjour"))

	id, err := client.CreateSession(ctx, api.CreateSessionRequest{
		SessionID:   "S1",
		ClientName:  "Ana",
		ClientEmail: "a@x.io",
		ClientPhone: "0611",
	})
	require.NoError(t, err)
	assert.Equal(t, "S1", id)

	require.NoError(t, client.TransferMessages(ctx, api.TransferRequest{
		TempSessionID: "temp_1_abc",
		RealSessionID: "S1",
		ClientName:    "Ana",
	}))
	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{
		SessionID:      "S1",
		SenderType:     domain.SenderClient,
		SenderName:     "Ana",
		MessageContent: "Une question",
		MessageType:    domain.MessageText,
	}))

	msgs, err := client.FetchMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Bonjour", msgs[0].MessageContent)
	assert.Equal(t, "Ana", msgs[0].SenderName)
	assert.Equal(t, domain.SenderClient, msgs[0].SenderType)
	assert.Equal(t, "Une question", msgs[1].MessageContent)
}

func TestCreateSession_GeneratesID(t *testing.T) {
	_, ts := testServer(t, nil, WithSessionIDs(func() string { return "generated" }))

	id, err := testClient(ts).CreateSession(context.Background(), api.CreateSessionRequest{ClientName: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
}

func TestCreateSession_Conflict(t *testing.T) {
	_, ts := testServer(t, nil)
	req := api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"}

	_, err := testClient(ts).CreateSession(context.Background(), req)
	require.NoError(t, err)

	_, err = testClient(ts).CreateSession(context.Background(), req)
	require.Error(t, err)
	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

func TestCreateSession_RequiresName(t *testing.T) {
	_, ts := testServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/chat/sessions", api.CreateSessionRequest{SessionID: "S1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body api.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.Contains(t, body.Error, "client_name")
}

func TestBadJSON(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Post(ts.URL+"/api/chat/messages", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMessages_UnknownSession(t *testing.T) {
	_, ts := testServer(t, nil)

	resp, err := http.Get(ts.URL + "/api/chat/messages?session_id=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/chat/messages")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)

	resp3 := postJSON(t, ts.URL+"/api/chat/messages", api.SendMessageRequest{SessionID: "nope", MessageContent: "hi"})
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestMessages_EmptyListIsArray(t *testing.T) {
	_, ts := testServer(t, nil)
	_, err := testClient(ts).CreateSession(context.Background(), api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/chat/messages?session_id=S1")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.JSONEq(t, `[]`, string(raw["messages"]))
}

func TestSendMessage_InvalidSender(t *testing.T) {
	_, ts := testServer(t, nil)

	resp := postJSON(t, ts.URL+"/api/chat/messages", map[string]any{
		"session_id":      "S1",
		"sender_type":     "robot",
		"message_content": "hi",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, ts := testServer(t, func(c *config.DeskConfig) {
		c.RateLimit = config.RateLimitConfig{PerMinute: 1, Burst: 1}
	})
	body := api.InitialMessageRequest{TempSessionID: "temp_1", MessageContent: "hi"}

	first := postJSON(t, ts.URL+"/api/chat/initial-message", body)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, ts.URL+"/api/chat/initial-message", body)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "60", second.Header.Get("Retry-After"))

	// reads are never limited
	resp, err := http.Get(ts.URL + "/api/chat/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHooks(t *testing.T) {
	hm := hooks.NewManager(logging.Nop())
	var mu sync.Mutex
	seen := map[string]int{}
	for _, ev := range []string{hooks.EventSessionStart, hooks.EventMessageReceived, hooks.EventAgentConnected, hooks.EventMessageSending} {
		ev := ev
		hm.On(ev, "test", func(_ context.Context, _ hooks.Payload) error {
			mu.Lock()
			defer mu.Unlock()
			seen[ev]++
			return nil
		})
	}
	_, ts := testServer(t, nil, WithHooks(hm))
	client := testClient(ts)
	ctx := context.Background()

	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{SessionID: "S1", SenderName: "Ana", MessageContent: "hi"}))

	conn := authenticatedConn(t, ts)
	defer conn.Close()
	call(t, conn, "r1", "chat.reply", chatReplyParams{SessionID: "S1", Message: "Bonjour Ana"})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[hooks.EventSessionStart] == 1 &&
			seen[hooks.EventMessageReceived] == 1 &&
			seen[hooks.EventAgentConnected] == 1 &&
			seen[hooks.EventMessageSending] == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCORS(t *testing.T) {
	_, ts := testServer(t, func(c *config.DeskConfig) { c.AllowedOrigins = []string{"https://shop.example"} })

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat/messages", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://shop.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://shop.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestListenAddr(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.DeskConfig
		want string
	}{
		{"loopback", config.DeskConfig{Port: 8088, Bind: "loopback"}, "127.0.0.1:8088"},
		{"default", config.DeskConfig{Port: 8088}, "127.0.0.1:8088"},
		{"lan", config.DeskConfig{Port: 9000, Bind: "lan"}, "0.0.0.0:9000"},
		{"custom", config.DeskConfig{Port: 9000, Bind: "custom", CustomBindHost: "10.0.0.5"}, "10.0.0.5:9000"},
		{"custom ipv6", config.DeskConfig{Port: 9000, Bind: "custom", CustomBindHost: "::1"}, "[::1]:9000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ListenAddr(tt.cfg))
		})
	}
}

func TestServeAndShutdown(t *testing.T) {
	hm := hooks.NewManager(logging.Nop())
	var mu sync.Mutex
	var events []string
	for _, ev := range []string{hooks.EventDeskStart, hooks.EventDeskStop} {
		ev := ev
		hm.On(ev, "test", func(_ context.Context, _ hooks.Payload) error {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, ev)
			return nil
		})
	}

	cfg := config.Defaults().Desk
	srv := New(cfg, testChatStore(t), logging.Nop(), WithHooks(hm))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{hooks.EventDeskStart, hooks.EventDeskStop}, events)
}
