package desk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func connectFrame(t *testing.T, auth *ConnectAuth) Frame {
	t.Helper()
	f, err := NewRequest("req-1", "connect", ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client: ClientInfo{
			ID:          "console-1",
			DisplayName: "Maria",
			Version:     "1.0.0",
			Platform:    "linux",
		},
		Auth: auth,
	})
	require.NoError(t, err)
	return f
}

// authenticatedConn dials the console and completes the handshake.
func authenticatedConn(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.Equal(t, EventChallenge, challenge.Event)

	require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: testToken})))

	var hello Frame
	require.NoError(t, conn.ReadJSON(&hello))
	require.NotNil(t, hello.OK)
	require.True(t, *hello.OK)
	return conn
}

// call sends one RPC and returns its response, skipping interleaved events.
func call(t *testing.T, conn *websocket.Conn, id, method string, params any) Frame {
	t.Helper()
	req, err := NewRequest(id, method, params)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(req))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeResponse && f.ID == id {
			return f
		}
	}
}

// nextEvent reads frames until the named event arrives.
func nextEvent(t *testing.T, conn *websocket.Conn, name string) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == FrameTypeEvent && f.Event == name {
			return f
		}
	}
}

func decodePayload(t *testing.T, f Frame, v any) {
	t.Helper()
	require.NotNil(t, f.OK)
	require.True(t, *f.OK, "rpc error: %+v", f.Error)
	require.NoError(t, json.Unmarshal(f.Payload, v))
}

func TestWebSocketHandshakeSuccess(t *testing.T) {
	srv, ts := testServer(t, nil)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	assert.Equal(t, FrameTypeEvent, challenge.Type)
	assert.Equal(t, EventChallenge, challenge.Event)

	require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: testToken})))

	var helloResp Frame
	require.NoError(t, conn.ReadJSON(&helloResp))
	assert.Equal(t, "req-1", helloResp.ID)

	var hello HelloOK
	decodePayload(t, helloResp, &hello)
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, srv.Methods(), hello.Features.Methods)
	assert.Contains(t, hello.Features.Methods, "chat.reply")
	assert.Contains(t, hello.Features.Events, EventChatMessage)
	assert.Equal(t, maxPayloadBytes, hello.Policy.MaxPayload)

	assert.Eventually(t, func() bool { return srv.agents.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestWebSocketHandshakeWrongToken(t *testing.T) {
	_, ts := testServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	require.NoError(t, conn.WriteJSON(connectFrame(t, &ConnectAuth{Token: "wrong-token"})))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	assert.Equal(t, FrameTypeResponse, errResp.Type)
	require.NotNil(t, errResp.OK)
	assert.False(t, *errResp.OK)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "unauthorized", errResp.Error.Code)
}

func TestWebSocketHandshakeNotConnect(t *testing.T) {
	_, ts := testServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	var challenge Frame
	require.NoError(t, conn.ReadJSON(&challenge))
	req, _ := NewRequest("x", "health", nil)
	require.NoError(t, conn.WriteJSON(req))

	var errResp Frame
	require.NoError(t, conn.ReadJSON(&errResp))
	require.NotNil(t, errResp.Error)
	assert.Equal(t, "protocol_error", errResp.Error.Code)
}

func TestWebSocketAuthRateLimit(t *testing.T) {
	srv, ts := testServer(t, nil)
	for i := 0; i < authRateMaxFails; i++ {
		srv.authLimiter.recordFailure("127.0.0.1:1")
	}

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRPCHealth(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := authenticatedConn(t, ts)
	defer conn.Close()

	var health HealthResponse
	decodePayload(t, call(t, conn, "req-2", "health", nil), &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.Agents)
	assert.True(t, health.AgentsOnline)
}

func TestRPCUnknownMethod(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := authenticatedConn(t, ts)
	defer conn.Close()

	resp := call(t, conn, "req-6", "nonexistent.method", nil)
	require.NotNil(t, resp.OK)
	assert.False(t, *resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "method_not_found", resp.Error.Code)
}

func TestRPCChatReply(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	client := testClient(ts)
	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)

	conn := authenticatedConn(t, ts)
	defer conn.Close()

	var out struct {
		Message domain.ChatMessage `json:"message"`
	}
	decodePayload(t, call(t, conn, "r1", "chat.reply", chatReplyParams{SessionID: "S1", Message: "Bonjour Ana"}), &out)
	assert.Equal(t, domain.SenderAgent, out.Message.SenderType)
	assert.Equal(t, "Maria", out.Message.SenderName)

	msgs, err := client.FetchMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.SenderAgent, msgs[0].SenderType)
	assert.Equal(t, "Bonjour Ana", msgs[0].MessageContent)
}

func TestRPCChatReplyImage(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	client := testClient(ts)
	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)

	conn := authenticatedConn(t, ts)
	defer conn.Close()
	decodePayload(t, call(t, conn, "r1", "chat.reply", chatReplyParams{SessionID: "S1", ImageURL: "/uploads/a.png", ImageName: "a.png"}), &struct{}{})

	msgs, err := client.FetchMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "/uploads/a.png", msgs[0].ImageURL)
	assert.Empty(t, msgs[0].MessageContent)
}

func TestRPCChatReplyErrors(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := authenticatedConn(t, ts)
	defer conn.Close()

	resp := call(t, conn, "r1", "chat.reply", chatReplyParams{SessionID: "missing", Message: "hi"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)

	resp = call(t, conn, "r2", "chat.reply", chatReplyParams{SessionID: "S1"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestConsoleEvents(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	conn := authenticatedConn(t, ts)
	defer conn.Close()
	client := testClient(ts)

	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)

	var sess domain.ChatSession
	ev := nextEvent(t, conn, EventSessionCreated)
	require.NoError(t, json.Unmarshal(ev.Payload, &sess))
	assert.Equal(t, "S1", sess.ID)
	assert.Equal(t, "Ana", sess.ClientName)
	assert.Positive(t, ev.Seq)

	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{SessionID: "S1", SenderName: "Ana", MessageContent: "Une question"}))

	var msg domain.ChatMessage
	ev = nextEvent(t, conn, EventChatMessage)
	require.NoError(t, json.Unmarshal(ev.Payload, &msg))
	assert.Equal(t, "Une question", msg.Content)
	assert.Equal(t, domain.SenderClient, msg.SenderType)
}

func TestRPCSessionListAndHistory(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	client := testClient(ts)
	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{SessionID: "S1", SenderName: "Ana", MessageContent: "Livraison ?"}))

	conn := authenticatedConn(t, ts)
	defer conn.Close()

	var list struct {
		Sessions []store.SessionSummary `json:"sessions"`
	}
	decodePayload(t, call(t, conn, "l1", "session.list", sessionListParams{Limit: 10}), &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "S1", list.Sessions[0].ID)
	assert.Equal(t, 1, list.Sessions[0].MessageCount)
	assert.Equal(t, "Livraison ?", list.Sessions[0].LastMessage)

	var hist struct {
		Session  domain.ChatSession   `json:"session"`
		Messages []domain.ChatMessage `json:"messages"`
	}
	decodePayload(t, call(t, conn, "h1", "chat.history", chatHistoryParams{SessionID: "S1"}), &hist)
	assert.Equal(t, "Ana", hist.Session.ClientName)
	require.Len(t, hist.Messages, 1)

	resp := call(t, conn, "h2", "chat.history", chatHistoryParams{SessionID: "nope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func TestRPCChatSearch(t *testing.T) {
	ctx := context.Background()
	_, ts := testServer(t, nil)
	client := testClient(ts)
	_, err := client.CreateSession(ctx, api.CreateSessionRequest{SessionID: "S1", ClientName: "Ana"})
	require.NoError(t, err)
	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{SessionID: "S1", MessageContent: "ma commande est en retard"}))
	require.NoError(t, client.SendMessage(ctx, api.SendMessageRequest{SessionID: "S1", MessageContent: "merci"}))

	conn := authenticatedConn(t, ts)
	defer conn.Close()

	var out struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	decodePayload(t, call(t, conn, "s1", "chat.search", chatSearchParams{Query: "commande"}), &out)
	require.Len(t, out.Messages, 1)
	assert.Contains(t, out.Messages[0].Content, "commande")

	resp := call(t, conn, "s2", "chat.search", chatSearchParams{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_params", resp.Error.Code)
}

func TestRPCChannelsStatus(t *testing.T) {
	_, ts := testServer(t, nil)
	conn := authenticatedConn(t, ts)
	defer conn.Close()

	var out struct {
		Channels []domain.ChannelStatus `json:"channels"`
	}
	decodePayload(t, call(t, conn, "c1", "channels.status", nil), &out)
	assert.Empty(t, out.Channels)
}
