package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/soyeahso/livechat/internal/version"
)

const handshakeTimeout = 10 * time.Second

// RequestHandler processes an incoming RPC request frame from an agent.
type RequestHandler func(rc *RequestContext)

// RequestContext carries everything a handler needs.
type RequestContext struct {
	Ctx    context.Context
	Agent  *Agent
	Frame  Frame
	Server *Server
}

// Respond sends a success response.
func (rc *RequestContext) Respond(payload any) {
	if err := rc.Agent.Respond(rc.Frame.ID, payload); err != nil {
		rc.Server.log.Warn().Err(err).Str("method", rc.Frame.Method).Msg("failed to send response")
	}
}

// RespondError sends an error response.
func (rc *RequestContext) RespondError(code, message string) {
	rc.Agent.RespondError(rc.Frame.ID, ErrorShape{Code: code, Message: message})
}

// Params unmarshals the request params into target.
func (rc *RequestContext) Params(target any) error {
	if len(rc.Frame.Params) == 0 || string(rc.Frame.Params) == "null" {
		return nil
	}
	return json.Unmarshal(rc.Frame.Params, target)
}

// handleWebSocket upgrades to WebSocket and runs the console connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authLimiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited: too many failed auth attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayloadBytes)

	agent, hello, err := s.handshake(conn)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("handshake failed")
		s.authLimiter.recordFailure(r.RemoteAddr)
		conn.Close()
		return
	}

	// added before hello: presence counts the agent once the console is connected
	s.agents.Add(agent)
	if err := agent.Send(hello); err != nil {
		s.log.Warn().Err(err).Str("connId", agent.ConnID).Msg("sending hello failed")
		s.agents.Remove(agent.ConnID)
		agent.Close()
		return
	}
	s.metrics.AgentsOnline(s.agents.OnlineCount())
	s.hooks.Emit(r.Context(), hooks.EventAgentConnected, map[string]any{
		"connId": agent.ConnID,
		"agent":  agent.Name(),
	})
	defer func() {
		s.agents.Remove(agent.ConnID)
		s.metrics.AgentsOnline(s.agents.OnlineCount())
		agent.Close()
	}()

	s.readLoop(r.Context(), agent)
}

// handshake authenticates a console.
// Flow: server sends challenge, agent sends connect, server validates and sends hello.
func (s *Server) handshake(conn *websocket.Conn) (*Agent, Frame, error) {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))

	challenge, err := NewEvent(EventChallenge, map[string]any{
		"nonce": uuid.New().String(),
		"ts":    time.Now().UnixMilli(),
	}, 0)
	if err != nil {
		return nil, Frame{}, fmt.Errorf("creating challenge: %w", err)
	}
	if err := conn.WriteJSON(challenge); err != nil {
		return nil, Frame{}, fmt.Errorf("sending challenge: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, Frame{}, fmt.Errorf("reading connect: %w", err)
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		return nil, Frame{}, fmt.Errorf("parsing connect frame: %w", err)
	}
	if frame.Type != FrameTypeRequest || frame.Method != "connect" {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "expected connect request")
		return nil, Frame{}, fmt.Errorf("expected connect request, got type=%s method=%s", frame.Type, frame.Method)
	}

	var params ConnectParams
	if err := json.Unmarshal(frame.Params, &params); err != nil {
		sendErrorAndClose(conn, frame.ID, "invalid_params", "invalid connect params")
		return nil, Frame{}, fmt.Errorf("parsing connect params: %w", err)
	}
	if params.MaxProtocol != 0 && params.MaxProtocol < ProtocolVersion {
		sendErrorAndClose(conn, frame.ID, "protocol_error", "unsupported protocol version")
		return nil, Frame{}, fmt.Errorf("unsupported protocol range %d-%d", params.MinProtocol, params.MaxProtocol)
	}

	authResult := Authorize(s.auth, params.Auth)
	if !authResult.OK {
		sendErrorAndClose(conn, frame.ID, "unauthorized", authResult.Reason)
		return nil, Frame{}, fmt.Errorf("auth failed: %s", authResult.Reason)
	}

	conn.SetReadDeadline(time.Time{})
	agent := NewAgent(conn, params.Client, authResult)

	hello := HelloOK{
		Protocol: ProtocolVersion,
		Server: ServerInfo{
			Version: s.version,
			Commit:  version.Commit,
			ConnID:  agent.ConnID,
		},
		Features: Features{
			Methods: s.Methods(),
			Events:  []string{EventChallenge, EventSessionCreated, EventChatMessage},
		},
		Policy: ServerPolicy{
			MaxPayload:       maxPayloadBytes,
			MaxBufferedBytes: maxBufferedBytes,
		},
	}
	resp, err := NewResponse(frame.ID, hello)
	if err != nil {
		return nil, Frame{}, fmt.Errorf("creating hello response: %w", err)
	}

	s.log.Info().
		Str("connId", agent.ConnID).
		Str("clientId", params.Client.ID).
		Str("clientVersion", params.Client.Version).
		Str("authMethod", authResult.Method).
		Msg("agent authenticated")

	return agent, resp, nil
}

// readLoop processes incoming frames from an authenticated agent.
func (s *Server) readLoop(ctx context.Context, agent *Agent) {
	for {
		frame, err := agent.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, websocket.ErrCloseSent) {
				s.log.Debug().Str("connId", agent.ConnID).Msg("agent closed connection")
			} else {
				s.log.Debug().Err(err).Str("connId", agent.ConnID).Msg("read error")
			}
			return
		}

		if frame.Type != FrameTypeRequest {
			s.log.Debug().Str("type", frame.Type).Msg("ignoring non-request frame")
			continue
		}
		s.dispatch(ctx, agent, frame)
	}
}

// dispatch routes a request frame to the registered handler.
func (s *Server) dispatch(ctx context.Context, agent *Agent, frame Frame) {
	handler, ok := s.handlers[frame.Method]
	if !ok {
		agent.RespondError(frame.ID, ErrorShape{
			Code:    "method_not_found",
			Message: "unknown method: " + frame.Method,
		})
		return
	}
	handler(&RequestContext{Ctx: ctx, Agent: agent, Frame: frame, Server: s})
}

func sendErrorAndClose(conn *websocket.Conn, reqID, code, message string) {
	conn.WriteJSON(NewErrorResponse(reqID, ErrorShape{Code: code, Message: message}))
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, message))
}

// registerRPCHandlers sets up the console methods.
func (s *Server) registerRPCHandlers() {
	s.Handle("health", s.rpcHealth)
	s.Handle("agent.status", s.rpcAgentStatus)
	s.Handle("channels.status", s.rpcChannelsStatus)
	s.Handle("session.list", s.rpcSessionList)
	s.Handle("chat.history", s.rpcChatHistory)
	s.Handle("chat.reply", s.rpcChatReply)
	s.Handle("chat.search", s.rpcChatSearch)
}

func (s *Server) rpcHealth(rc *RequestContext) {
	rc.Respond(HealthResponse{
		Status:       "ok",
		Version:      s.version,
		Agents:       s.agents.Count(),
		AgentsOnline: s.AgentsOnline(),
		UptimeMs:     s.uptime().Milliseconds(),
	})
}

type agentStatusParams struct {
	Online bool `json:"online"`
}

func (s *Server) rpcAgentStatus(rc *RequestContext) {
	var p agentStatusParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	rc.Agent.SetOnline(p.Online)
	n := s.agents.OnlineCount()
	s.metrics.AgentsOnline(n)
	s.log.Info().Str("agent", rc.Agent.Name()).Bool("online", p.Online).Msg("agent status changed")
	rc.Respond(map[string]any{"online": p.Online, "agentsOnline": n, "presence": s.AgentsOnline()})
}

func (s *Server) rpcChannelsStatus(rc *RequestContext) {
	statuses := []domain.ChannelStatus{}
	if s.channels != nil {
		statuses = s.channels.Status()
	}
	rc.Respond(map[string]any{"channels": statuses})
}

type sessionListParams struct {
	Limit int `json:"limit,omitempty"`
}

func (s *Server) rpcSessionList(rc *RequestContext) {
	var p sessionListParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	sessions, err := s.chats.ListSessions(rc.Ctx, p.Limit)
	if err != nil {
		s.log.Error().Err(err).Msg("session.list failed")
		rc.RespondError("internal", "listing sessions failed")
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	rc.Respond(map[string]any{"sessions": sessions})
}

type chatHistoryParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) rpcChatHistory(rc *RequestContext) {
	var p chatHistoryParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return
	}
	sess, err := s.chats.GetSession(rc.Ctx, p.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		rc.RespondError("not_found", "unknown session: "+p.SessionID)
		return
	}
	if err != nil {
		rc.RespondError("internal", "loading session failed")
		return
	}
	msgs, err := s.chats.Messages(rc.Ctx, p.SessionID)
	if err != nil {
		rc.RespondError("internal", "loading messages failed")
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	rc.Respond(map[string]any{"session": sess, "messages": msgs})
}

type chatReplyParams struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	ImageURL  string `json:"imageUrl,omitempty"`
	ImageName string `json:"imageName,omitempty"`
}

func (s *Server) rpcChatReply(rc *RequestContext) {
	var p chatReplyParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if p.SessionID == "" {
		rc.RespondError("invalid_params", "sessionId is required")
		return
	}
	if strings.TrimSpace(p.Message) == "" && p.ImageURL == "" {
		rc.RespondError("invalid_params", "message or imageUrl is required")
		return
	}

	stored, err := s.reply(rc.Ctx, p.SessionID, rc.Agent.Name(), p.Message, p.ImageURL, p.ImageName)
	if errors.Is(err, store.ErrNotFound) {
		rc.RespondError("not_found", "unknown session: "+p.SessionID)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("session", p.SessionID).Msg("chat.reply failed")
		rc.RespondError("internal", "storing reply failed")
		return
	}
	rc.Respond(map[string]any{"message": stored})
}

// reply stores an agent message and fans it out to consoles and relays.
func (s *Server) reply(ctx context.Context, sessionID, agentName, text, imageURL, imageName string) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		SessionID:   sessionID,
		SenderType:  domain.SenderAgent,
		SenderName:  agentName,
		Content:     text,
		MessageType: domain.MessageText,
		ImageURL:    imageURL,
		ImageName:   imageName,
	}
	if imageURL != "" {
		msg.MessageType = domain.MessageImage
	}
	s.hooks.Emit(ctx, hooks.EventMessageSending, map[string]any{
		"session": sessionID,
		"agent":   agentName,
		"text":    text,
	})

	stored, err := s.chats.AddMessage(ctx, msg)
	if err != nil {
		return stored, err
	}
	s.metrics.MessageStored(string(domain.SenderAgent))
	s.broadcast(EventChatMessage, stored)
	return stored, nil
}

type chatSearchParams struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) rpcChatSearch(rc *RequestContext) {
	var p chatSearchParams
	if err := rc.Params(&p); err != nil {
		rc.RespondError("invalid_params", err.Error())
		return
	}
	if strings.TrimSpace(p.Query) == "" {
		rc.RespondError("invalid_params", "query is required")
		return
	}
	msgs, err := s.chats.SearchMessages(rc.Ctx, p.Query, p.Limit)
	if err != nil {
		s.log.Error().Err(err).Msg("chat.search failed")
		rc.RespondError("internal", "search failed")
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	rc.Respond(map[string]any{"messages": msgs})
}
