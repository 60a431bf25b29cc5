package desk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/store"
)

const maxRequestBytes = 1 << 20

// HealthResponse is returned by health endpoints. The public HTTP endpoint
// only populates Status; the console RPC populates all fields.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version,omitempty"`
	Agents       int    `json:"agents,omitempty"`
	AgentsOnline bool   `json:"agentsOnline,omitempty"`
	UptimeMs     int64  `json:"uptimeMs,omitempty"`
}

type statusPayload struct {
	IsOnline bool `json:"is_online"`
}

type statusResponse struct {
	Success bool          `json:"success"`
	Status  statusPayload `json:"status"`
}

type createSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
}

type transferResponse struct {
	Success     bool  `json:"success"`
	Transferred int64 `json:"transferred"`
}

type messagesResponse struct {
	Success  bool                 `json:"success"`
	Messages []domain.ChatMessage `json:"messages"`
}

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	visitor := func(h http.HandlerFunc) http.Handler {
		return rateLimitMiddleware(h, s.visitors, s.metrics.RateLimited)
	}
	mux.Handle("GET "+s.api.Presence, http.HandlerFunc(s.handleStatus))
	mux.Handle("POST "+s.api.InitialMessage, visitor(s.handleInitialMessage))
	mux.Handle("POST "+s.api.CreateSession, visitor(s.handleCreateSession))
	mux.Handle("POST "+s.api.Transfer, visitor(s.handleTransfer))
	mux.Handle("GET "+s.api.Messages, http.HandlerFunc(s.handleListMessages))
	mux.Handle("POST "+s.api.Messages, visitor(s.handleSendMessage))

	mux.HandleFunc("/", handleNotFound)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"success": false,
		"error":   "not found",
		"path":    r.URL.Path,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Status:  statusPayload{IsOnline: s.AgentsOnline()},
	})
}

func (s *Server) handleInitialMessage(w http.ResponseWriter, r *http.Request) {
	var req api.InitialMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.TempSessionID = strings.TrimSpace(req.TempSessionID)
	if req.TempSessionID == "" || strings.TrimSpace(req.MessageContent) == "" {
		writeError(w, http.StatusBadRequest, "temp_session_id and message_content are required")
		return
	}
	if req.MessageType == "" {
		req.MessageType = domain.MessageText
	}

	msg, err := s.chats.AddInitialMessage(r.Context(), req.TempSessionID, req.MessageContent, req.MessageType)
	if err != nil {
		s.internalError(w, "store initial message", err)
		return
	}
	s.metrics.MessageStored(string(domain.SenderClient))
	s.log.Debug().Str("tempSession", req.TempSessionID).Int64("id", msg.ID).Msg("initial message stored")

	s.hooks.EmitAsync(context.WithoutCancel(r.Context()), hooks.EventMessageReceived, map[string]any{
		"session": req.TempSessionID,
		"temp":    true,
		"text":    msg.Content,
	})
	s.relayVisitor(r.Context(), req.TempSessionID, "visitor", msg.Content)
	writeJSON(w, http.StatusOK, api.Response{Success: true})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req api.CreateSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess := domain.ChatSession{
		ID:          strings.TrimSpace(req.SessionID),
		ClientName:  strings.TrimSpace(req.ClientName),
		ClientEmail: strings.TrimSpace(req.ClientEmail),
		ClientPhone: strings.TrimSpace(req.ClientPhone),
	}
	if sess.ClientName == "" {
		writeError(w, http.StatusBadRequest, "client_name is required")
		return
	}
	if sess.ID == "" {
		sess.ID = s.newSessionID()
	}

	created, err := s.chats.CreateSession(r.Context(), sess)
	if errors.Is(err, store.ErrSessionExists) {
		writeError(w, http.StatusConflict, "session already exists")
		return
	}
	if err != nil {
		s.internalError(w, "create session", err)
		return
	}

	s.metrics.SessionCreated()
	s.log.Info().Str("session", created.ID).Str("client", created.ClientName).Msg("session created")
	s.broadcast(EventSessionCreated, created)
	s.hooks.EmitAsync(context.WithoutCancel(r.Context()), hooks.EventSessionStart, map[string]any{
		"session": created.ID,
		"name":    created.ClientName,
	})
	s.relayVisitor(r.Context(), created.ID, created.ClientName,
		fmt.Sprintf("new session (%s, %s)", created.ClientEmail, created.ClientPhone))
	writeJSON(w, http.StatusOK, createSessionResponse{Success: true, SessionID: created.ID})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req api.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TempSessionID == "" || req.RealSessionID == "" {
		writeError(w, http.StatusBadRequest, "temp_session_id and real_session_id are required")
		return
	}

	n, err := s.chats.TransferMessages(r.Context(), req.TempSessionID, req.RealSessionID, req.ClientName)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err != nil {
		s.internalError(w, "transfer messages", err)
		return
	}
	s.log.Debug().
		Str("from", req.TempSessionID).
		Str("to", req.RealSessionID).
		Int64("count", n).
		Msg("messages transferred")
	writeJSON(w, http.StatusOK, transferResponse{Success: true, Transferred: n})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if _, err := s.chats.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		s.internalError(w, "load session", err)
		return
	}

	msgs, err := s.chats.Messages(r.Context(), sessionID)
	if err != nil {
		s.internalError(w, "list messages", err)
		return
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Success: true, Messages: msgs})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SessionID == "" || strings.TrimSpace(req.MessageContent) == "" {
		writeError(w, http.StatusBadRequest, "session_id and message_content are required")
		return
	}
	switch req.SenderType {
	case "":
		req.SenderType = domain.SenderClient
	case domain.SenderClient, domain.SenderAgent, domain.SenderSystem:
	default:
		writeError(w, http.StatusBadRequest, "invalid sender_type")
		return
	}

	stored, err := s.storeMessage(r, domain.ChatMessage{
		SessionID:   req.SessionID,
		SenderType:  req.SenderType,
		SenderName:  req.SenderName,
		Content:     req.MessageContent,
		MessageType: req.MessageType,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	if err != nil {
		s.internalError(w, "store message", err)
		return
	}

	if stored.SenderType == domain.SenderClient {
		s.hooks.EmitAsync(context.WithoutCancel(r.Context()), hooks.EventMessageReceived, map[string]any{
			"session": stored.SessionID,
			"name":    stored.SenderName,
			"text":    stored.Content,
		})
		s.relayVisitor(r.Context(), stored.SessionID, stored.SenderName, stored.Content)
	}
	writeJSON(w, http.StatusOK, api.Response{Success: true})
}

func (s *Server) storeMessage(r *http.Request, msg domain.ChatMessage) (domain.ChatMessage, error) {
	stored, err := s.chats.AddMessage(r.Context(), msg)
	if err != nil {
		return stored, err
	}
	s.metrics.MessageStored(string(stored.SenderType))
	s.broadcast(EventChatMessage, stored)
	return stored, nil
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.log.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.Response{Success: false, Error: msg})
}
