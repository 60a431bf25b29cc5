package desk

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/livechat/internal/logging"
)

var ErrAgentClosed = errors.New("desk: agent connection closed")

// Agent is an authenticated console connection.
type Agent struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	mu     sync.Mutex
	online bool
	closed bool
}

// NewAgent wraps a freshly authenticated connection. Agents start online.
func NewAgent(conn *websocket.Conn, info ClientInfo, authResult AuthResult) *Agent {
	return &Agent{
		ConnID:      uuid.New().String(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
		online:      true,
	}
}

// Name is the sender name used for this agent's replies.
func (a *Agent) Name() string {
	if a.Info.DisplayName != "" {
		return a.Info.DisplayName
	}
	if a.Info.ID != "" {
		return a.Info.ID
	}
	return "Agent"
}

func (a *Agent) Online() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.online
}

func (a *Agent) SetOnline(online bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.online = online
}

// Send writes a frame to the agent. Safe for concurrent use.
func (a *Agent) Send(frame Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAgentClosed
	}
	return a.Socket.WriteJSON(frame)
}

// SendEvent sends a named event with payload.
func (a *Agent) SendEvent(event string, payload any, seq int64) error {
	f, err := NewEvent(event, payload, seq)
	if err != nil {
		return err
	}
	return a.Send(f)
}

// Respond sends a success response for the given request ID.
func (a *Agent) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return a.Send(f)
}

// RespondError sends an error response for the given request ID.
func (a *Agent) RespondError(reqID string, errShape ErrorShape) error {
	return a.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the socket.
func (a *Agent) ReadFrame() (Frame, error) {
	_, msg, err := a.Socket.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection. Repeated calls are no-ops.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.Socket.Close()
}

// AgentRegistry tracks connected console agents.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]*Agent // connID -> Agent
	log    *logging.Logger
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry(log *logging.Logger) *AgentRegistry {
	return &AgentRegistry{
		agents: make(map[string]*Agent),
		log:    log,
	}
}

func (r *AgentRegistry) Add(a *Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.ConnID] = a
	r.log.Info().Str("connId", a.ConnID).Str("agent", a.Name()).Msg("agent connected")
}

func (r *AgentRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, connID)
	r.log.Info().Str("connId", connID).Msg("agent disconnected")
}

func (r *AgentRegistry) Get(connID string) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[connID]
	return a, ok
}

// Count returns the number of connected agents.
func (r *AgentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// OnlineCount returns the number of connected agents marked online.
func (r *AgentRegistry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, a := range r.agents {
		if a.Online() {
			n++
		}
	}
	return n
}

// Broadcast sends an event frame to every connected agent.
func (r *AgentRegistry) Broadcast(event string, payload any, seq int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if err := a.SendEvent(event, payload, seq); err != nil {
			r.log.Warn().Err(err).Str("connId", a.ConnID).Msg("broadcast send failed")
		}
	}
}

// CloseAll closes and forgets every agent.
func (r *AgentRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.agents {
		a.Close()
		delete(r.agents, id)
	}
}
