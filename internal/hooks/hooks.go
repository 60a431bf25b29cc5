// Package hooks dispatches livechat lifecycle events to registered handlers.
package hooks

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/livechat/internal/logging"
)

// Event names for the hook system.
const (
	EventMessageReceived = "message_received" // agent message reached the widget, or visitor message reached the desk
	EventMessageSending  = "message_sending"
	EventContactSubmit   = "contact_submit"
	EventSessionStart    = "session_start"
	EventSessionEnd      = "session_end"
	EventAgentConnected  = "agent_connected"
	EventDeskStart       = "desk_start"
	EventDeskStop        = "desk_stop"
)

// AllEvents lists all known hook event names.
var AllEvents = []string{
	EventMessageReceived,
	EventMessageSending,
	EventContactSubmit,
	EventSessionStart,
	EventSessionEnd,
	EventAgentConnected,
	EventDeskStart,
	EventDeskStop,
}

// Known reports whether event is one of AllEvents.
func Known(event string) bool {
	return slices.Contains(AllEvents, event)
}

// Payload is what a handler receives. It is also the JSON document piped to
// command hooks.
type Payload struct {
	Event string         `json:"event"`
	Time  time.Time      `json:"time"`
	Data  map[string]any `json:"data,omitempty"`
}

// Handler handles one event. A returned error is logged and does not stop
// the remaining handlers.
type Handler func(ctx context.Context, p Payload) error

type namedHandler struct {
	name    string
	handler Handler
}

// Manager holds hook registrations. A nil *Manager is valid and drops every
// event, so components can emit unconditionally.
type Manager struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	log      *logging.Logger
	now      func() time.Time
	pending  sync.WaitGroup
}

// NewManager creates a hook manager.
func NewManager(log *logging.Logger) *Manager {
	return &Manager{
		handlers: make(map[string][]namedHandler),
		log:      log.Sub("hooks"),
		now:      time.Now,
	}
}

// On registers handler for event under name.
func (m *Manager) On(event, name string, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], namedHandler{name: name, handler: handler})
	m.log.Debug().Str("event", event).Str("handler", name).Msg("hook registered")
}

// Off removes every handler registered for event under name.
func (m *Manager) Off(event, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = slices.DeleteFunc(m.handlers[event], func(h namedHandler) bool {
		return h.name == name
	})
}

func (m *Manager) snapshot(event string) []namedHandler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.handlers[event])
}

// Emit runs the handlers of event in registration order and returns when
// they are done.
func (m *Manager) Emit(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now(), Data: data}
	for _, h := range handlers {
		m.run(ctx, h, p)
	}
}

// EmitAsync starts every handler of event in its own goroutine and returns
// immediately. Wait blocks until they finish.
func (m *Manager) EmitAsync(ctx context.Context, event string, data map[string]any) {
	if m == nil {
		return
	}
	handlers := m.snapshot(event)
	if len(handlers) == 0 {
		return
	}
	p := Payload{Event: event, Time: m.now(), Data: data}
	m.pending.Add(len(handlers))
	for _, h := range handlers {
		go func() {
			defer m.pending.Done()
			m.run(ctx, h, p)
		}()
	}
}

func (m *Manager) run(ctx context.Context, h namedHandler, p Payload) {
	start := m.now()
	err := h.handler(ctx, p)
	ev := m.log.Debug()
	if err != nil {
		ev = m.log.Warn().Err(err)
	}
	ev.Str("event", p.Event).
		Str("handler", h.name).
		Dur("took", m.now().Sub(start)).
		Msg("hook handled")
}

// Wait blocks until async handlers started so far have returned, or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	if m == nil {
		return nil
	}
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the number of handlers registered for event.
func (m *Manager) Count(event string) int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers[event])
}

// Events returns the events with at least one handler, sorted.
func (m *Manager) Events() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]string, 0, len(m.handlers))
	for event, handlers := range m.handlers {
		if len(handlers) > 0 {
			events = append(events, event)
		}
	}
	sort.Strings(events)
	return events
}
