// Package desk is the agent side of the live chat: it serves the chat API the
// widget talks to, stores conversations in SQLite, and lets agents answer from
// a WebSocket console or an IRC relay.
package desk

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/livechat/internal/channel"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/metrics"
	"github.com/soyeahso/livechat/internal/store"
	"github.com/soyeahso/livechat/internal/version"
	"github.com/soyeahso/livechat/internal/widget"
)

// Server is the desk HTTP + WebSocket server.
type Server struct {
	cfg      config.DeskConfig
	api      config.EndpointsConfig
	chats    *store.ChatStore
	auth     ResolvedAuth
	log      *logging.Logger
	agents   *AgentRegistry
	handlers map[string]RequestHandler
	version  string
	eventSeq atomic.Int64

	channels *channel.Registry
	hooks    *hooks.Manager
	metrics  *metrics.Desk

	newSessionID func() string

	visitors    *visitorLimiter
	authLimiter *authRateLimiter
	upgrader    websocket.Upgrader

	mu         sync.Mutex
	startedAt  time.Time
	httpServer *http.Server
	addr       string
}

// ServerOption configures the desk server.
type ServerOption func(*Server)

// WithChannels sets the relay channel registry.
func WithChannels(ch *channel.Registry) ServerOption {
	return func(s *Server) { s.channels = ch }
}

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) { s.hooks = hm }
}

// WithMetrics replaces the default metrics collectors.
func WithMetrics(m *metrics.Desk) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithEndpoints mounts the chat API on custom paths.
func WithEndpoints(e config.EndpointsConfig) ServerOption {
	return func(s *Server) { s.api = e }
}

// WithSessionIDs replaces the generator used when a client does not propose a session id.
func WithSessionIDs(gen func() string) ServerOption {
	return func(s *Server) { s.newSessionID = gen }
}

// New creates a desk server backed by chats.
func New(cfg config.DeskConfig, chats *store.ChatStore, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:          cfg,
		api:          config.Defaults().API.Endpoints,
		chats:        chats,
		auth:         ResolveAuth(cfg.Auth),
		log:          log.Sub("desk"),
		agents:       NewAgentRegistry(log.Sub("agents")),
		handlers:     make(map[string]RequestHandler),
		version:      version.Version,
		newSessionID: widget.NewSessionID,
		visitors:     newVisitorLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		authLimiter:  newAuthRateLimiter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.NewDesk(ListenAddr(cfg))
	}

	s.registerRPCHandlers()
	return s
}

// checkWebSocketOrigin allows requests without an Origin header and those
// matching one of the configured origins.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// Handle registers an RPC method handler.
func (s *Server) Handle(method string, handler RequestHandler) {
	s.handlers[method] = handler
}

// Methods returns the registered RPC method names, sorted.
func (s *Server) Methods() []string {
	methods := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// ListenAddr computes the listen address from config.
func ListenAddr(cfg config.DeskConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// AgentsOnline reports whether a visitor can expect an answer: the desk is
// forced online, an agent is online in the console, or a relay is connected.
func (s *Server) AgentsOnline() bool {
	if s.cfg.ForceOnline {
		return true
	}
	return s.agents.OnlineCount() > 0 || s.channels.Connected()
}

// Handler returns the full HTTP handler: routes, middleware and instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return s.metrics.Instrument(withMiddleware(mux, s.log, s.cfg.AllowedOrigins))
}

// Start listens and serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := ListenAddr(s.cfg)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.addr = ln.Addr().String()
	s.startedAt = time.Now()
	s.mu.Unlock()

	if s.channels.Count() > 0 {
		s.channels.OnMessage(func(msg domain.InboundMessage) { s.handleRelay(ctx, msg) })
		s.channels.StartAll(ctx)
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("auth", s.auth.Mode).
		Bool("forceOnline", s.cfg.ForceOnline).
		Int("relays", s.channels.Count()).
		Int("methods", len(s.handlers)).
		Msg("desk server ready")

	s.hooks.Emit(ctx, hooks.EventDeskStart, map[string]any{"addr": ln.Addr().String()})

	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-stop:
			return
		}
		s.log.Info().Msg("shutting down desk server")
		s.hooks.Emit(context.Background(), hooks.EventDeskStop, nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.agents.CloseAll()
		if s.channels.Count() > 0 {
			s.channels.StopAll(shutdownCtx)
		}
		srv.Shutdown(shutdownCtx)
		if err := s.hooks.Wait(shutdownCtx); err != nil {
			s.log.Warn().Err(err).Msg("hook handlers still running at shutdown")
		}
	}()

	err := srv.Serve(ln)
	close(stop)
	<-stopped
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound listen address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startedAt.IsZero() {
		return 0
	}
	return time.Since(s.startedAt)
}

func (s *Server) nextSeq() int64 { return s.eventSeq.Add(1) }

func (s *Server) broadcast(event string, payload any) {
	s.agents.Broadcast(event, payload, s.nextSeq())
}
