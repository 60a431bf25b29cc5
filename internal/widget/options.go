package widget

import (
	"context"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/logging"
)

// API is the subset of the remote chat API the controller drives.
// *api.Client satisfies it.
type API interface {
	Presence(ctx context.Context) (bool, error)
	StoreInitialMessage(ctx context.Context, tempSessionID, text string) error
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (string, error)
	TransferMessages(ctx context.Context, req api.TransferRequest) error
	FetchMessages(ctx context.Context, sessionID string) ([]api.RemoteMessage, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) error
	ResolveURL(ref string) string
}

// Notifier plays the new-message cue.
type Notifier interface {
	Notify(ctx context.Context) error
}

// Recorder receives poll and presence outcomes. *metrics.Widget satisfies it.
type Recorder interface {
	PollTick(result string)
	PresenceCheck(result string)
	MessagesReceived(n int)
	NotifyFailed()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context) error { return nil }

type nopRecorder struct{}

func (nopRecorder) PollTick(string)      {}
func (nopRecorder) PresenceCheck(string) {}
func (nopRecorder) MessagesReceived(int) {}
func (nopRecorder) NotifyFailed()        {}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the real clock, typically with a fake in tests.
func WithClock(c Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithNotifier sets the new-message cue.
func WithNotifier(n Notifier) Option {
	return func(ctl *Controller) { ctl.notifier = n }
}

// WithSessionStore persists the identity across restarts.
func WithSessionStore(s SessionStore) Option {
	return func(ctl *Controller) { ctl.store = s }
}

// WithHooks emits lifecycle events on m.
func WithHooks(m *hooks.Manager) Option {
	return func(ctl *Controller) { ctl.hooks = m }
}

// WithRecorder records poll and presence outcomes.
func WithRecorder(r Recorder) Option {
	return func(ctl *Controller) { ctl.metrics = r }
}

// WithLogger sets the controller logger.
func WithLogger(log *logging.Logger) Option {
	return func(ctl *Controller) { ctl.log = log }
}

// WithIDGenerators overrides temp and real session id generation.
// A nil function keeps the default.
func WithIDGenerators(temp, session func() string) Option {
	return func(ctl *Controller) {
		if temp != nil {
			ctl.newTempID = temp
		}
		if session != nil {
			ctl.newSessionID = session
		}
	}
}
