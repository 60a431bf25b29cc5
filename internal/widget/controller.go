// Package widget implements the visitor side of the live chat: anonymous
// session, contact capture, promotion to a real session, message polling and
// unread bookkeeping.
package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/logging"
)

var (
	ErrAwaitingContact   = errors.New("widget: contact details required before sending")
	ErrContactIncomplete = errors.New("widget: name, email and phone are required")
	ErrContactInvalid    = errors.New("widget: contact details are invalid")
	ErrContactFormHidden = errors.New("widget: contact form is not shown")
	ErrSubmitInProgress  = errors.New("widget: contact submit already in progress")
	ErrNoSession         = errors.New("widget: no real session")
	ErrNotStarted        = errors.New("widget: controller not started")
	ErrAlreadyStarted    = errors.New("widget: controller already started")
	ErrStopped           = errors.New("widget: controller stopped")
)

// Phase is the conversation stage of the widget.
type Phase int

const (
	// Anonymous: no message sent yet, only a temp session id exists.
	PhaseAnonymous Phase = iota
	// AwaitingContact: a first message was sent and contact details are pending.
	PhaseAwaitingContact
	// Identified: a real session exists.
	PhaseIdentified
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAwaitingContact:
		return "awaiting-contact"
	case PhaseIdentified:
		return "identified"
	}
	return "unknown"
}

// State is a point-in-time copy of the controller state.
type State struct {
	Open              bool
	Visible           bool
	Draft             string
	Messages          []domain.Message
	ShowContactForm   bool
	AgentsOnline      bool
	SessionID         string
	UserInfoCollected bool
	Polling           bool
	TempSessionID     string
	UnreadCount       int
	Phase             Phase
	Contact           domain.ContactForm
	Submitting        bool
}

// Key is a keyboard event delivered to the controller.
type Key struct {
	Name  string
	Shift bool
}

const KeyEnter = "enter"

// Controller owns the widget state. All methods are safe for concurrent use.
// The mutex is never held across a network or notifier call.
type Controller struct {
	api          API
	cfg          config.WidgetConfig
	clock        Clock
	notifier     Notifier
	store        SessionStore
	hooks        *hooks.Manager
	metrics      Recorder
	log          *logging.Logger
	validate     *validator.Validate
	newTempID    func() string
	newSessionID func() string

	mu       sync.Mutex
	st       State
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	timers   []Timer
	presence *loop
	poller   *loop

	fetches    singleflight.Group
	updates    chan struct{}
	background sync.WaitGroup
}

// New creates a controller for the given API and widget configuration.
func New(remote API, cfg config.WidgetConfig, opts ...Option) *Controller {
	c := &Controller{
		api:          remote,
		cfg:          cfg.WithTimingDefaults(),
		clock:        RealClock(),
		notifier:     nopNotifier{},
		metrics:      nopRecorder{},
		log:          logging.Nop(),
		newSessionID: NewSessionID,
		updates:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.newTempID == nil {
		c.newTempID = func() string { return NewTempSessionID(c.clock.Now()) }
	}
	if c.cfg.StrictContact {
		c.validate = validator.New()
	}
	c.log = c.log.Sub("widget")
	return c
}

// Updates delivers a signal after every state change. Signals coalesce.
func (c *Controller) Updates() <-chan struct{} { return c.updates }

func (c *Controller) changed() {
	select {
	case c.updates <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.st
	s.Messages = append([]domain.Message(nil), c.st.Messages...)
	return s
}

// Start allocates or restores the visitor identity, starts the presence loop,
// schedules the reveal and resumes polling for a restored real session.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	runCtx := c.ctx
	c.mu.Unlock()

	identity, restored := c.restoreIdentity(ctx)

	c.mu.Lock()
	c.st.TempSessionID = identity.TempSessionID
	if identity.Identified() {
		c.st.SessionID = identity.SessionID
		c.st.UserInfoCollected = true
		c.st.Contact = identity.Contact
		c.st.Phase = PhaseIdentified
	}
	c.presence = newLoop(c.clock, c.cfg.PresenceInterval(), c.checkPresence)
	presence := c.presence
	c.mu.Unlock()

	if !restored {
		c.saveIdentity(ctx, identity)
	}

	c.log.Info().
		Str("temp_session", identity.TempSessionID).
		Str("session", identity.SessionID).
		Bool("restored", restored).
		Msg("widget started")

	presence.start(runCtx, 0)
	c.after(c.cfg.RevealDelay(), func() {
		c.mu.Lock()
		c.st.Visible = true
		c.mu.Unlock()
	})
	if identity.Identified() {
		c.StartPolling()
	}
	c.changed()
	return nil
}

func (c *Controller) restoreIdentity(ctx context.Context) (domain.Identity, bool) {
	if c.store != nil {
		id, ok, err := c.store.LoadIdentity(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("failed to load widget identity")
		}
		if ok && id.TempSessionID != "" {
			return id, true
		}
	}
	return domain.Identity{TempSessionID: c.newTempID()}, false
}

func (c *Controller) saveIdentity(ctx context.Context, id domain.Identity) {
	if c.store == nil {
		return
	}
	if err := c.store.SaveIdentity(ctx, id); err != nil {
		c.log.Warn().Err(err).Msg("failed to save widget identity")
	}
}

// Stop ends both loops, cancels pending delayed actions and in-flight
// requests, and waits for running ticks to return. Results that arrive after
// Stop are discarded. Stop is idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	presence, poller := c.presence, c.poller
	c.st.Polling = false
	cancel := c.cancel
	sessionID, tempID := c.st.SessionID, c.st.TempSessionID
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.background.Wait()
	if poller != nil {
		poller.stop()
	}
	if presence != nil {
		presence.stop()
	}

	c.hooks.Emit(context.Background(), hooks.EventSessionEnd, map[string]any{
		"session":      sessionID,
		"temp_session": tempID,
	})
	c.log.Info().Str("session", sessionID).Msg("widget stopped")
	c.changed()
}

// after runs f once d has elapsed unless the controller stops first.
// f runs without the mutex held; a state change signal follows it.
func (c *Controller) after(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	var t Timer
	t = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.removeTimer(t)
		c.mu.Unlock()
		f()
		c.changed()
	})
	c.timers = append(c.timers, t)
}

func (c *Controller) removeTimer(t Timer) {
	for i, other := range c.timers {
		if other == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}

// SetDraft replaces the text being typed.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.st.Draft = text
	c.mu.Unlock()
	c.changed()
}

// HandleKey sends the draft on Enter. Shift+Enter is reserved and ignored.
// It reports whether the key was consumed.
func (c *Controller) HandleKey(ctx context.Context, k Key) (bool, error) {
	if k.Name != KeyEnter || k.Shift {
		return false, nil
	}
	c.mu.Lock()
	draft := c.st.Draft
	c.mu.Unlock()
	return true, c.Send(ctx, draft)
}

// Open shows the chat window. Opening a closed window clears the unread count.
func (c *Controller) Open() {
	c.mu.Lock()
	if !c.st.Open {
		c.st.Open = true
		c.st.UnreadCount = 0
	}
	c.mu.Unlock()
	c.changed()
}

// Close hides the chat window.
func (c *Controller) Close() {
	c.mu.Lock()
	c.st.Open = false
	c.mu.Unlock()
	c.changed()
}

// Toggle opens a closed window and closes an open one.
func (c *Controller) Toggle() {
	c.mu.Lock()
	open := c.st.Open
	c.mu.Unlock()
	if open {
		c.Close()
	} else {
		c.Open()
	}
}

// Send echoes text locally and forwards it according to the phase:
// in Anonymous it is stored under the temp session and the contact form is
// requested; in Identified it is posted to the real session. While contact
// details are pending it returns ErrAwaitingContact without echoing.
// A failed remote send keeps the local echo.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	switch {
	case !c.started:
		c.mu.Unlock()
		return ErrNotStarted
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.st.Phase == PhaseAwaitingContact:
		c.mu.Unlock()
		return ErrAwaitingContact
	}
	c.st.Messages = append(c.st.Messages, domain.Message{Text: text, IsUser: true})
	c.st.Draft = ""
	phase := c.st.Phase
	if phase == PhaseAnonymous {
		c.st.Phase = PhaseAwaitingContact
	}
	tempID, sessionID, name := c.st.TempSessionID, c.st.SessionID, c.st.Contact.Name
	c.mu.Unlock()
	c.changed()

	c.hooks.Emit(ctx, hooks.EventMessageSending, map[string]any{
		"session":      sessionID,
		"temp_session": tempID,
		"phase":        phase.String(),
	})

	if phase == PhaseAnonymous {
		return c.sendAnonymous(tempID, text)
	}
	return c.sendIdentified(ctx, sessionID, name, text)
}

func (c *Controller) sendAnonymous(tempID, text string) error {
	c.after(c.cfg.PromptDelay(), func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.st.Phase != PhaseAwaitingContact {
			return
		}
		c.st.ShowContactForm = true
		c.st.Messages = append(c.st.Messages, domain.Message{Text: c.cfg.PromptText})
	})

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	runCtx := c.ctx
	c.background.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.background.Done()
		if err := c.api.StoreInitialMessage(runCtx, tempID, text); err != nil {
			c.log.Warn().Err(err).Str("temp_session", tempID).Msg("failed to store initial message")
		}
	}()
	return nil
}

func (c *Controller) sendIdentified(ctx context.Context, sessionID, name, text string) error {
	err := c.api.SendMessage(ctx, api.SendMessageRequest{
		SessionID:      sessionID,
		SenderType:     domain.SenderClient,
		SenderName:     name,
		MessageContent: text,
		MessageType:    domain.MessageText,
	})
	if err != nil {
		c.log.Warn().Err(err).Str("session", sessionID).Msg("failed to send message")
		return err
	}
	c.StartPolling()
	return nil
}
