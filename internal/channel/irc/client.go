// Package irc implements the IRC relay channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/soyeahso/livechat/internal/config"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/logging"
	"github.com/soyeahso/livechat/internal/version"
)

var (
	ErrNotConnected = errors.New("irc: not connected")
	ErrNoTarget     = errors.New("irc: no target specified")
)

// CommandPrefix marks channel lines addressed to the desk.
const CommandPrefix = "!"

const maxLineLen = 400

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	// isOp reports channel operator status; replaced in tests.
	isOp func(nick, channel string) bool

	mu      sync.RWMutex
	handler func(msg domain.InboundMessage)
	running bool
	lastErr string
}

// New creates an IRC relay channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	c := &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
	c.isOp = c.isChannelOp
	return c
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) OnMessage(handler func(msg domain.InboundMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

func (c *Channel) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	if c.cfg.UseTLS {
		return 6697
	}
	return 6667
}

// Start connects to the IRC server and blocks until the connection ends or ctx is cancelled.
func (c *Channel) Start(ctx context.Context) error {
	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    c.port(),
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "livechat desk relay",
		SSL:     c.cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: c.cfg.Server}
	}
	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: c.cfg.Nick, Pass: c.cfg.Password}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	client := girc.New(gircCfg)
	c.mu.Lock()
	c.client = client
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()
	c.registerHandlers(client)

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", gircCfg.Port).
		Str("nick", c.cfg.Nick).
		Str("channel", c.cfg.Channel).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		client.Close()
		<-errCh
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("livechat desk shutting down")
	}
	c.running = false
	return nil
}

// Send posts a message to msg.To, or to the relay channel when To is empty.
// Multi-line bodies are sent one PRIVMSG per line.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	target := msg.To
	if target == "" {
		target = c.cfg.Channel
	}
	if target == "" {
		return ErrNoTarget
	}

	lines := splitMessage(msg.Body, maxLineLen)
	for _, line := range lines {
		client.Cmd.Message(target, line)
	}

	c.log.Debug().
		Str("to", target).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) registerHandlers(client *girc.Client) {
	client.Handlers.Add(girc.CONNECTED, c.onConnected)
	client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)
}

func (c *Channel) onConnected(client *girc.Client, _ girc.Event) {
	c.log.Info().Str("nick", client.GetNick()).Msg("connected to IRC")
	if c.cfg.Channel != "" {
		client.Cmd.Join(c.cfg.Channel)
		c.log.Info().Str("channel", c.cfg.Channel).Msg("joined channel")
	}
}

func (c *Channel) onPrivmsg(client *girc.Client, e girc.Event) {
	if e.Source == nil || e.Source.Name == client.GetNick() {
		return
	}
	if !e.IsFromChannel() {
		c.log.Debug().Str("nick", e.Source.Name).Msg("ignoring direct message")
		return
	}

	target := e.Params[0]
	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}
	if !c.accept(e.Source.Name, target, body) {
		return
	}
	c.deliverInbound(e.Source.Name, target, body)
}

// accept filters channel lines down to desk commands from permitted users.
func (c *Channel) accept(nick, target, body string) bool {
	if c.cfg.Channel != "" && !strings.EqualFold(target, c.cfg.Channel) {
		return false
	}
	if !strings.HasPrefix(strings.TrimSpace(body), CommandPrefix) {
		return false
	}
	if c.cfg.OpOnlyEnabled() && !c.isOp(nick, target) {
		c.log.Debug().
			Str("nick", nick).
			Str("channel", target).
			Msg("ignoring command from non-operator")
		return false
	}
	return true
}

// isChannelOp checks whether nick has operator (or higher) permissions in channel.
func (c *Channel) isChannelOp(nick, channel string) bool {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return false
	}
	user := client.LookupUser(nick)
	if user == nil {
		return false
	}
	perms, ok := user.Perms.Lookup(channel)
	if !ok {
		return false
	}
	return perms.IsAdmin()
}

func (c *Channel) deliverInbound(from, chatID, body string) {
	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		ChannelID: "irc",
		From:      from,
		FromName:  from,
		ChatID:    chatID,
		Body:      strings.TrimSpace(body),
		Timestamp: time.Now(),
	}

	c.mu.RLock()
	handler := c.handler
	c.mu.RUnlock()

	if handler != nil {
		handler(msg)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, _ girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// splitMessage breaks text into PRIVMSG-sized chunks. Each newline starts a
// new chunk and lines longer than maxLen are split at the byte boundary.
// Empty lines are dropped.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
