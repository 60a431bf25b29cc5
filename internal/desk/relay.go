package desk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/store"
)

var ErrUnknownCommand = errors.New("desk: unknown relay command")

// relayCommand is a parsed "!reply <session> <text>" line.
type relayCommand struct {
	SessionID string
	Text      string
}

// parseRelayCommand parses an operator line from a relay channel.
func parseRelayCommand(body string) (relayCommand, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "!reply") {
		return relayCommand{}, ErrUnknownCommand
	}
	if len(fields) < 3 {
		return relayCommand{}, errors.New("usage: !reply <session> <text>")
	}
	rest := strings.TrimSpace(body)
	rest = strings.TrimSpace(rest[len(fields[0]):])
	rest = strings.TrimSpace(rest[len(fields[1]):])
	return relayCommand{SessionID: fields[1], Text: rest}, nil
}

// formatRelayLine renders a visitor message for a relay channel.
func formatRelayLine(sessionID, name, text string) string {
	if name == "" {
		name = "visitor"
	}
	return fmt.Sprintf("[%s] %s: %s", sessionID, name, text)
}

func (s *Server) relayVisitor(ctx context.Context, sessionID, name, text string) {
	if s.channels.Count() == 0 {
		return
	}
	if err := s.channels.Relay(ctx, formatRelayLine(sessionID, name, text)); err != nil {
		s.log.Debug().Err(err).Str("session", sessionID).Msg("relay failed")
	}
}

// handleRelay stores operator replies arriving from a relay channel.
func (s *Server) handleRelay(ctx context.Context, msg domain.InboundMessage) {
	cmd, err := parseRelayCommand(msg.Body)
	if errors.Is(err, ErrUnknownCommand) {
		return
	}
	if err != nil {
		s.answerRelay(ctx, msg, err.Error())
		return
	}

	_, err = s.reply(ctx, cmd.SessionID, msg.FromName, cmd.Text, "", "")
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.answerRelay(ctx, msg, "unknown session "+cmd.SessionID)
	case err != nil:
		s.log.Error().Err(err).Str("session", cmd.SessionID).Msg("relay reply failed")
		s.answerRelay(ctx, msg, "reply failed")
	default:
		s.log.Info().
			Str("channel", msg.ChannelID).
			Str("from", msg.From).
			Str("session", cmd.SessionID).
			Msg("relay reply stored")
	}
}

func (s *Server) answerRelay(ctx context.Context, msg domain.InboundMessage, text string) {
	if s.channels == nil {
		return
	}
	ch, ok := s.channels.Get(msg.ChannelID)
	if !ok {
		return
	}
	if err := ch.Send(ctx, domain.OutboundMessage{ChannelID: msg.ChannelID, To: msg.ChatID, Body: msg.FromName + ": " + text}); err != nil {
		s.log.Debug().Err(err).Msg("relay answer failed")
	}
}
