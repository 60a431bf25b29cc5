package widget

import (
	"context"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
	"github.com/soyeahso/livechat/internal/metrics"
)

// StartPolling starts the message loop for the real session. It is a no-op
// when polling already runs, no real session exists, or the controller is not
// running. It reports whether a loop was started.
func (c *Controller) StartPolling() bool {
	c.mu.Lock()
	if !c.started || c.stopped || c.st.Polling || c.st.SessionID == "" {
		c.mu.Unlock()
		return false
	}
	c.st.Polling = true
	c.poller = newLoop(c.clock, c.cfg.PollInterval(), func(ctx context.Context) {
		_, _ = c.pollOnce(ctx)
	})
	poller, ctx, sessionID := c.poller, c.ctx, c.st.SessionID
	c.mu.Unlock()

	c.log.Debug().Str("session", sessionID).Dur("interval", c.cfg.PollInterval()).Msg("polling started")
	poller.start(ctx, c.cfg.PollInterval())
	c.changed()
	return true
}

// Refresh runs one poll tick now. It shares the in-flight fetch of a loop
// tick for the same session instead of issuing a second one.
func (c *Controller) Refresh(ctx context.Context) (int, error) {
	c.mu.Lock()
	if c.st.SessionID == "" {
		c.mu.Unlock()
		return 0, ErrNoSession
	}
	c.mu.Unlock()
	return c.pollOnce(ctx)
}

func (c *Controller) pollOnce(ctx context.Context) (int, error) {
	c.mu.Lock()
	sessionID := c.st.SessionID
	c.mu.Unlock()

	v, err, _ := c.fetches.Do(sessionID, func() (any, error) {
		return c.tick(ctx, sessionID)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// tick fetches the session messages and appends the agent messages not yet
// shown. It returns how many were appended.
func (c *Controller) tick(ctx context.Context, sessionID string) (int, error) {
	remote, err := c.api.FetchMessages(ctx, sessionID)
	if err != nil {
		c.metrics.PollTick(metrics.ResultError)
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("session", sessionID).Str("kind", string(api.KindOf(err))).Msg("poll tick failed")
		}
		return 0, err
	}

	c.mu.Lock()
	if c.stopped || c.st.SessionID != sessionID {
		c.mu.Unlock()
		return 0, nil
	}
	fresh := c.newAgentMessages(remote)
	c.st.Messages = append(c.st.Messages, fresh...)
	if !c.st.Open {
		c.st.UnreadCount += len(fresh)
	}
	c.mu.Unlock()

	if len(fresh) == 0 {
		c.metrics.PollTick(metrics.ResultEmpty)
		return 0, nil
	}

	c.metrics.PollTick(metrics.ResultNew)
	c.metrics.MessagesReceived(len(fresh))
	c.log.Debug().Str("session", sessionID).Int("count", len(fresh)).Msg("agent messages received")
	c.changed()

	if err := c.notifier.Notify(ctx); err != nil {
		c.metrics.NotifyFailed()
		c.log.Warn().Err(err).Msg("notification failed")
	}
	c.hooks.Emit(ctx, hooks.EventMessageReceived, map[string]any{
		"session": sessionID,
		"count":   len(fresh),
	})
	return len(fresh), nil
}

// newAgentMessages filters remote to agent messages whose text is not already
// shown on the agent side, in payload order. Must be called with c.mu held.
func (c *Controller) newAgentMessages(remote []api.RemoteMessage) []domain.Message {
	seen := make(map[string]bool, len(c.st.Messages))
	for _, m := range c.st.Messages {
		if !m.IsUser {
			seen[dedupKey(m.Text, m.ImageURL)] = true
		}
	}

	var fresh []domain.Message
	for _, r := range remote {
		if r.SenderType != domain.SenderAgent {
			continue
		}
		imageURL := c.api.ResolveURL(r.ImageURL)
		key := dedupKey(r.MessageContent, imageURL)
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, domain.Message{
			Text:      r.MessageContent,
			ImageURL:  imageURL,
			ImageName: r.ImageName,
		})
	}
	return fresh
}

// dedupKey is the message text; image-only messages fall back to the image URL.
func dedupKey(text, imageURL string) string {
	if text == "" {
		return "\x00" + imageURL
	}
	return text
}
