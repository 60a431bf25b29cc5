package widget

import (
	"context"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/metrics"
)

// checkPresence asks the API whether an agent is online. Any failure counts
// as offline so the widget never promises live support it cannot deliver.
func (c *Controller) checkPresence(ctx context.Context) {
	online, err := c.api.Presence(ctx)
	switch {
	case err != nil:
		online = false
		c.metrics.PresenceCheck(metrics.PresenceError)
		if ctx.Err() == nil {
			c.log.Warn().Err(err).Str("kind", string(api.KindOf(err))).Msg("presence check failed")
		}
	case online:
		c.metrics.PresenceCheck(metrics.PresenceOnline)
	default:
		c.metrics.PresenceCheck(metrics.PresenceOffline)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	flipped := c.st.AgentsOnline != online
	c.st.AgentsOnline = online
	c.mu.Unlock()

	if flipped {
		c.log.Debug().Bool("online", online).Msg("agent presence changed")
		c.changed()
	}
}

// CheckPresence runs one presence check outside the loop and returns the result.
func (c *Controller) CheckPresence(ctx context.Context) bool {
	c.checkPresence(ctx)
	return c.Snapshot().AgentsOnline
}
