package widget

import (
	"context"
	"fmt"
	"strings"

	"github.com/soyeahso/livechat/internal/api"
	"github.com/soyeahso/livechat/internal/domain"
	"github.com/soyeahso/livechat/internal/hooks"
)

// UpdateContact sets one contact form field.
func (c *Controller) UpdateContact(field domain.ContactField, value string) {
	c.mu.Lock()
	c.st.Contact = c.st.Contact.With(field, value)
	c.mu.Unlock()
	c.changed()
}

// ContactReady reports whether the form may be submitted: it is shown, no
// submit is running and every field is filled.
func (c *Controller) ContactReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.ShowContactForm && !c.st.Submitting && c.st.Contact.Complete()
}

// SubmitContact creates the real session, retracts the form, reattaches
// messages sent under the temp id, starts polling and schedules the greeting.
// When session creation fails the state is left untouched and the error is
// returned.
func (c *Controller) SubmitContact(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case !c.st.ShowContactForm:
		c.mu.Unlock()
		return ErrContactFormHidden
	case c.st.Submitting:
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	form := c.st.Contact.Trimmed()
	if !form.Complete() {
		c.mu.Unlock()
		return ErrContactIncomplete
	}
	if c.validate != nil {
		if err := c.validate.Struct(form); err != nil {
			c.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrContactInvalid, err)
		}
	}
	c.st.Submitting = true
	tempID := c.st.TempSessionID
	c.mu.Unlock()
	c.changed()

	c.hooks.Emit(ctx, hooks.EventContactSubmit, map[string]any{"temp_session": tempID, "name": form.Name})

	sessionID, err := c.api.CreateSession(ctx, api.CreateSessionRequest{
		SessionID:   c.newSessionID(),
		ClientName:  form.Name,
		ClientEmail: form.Email,
		ClientPhone: form.Phone,
	})
	if err != nil {
		c.mu.Lock()
		c.st.Submitting = false
		c.mu.Unlock()
		c.changed()
		c.log.Warn().Err(err).Str("temp_session", tempID).Msg("failed to create session")
		return fmt.Errorf("create session: %w", err)
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	c.st.Submitting = false
	c.st.ShowContactForm = false
	c.st.SessionID = sessionID
	c.st.UserInfoCollected = true
	c.st.Phase = PhaseIdentified
	c.st.Contact = form
	c.mu.Unlock()
	c.changed()

	c.log.Info().Str("session", sessionID).Str("temp_session", tempID).Msg("session created")
	c.saveIdentity(ctx, domain.Identity{TempSessionID: tempID, SessionID: sessionID, Contact: form})
	c.hooks.Emit(ctx, hooks.EventSessionStart, map[string]any{"session": sessionID, "name": form.Name})

	if tempID != "" {
		err := c.api.TransferMessages(ctx, api.TransferRequest{
			TempSessionID: tempID,
			RealSessionID: sessionID,
			ClientName:    form.Name,
		})
		if err != nil {
			c.log.Warn().Err(err).Str("session", sessionID).Msg("failed to transfer temp messages")
		}
	}

	c.StartPolling()

	greeting := strings.ReplaceAll(c.cfg.GreetingText, "{name}", form.Name)
	c.after(c.cfg.GreetingDelay(), func() {
		c.mu.Lock()
		c.st.Messages = append(c.st.Messages, domain.Message{Text: greeting})
		c.mu.Unlock()
	})
	return nil
}
