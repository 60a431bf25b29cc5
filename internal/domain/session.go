package domain

import (
	"strings"
	"time"
)

// ContactField names one input of the contact form.
type ContactField string

const (
	FieldName  ContactField = "name"
	FieldEmail ContactField = "email"
	FieldPhone ContactField = "phone"
)

// ContactForm holds the visitor details collected before a real session exists.
type ContactForm struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,min=3,max=32"`
}

// Complete reports whether every field is non-blank.
func (c ContactForm) Complete() bool {
	return strings.TrimSpace(c.Name) != "" &&
		strings.TrimSpace(c.Email) != "" &&
		strings.TrimSpace(c.Phone) != ""
}

// With returns a copy of the form with one field replaced.
// Unknown fields leave the form unchanged.
func (c ContactForm) With(field ContactField, value string) ContactForm {
	switch field {
	case FieldName:
		c.Name = value
	case FieldEmail:
		c.Email = value
	case FieldPhone:
		c.Phone = value
	}
	return c
}

// Trimmed returns the form with surrounding whitespace removed from each field.
func (c ContactForm) Trimmed() ContactForm {
	return ContactForm{
		Name:  strings.TrimSpace(c.Name),
		Email: strings.TrimSpace(c.Email),
		Phone: strings.TrimSpace(c.Phone),
	}
}

// ChatSession is a real, identified conversation on the chat API side.
type ChatSession struct {
	ID          string    `json:"session_id"`
	ClientName  string    `json:"client_name"`
	ClientEmail string    `json:"client_email"`
	ClientPhone string    `json:"client_phone"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Identity is what a widget persists to resume a conversation.
type Identity struct {
	TempSessionID string      `json:"tempSessionId"`
	SessionID     string      `json:"sessionId,omitempty"`
	Contact       ContactForm `json:"contact"`
}

// Identified reports whether the identity carries a real session id.
func (i Identity) Identified() bool { return i.SessionID != "" }
