package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/soyeahso/livechat/internal/domain"
)

// Truthy decodes a JSON bool, number or string into a boolean.
// Numbers are true when non-zero; strings when they spell 1/true/yes/on/online.
type Truthy bool

func (t *Truthy) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*t = false
		return nil
	}
	switch data[0] {
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*t = Truthy(b)
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "on", "online":
			*t = true
		default:
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			*t = Truthy(err == nil && f != 0)
		}
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		*t = f != 0
	}
	return nil
}

// StatusResponse is the presence endpoint payload.
type StatusResponse struct {
	Success bool `json:"success"`
	Status  struct {
		IsOnline Truthy `json:"is_online"`
	} `json:"status"`
}

// InitialMessageRequest stores a message sent before contact capture.
type InitialMessageRequest struct {
	TempSessionID  string             `json:"temp_session_id"`
	MessageContent string             `json:"message_content"`
	MessageType    domain.MessageType `json:"message_type"`
}

// CreateSessionRequest materializes a real session.
type CreateSessionRequest struct {
	SessionID   string `json:"session_id"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email"`
	ClientPhone string `json:"client_phone"`
}

type CreateSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// TransferRequest moves temp-tagged messages into a real session.
type TransferRequest struct {
	TempSessionID string `json:"temp_session_id"`
	RealSessionID string `json:"real_session_id"`
	ClientName    string `json:"client_name"`
}

// RemoteMessage is one element of the fetch-messages payload.
type RemoteMessage struct {
	SenderType     domain.SenderType `json:"sender_type"`
	SenderName     string            `json:"sender_name,omitempty"`
	MessageContent string            `json:"message_content"`
	ImageURL       string            `json:"image_url,omitempty"`
	ImageName      string            `json:"image_name,omitempty"`
}

type MessagesResponse struct {
	Success  bool            `json:"success"`
	Messages []RemoteMessage `json:"messages"`
	Error    string          `json:"error,omitempty"`
}

// SendMessageRequest posts a message into a real session.
type SendMessageRequest struct {
	SessionID      string             `json:"session_id"`
	SenderType     domain.SenderType  `json:"sender_type"`
	SenderName     string             `json:"sender_name"`
	MessageContent string             `json:"message_content"`
	MessageType    domain.MessageType `json:"message_type"`
}

// Response is the generic success envelope.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}
