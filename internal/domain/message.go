package domain

import "time"

// SenderType identifies who authored a stored chat message.
type SenderType string

const (
	SenderClient SenderType = "client"
	SenderAgent  SenderType = "agent"
	SenderSystem SenderType = "system"
)

// MessageType classifies stored chat message content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

// Message is one entry of the widget's conversation list.
type Message struct {
	Text      string `json:"text"`
	IsUser    bool   `json:"isUser"`
	ImageURL  string `json:"imageUrl,omitempty"`
	ImageName string `json:"imageName,omitempty"`
}

// HasImage reports whether the message carries an image reference.
func (m Message) HasImage() bool { return m.ImageURL != "" }

// ChatMessage is a message as stored and served by the chat API.
type ChatMessage struct {
	ID          int64       `json:"id"`
	SessionID   string      `json:"session_id"`
	SenderType  SenderType  `json:"sender_type"`
	SenderName  string      `json:"sender_name,omitempty"`
	Content     string      `json:"message_content"`
	MessageType MessageType `json:"message_type"`
	ImageURL    string      `json:"image_url,omitempty"`
	ImageName   string      `json:"image_name,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// InboundMessage is a message received from a relay channel.
type InboundMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	From      string    `json:"from"`
	FromName  string    `json:"fromName,omitempty"`
	ChatID    string    `json:"chatId"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Raw       any       `json:"raw,omitempty"`
}

// OutboundMessage is a message to be sent via a relay channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
}
