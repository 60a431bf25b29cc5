package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/livechat/internal/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrSessionExists = errors.New("store: session already exists")
)

const timeLayout = time.RFC3339Nano

// SessionSummary is a session with its latest activity, for the agent console.
type SessionSummary struct {
	domain.ChatSession
	MessageCount  int       `json:"message_count"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
}

// ChatStore persists desk sessions and messages.
type ChatStore struct {
	db  *DB
	now func() time.Time
}

// NewChatStore creates a chat store using the given database.
func NewChatStore(db *DB) *ChatStore {
	return &ChatStore{db: db, now: time.Now}
}

// CreateSession inserts a real session. It returns ErrSessionExists when the id is taken.
func (s *ChatStore) CreateSession(ctx context.Context, sess domain.ChatSession) (domain.ChatSession, error) {
	now := s.now().UTC()
	sess.CreatedAt, sess.UpdatedAt = now, now

	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, client_name, client_email, client_phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ClientName, sess.ClientEmail, sess.ClientPhone,
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ChatSession{}, ErrSessionExists
		}
		return domain.ChatSession{}, fmt.Errorf("inserting session %s: %w", sess.ID, err)
	}
	return sess, nil
}

// GetSession returns a session by id.
func (s *ChatStore) GetSession(ctx context.Context, id string) (domain.ChatSession, error) {
	var sess domain.ChatSession
	var createdAt, updatedAt string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, client_name, client_email, client_phone, created_at, updated_at
		 FROM chat_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.ClientName, &sess.ClientEmail, &sess.ClientPhone, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatSession{}, ErrNotFound
	}
	if err != nil {
		return domain.ChatSession{}, fmt.Errorf("loading session %s: %w", id, err)
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return sess, nil
}

// ListSessions returns the most recently active sessions first.
func (s *ChatStore) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.sql.QueryContext(ctx, `
		SELECT s.id, s.client_name, s.client_email, s.client_phone, s.created_at, s.updated_at,
		       COUNT(m.id),
		       COALESCE((SELECT content FROM chat_messages WHERE session_id = s.id AND temp = 0 ORDER BY id DESC LIMIT 1), ''),
		       COALESCE(MAX(m.created_at), '')
		FROM chat_sessions s
		LEFT JOIN chat_messages m ON m.session_id = s.id AND m.temp = 0
		GROUP BY s.id
		ORDER BY s.updated_at DESC, s.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var createdAt, updatedAt, lastAt string
		if err := rows.Scan(
			&sum.ID, &sum.ClientName, &sum.ClientEmail, &sum.ClientPhone, &createdAt, &updatedAt,
			&sum.MessageCount, &sum.LastMessage, &lastAt,
		); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		sum.LastMessageAt = parseTime(lastAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// AddInitialMessage stores a visitor message under a temp session id until it is transferred.
func (s *ChatStore) AddInitialMessage(ctx context.Context, tempSessionID, content string, typ domain.MessageType) (domain.ChatMessage, error) {
	msg := domain.ChatMessage{
		SessionID:   tempSessionID,
		SenderType:  domain.SenderClient,
		Content:     content,
		MessageType: typ,
	}
	return s.insert(ctx, msg, true)
}

// AddMessage appends a message to a real session and bumps its activity time.
// It returns ErrNotFound for an unknown session.
func (s *ChatStore) AddMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if _, err := s.GetSession(ctx, msg.SessionID); err != nil {
		return domain.ChatMessage{}, err
	}
	if msg.MessageType == "" {
		msg.MessageType = domain.MessageText
	}
	stored, err := s.insert(ctx, msg, false)
	if err != nil {
		return stored, err
	}
	if _, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		stored.CreatedAt.Format(timeLayout), msg.SessionID,
	); err != nil {
		return stored, fmt.Errorf("touching session %s: %w", msg.SessionID, err)
	}
	return stored, nil
}

func (s *ChatStore) insert(ctx context.Context, msg domain.ChatMessage, temp bool) (domain.ChatMessage, error) {
	msg.CreatedAt = s.now().UTC()
	res, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO chat_messages (session_id, temp, sender_type, sender_name, content, message_type, image_url, image_name, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.SessionID, temp, string(msg.SenderType), msg.SenderName, msg.Content,
		string(msg.MessageType), msg.ImageURL, msg.ImageName, msg.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("inserting message: %w", err)
	}
	msg.ID, err = res.LastInsertId()
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("reading message id: %w", err)
	}
	return msg, nil
}

// TransferMessages moves every message stored under a temp session id into a
// real session, attributing them to clientName. It returns how many moved.
func (s *ChatStore) TransferMessages(ctx context.Context, tempSessionID, realSessionID, clientName string) (int64, error) {
	if _, err := s.GetSession(ctx, realSessionID); err != nil {
		return 0, err
	}
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE chat_messages SET session_id = ?, sender_name = ?, temp = 0
		 WHERE session_id = ? AND temp = 1`,
		realSessionID, clientName, tempSessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("transferring %s to %s: %w", tempSessionID, realSessionID, err)
	}
	return res.RowsAffected()
}

// Messages returns the messages of a real session in insertion order.
func (s *ChatStore) Messages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, session_id, sender_type, sender_name, content, message_type, image_url, image_name, created_at
		 FROM chat_messages WHERE session_id = ? AND temp = 0 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", sessionID, err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SearchMessages runs a full-text query over stored message content, best match first.
func (s *ChatStore) SearchMessages(ctx context.Context, query string, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT m.id, m.session_id, m.sender_type, m.sender_name, m.content, m.message_type, m.image_url, m.image_name, m.created_at
		 FROM chat_messages_fts f
		 JOIN chat_messages m ON m.id = f.rowid
		 WHERE chat_messages_fts MATCH ? AND m.temp = 0
		 ORDER BY f.rank
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// ftsQuery quotes each term so user input cannot inject FTS5 syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

func scanMessages(rows *sql.Rows) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		var sender, typ, createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &sender, &m.SenderName, &m.Content, &typ, &m.ImageURL, &m.ImageName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.SenderType = domain.SenderType(sender)
		m.MessageType = domain.MessageType(typ)
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
