package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/livechat/internal/domain"
)

// IdentityStore keeps the single widget identity row so a terminal widget can
// resume its conversation after a restart.
type IdentityStore struct {
	db *DB
}

func NewIdentityStore(db *DB) *IdentityStore {
	return &IdentityStore{db: db}
}

func (s *IdentityStore) LoadIdentity(ctx context.Context) (domain.Identity, bool, error) {
	var id domain.Identity
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT temp_session_id, session_id, client_name, client_email, client_phone
		 FROM widget_identity WHERE id = 1`,
	).Scan(&id.TempSessionID, &id.SessionID, &id.Contact.Name, &id.Contact.Email, &id.Contact.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Identity{}, false, nil
	}
	if err != nil {
		return domain.Identity{}, false, fmt.Errorf("loading widget identity: %w", err)
	}
	return id, true, nil
}

func (s *IdentityStore) SaveIdentity(ctx context.Context, id domain.Identity) error {
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO widget_identity (id, temp_session_id, session_id, client_name, client_email, client_phone, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			temp_session_id = excluded.temp_session_id,
			session_id      = excluded.session_id,
			client_name     = excluded.client_name,
			client_email    = excluded.client_email,
			client_phone    = excluded.client_phone,
			updated_at      = excluded.updated_at`,
		id.TempSessionID, id.SessionID, id.Contact.Name, id.Contact.Email, id.Contact.Phone,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving widget identity: %w", err)
	}
	return nil
}

// ClearIdentity forgets the saved identity.
func (s *IdentityStore) ClearIdentity(ctx context.Context) error {
	if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM widget_identity`); err != nil {
		return fmt.Errorf("clearing widget identity: %w", err)
	}
	return nil
}
