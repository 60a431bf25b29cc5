package widget

import (
	"context"
	"sync"

	"github.com/soyeahso/livechat/internal/domain"
)

// SessionStore persists the widget identity so a conversation can be resumed.
type SessionStore interface {
	// LoadIdentity returns the saved identity and whether one exists.
	LoadIdentity(ctx context.Context) (domain.Identity, bool, error)
	SaveIdentity(ctx context.Context, id domain.Identity) error
}

// MemoryStore keeps the identity for the lifetime of the process.
type MemoryStore struct {
	mu  sync.Mutex
	id  domain.Identity
	set bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) LoadIdentity(context.Context) (domain.Identity, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.set, nil
}

func (m *MemoryStore) SaveIdentity(_ context.Context, id domain.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = id
	m.set = true
	return nil
}
