// Package session models the per-conversation ephemeral state the bot keeps
// outside the database.
package session

import (
	"context"
	"sync"

	"github.com/suPer8Hu/gopherchat-bot/internal/imagegen"
)

// Session is keyed by Telegram chat id. A missing session loads as the zero
// value, which is the default state.
type Session struct {
	ActiveChatID string          `json:"active_chat_id,omitempty"`
	ImageQuality string          `json:"image_quality,omitempty"`
	Image        imagegen.Dialog `json:"image"`
}

// Quality returns the stored image quality or fallback when none was chosen.
func (s *Session) Quality(fallback string) string {
	if s.ImageQuality == "" {
		return fallback
	}
	return s.ImageQuality
}

type Store interface {
	Load(ctx context.Context, key int64) (*Session, error)
	Save(ctx context.Context, key int64, s *Session) error
}

// MemoryStore keeps sessions in process memory. Used when no Redis is
// configured and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	data map[int64]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[int64]Session)}
}

func (m *MemoryStore) Load(ctx context.Context, key int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.data[key]
	return &s, nil
}

func (m *MemoryStore) Save(ctx context.Context, key int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = *s
	return nil
}
