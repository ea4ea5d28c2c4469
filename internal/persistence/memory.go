package persistence

import (
	"context"
	"sync"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

// MemoryStore keeps the record for the lifetime of the process.
type MemoryStore struct {
	mu     sync.Mutex
	record *model.PersistedSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*model.PersistedSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.record == nil {
		return nil, nil
	}
	r := *s.record
	return &r, nil
}

func (s *MemoryStore) Save(ctx context.Context, record *model.PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := *record
	s.record = &r
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = nil
	return nil
}
