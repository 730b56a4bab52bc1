package memory

import (
	"context"
	"sync"

	"solana-whale-tracker/internal/storage"
)

// SettingsStore is an in-memory implementation of storage.SettingsStore.
type SettingsStore struct {
	mu        sync.RWMutex
	recipient *int64
}

// NewSettingsStore creates a new in-memory settings store with no recipient.
func NewSettingsStore() *SettingsStore {
	return &SettingsStore{}
}

// GetRecipient returns the registered alert chat id.
func (s *SettingsStore) GetRecipient(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.recipient == nil {
		return 0, storage.ErrNotFound
	}
	return *s.recipient, nil
}

// SetRecipient registers the alert chat id.
func (s *SettingsStore) SetRecipient(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recipient = &chatID
	return nil
}

var _ storage.SettingsStore = (*SettingsStore)(nil)
