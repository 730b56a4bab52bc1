package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"solana-whale-tracker/internal/storage"
)

const recipientKey = "chat_id"

// SettingsStore implements storage.SettingsStore using the settings key/value table.
type SettingsStore struct {
	pool *Pool
}

// NewSettingsStore creates a new SettingsStore.
func NewSettingsStore(pool *Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SettingsStore = (*SettingsStore)(nil)

// GetRecipient returns the registered alert chat id.
func (s *SettingsStore) GetRecipient(ctx context.Context) (chatID int64, err error) {
	defer func(start time.Time) { observe("settings.get", start, err) }(time.Now())

	var value string
	err = s.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, recipientKey).Scan(&value)
	if err != nil {
		if noRows(err) {
			return 0, storage.ErrNotFound
		}
		return 0, fmt.Errorf("get recipient: %w", err)
	}

	chatID, err = strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse recipient %q: %w", value, err)
	}
	return chatID, nil
}

// SetRecipient registers the alert chat id, replacing any previous value.
func (s *SettingsStore) SetRecipient(ctx context.Context, chatID int64) (err error) {
	defer func(start time.Time) { observe("settings.set", start, err) }(time.Now())

	query := `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW()
	`

	if _, err := s.pool.Exec(ctx, query, recipientKey, strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}
	return nil
}
