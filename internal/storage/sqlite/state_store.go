package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scrypster/recall/internal/storage"
)

// State reads a single engine-state value by key.
func (s *Store) State(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: state key is required", storage.ErrInvalidInput)
	}

	var value string
	err := s.q.QueryRowContext(ctx,
		"SELECT value FROM engine_state WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to read state %q: %w", key, err)
	}
	return value, nil
}

// SetState upserts a single engine-state key.
func (s *Store) SetState(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: state key is required", storage.ErrInvalidInput)
	}

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO engine_state (key, value)
		VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("sqlite: failed to set state %q: %w", key, err)
	}
	return nil
}
