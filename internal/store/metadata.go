package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Metadata keys used by the engine. Kept here so the set of persisted flags
// is visible in one place.
const (
	// MetaPrimaryKeyMigrated records that the primary-key rewrite has
	// completed at least once.
	MetaPrimaryKeyMigrated = "schema_primary_key_migrated"

	// MetaPendingFullVerification requests a full verification sweep on
	// the next startup (set after a version upgrade).
	MetaPendingFullVerification = "pending_full_verification"

	// MetaLastCleanupTime is the unix-nanosecond timestamp of the last
	// opportunistic maintenance run, for cooldown enforcement.
	MetaLastCleanupTime = "last_cleanup_time"
)

// GetMeta returns the metadata value for key, or "" if absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta writes a metadata key/value pair, replacing any existing value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

// DeleteMeta removes a metadata key. Deleting an absent key is a no-op.
func (s *Store) DeleteMeta(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete meta %s: %w", key, err)
	}
	return nil
}
