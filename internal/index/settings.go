package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetSetting returns the stored value for key, or ErrNotFound.
func (idx *Index) GetSetting(ctx context.Context, key string) (string, error) {
	var value string

	err := idx.reader.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("index: get setting %s: %w", key, err)
	}

	return value, nil
}

// SetSetting upserts key to value.
func (idx *Index) SetSetting(ctx context.Context, key, value string) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		)
		if err != nil {
			return fmt.Errorf("index: set setting %s: %w", key, err)
		}

		return nil
	})
}

// CacheLimit returns the configured cache_limit setting, falling back to
// DefaultCacheLimit when unset.
func (idx *Index) CacheLimit(ctx context.Context) (int, error) {
	raw, err := idx.GetSetting(ctx, SettingCacheLimit)
	if errors.Is(err, ErrNotFound) {
		return DefaultCacheLimit, nil
	}

	if err != nil {
		return 0, err
	}

	var limit int

	_, err = fmt.Sscanf(raw, "%d", &limit)
	if err != nil {
		return 0, fmt.Errorf("index: parse cache_limit %q: %w", raw, err)
	}

	return limit, nil
}
