package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateCacheRecord inserts a new cache row for fingerprint. It returns
// ErrDuplicateFingerprint (mapped from the SQLite UNIQUE constraint
// violation) if a record already exists. cache.Engine looks the
// fingerprint up before calling this, so through the engine a duplicate
// surfaces as cache.ErrAlreadyCached instead.
func (idx *Index) CreateCacheRecord(ctx context.Context, rec CacheRecord) (CacheRecord, error) {
	if rec.Data == nil {
		rec.Data = map[string]json.RawMessage{}
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return CacheRecord{}, fmt.Errorf("index: marshal cache data: %w", err)
	}

	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	err = idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, execErr := tx.ExecContext(ctx, `
			INSERT INTO cache (fingerprint, origin_uri, description, data, created_at, accessed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.Fingerprint, rec.OriginURI, rec.Description, string(data), now.Unix(), now.Unix(),
		)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				return ErrDuplicateFingerprint
			}

			return fmt.Errorf("index: insert cache record: %w", execErr)
		}

		id, idErr := result.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("index: last insert id: %w", idErr)
		}

		rec.ID = id

		return nil
	})
	if err != nil {
		return CacheRecord{}, err
	}

	rec.CreatedAt = now
	rec.AccessedAt = now

	return rec, nil
}

// Touch updates accessed_at to now for the cache record with the given
// fingerprint, so reading a cached result refreshes its recency for the
// eviction policy.
func (idx *Index) Touch(ctx context.Context, fingerprint string) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE cache SET accessed_at = ? WHERE fingerprint = ?",
			time.Now().UTC().Unix(), fingerprint,
		)
		if err != nil {
			return fmt.Errorf("index: touch cache record: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("index: touch rows affected: %w", err)
		}

		if affected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// RemoveCacheRecords deletes the cache rows for the given fingerprints and
// returns how many were removed.
func (idx *Index) RemoveCacheRecords(ctx context.Context, fingerprints []string) (int64, error) {
	if len(fingerprints) == 0 {
		return 0, nil
	}

	var removed int64

	err := idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		query, args := inClause("DELETE FROM cache WHERE fingerprint IN (%s)", fingerprints)

		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("index: remove cache records: %w", err)
		}

		removed, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("index: remove rows affected: %w", err)
		}

		return nil
	})

	return removed, err
}

// LookupCacheByFingerprint returns the record for fingerprint, or
// ErrNotFound.
func (idx *Index) LookupCacheByFingerprint(ctx context.Context, fingerprint string) (CacheRecord, error) {
	row := idx.reader.QueryRowContext(ctx, cacheSelectColumns+" FROM cache WHERE fingerprint = ?", fingerprint)

	return scanCacheRecord(row)
}

// LookupCacheByID returns the record with the given id, or ErrNotFound.
func (idx *Index) LookupCacheByID(ctx context.Context, id int64) (CacheRecord, error) {
	row := idx.reader.QueryRowContext(ctx, cacheSelectColumns+" FROM cache WHERE id = ?", id)

	return scanCacheRecord(row)
}

// LookupCacheByOriginURI returns every cache record whose origin_uri
// matches uri, most recently accessed first. Ties on accessed_at are
// broken by id descending.
func (idx *Index) LookupCacheByOriginURI(ctx context.Context, uri string) ([]CacheRecord, error) {
	rows, err := idx.reader.QueryContext(ctx,
		cacheSelectColumns+" FROM cache WHERE origin_uri = ? ORDER BY accessed_at DESC, id DESC", uri)
	if err != nil {
		return nil, fmt.Errorf("index: query cache by origin uri: %w", err)
	}
	defer rows.Close()

	return scanCacheRecords(rows)
}

// ListCacheRecords returns every cache record ordered by most recently
// accessed first. Ties on accessed_at are broken by id descending.
func (idx *Index) ListCacheRecords(ctx context.Context) ([]CacheRecord, error) {
	rows, err := idx.reader.QueryContext(ctx, cacheSelectColumns+" FROM cache ORDER BY accessed_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("index: list cache records: %w", err)
	}
	defer rows.Close()

	return scanCacheRecords(rows)
}

// OldestCacheRecords returns the n least recently accessed cache records,
// used by the eviction policy. Ties on accessed_at are broken by id
// ascending, so the older (lower-id) record among simultaneous timestamps
// is evicted first, keeping eviction order deterministic.
func (idx *Index) OldestCacheRecords(ctx context.Context, n int) ([]CacheRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := idx.reader.QueryContext(ctx,
		cacheSelectColumns+" FROM cache ORDER BY accessed_at ASC, id ASC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("index: oldest cache records: %w", err)
	}
	defer rows.Close()

	return scanCacheRecords(rows)
}

// CountCacheRecords returns the total number of cache records.
func (idx *Index) CountCacheRecords(ctx context.Context) (int, error) {
	var count int

	err := idx.reader.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("index: count cache records: %w", err)
	}

	return count, nil
}

const cacheSelectColumns = "SELECT id, fingerprint, origin_uri, description, data, created_at, accessed_at"

func scanCacheRecords(rows *sql.Rows) ([]CacheRecord, error) {
	var records []CacheRecord

	for rows.Next() {
		rec, err := scanCacheRow(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterate cache rows: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheRecord(row rowScanner) (CacheRecord, error) {
	rec, err := scanCacheRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CacheRecord{}, ErrNotFound
	}

	return rec, err
}

func scanCacheRow(row rowScanner) (CacheRecord, error) {
	var (
		rec        CacheRecord
		data       string
		createdAt  int64
		accessedAt int64
	)

	err := row.Scan(&rec.ID, &rec.Fingerprint, &rec.OriginURI, &rec.Description, &data, &createdAt, &accessedAt)
	if err != nil {
		return CacheRecord{}, fmt.Errorf("index: scan cache row: %w", err)
	}

	err = json.Unmarshal([]byte(data), &rec.Data)
	if err != nil {
		return CacheRecord{}, fmt.Errorf("index: unmarshal cache data: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.AccessedAt = time.Unix(accessedAt, 0).UTC()

	return rec, nil
}
