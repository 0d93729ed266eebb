package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateProjectRecord inserts a new project row keyed by uri. If a record
// for that uri already exists and getIfExists is true, the existing record
// is returned instead of an error, so adding a notebook the registry
// already tracks is a no-op rather than a failure. Otherwise
// ErrDuplicateURI is returned.
func (idx *Index) CreateProjectRecord(ctx context.Context, rec ProjectRecord, getIfExists bool) (ProjectRecord, error) {
	if rec.Assets == nil {
		rec.Assets = []string{}
	}

	if rec.ReaderKey == "" {
		rec.ReaderKey = "default"
	}

	assets, err := json.Marshal(rec.Assets)
	if err != nil {
		return ProjectRecord{}, fmt.Errorf("index: marshal project assets: %w", err)
	}

	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var created ProjectRecord

	err = idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, execErr := tx.ExecContext(ctx, `
			INSERT INTO project (uri, assets, reader_key, traceback, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			rec.URI, string(assets), rec.ReaderKey, rec.Traceback, now.Unix(),
		)
		if execErr != nil {
			if isUniqueViolation(execErr) {
				if !getIfExists {
					return ErrDuplicateURI
				}

				existing, lookupErr := scanProjectRow(tx.QueryRowContext(ctx,
					projectSelectColumns+" FROM project WHERE uri = ?", rec.URI))
				if lookupErr != nil {
					return lookupErr
				}

				created = existing

				return nil
			}

			return fmt.Errorf("index: insert project record: %w", execErr)
		}

		id, idErr := result.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("index: last insert id: %w", idErr)
		}

		rec.ID = id
		rec.CreatedAt = now
		created = rec

		return nil
	})
	if err != nil {
		return ProjectRecord{}, err
	}

	return created, nil
}

// RemoveProjectRecord deletes the project row for uri.
func (idx *Index) RemoveProjectRecord(ctx context.Context, uri string) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM project WHERE uri = ?", uri)
		if err != nil {
			return fmt.Errorf("index: remove project record: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("index: remove project rows affected: %w", err)
		}

		if affected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// RemoveProjectRecordByID deletes the project row with the given id.
func (idx *Index) RemoveProjectRecordByID(ctx context.Context, id int64) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "DELETE FROM project WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("index: remove project record by id: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("index: remove project rows affected: %w", err)
		}

		if affected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// SetTraceback records the most recent execution failure for uri, so a
// caller can inspect the last error without re-executing the notebook.
func (idx *Index) SetTraceback(ctx context.Context, uri string, traceback *string) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, "UPDATE project SET traceback = ? WHERE uri = ?", traceback, uri)
		if err != nil {
			return fmt.Errorf("index: set traceback: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("index: set traceback rows affected: %w", err)
		}

		if affected == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// ClearTracebacks sets the traceback of every project row to NULL.
func (idx *Index) ClearTracebacks(ctx context.Context) error {
	return idx.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE project SET traceback = NULL WHERE traceback IS NOT NULL")
		if err != nil {
			return fmt.Errorf("index: clear tracebacks: %w", err)
		}

		return nil
	})
}

// LookupProjectByURI returns the project record for uri, or ErrNotFound.
func (idx *Index) LookupProjectByURI(ctx context.Context, uri string) (ProjectRecord, error) {
	row := idx.reader.QueryRowContext(ctx, projectSelectColumns+" FROM project WHERE uri = ?", uri)

	rec, err := scanProjectRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectRecord{}, ErrNotFound
	}

	return rec, err
}

// LookupProjectByID returns the project record with the given id, or
// ErrNotFound.
func (idx *Index) LookupProjectByID(ctx context.Context, id int64) (ProjectRecord, error) {
	row := idx.reader.QueryRowContext(ctx, projectSelectColumns+" FROM project WHERE id = ?", id)

	rec, err := scanProjectRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ProjectRecord{}, ErrNotFound
	}

	return rec, err
}

// ListProjectRecords returns every project record ordered by uri.
func (idx *Index) ListProjectRecords(ctx context.Context) ([]ProjectRecord, error) {
	rows, err := idx.reader.QueryContext(ctx, projectSelectColumns+" FROM project ORDER BY uri")
	if err != nil {
		return nil, fmt.Errorf("index: list project records: %w", err)
	}
	defer rows.Close()

	var records []ProjectRecord

	for rows.Next() {
		rec, scanErr := scanProjectRow(rows)
		if scanErr != nil {
			return nil, scanErr
		}

		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: iterate project rows: %w", err)
	}

	return records, nil
}

const projectSelectColumns = "SELECT id, uri, assets, reader_key, traceback, created_at"

func scanProjectRow(row rowScanner) (ProjectRecord, error) {
	var (
		rec       ProjectRecord
		assets    string
		createdAt int64
	)

	err := row.Scan(&rec.ID, &rec.URI, &assets, &rec.ReaderKey, &rec.Traceback, &createdAt)
	if err != nil {
		return ProjectRecord{}, fmt.Errorf("index: scan project row: %w", err)
	}

	err = json.Unmarshal([]byte(assets), &rec.Assets)
	if err != nil {
		return ProjectRecord{}, fmt.Errorf("index: unmarshal project assets: %w", err)
	}

	rec.CreatedAt = time.Unix(createdAt, 0).UTC()

	return rec, nil
}
