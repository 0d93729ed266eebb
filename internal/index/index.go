package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/notecache/notecache/internal/obs"
)

// Index wires the SQLite-backed relational index. It uses a two-connection
// pattern, same as the single-writer / many-reader split in
// allaspectsdev-tokenman's internal/store: a writer with MaxOpenConns(1)
// serializes every mutating operation, while a separate reader pool
// services concurrent reads without blocking on each other.
type Index struct {
	writer *sql.DB
	reader *sql.DB
	path   string

	closeOnce sync.Once
}

// Open opens (creating if necessary) the SQLite index file at path.
func Open(ctx context.Context, path string) (*Index, error) {
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("index: create directory %s: %w", dir, err)
	}

	writerDSN := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	writer, err := sql.Open("sqlite", writerDSN)
	if err != nil {
		return nil, fmt.Errorf("index: open writer: %w", err)
	}

	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)

	err = writer.PingContext(ctx)
	if err != nil {
		_ = writer.Close()

		return nil, fmt.Errorf("index: ping writer: %w", err)
	}

	readerDSN := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=query_only(1)"
	reader, err := sql.Open("sqlite", readerDSN)
	if err != nil {
		_ = writer.Close()

		return nil, fmt.Errorf("index: open reader: %w", err)
	}

	reader.SetMaxOpenConns(4)

	err = reader.PingContext(ctx)
	if err != nil {
		_ = writer.Close()
		_ = reader.Close()

		return nil, fmt.Errorf("index: ping reader: %w", err)
	}

	idx := &Index{writer: writer, reader: reader, path: path}

	err = idx.ensureSchema(ctx)
	if err != nil {
		_ = idx.Close()

		return nil, err
	}

	return idx, nil
}

func (idx *Index) ensureSchema(ctx context.Context) error {
	version, err := idx.userVersion(ctx)
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	tx, err := idx.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin schema tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("index: create schema: %w", err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion))
	if err != nil {
		return fmt.Errorf("index: set user_version: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("index: commit schema tx: %w", err)
	}

	obs.Log().Debug().Int("version", currentSchemaVersion).Msg("index schema ready")

	return nil
}

func (idx *Index) userVersion(ctx context.Context) (int, error) {
	var version int

	err := idx.writer.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("index: read user_version: %w", err)
	}

	return version, nil
}

// Close releases both connection pools. Safe to call multiple times.
func (idx *Index) Close() error {
	var err error

	idx.closeOnce.Do(func() {
		if idx.writer != nil {
			err = idx.writer.Close()
		}

		if idx.reader != nil {
			closeErr := idx.reader.Close()
			if err == nil {
				err = closeErr
			}
		}
	})

	return err
}

// withWriteTx runs fn inside a single writer transaction (each public
// operation runs in one transaction; on any exception the
// transaction rolls back").
func (idx *Index) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := idx.writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("index: commit tx: %w", err)
	}

	return nil
}
