package judgments

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS judgments (
	query_id   TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (query_id, doc_id)
);
`

// SQLiteStore keeps judgments in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.ValidationError("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.StorageError("open db", err)
	}
	// database/sql would otherwise open several connections, and each
	// ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.StorageError("pragma", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.StorageError("migrate", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Add records judgments in one transaction.
func (s *SQLiteStore) Add(ctx context.Context, judgments []Judgment) error {
	if err := validate(judgments); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StorageError("begin tx", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO judgments (query_id, doc_id) VALUES (?, ?)`)
	if err != nil {
		return errors.StorageError("prepare insert", err)
	}
	defer stmt.Close()

	for _, j := range judgments {
		if _, err := stmt.ExecContext(ctx, j.QueryID, j.DocID); err != nil {
			return errors.StorageError("insert judgment", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("commit", err)
	}
	return nil
}

// GroundTruth returns the relevant doc IDs for a query.
func (s *SQLiteStore) GroundTruth(ctx context.Context, queryID string) ([]string, error) {
	return s.strings(ctx, `SELECT doc_id FROM judgments WHERE query_id = ? ORDER BY doc_id`, queryID)
}

// Queries returns all judged query IDs.
func (s *SQLiteStore) Queries(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT query_id FROM judgments ORDER BY query_id`)
}

func (s *SQLiteStore) strings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.StorageError("query", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, errors.StorageError("scan", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("rows", err)
	}
	return out, nil
}

// Delete removes a query's judgments.
func (s *SQLiteStore) Delete(ctx context.Context, queryID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM judgments WHERE query_id = ?`, queryID)
	if err != nil {
		return errors.StorageError("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.StorageError("rows affected", err)
	}
	if n == 0 {
		return errors.NotFoundError(fmt.Sprintf("query %s", queryID))
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
