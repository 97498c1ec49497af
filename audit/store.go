// Package audit persists restricted-route gate decisions to SQLite so
// operators can reconcile access against on-chain payments.
package audit

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"x402gate/gate"
)

// Store records gate decisions. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed initializes) the audit database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS gate_decisions (
        id TEXT PRIMARY KEY,
        decided_at TEXT NOT NULL,
        method TEXT NOT NULL,
        path TEXT NOT NULL,
        wallet TEXT NOT NULL,
        outcome TEXT NOT NULL,
        status INTEGER NOT NULL
    )`)
	return err
}

// Record inserts one decision. Implements gate.Auditor.
func (s *Store) Record(ctx context.Context, d gate.Decision) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gate_decisions (id, decided_at, method, path, wallet, outcome, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time.UTC().Format(time.RFC3339Nano), d.Method, d.Path, d.Wallet, d.Outcome, d.Status)
	return err
}

// Recent returns up to limit decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]gate.Decision, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, decided_at, method, path, wallet, outcome, status FROM gate_decisions ORDER BY decided_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []gate.Decision
	for rows.Next() {
		var d gate.Decision
		var decidedAt string
		if err := rows.Scan(&d.ID, &decidedAt, &d.Method, &d.Path, &d.Wallet, &d.Outcome, &d.Status); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, decidedAt); err == nil {
			d.Time = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ gate.Auditor = (*Store)(nil)
