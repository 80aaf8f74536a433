package alerts

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresStore persists the ledger in Postgres. Ordering follows the
// insertion sequence, not the alert timestamp.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open pgx-backed database.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the alerts table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS alerts (
			seq         BIGSERIAL,
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			message     TEXT NOT NULL DEFAULT '',
			occurred_at TIMESTAMPTZ NOT NULL,
			severity    TEXT NOT NULL,
			location    TEXT NOT NULL DEFAULT '',
			resolved    BOOLEAN NOT NULL DEFAULT FALSE,
			image       TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_seq ON alerts (seq DESC);
	`)
	return err
}

const alertColumns = `id, type, message, occurred_at, severity, location, resolved, image`

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(row scanner) (Alert, error) {
	var a Alert
	err := row.Scan(&a.ID, &a.Type, &a.Message, &a.Timestamp, &a.Severity, &a.Location, &a.Resolved, &a.Image)
	return a, err
}

func (s *PostgresStore) Insert(ctx context.Context, a Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (`+alertColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Type, a.Message, a.Timestamp, a.Severity, a.Location, a.Resolved, a.Image)
	return err
}

func (s *PostgresStore) Resolve(ctx context.Context, id string) (Alert, bool, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Alert{}, false, false, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := scanAlert(tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Alert{}, false, false, nil
		}
		return Alert{}, false, false, err
	}
	if a.Resolved {
		return a, true, false, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE alerts SET resolved = TRUE WHERE id = $1`, id); err != nil {
		return Alert{}, false, false, err
	}
	a.Resolved = true
	return a, true, true, tx.Commit()
}

func (s *PostgresStore) Delete(ctx context.Context, id string) (Alert, bool, error) {
	a, err := scanAlert(s.db.QueryRowContext(ctx, `DELETE FROM alerts WHERE id = $1 RETURNING `+alertColumns, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Alert{}, false, nil
		}
		return Alert{}, false, err
	}
	return a, true, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Alert, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n)
	return n, err
}
