package pgstore

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/open-rails/loopkit/ledger"
)

// Ledger is a Postgres-backed ledger.Store over the loops schema. Grants use
// an upsert that adds to the existing counter; consumption is a guarded
// UPDATE so the row-level lock makes the check-and-increment atomic.
type Ledger struct {
	pg     *pgxpool.Pool
	schema string
}

// NewLedger creates a Postgres-backed ledger. An empty schema defaults to
// "loops". See migrations/postgres for the table definition.
func NewLedger(pg *pgxpool.Pool, schema string) *Ledger {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "loops"
	}
	return &Ledger{pg: pg, schema: s}
}

func (l *Ledger) table() string { return l.schema + ".ledger" }

func (l *Ledger) Grant(ctx context.Context, identity string, loops int64) error {
	_, err := l.pg.Exec(ctx, `INSERT INTO `+l.table()+` AS t (identity, granted, used)
		VALUES ($1, $2, 0)
		ON CONFLICT (identity)
		DO UPDATE SET granted = t.granted + EXCLUDED.granted, updated_at = NOW()`, identity, loops)
	return err
}

func (l *Ledger) TryConsume(ctx context.Context, identity string) (int64, bool, error) {
	var remaining int64
	err := l.pg.QueryRow(ctx, `UPDATE `+l.table()+`
		SET used = used + 1, updated_at = NOW()
		WHERE identity = $1 AND used < granted
		RETURNING granted - used`, identity).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row matched: identity unknown or quota exhausted. Same outcome.
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}

func (l *Ledger) Get(ctx context.Context, identity string) (ledger.Record, bool, error) {
	rec := ledger.Record{Identity: identity}
	err := l.pg.QueryRow(ctx, `SELECT granted, used FROM `+l.table()+` WHERE identity = $1 LIMIT 1`,
		identity).Scan(&rec.Granted, &rec.Used)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Record{}, false, nil
	}
	if err != nil {
		return ledger.Record{}, false, err
	}
	return rec, true, nil
}

// Scan streams every ledger row to fn.
func (l *Ledger) Scan(ctx context.Context, fn func(ledger.Record) error) error {
	rows, err := l.pg.Query(ctx, `SELECT identity, granted, used FROM `+l.table())
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var rec ledger.Record
		if err := rows.Scan(&rec.Identity, &rec.Granted, &rec.Used); err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
