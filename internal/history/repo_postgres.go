package history

import (
	"context"
	"database/sql"
	"time"
)

// Schema is the ledger DDL. UPDATE and DELETE are revoked from the service role
// in production; the trigger is the backstop.
const Schema = `
CREATE TABLE IF NOT EXISTS case_history (
  id              UUID PRIMARY KEY,
  case_id         UUID NOT NULL,
  seq             BIGINT NOT NULL,
  previous_status TEXT NOT NULL DEFAULT '',
  new_status      TEXT NOT NULL,
  action          TEXT NOT NULL,
  actor_id        TEXT NOT NULL,
  actor_role      TEXT NOT NULL,
  remarks         TEXT NOT NULL DEFAULT '',
  created_at      TIMESTAMPTZ NOT NULL,
  UNIQUE (case_id, seq)
);

CREATE OR REPLACE FUNCTION case_history_immutable() RETURNS trigger AS $$
BEGIN
  RAISE EXCEPTION 'case_history is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS case_history_no_mutation ON case_history;
CREATE TRIGGER case_history_no_mutation
  BEFORE UPDATE OR DELETE ON case_history
  FOR EACH ROW EXECUTE FUNCTION case_history_immutable();
`

// PostgresRepo reads the ledger from case_history. Appends go through
// InsertTx inside the case store's transaction.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// InsertTx appends rec inside tx, assigning the next seq for the case. The
// caller must hold the case row lock so concurrent inserts cannot race on seq.
func InsertTx(ctx context.Context, tx *sql.Tx, rec Record, now time.Time) (Record, error) {
	rec, err := Prepare(rec, now)
	if err != nil {
		return Record{}, err
	}
	const q = `
INSERT INTO case_history (
  id, case_id, seq, previous_status, new_status, action, actor_id, actor_role, remarks, created_at
)
SELECT $1, $2, COALESCE(MAX(seq), 0) + 1, $3, $4, $5, $6, $7, $8, $9
FROM case_history
WHERE case_id = $2
RETURNING seq
`
	if err := tx.QueryRowContext(ctx, q,
		rec.ID,
		rec.CaseID,
		string(rec.PreviousStatus),
		string(rec.NewStatus),
		string(rec.Action),
		rec.ActorID,
		rec.ActorRole,
		rec.Remarks,
		rec.CreatedAt,
	).Scan(&rec.Seq); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) ListFor(ctx context.Context, caseID string) ([]Record, error) {
	const q = `
SELECT id, case_id, seq, previous_status, new_status, action, actor_id, actor_role, remarks, created_at
FROM case_history
WHERE case_id = $1
ORDER BY seq ASC
`
	rows, err := r.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.CaseID,
			&rec.Seq,
			&rec.PreviousStatus,
			&rec.NewStatus,
			&rec.Action,
			&rec.ActorID,
			&rec.ActorRole,
			&rec.Remarks,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
