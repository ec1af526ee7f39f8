package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"inspection-platform/internal/history"
	"inspection-platform/internal/workflow"
	"inspection-platform/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the case store DDL. Apply history.Schema alongside it.
const Schema = `
CREATE TABLE IF NOT EXISTS cases (
  id             UUID PRIMARY KEY,
  code           TEXT NOT NULL UNIQUE,
  law            TEXT NOT NULL,
  status         TEXT NOT NULL,
  establishments JSONB NOT NULL,
  created_by     TEXT NOT NULL,
  assigned_to    TEXT NOT NULL DEFAULT '',
  decision       TEXT NOT NULL DEFAULT 'PENDING',
  version        BIGINT NOT NULL,
  created_at     TIMESTAMPTZ NOT NULL,
  updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS cases_status_assigned ON cases (status, assigned_to);

CREATE TABLE IF NOT EXISTS case_legal_notices (
  case_id         UUID NOT NULL REFERENCES cases (id),
  kind            TEXT NOT NULL,
  recipient_name  TEXT NOT NULL,
  recipient_email TEXT NOT NULL,
  violations      JSONB,
  penalty_minor   BIGINT NOT NULL DEFAULT 0,
  currency        TEXT NOT NULL DEFAULT '',
  deadline        TIMESTAMPTZ NOT NULL,
  sent_at         TIMESTAMPTZ NOT NULL,
  sent_by         TEXT NOT NULL,
  email_subject   TEXT NOT NULL,
  email_body      TEXT NOT NULL,
  dispatch_id     TEXT NOT NULL,
  UNIQUE (case_id, kind)
);

CREATE TABLE IF NOT EXISTS case_code_seq (
  year INT PRIMARY KEY,
  last BIGINT NOT NULL
);
`

const pgUniqueViolation = "23505"

// PostgresRepo stores cases in Postgres and appends history in the same
// transaction. Writes lock the case row (SELECT ... FOR UPDATE) before the
// version check.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, c Case, rec history.Record) error {
	est, err := json.Marshal(c.Establishments)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO cases (
  id, code, law, status, establishments, created_by, assigned_to, decision, version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
`
		if _, err := tx.ExecContext(ctx, q,
			c.ID,
			c.Code,
			string(c.Law),
			string(c.Status),
			est,
			c.CreatedBy,
			c.AssignedTo,
			string(c.Decision),
			c.Version,
			c.CreatedAt,
			c.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyExists
			}
			return err
		}
		_, err := history.InsertTx(ctx, tx, rec, c.CreatedAt)
		return err
	})
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Case, error) {
	const q = `
SELECT id, code, law, status, establishments, created_by, assigned_to, decision, version, created_at, updated_at
FROM cases
WHERE id = $1
`
	c, err := scanCase(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return Case{}, err
	}
	notices, err := r.loadNotices(ctx, []string{c.ID})
	if err != nil {
		return Case{}, err
	}
	c.Legal = notices[c.ID]
	return c, nil
}

func (r *PostgresRepo) CompareAndSwap(ctx context.Context, expectedVersion int64, next Case, rec history.Record) error {
	err := r.compareAndSwap(ctx, expectedVersion, next, rec)
	if utils.IsTxConflict(err) {
		return ErrVersionConflict
	}
	return err
}

func (r *PostgresRepo) compareAndSwap(ctx context.Context, expectedVersion int64, next Case, rec history.Record) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var version int64
		const lockQ = `SELECT version FROM cases WHERE id = $1 FOR UPDATE`
		if err := tx.QueryRowContext(ctx, lockQ, next.ID).Scan(&version); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		if version != expectedVersion {
			return ErrVersionConflict
		}

		const updQ = `
UPDATE cases
SET status = $2, assigned_to = $3, decision = $4, version = $5, updated_at = $6
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, updQ,
			next.ID,
			string(next.Status),
			next.AssignedTo,
			string(next.Decision),
			next.Version,
			next.UpdatedAt,
		); err != nil {
			return err
		}

		if kind, ok := workflow.NoticeKindFor(rec.Action); ok {
			n := next.Legal.Notice(kind)
			if n == nil {
				return fmt.Errorf("cases: %s commit without notice", kind)
			}
			if err := insertNotice(ctx, tx, next.ID, n); err != nil {
				return err
			}
		}

		_, err := history.InsertTx(ctx, tx, rec, next.UpdatedAt)
		return err
	})
}

func insertNotice(ctx context.Context, tx *sql.Tx, caseID string, n *Notice) error {
	const q = `
INSERT INTO case_legal_notices (
  case_id, kind, recipient_name, recipient_email, violations, penalty_minor, currency,
  deadline, sent_at, sent_by, email_subject, email_body, dispatch_id
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`
	var violations any
	if len(n.Violations) > 0 {
		violations = []byte(n.Violations)
	}
	_, err := tx.ExecContext(ctx, q,
		caseID,
		string(n.Kind),
		n.RecipientName,
		n.RecipientEmail,
		violations,
		n.PenaltyMinor,
		n.Currency,
		n.Deadline,
		n.SentAt,
		n.SentBy,
		n.EmailSubject,
		n.EmailBody,
		n.DispatchID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateNotice
	}
	return err
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Case, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		where = append(where, "status = ANY("+arg(ss)+")")
	}
	if f.Law != "" {
		where = append(where, "law = "+arg(string(f.Law)))
	}
	if f.AssignedTo != "" {
		where = append(where, "assigned_to = "+arg(f.AssignedTo))
	} else if f.Unassigned {
		where = append(where, "assigned_to = ''")
	}

	q := `
SELECT id, code, law, status, establishments, created_by, assigned_to, decision, version, created_at, updated_at
FROM cases`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY created_at ASC, id ASC"
	if f.Limit > 0 {
		q += "\nLIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		q += "\nOFFSET " + arg(f.Offset)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out []Case
		ids []string
	)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		ids = append(ids, c.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}
	notices, err := r.loadNotices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Legal = notices[out[i].ID]
	}
	return out, nil
}

func (r *PostgresRepo) NextSequence(ctx context.Context, year int) (int64, error) {
	const q = `
INSERT INTO case_code_seq (year, last) VALUES ($1, 1)
ON CONFLICT (year) DO UPDATE SET last = case_code_seq.last + 1
RETURNING last
`
	var n int64
	if err := r.db.QueryRowContext(ctx, q, year).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) loadNotices(ctx context.Context, caseIDs []string) (map[string]Legal, error) {
	const q = `
SELECT case_id, kind, recipient_name, recipient_email, violations, penalty_minor, currency,
       deadline, sent_at, sent_by, email_subject, email_body, dispatch_id
FROM case_legal_notices
WHERE case_id = ANY($1)
`
	rows, err := r.db.QueryContext(ctx, q, caseIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]Legal{}
	for rows.Next() {
		var (
			caseID     string
			n          Notice
			violations []byte
		)
		if err := rows.Scan(
			&caseID,
			&n.Kind,
			&n.RecipientName,
			&n.RecipientEmail,
			&violations,
			&n.PenaltyMinor,
			&n.Currency,
			&n.Deadline,
			&n.SentAt,
			&n.SentBy,
			&n.EmailSubject,
			&n.EmailBody,
			&n.DispatchID,
		); err != nil {
			return nil, err
		}
		n.Violations = violations
		l := out[caseID]
		l.set(&n)
		out[caseID] = l
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (Case, error) {
	var (
		c   Case
		est []byte
	)
	if err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Law,
		&c.Status,
		&est,
		&c.CreatedBy,
		&c.AssignedTo,
		&c.Decision,
		&c.Version,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, ErrNotFound
		}
		return Case{}, err
	}
	if err := json.Unmarshal(est, &c.Establishments); err != nil {
		return Case{}, fmt.Errorf("cases: decode establishments: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
