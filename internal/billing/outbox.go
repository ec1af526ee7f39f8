package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// OutboxRepository stores records whose hand-off has not yet succeeded.
// Enqueue is idempotent on Record.ID.
type OutboxRepository interface {
	Enqueue(ctx context.Context, r Record, lastErr string, next time.Time) error
	Due(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, lastErr string, next time.Time) error
}

// MemoryOutbox is an in-memory outbox for tests and local runs.
type MemoryOutbox struct {
	mu      sync.Mutex
	entries map[string]*OutboxEntry
}

func NewMemoryOutbox() *MemoryOutbox { return &MemoryOutbox{entries: map[string]*OutboxEntry{}} }

func (o *MemoryOutbox) Enqueue(ctx context.Context, r Record, lastErr string, next time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.entries[r.ID]; ok {
		return nil
	}
	o.entries[r.ID] = &OutboxEntry{Record: r, Attempts: 1, LastError: lastErr, NextAttemptAt: next, CreatedAt: time.Now().UTC()}
	return nil
}

func (o *MemoryOutbox) Due(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []OutboxEntry
	for _, e := range o.entries {
		if e.DeliveredAt == nil && !e.NextAttemptAt.After(now) {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (o *MemoryOutbox) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return ErrNotFound
	}
	at = at.UTC()
	e.DeliveredAt = &at
	return nil
}

func (o *MemoryOutbox) MarkFailed(ctx context.Context, id string, lastErr string, next time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok {
		return ErrNotFound
	}
	e.Attempts++
	e.LastError = lastErr
	e.NextAttemptAt = next
	return nil
}

// Pending returns undelivered entries. For tests and the operator CLI.
func (o *MemoryOutbox) Pending() []OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []OutboxEntry
	for _, e := range o.entries {
		if e.DeliveredAt == nil {
			out = append(out, *e)
		}
	}
	return out
}

// OutboxSchema is the billing outbox DDL.
const OutboxSchema = `
CREATE TABLE IF NOT EXISTS billing_outbox (
  id              TEXT PRIMARY KEY,
  case_id         UUID NOT NULL,
  payload         JSONB NOT NULL,
  attempts        INT NOT NULL DEFAULT 1,
  last_error      TEXT NOT NULL DEFAULT '',
  next_attempt_at TIMESTAMPTZ NOT NULL,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  delivered_at    TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS billing_outbox_due ON billing_outbox (next_attempt_at) WHERE delivered_at IS NULL;
`

// PostgresOutbox stores the outbox in billing_outbox.
type PostgresOutbox struct {
	db *sql.DB
}

func NewPostgresOutbox(db *sql.DB) *PostgresOutbox { return &PostgresOutbox{db: db} }

func (o *PostgresOutbox) Enqueue(ctx context.Context, r Record, lastErr string, next time.Time) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO billing_outbox (id, case_id, payload, last_error, next_attempt_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING
`
	_, err = o.db.ExecContext(ctx, q, r.ID, r.CaseID, payload, lastErr, next.UTC())
	return err
}

func (o *PostgresOutbox) Due(ctx context.Context, now time.Time, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT payload, attempts, last_error, next_attempt_at, created_at
FROM billing_outbox
WHERE delivered_at IS NULL AND next_attempt_at <= $1
ORDER BY next_attempt_at ASC
LIMIT $2
`
	rows, err := o.db.QueryContext(ctx, q, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var (
			e       OutboxEntry
			payload []byte
		)
		if err := rows.Scan(&payload, &e.Attempts, &e.LastError, &e.NextAttemptAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &e.Record); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (o *PostgresOutbox) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE billing_outbox SET delivered_at = $2 WHERE id = $1`
	return o.exec1(ctx, q, id, at.UTC())
}

func (o *PostgresOutbox) MarkFailed(ctx context.Context, id string, lastErr string, next time.Time) error {
	const q = `UPDATE billing_outbox SET attempts = attempts + 1, last_error = $2, next_attempt_at = $3 WHERE id = $1`
	return o.exec1(ctx, q, id, lastErr, next.UTC())
}

func (o *PostgresOutbox) exec1(ctx context.Context, q string, args ...any) error {
	res, err := o.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
