package blocking

import (
	"context"
	"database/sql"
	"time"

	"academics/internal/store"
)

// Action names a status transition recorded in the audit trail.
type Action string

const (
	ActionBlock   Action = "BLOCK"
	ActionUnblock Action = "UNBLOCK"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id"`
	TargetID   string    `json:"target_id"`
	Action     Action    `json:"action"`
	Reason     *string   `json:"reason,omitempty"`
	OccurredAt time.Time `json:"timestamp"`
}

// AuditRepository appends and reads audit entries. There is no update or
// delete path.
type AuditRepository struct {
	q store.Querier
}

// NewAuditRepository creates a repo over a connection or transaction.
func NewAuditRepository(q store.Querier) *AuditRepository {
	return &AuditRepository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *AuditRepository) WithTx(tx *sql.Tx) *AuditRepository {
	return &AuditRepository{q: tx}
}

// Append stores e.
func (r *AuditRepository) Append(ctx context.Context, e Entry) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, target_id, action, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.ActorID, e.TargetID, string(e.Action), e.Reason, e.OccurredAt.UTC())
	return err
}

// Recent returns up to limit entries, newest first.
func (r *AuditRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return r.list(ctx, `ORDER BY occurred_at DESC, id LIMIT $1`, limit)
}

// ForTarget returns every entry about targetID in the order they occurred.
func (r *AuditRepository) ForTarget(ctx context.Context, targetID string) ([]Entry, error) {
	return r.list(ctx, `WHERE target_id = $1 ORDER BY occurred_at, id`, targetID)
}

func (r *AuditRepository) list(ctx context.Context, tail string, arg any) ([]Entry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, actor_id, target_id, action, reason, occurred_at FROM audit_log `+tail, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		var action string
		if err := rows.Scan(&e.ID, &e.ActorID, &e.TargetID, &action, &e.Reason, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.Action = Action(action)
		out = append(out, e)
	}
	return out, rows.Err()
}
