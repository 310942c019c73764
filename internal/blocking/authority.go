// Package blocking governs the active/blocked/suspended lifecycle of
// principals, who may change it, and the audit trail each change leaves.
package blocking

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/metrics"
	"academics/internal/principal"
	"academics/internal/queue"
	"academics/internal/store"
)

// DefaultReason is recorded when a block request carries no reason.
const DefaultReason = "Admin Action"

const releaseReason = "Scheduled unblock"

// Publisher receives committed audit entries.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Authority applies block and unblock transitions.
type Authority struct {
	db         *store.DB
	principals *principal.Repository
	audit      *AuditRepository
	clock      abtime.AbstractTime
	publisher  Publisher
	metrics    *metrics.Metrics
}

// NewAuthority creates a blocking authority. publisher may be nil.
func NewAuthority(db *store.DB, clock abtime.AbstractTime, publisher Publisher, m *metrics.Metrics) *Authority {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	return &Authority{
		db:         db,
		principals: principal.NewRepository(db.Client),
		audit:      NewAuditRepository(db.Client),
		clock:      clock,
		publisher:  publisher,
		metrics:    m,
	}
}

// Block moves the target to blocked. until, when set, schedules an
// automatic release by ReleaseDue.
func (a *Authority) Block(ctx context.Context, actor principal.Actor, kind principal.Kind, id, reason string, until *time.Time) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	if until != nil {
		u := until.UTC()
		until = &u
	}
	return a.transition(ctx, actor, kind, id, ActionBlock, reason, func(b principal.Blockable, now time.Time) {
		b.Block(actor.ID, reason, now, until)
	})
}

// Unblock returns the target to active. Unblocking an active principal is
// a no-op and leaves no audit entry.
func (a *Authority) Unblock(ctx context.Context, actor principal.Actor, kind principal.Kind, id string) error {
	return a.transition(ctx, actor, kind, id, ActionUnblock, "", func(b principal.Blockable, _ time.Time) {
		b.Unblock()
	})
}

// SetStatus dispatches to Block or Unblock by the requested status.
func (a *Authority) SetStatus(ctx context.Context, actor principal.Actor, kind principal.Kind, id string, status principal.Status, reason string, until *time.Time) error {
	switch status {
	case principal.StatusBlocked:
		return a.Block(ctx, actor, kind, id, reason, until)
	case principal.StatusActive:
		return a.Unblock(ctx, actor, kind, id)
	}
	return apperr.Newf(apperr.Validation, "invalid status %q", status).With("field", "status")
}

func (a *Authority) transition(ctx context.Context, actor principal.Actor, kind principal.Kind, id string, action Action,
	reason string, apply func(principal.Blockable, time.Time)) error {
	entry, err := a.apply(ctx, actor, kind, id, action, reason, apply)
	if err != nil {
		a.metrics.Transition(string(action), string(apperr.CodeOf(err)))
		return err
	}
	if entry.ID == "" {
		a.metrics.Transition(string(action), "noop")
		return nil
	}
	a.metrics.Transition(string(action), "ok")
	log.Printf("%s: %s %s by %s", action, kind, entry.TargetID, actor.ID)
	a.publish(ctx, entry)
	return nil
}

func (a *Authority) apply(ctx context.Context, actor principal.Actor, kind principal.Kind, id string, action Action,
	reason string, apply func(principal.Blockable, time.Time)) (Entry, error) {
	if !actor.Role.IsAdmin() {
		return Entry{}, apperr.New(apperr.Forbidden, "only admins can change account status")
	}
	id = strings.TrimSpace(id)
	if strings.EqualFold(actor.ID, id) {
		return Entry{}, apperr.Newf(apperr.SelfActionDenied, "cannot %s yourself", strings.ToLower(string(action)))
	}
	if kind == principal.KindAdmin && actor.Role != principal.RoleSuperAdmin {
		return Entry{}, apperr.New(apperr.HierarchyDenied, "admins cannot act on other admins")
	}

	var entry Entry
	err := a.db.WithTx(ctx, func(tx *sql.Tx) error {
		repo := a.principals.WithTx(tx)
		target, err := repo.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.Newf(apperr.NotFound, "%s %s not found", kind, id)
		}
		if action == ActionBlock && target.IsSuperAdmin() {
			n, err := repo.CountActiveSuperAdmins(ctx)
			if err != nil {
				return err
			}
			if n <= 1 {
				return apperr.New(apperr.LastSuperAdminProtected, "cannot block the last active super admin")
			}
		}
		if action == ActionUnblock && target.CurrentStatus().Active() {
			return nil
		}
		entry, err = a.record(ctx, tx, actor.ID, target, action, reason, apply)
		return err
	})
	return entry, err
}

// record applies the transition to target and appends the audit entry
// inside tx.
func (a *Authority) record(ctx context.Context, tx *sql.Tx, actorID string, target *principal.Principal, action Action,
	reason string, apply func(principal.Blockable, time.Time)) (Entry, error) {
	now := a.clock.Now().UTC()
	apply(target, now)
	if err := a.principals.WithTx(tx).SaveBlockState(ctx, target); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		TargetID:   target.PrincipalID(),
		Action:     action,
		OccurredAt: now,
	}
	if reason != "" {
		entry.Reason = &reason
	}
	if err := a.audit.WithTx(tx).Append(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// ReleaseDue unblocks every principal whose scheduled unblock time has
// passed, acting as SYSTEM. It returns the number released.
func (a *Authority) ReleaseDue(ctx context.Context) (int, error) {
	now := a.clock.Now().UTC()
	due, err := a.principals.DueForRelease(ctx, now)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, p := range due {
		var entry Entry
		err := a.db.WithTx(ctx, func(tx *sql.Tx) error {
			current, err := a.principals.WithTx(tx).Get(ctx, p.Kind, p.ID)
			if err != nil || current == nil {
				return err
			}
			if current.Status != principal.StatusBlocked || current.UnblockAt == nil || current.UnblockAt.After(now) {
				return nil
			}
			entry, err = a.record(ctx, tx, principal.System.ID, current, ActionUnblock, releaseReason, func(b principal.Blockable, _ time.Time) {
				b.Unblock()
			})
			return err
		})
		if err != nil {
			a.metrics.Transition(string(ActionUnblock), string(apperr.CodeOf(err)))
			log.Printf("scheduled unblock of %s %s failed: %v", p.Kind, p.ID, err)
			continue
		}
		if entry.ID == "" {
			continue
		}
		released++
		a.metrics.Transition(string(ActionUnblock), "ok")
		log.Printf("UNBLOCK: %s %s by %s (scheduled)", p.Kind, p.ID, principal.System.ID)
		a.publish(ctx, entry)
	}
	return released, nil
}

// AuditLog returns the newest entries first.
func (a *Authority) AuditLog(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return a.audit.Recent(ctx, limit)
}

// History returns every entry about one target, oldest first.
func (a *Authority) History(ctx context.Context, targetID string) ([]Entry, error) {
	return a.audit.ForTarget(ctx, targetID)
}

// publish is best effort: the committed audit row is authoritative.
func (a *Authority) publish(ctx context.Context, e Entry) {
	if a.publisher == nil {
		return
	}
	msg, err := queue.NewMessage(queue.TypeAudit, e)
	if err != nil {
		log.Printf("encode audit event %s: %v", e.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := a.publisher.Publish(ctx, msg); err != nil {
		log.Printf("publish audit event %s: %v", e.ID, err)
	}
}
