package blocking_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/blocking"
	"academics/internal/metrics"
	"academics/internal/principal"
	"academics/internal/queue"
	"academics/internal/store/storetest"
)

type plainHasher struct{}

func (plainHasher) Hash(s string) (string, error) { return "hashed:" + s, nil }

var (
	epoch      = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	rootAdmin  = principal.Actor{ID: "A_001", Role: principal.RoleSuperAdmin}
	plainAdmin = principal.Actor{ID: "A_002", Role: principal.RoleAdmin}
)

type harness struct {
	authority  *blocking.Authority
	principals *principal.Service
	queue      *queue.InMemory
	clock      *abtime.ManualTime
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storetest.New(t)
	clock := abtime.NewManualAtTime(epoch)
	q := queue.NewInMemory(32)
	h := &harness{
		authority:  blocking.NewAuthority(db, clock, q, metrics.New(prometheus.NewRegistry())),
		principals: principal.NewService(db, plainHasher{}, clock, time.UTC),
		queue:      q,
		clock:      clock,
	}
	h.add(t, principal.KindAdmin, "A_001", principal.AdminSuper)
	h.add(t, principal.KindAdmin, "A_002", principal.AdminNormal)
	h.add(t, principal.KindStudent, "S_001", "")
	return h
}

func (h *harness) add(t *testing.T, kind principal.Kind, id string, adminType principal.AdminType) {
	t.Helper()
	_, err := h.principals.Create(context.Background(), principal.System, principal.NewPrincipal{
		Kind:      kind,
		ID:        id,
		Name:      "Person " + string(kind),
		Email:     id + "@school.edu",
		DOB:       "1990-01-01",
		AdminType: adminType,
	})
	require.NoError(t, err)
}

func (h *harness) get(t *testing.T, kind principal.Kind, id string) *principal.Principal {
	t.Helper()
	p, err := h.principals.Get(context.Background(), kind, id)
	require.NoError(t, err)
	return p
}

func TestBlockRecordsStateAndAudit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.authority.Block(ctx, plainAdmin, principal.KindStudent, "s_001", "fees unpaid", nil))

	p := h.get(t, principal.KindStudent, "S_001")
	assert.Equal(t, principal.StatusBlocked, p.Status)
	assert.Equal(t, "A_002", *p.BlockedBy)
	assert.Equal(t, "fees unpaid", p.Reason())
	assert.True(t, p.BlockedAt.Equal(epoch))

	entries, err := h.authority.History(ctx, "S_001")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, blocking.ActionBlock, entries[0].Action)
	assert.Equal(t, "A_002", entries[0].ActorID)
	assert.Equal(t, "fees unpaid", *entries[0].Reason)
	assert.False(t, entries[0].OccurredAt.Before(epoch))

	assert.Equal(t, 1, h.queue.Len(), "committed entry is published")
}

func TestBlockWithoutReasonUsesDefault(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.authority.Block(context.Background(), rootAdmin, principal.KindStudent, "S_001", "  ", nil))
	assert.Equal(t, blocking.DefaultReason, h.get(t, principal.KindStudent, "S_001").Reason())
}

func TestUnblockClearsMetadata(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	until := epoch.Add(24 * time.Hour)
	require.NoError(t, h.authority.Block(ctx, rootAdmin, principal.KindStudent, "S_001", "late fees", &until))
	h.clock.Advance(time.Minute)
	require.NoError(t, h.authority.Unblock(ctx, plainAdmin, principal.KindStudent, "S_001"))

	p := h.get(t, principal.KindStudent, "S_001")
	assert.Equal(t, principal.StatusActive, p.Status)
	assert.Nil(t, p.BlockedBy)
	assert.Nil(t, p.BlockedReason)
	assert.Nil(t, p.UnblockAt)
	assert.NotNil(t, p.BlockedAt, "blocked_at is kept as history")

	entries, err := h.authority.History(ctx, "S_001")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, blocking.ActionUnblock, entries[1].Action)
	assert.Nil(t, entries[1].Reason)
}

func TestUnblockOfActivePrincipalLeavesNoTrace(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.authority.Unblock(ctx, plainAdmin, principal.KindStudent, "S_001"))
	assert.Equal(t, principal.StatusActive, h.get(t, principal.KindStudent, "S_001").Status)

	entries, err := h.authority.History(ctx, "S_001")
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, h.queue.Len())
}

func TestPreconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	faculty := principal.Actor{ID: "F_001", Role: principal.RoleFaculty}

	cases := []struct {
		name  string
		actor principal.Actor
		kind  principal.Kind
		id    string
		want  apperr.Code
	}{
		{"faculty cannot block", faculty, principal.KindStudent, "S_001", apperr.Forbidden},
		{"self block", plainAdmin, principal.KindAdmin, "a_002", apperr.SelfActionDenied},
		{"admin on admin", plainAdmin, principal.KindAdmin, "A_001", apperr.HierarchyDenied},
		{"admin on missing admin", plainAdmin, principal.KindAdmin, "A_404", apperr.HierarchyDenied},
		{"sole super admin", principal.Actor{ID: "A_009", Role: principal.RoleSuperAdmin}, principal.KindAdmin, "A_001", apperr.LastSuperAdminProtected},
		{"missing target", rootAdmin, principal.KindStudent, "S_404", apperr.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.authority.Block(ctx, tc.actor, tc.kind, tc.id, "x", nil)
			assert.True(t, apperr.Is(err, tc.want), "got %v", err)
		})
	}

	entries, err := h.authority.AuditLog(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed transitions leave no trace")
	assert.Zero(t, h.queue.Len())
}

func TestHierarchyAppliesRegardlessOfTargetStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, principal.KindAdmin, "A_003", principal.AdminNormal)
	require.NoError(t, h.authority.Block(ctx, rootAdmin, principal.KindAdmin, "A_003", "audit", nil))

	err := h.authority.Unblock(ctx, plainAdmin, principal.KindAdmin, "A_003")
	assert.True(t, apperr.Is(err, apperr.HierarchyDenied))
	err = h.authority.Block(ctx, plainAdmin, principal.KindAdmin, "A_003", "again", nil)
	assert.True(t, apperr.Is(err, apperr.HierarchyDenied))
}

func TestLastSuperAdminProtection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, principal.KindAdmin, "A_003", principal.AdminSuper)
	outsider := principal.Actor{ID: "A_099", Role: principal.RoleSuperAdmin}

	require.NoError(t, h.authority.Block(ctx, outsider, principal.KindAdmin, "A_003", "rotation", nil))
	err := h.authority.Block(ctx, outsider, principal.KindAdmin, "A_001", "rotation", nil)
	assert.True(t, apperr.Is(err, apperr.LastSuperAdminProtected))
	assert.Equal(t, principal.StatusActive, h.get(t, principal.KindAdmin, "A_001").Status)
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.authority.SetStatus(ctx, rootAdmin, principal.KindStudent, "S_001", principal.StatusBlocked, "misconduct", nil))
	assert.Equal(t, principal.StatusBlocked, h.get(t, principal.KindStudent, "S_001").Status)

	require.NoError(t, h.authority.SetStatus(ctx, rootAdmin, principal.KindStudent, "S_001", principal.StatusActive, "", nil))
	assert.Equal(t, principal.StatusActive, h.get(t, principal.KindStudent, "S_001").Status)

	err := h.authority.SetStatus(ctx, rootAdmin, principal.KindStudent, "S_001", principal.StatusSuspended, "", nil)
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestReleaseDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	until := epoch.Add(time.Hour)
	require.NoError(t, h.authority.Block(ctx, rootAdmin, principal.KindStudent, "S_001", "cool off", &until))

	h.clock.Advance(30 * time.Minute)
	n, err := h.authority.ReleaseDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(31 * time.Minute)
	n, err = h.authority.ReleaseDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, principal.StatusActive, h.get(t, principal.KindStudent, "S_001").Status)

	entries, err := h.authority.AuditLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, blocking.ActionUnblock, entries[0].Action, "newest first")
	assert.Equal(t, principal.System.ID, entries[0].ActorID)

	n, err = h.authority.ReleaseDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
