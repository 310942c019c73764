package principal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academics/internal/apperr"
)

var now = time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)

func validStudent() NewPrincipal {
	return NewPrincipal{
		Kind:  KindStudent,
		ID:    "S_001",
		Name:  "Jane Smith",
		Email: "jane@school.edu",
		Phone: "9876543201",
		DOB:   "2005-08-15",
	}
}

func TestValidateAcceptsWellFormedInput(t *testing.T) {
	dob, err := validStudent().Validate(now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2005, 8, 15, 0, 0, 0, 0, time.UTC), dob)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]struct {
		mutate func(*NewPrincipal)
		field  string
	}{
		"id prefix":         {func(p *NewPrincipal) { p.ID = "F_001" }, "u_id"},
		"id digits":         {func(p *NewPrincipal) { p.ID = "S_01" }, "u_id"},
		"name special":      {func(p *NewPrincipal) { p.Name = "Rohan@#das" }, "name"},
		"name leading":      {func(p *NewPrincipal) { p.Name = "1Rohan" }, "name"},
		"email":             {func(p *NewPrincipal) { p.Email = "not-an-email" }, "email"},
		"phone short":       {func(p *NewPrincipal) { p.Phone = "12345" }, "phone"},
		"phone letters":     {func(p *NewPrincipal) { p.Phone = "98765abcde" }, "phone"},
		"dob format":        {func(p *NewPrincipal) { p.DOB = "15/08/2005" }, "dob"},
		"dob today":         {func(p *NewPrincipal) { p.DOB = "2026-10-17" }, "dob"},
		"dob future":        {func(p *NewPrincipal) { p.DOB = "2027-01-01" }, "dob"},
		"too young":         {func(p *NewPrincipal) { p.DOB = "2023-01-01" }, "dob"},
		"admin type on non": {func(p *NewPrincipal) { p.AdminType = AdminSuper }, "type"},
		"kind":              {func(p *NewPrincipal) { p.Kind = "parent" }, "kind"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := validStudent()
			tc.mutate(&in)
			_, err := in.Validate(now)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.Validation))
			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tc.field, appErr.Details["field"])
		})
	}
}

func TestValidateAgeBoundary(t *testing.T) {
	in := validStudent()
	in.DOB = "2022-10-17"
	_, err := in.Validate(now)
	assert.NoError(t, err, "exactly four years old")

	in.DOB = "2022-10-18"
	_, err = in.Validate(now)
	assert.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(KindAdmin, "A_001"))
	assert.False(t, ValidID(KindAdmin, "a_001"))
	assert.True(t, ValidID(KindFaculty, "F_123"))
	assert.False(t, ValidID(KindStudent, "S_1234"))
}

func TestRoleResolution(t *testing.T) {
	assert.Equal(t, RoleSuperAdmin, (&Principal{Kind: KindAdmin, AdminType: AdminSuper}).Role())
	assert.Equal(t, RoleAdmin, (&Principal{Kind: KindAdmin, AdminType: AdminNormal}).Role())
	assert.Equal(t, RoleFaculty, (&Principal{Kind: KindFaculty}).Role())
	assert.Equal(t, RoleStudent, (&Principal{Kind: KindStudent}).Role())
}

func TestBlockableTransitions(t *testing.T) {
	var b Blockable = &Principal{ID: "S_001", Kind: KindStudent, Status: StatusActive}
	until := now.Add(time.Hour)
	b.Block("A_001", "fees overdue", now, &until)
	assert.Equal(t, StatusBlocked, b.CurrentStatus())
	assert.Equal(t, "fees overdue", b.Reason())

	b.Unblock()
	p := b.(*Principal)
	assert.Equal(t, StatusActive, p.Status)
	assert.Nil(t, p.BlockedBy)
	assert.Nil(t, p.BlockedReason)
	assert.Nil(t, p.UnblockAt)
	assert.NotNil(t, p.BlockedAt)
}
