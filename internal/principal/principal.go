// Package principal is the identity store: admins, faculty and students,
// their lifecycle status and the blocking metadata attached to them.
package principal

import (
	"strings"
	"time"
)

// Kind is the principal class.
type Kind string

const (
	KindAdmin   Kind = "admin"
	KindFaculty Kind = "faculty"
	KindStudent Kind = "student"
)

// Precedence is the fixed lookup order used when a principal is resolved by
// identifier or email without knowing its class.
var Precedence = []Kind{KindAdmin, KindFaculty, KindStudent}

// ParseKind accepts the singular class names used in request paths.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAdmin, "admins":
		return KindAdmin, true
	case KindFaculty:
		return KindFaculty, true
	case KindStudent, "students":
		return KindStudent, true
	}
	return "", false
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusSuspended Status = "suspended" // reserved, no transition produces it yet
)

// Active reports whether the status lets the principal authenticate.
func (s Status) Active() bool { return s == StatusActive }

// AdminType distinguishes super admins from normal admins.
type AdminType string

const (
	AdminSuper  AdminType = "super"
	AdminNormal AdminType = "normal"
)

// Role is the access level derived from the principal class and admin type.
type Role string

const (
	RoleStudent    Role = "student"
	RoleFaculty    Role = "faculty"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsAdmin reports whether the role belongs to either admin tier.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Kind returns the principal class a role is drawn from.
func (r Role) Kind() Kind {
	switch r {
	case RoleAdmin, RoleSuperAdmin:
		return KindAdmin
	case RoleFaculty:
		return KindFaculty
	}
	return KindStudent
}

// Actor is the authenticated caller performing an operation.
type Actor struct {
	ID   string
	Role Role
}

// System is the actor recorded for automatic transitions.
var System = Actor{ID: "SYSTEM", Role: RoleSuperAdmin}

// Principal is one admin, faculty member or student.
type Principal struct {
	ID            string     `json:"u_id"`
	Kind          Kind       `json:"kind"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         *string    `json:"phone,omitempty"`
	DOB           time.Time  `json:"dob"`
	PasswordHash  string     `json:"-"`
	AdminType     AdminType  `json:"admin_type,omitempty"`
	Status        Status     `json:"status"`
	BlockedBy     *string    `json:"blocked_by,omitempty"`
	BlockedReason *string    `json:"blocked_reason,omitempty"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`
	UnblockAt     *time.Time `json:"unblock_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Role resolves the access level of p.
func (p *Principal) Role() Role {
	switch p.Kind {
	case KindAdmin:
		if p.AdminType == AdminSuper {
			return RoleSuperAdmin
		}
		return RoleAdmin
	case KindFaculty:
		return RoleFaculty
	}
	return RoleStudent
}

// IsSuperAdmin reports whether p is an admin of the super tier.
func (p *Principal) IsSuperAdmin() bool {
	return p.Kind == KindAdmin && p.AdminType == AdminSuper
}

// Blockable is the capability shared by every principal class: the blocking
// authority only ever talks to this interface.
type Blockable interface {
	PrincipalID() string
	Class() Kind
	CurrentStatus() Status
	Reason() string
	Block(by, reason string, at time.Time, until *time.Time)
	Unblock()
}

var _ Blockable = (*Principal)(nil)

func (p *Principal) PrincipalID() string   { return p.ID }
func (p *Principal) Class() Kind           { return p.Kind }
func (p *Principal) CurrentStatus() Status { return p.Status }

// Reason returns the stored blocked reason, or "" when none is recorded.
func (p *Principal) Reason() string {
	if p.BlockedReason == nil {
		return ""
	}
	return *p.BlockedReason
}

// Block moves p to the blocked state and records who did it and why.
func (p *Principal) Block(by, reason string, at time.Time, until *time.Time) {
	p.Status = StatusBlocked
	p.BlockedBy = &by
	p.BlockedReason = &reason
	p.BlockedAt = &at
	p.UnblockAt = until
}

// Unblock returns p to the active state. blocked_at is kept as history.
func (p *Principal) Unblock() {
	p.Status = StatusActive
	p.BlockedBy = nil
	p.BlockedReason = nil
	p.UnblockAt = nil
}

// Dashboard summarises principal counts.
type Dashboard struct {
	TotalStudents int `json:"total_students"`
	TotalFaculty  int `json:"total_faculty"`
	TotalAdmins   int `json:"total_admins"`
	TotalSubjects int `json:"total_subjects"`
	TotalActive   int `json:"total_active_users"`
	TotalBlocked  int `json:"total_blocked_users"`
}
