package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"academics/internal/store"
)

// Repository persists principals. Each class lives in its own table.
type Repository struct {
	q store.Querier
}

// NewRepository creates a repo over a connection or transaction.
func NewRepository(q store.Querier) *Repository {
	return &Repository{q: q}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{q: tx}
}

func table(kind Kind) string {
	switch kind {
	case KindAdmin:
		return "admin"
	case KindFaculty:
		return "faculty"
	case KindStudent:
		return "student"
	}
	panic(fmt.Sprintf("principal: unknown kind %q", kind))
}

func columns(kind Kind) string {
	adminType := "''"
	if kind == KindAdmin {
		adminType = "admin_type"
	}
	return `u_id, name, email, phone, dob, password, ` + adminType + `, status,
		blocked_by, blocked_reason, blocked_at, unblock_at, created_at`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(kind Kind, row scanner) (*Principal, error) {
	p := Principal{Kind: kind}
	var adminType string
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.DOB, &p.PasswordHash, &adminType, &p.Status,
		&p.BlockedBy, &p.BlockedReason, &p.BlockedAt, &p.UnblockAt, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.AdminType = AdminType(adminType)
	return &p, nil
}

func (r *Repository) queryOne(ctx context.Context, kind Kind, where string, arg any) (*Principal, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+columns(kind)+` FROM `+table(kind)+` WHERE `+where, arg)
	p, err := scanPrincipal(kind, row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// Get returns the principal of the given class with a case-insensitive
// identifier match, or nil when absent.
func (r *Repository) Get(ctx context.Context, kind Kind, id string) (*Principal, error) {
	return r.queryOne(ctx, kind, `LOWER(u_id) = LOWER($1)`, id)
}

// GetByEmail returns the principal of the given class with a
// case-insensitive email match, or nil when absent.
func (r *Repository) GetByEmail(ctx context.Context, kind Kind, email string) (*Principal, error) {
	return r.queryOne(ctx, kind, `LOWER(email) = LOWER($1)`, email)
}

// FindByID searches Admin, then Faculty, then Student and returns the first match.
func (r *Repository) FindByID(ctx context.Context, id string) (*Principal, error) {
	for _, kind := range Precedence {
		p, err := r.Get(ctx, kind, id)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, nil
}

// FindByEmail searches Admin, then Faculty, then Student and returns the first match.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	for _, kind := range Precedence {
		p, err := r.GetByEmail(ctx, kind, email)
		if err != nil || p != nil {
			return p, err
		}
	}
	return nil, nil
}

// List returns every principal of a class ordered by identifier.
func (r *Repository) List(ctx context.Context, kind Kind) ([]*Principal, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+columns(kind)+` FROM `+table(kind)+` ORDER BY u_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []*Principal
	for rows.Next() {
		p, err := scanPrincipal(kind, rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// Insert writes a new principal.
func (r *Repository) Insert(ctx context.Context, p *Principal) error {
	if p.Kind == KindAdmin {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO admin (u_id, name, admin_type, email, phone, dob, password, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, p.ID, p.Name, string(p.AdminType), p.Email, p.Phone, p.DOB, p.PasswordHash, string(p.Status), p.CreatedAt)
		return err
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO `+table(p.Kind)+` (u_id, name, email, phone, dob, password, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.Email, p.Phone, p.DOB, p.PasswordHash, string(p.Status), p.CreatedAt)
	return err
}

// Delete removes a principal and reports whether a row was deleted.
func (r *Repository) Delete(ctx context.Context, kind Kind, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM `+table(kind)+` WHERE u_id = $1`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SaveBlockState persists the status and blocking metadata of b.
func (r *Repository) SaveBlockState(ctx context.Context, p *Principal) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE `+table(p.Kind)+`
		SET status = $1, blocked_by = $2, blocked_reason = $3, blocked_at = $4, unblock_at = $5
		WHERE u_id = $6
	`, string(p.Status), p.BlockedBy, p.BlockedReason, p.BlockedAt, p.UnblockAt, p.ID)
	return err
}

// CountActiveSuperAdmins counts super admins whose status is active.
func (r *Repository) CountActiveSuperAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM admin WHERE admin_type = $1 AND status = $2
	`, string(AdminSuper), string(StatusActive)).Scan(&n)
	return n, err
}

// DueForRelease returns blocked principals whose scheduled unblock time has passed.
func (r *Repository) DueForRelease(ctx context.Context, now time.Time) ([]*Principal, error) {
	var res []*Principal
	for _, kind := range Precedence {
		rows, err := r.q.QueryContext(ctx, `
			SELECT `+columns(kind)+` FROM `+table(kind)+`
			WHERE status = $1 AND unblock_at IS NOT NULL AND unblock_at <= $2
			ORDER BY u_id
		`, string(StatusBlocked), now)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			p, err := scanPrincipal(kind, rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			res = append(res, p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Dashboard counts principals per class and status.
func (r *Repository) Dashboard(ctx context.Context) (Dashboard, error) {
	var d Dashboard
	totals := map[Kind]*int{KindStudent: &d.TotalStudents, KindFaculty: &d.TotalFaculty, KindAdmin: &d.TotalAdmins}
	for _, kind := range Precedence {
		var active, blocked int
		err := r.q.QueryRowContext(ctx, `
			SELECT COUNT(*),
				COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
				COALESCE(SUM(CASE WHEN status = 'blocked' THEN 1 ELSE 0 END), 0)
			FROM `+table(kind)).Scan(totals[kind], &active, &blocked)
		if err != nil {
			return Dashboard{}, err
		}
		d.TotalActive += active
		d.TotalBlocked += blocked
	}
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM subject`).Scan(&d.TotalSubjects); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}
