package principal

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/store"
)

// Hasher turns a plaintext secret into a stored one-way hash.
type Hasher interface {
	Hash(plain string) (string, error)
}

// Service manages principal lifecycle: creation, deletion and lookups.
type Service struct {
	db     *store.DB
	repo   *Repository
	hasher Hasher
	clock  abtime.AbstractTime
	loc    *time.Location
}

// NewService creates a principal service backed by db. Date-of-birth checks
// use the calendar day in loc.
func NewService(db *store.DB, hasher Hasher, clock abtime.AbstractTime, loc *time.Location) *Service {
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, repo: NewRepository(db.Client), hasher: hasher, clock: clock, loc: loc}
}

// Repository exposes the read side for collaborators that only need lookups.
func (s *Service) Repository() *Repository { return s.repo }

// Create validates and stores a new principal. Only super admins may create admins.
func (s *Service) Create(ctx context.Context, actor Actor, in NewPrincipal) (*Principal, error) {
	if !actor.Role.IsAdmin() {
		return nil, apperr.New(apperr.Forbidden, "only admins can create principals")
	}
	in.ID = strings.TrimSpace(in.ID)
	in.Email = strings.TrimSpace(in.Email)
	if in.Kind == KindAdmin && actor.Role != RoleSuperAdmin {
		return nil, apperr.New(apperr.HierarchyDenied, "only a super admin can create admins")
	}
	dob, err := in.Validate(s.clock.Now().In(s.loc))
	if err != nil {
		return nil, err
	}
	secret := in.Password
	if secret == "" {
		secret = in.DOB
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "hash password", err)
	}
	p := &Principal{
		ID:           in.ID,
		Kind:         in.Kind,
		Name:         strings.ToUpper(strings.TrimSpace(in.Name)),
		Email:        in.Email,
		DOB:          dob,
		PasswordHash: hash,
		Status:       StatusActive,
		CreatedAt:    s.clock.Now().UTC(),
	}
	if in.Phone != "" {
		phone := in.Phone
		p.Phone = &phone
	}
	if in.Kind == KindAdmin {
		p.AdminType = in.AdminType
		if p.AdminType == "" {
			p.AdminType = AdminNormal
		}
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if existing, err := repo.Get(ctx, p.Kind, p.ID); err != nil {
			return err
		} else if existing != nil {
			return apperr.Newf(apperr.AlreadyExists, "%s %s already exists", p.Kind, p.ID)
		}
		// Uniqueness is per class only; the same email may exist in another class.
		if existing, err := repo.GetByEmail(ctx, p.Kind, p.Email); err != nil {
			return err
		} else if existing != nil {
			return apperr.Newf(apperr.AlreadyExists, "email %s is already registered", p.Email)
		}
		return repo.Insert(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	log.Printf("principal created: %s %s by %s", p.Kind, p.ID, actor.ID)
	return p, nil
}

// Delete removes a principal. The hierarchy and last-super-admin rules of
// blocking apply here as well.
func (s *Service) Delete(ctx context.Context, actor Actor, kind Kind, id string) error {
	if !actor.Role.IsAdmin() {
		return apperr.New(apperr.Forbidden, "only admins can delete principals")
	}
	if strings.EqualFold(actor.ID, id) {
		return apperr.New(apperr.SelfActionDenied, "cannot delete yourself")
	}
	if kind == KindAdmin && actor.Role != RoleSuperAdmin {
		return apperr.New(apperr.HierarchyDenied, "admins cannot act on other admins")
	}
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		target, err := repo.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if target == nil {
			return apperr.Newf(apperr.NotFound, "%s %s not found", kind, id)
		}
		if target.IsSuperAdmin() && target.Status.Active() {
			n, err := repo.CountActiveSuperAdmins(ctx)
			if err != nil {
				return err
			}
			if n <= 1 {
				return apperr.New(apperr.LastSuperAdminProtected, "cannot delete the last super admin")
			}
		}
		if _, err := repo.Delete(ctx, kind, target.ID); err != nil {
			if store.IsForeignKeyViolation(err) {
				return apperr.Wrap(apperr.Conflict, "principal is still referenced by recorded attendance or marks", err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("principal deleted: %s %s by %s", kind, id, actor.ID)
	return nil
}

// Get returns one principal or NotFound.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (*Principal, error) {
	p, err := s.repo.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.Newf(apperr.NotFound, "%s %s not found", kind, id)
	}
	return p, nil
}

// List returns every principal of a class. Plain admins may not list admins.
func (s *Service) List(ctx context.Context, actor Actor, kind Kind) ([]*Principal, error) {
	if kind == KindAdmin && actor.Role != RoleSuperAdmin {
		return nil, apperr.New(apperr.HierarchyDenied, "only a super admin can list admins")
	}
	ps, err := s.repo.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	if ps == nil {
		ps = []*Principal{}
	}
	return ps, nil
}

// Dashboard returns principal counts.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	return s.repo.Dashboard(ctx)
}

// SuperAdminSeed describes the mandatory super admin created at bootstrap.
type SuperAdminSeed struct {
	ID    string
	Name  string
	Email string
	DOB   string
}

// EnsureSuperAdmin creates the seeded super admin when it does not exist.
// An existing account is left untouched, including its password and status.
func (s *Service) EnsureSuperAdmin(ctx context.Context, seed SuperAdminSeed) (bool, error) {
	existing, err := s.repo.Get(ctx, KindAdmin, seed.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	_, err = s.Create(ctx, System, NewPrincipal{
		Kind:      KindAdmin,
		ID:        seed.ID,
		Name:      seed.Name,
		Email:     seed.Email,
		DOB:       seed.DOB,
		AdminType: AdminSuper,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
