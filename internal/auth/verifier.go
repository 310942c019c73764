package auth

import (
	"context"
	"strings"

	"academics/internal/apperr"
	"academics/internal/principal"
)

// PrincipalFinder resolves principals across classes in precedence order.
type PrincipalFinder interface {
	FindByID(ctx context.Context, id string) (*principal.Principal, error)
	FindByEmail(ctx context.Context, email string) (*principal.Principal, error)
}

// Verifier resolves a caller's secret to a principal.
type Verifier struct {
	principals PrincipalFinder
	hasher     *Hasher
	assertions AssertionVerifier
}

// NewVerifier creates a credential verifier. assertions may be nil, in which
// case federated login is refused.
func NewVerifier(principals PrincipalFinder, hasher *Hasher, assertions AssertionVerifier) *Verifier {
	return &Verifier{principals: principals, hasher: hasher, assertions: assertions}
}

var errInvalidCredentials = apperr.New(apperr.InvalidCredentials, "invalid credentials")

// VerifyPassword checks an identifier and password. Unknown identifiers and
// wrong passwords fail identically.
func (v *Verifier) VerifyPassword(ctx context.Context, id, password string) (*principal.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return nil, apperr.New(apperr.Validation, "missing credentials")
	}
	p, err := v.principals.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		v.hasher.Burn(password)
		return nil, errInvalidCredentials
	}
	if !v.hasher.Verify(p.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	if err := checkStatus(p); err != nil {
		return nil, err
	}
	return p, nil
}

// VerifyFederated checks a federated identity token and resolves its email.
func (v *Verifier) VerifyFederated(ctx context.Context, raw string) (*principal.Principal, error) {
	if v.assertions == nil {
		return nil, apperr.New(apperr.Unauthenticated, "federated login is not configured")
	}
	a, err := v.assertions.VerifyAssertion(ctx, raw)
	if err != nil {
		return nil, err
	}
	p, err := v.principals.FindByEmail(ctx, a.Email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.NotFound, "user not found with this email")
	}
	if err := checkStatus(p); err != nil {
		return nil, err
	}
	return p, nil
}

// checkStatus runs only after identity is proven.
func checkStatus(p *principal.Principal) error {
	if p.Status.Active() {
		return nil
	}
	reason := p.Reason()
	return apperr.Newf(apperr.AccountBlocked, "account %s", p.Status).With("blocked_reason", reason)
}
