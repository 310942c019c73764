package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/abtime"
	"golang.org/x/crypto/bcrypt"

	"academics/internal/apperr"
	"academics/internal/principal"
	"academics/internal/store/storetest"
)

type fixture struct {
	principals *principal.Service
	hasher     *Hasher
	clock      *abtime.ManualTime
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := abtime.NewManualAtTime(epoch)
	hasher := NewHasher(bcrypt.MinCost)
	return &fixture{
		principals: principal.NewService(storetest.New(t), hasher, clock, time.UTC),
		hasher:     hasher,
		clock:      clock,
	}
}

func (f *fixture) create(t *testing.T, in principal.NewPrincipal) *principal.Principal {
	t.Helper()
	p, err := f.principals.Create(context.Background(), principal.System, in)
	require.NoError(t, err)
	return p
}

func (f *fixture) block(t *testing.T, kind principal.Kind, id, reason string) {
	t.Helper()
	ctx := context.Background()
	repo := f.principals.Repository()
	p, err := repo.Get(ctx, kind, id)
	require.NoError(t, err)
	p.Block("A_001", reason, f.clock.Now().UTC(), nil)
	require.NoError(t, repo.SaveBlockState(ctx, p))
}

func TestVerifyPassword(t *testing.T) {
	f := newFixture(t)
	f.create(t, principal.NewPrincipal{Kind: principal.KindStudent, ID: "S_001", Name: "Jane", Email: "jane@school.edu", DOB: "2005-08-15", Password: "s3cret!"})
	v := NewVerifier(f.principals.Repository(), f.hasher, nil)
	ctx := context.Background()

	p, err := v.VerifyPassword(ctx, "s_001", "s3cret!")
	require.NoError(t, err)
	assert.Equal(t, "S_001", p.ID)
	assert.Equal(t, principal.RoleStudent, p.Role())

	_, wrong := v.VerifyPassword(ctx, "S_001", "nope")
	_, unknown := v.VerifyPassword(ctx, "S_999", "s3cret!")
	assert.True(t, apperr.Is(wrong, apperr.InvalidCredentials))
	assert.True(t, apperr.Is(unknown, apperr.InvalidCredentials))
	assert.Equal(t, wrong.Error(), unknown.Error(), "failures must be indistinguishable")

	_, err = v.VerifyPassword(ctx, "  ", "x")
	assert.True(t, apperr.Is(err, apperr.Validation))
}

func TestVerifyPasswordDefaultsToDOB(t *testing.T) {
	f := newFixture(t)
	f.create(t, principal.NewPrincipal{Kind: principal.KindFaculty, ID: "F_001", Name: "Alan", Email: "alan@school.edu", DOB: "1980-02-29"})
	v := NewVerifier(f.principals.Repository(), f.hasher, nil)

	p, err := v.VerifyPassword(context.Background(), "F_001", "1980-02-29")
	require.NoError(t, err)
	assert.Equal(t, principal.RoleFaculty, p.Role())
}

func TestVerifyPasswordReportsBlockedAfterIdentityCheck(t *testing.T) {
	f := newFixture(t)
	f.create(t, principal.NewPrincipal{Kind: principal.KindStudent, ID: "S_001", Name: "Jane", Email: "jane@school.edu", DOB: "2005-08-15"})
	f.block(t, principal.KindStudent, "S_001", "fees unpaid")
	v := NewVerifier(f.principals.Repository(), f.hasher, nil)
	ctx := context.Background()

	p, err := v.VerifyPassword(ctx, "S_001", "2005-08-15")
	assert.Nil(t, p)
	require.True(t, apperr.Is(err, apperr.AccountBlocked))
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "fees unpaid", e.Details["blocked_reason"])

	_, err = v.VerifyPassword(ctx, "S_001", "wrong")
	assert.True(t, apperr.Is(err, apperr.InvalidCredentials), "status is not leaked before the secret matches")
}

func TestVerifyPasswordPrecedence(t *testing.T) {
	f := newFixture(t)
	f.create(t, principal.NewPrincipal{Kind: principal.KindAdmin, ID: "A_001", Name: "Root", Email: "root@school.edu", DOB: "1980-01-01", AdminType: principal.AdminSuper})
	v := NewVerifier(f.principals.Repository(), f.hasher, nil)

	p, err := v.VerifyPassword(context.Background(), "a_001", "1980-01-01")
	require.NoError(t, err)
	assert.Equal(t, principal.RoleSuperAdmin, p.Role())
}

func signAssertion(t *testing.T, secret string, claims assertionClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func TestVerifyFederated(t *testing.T) {
	f := newFixture(t)
	f.create(t, principal.NewPrincipal{Kind: principal.KindFaculty, ID: "F_001", Name: "Alan", Email: "alan@school.edu", DOB: "1980-01-01"})
	f.create(t, principal.NewPrincipal{Kind: principal.KindStudent, ID: "S_001", Name: "Jane", Email: "jane@school.edu", DOB: "2005-08-15"})
	f.block(t, principal.KindStudent, "S_001", "exam misconduct")

	assertions, err := NewJWTAssertionVerifier(FederatedConfig{Issuer: "idp", Audience: "records", SharedSecret: "idp-secret"}, f.clock)
	require.NoError(t, err)
	v := NewVerifier(f.principals.Repository(), f.hasher, assertions)
	ctx := context.Background()

	claimsFor := func(email string, verified bool) assertionClaims {
		return assertionClaims{
			Email:         email,
			EmailVerified: verified,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "idp",
				Audience:  jwt.ClaimStrings{"records"},
				ExpiresAt: jwt.NewNumericDate(f.clock.Now().Add(time.Hour)),
			},
		}
	}

	p, err := v.VerifyFederated(ctx, signAssertion(t, "idp-secret", claimsFor("alan@school.edu", true)))
	require.NoError(t, err)
	assert.Equal(t, "F_001", p.ID)

	_, err = v.VerifyFederated(ctx, signAssertion(t, "idp-secret", claimsFor("ghost@school.edu", true)))
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = v.VerifyFederated(ctx, signAssertion(t, "idp-secret", claimsFor("alan@school.edu", false)))
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	_, err = v.VerifyFederated(ctx, signAssertion(t, "forged", claimsFor("alan@school.edu", true)))
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	_, err = v.VerifyFederated(ctx, signAssertion(t, "idp-secret", claimsFor("jane@school.edu", true)))
	assert.True(t, apperr.Is(err, apperr.AccountBlocked))
}

func TestFederatedLoginDisabledWithoutConfig(t *testing.T) {
	assertions, err := NewJWTAssertionVerifier(FederatedConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, assertions)

	v := NewVerifier(nil, NewHasher(bcrypt.MinCost), nil)
	_, err = v.VerifyFederated(context.Background(), "anything")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
}
