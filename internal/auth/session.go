package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/thejerf/abtime"

	"academics/internal/apperr"
	"academics/internal/principal"
)

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 2 * time.Hour

// Claims represents the session JWT payload.
type Claims struct {
	UID  string         `json:"u_id"`
	Role principal.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is a validated or freshly issued session.
type Session struct {
	Token       string
	PrincipalID string
	Role        principal.Role
	ExpiresAt   time.Time
}

// Issuer mints and validates HS256 session tokens. The signing key is
// fixed at construction.
type Issuer struct {
	key     []byte
	issuer  string
	ttl     time.Duration
	clock   abtime.AbstractTime
	revoked Revocations
}

// NewIssuer creates a session issuer.
func NewIssuer(key, issuer string, ttl time.Duration, revoked Revocations, clock abtime.AbstractTime) *Issuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = abtime.NewRealTime()
	}
	if revoked == nil {
		revoked = NewMemoryRevocations()
	}
	return &Issuer{key: []byte(key), issuer: issuer, ttl: ttl, clock: clock, revoked: revoked}
}

// Issue signs a token for the principal and role.
func (i *Issuer) Issue(principalID string, role principal.Role) (Session, error) {
	now := i.clock.Now()
	claims := Claims{
		UID:  principalID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   principalID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "sign session token", err)
	}
	return Session{Token: token, PrincipalID: principalID, Role: role, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Validate checks revocation, signature and expiry, in that order.
func (i *Issuer) Validate(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return Session{}, apperr.New(apperr.Unauthenticated, "token is missing")
	}
	revoked, err := i.revoked.IsRevoked(ctx, token)
	if err != nil {
		return Session{}, apperr.Wrap(apperr.Internal, "revocation lookup", err)
	}
	if revoked {
		return Session{}, apperr.New(apperr.Revoked, "token has been revoked (logged out)")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var claims Claims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	}, opts...)
	if err != nil {
		return Session{}, tokenError(err)
	}
	if claims.UID == "" || !claims.Role.Valid() {
		return Session{}, apperr.New(apperr.MalformedToken, "invalid token payload")
	}
	return Session{Token: token, PrincipalID: claims.UID, Role: claims.Role, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Revoke adds token to the deny-list for the rest of its life. Tokens that
// cannot be parsed are still recorded.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return apperr.New(apperr.Unauthenticated, "token is missing")
	}
	expiresAt := i.clock.Now().Add(i.ttl)
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err == nil && claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	if err := i.revoked.Revoke(ctx, token, expiresAt); err != nil {
		return apperr.Wrap(apperr.Internal, "record revocation", err)
	}
	return nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Wrap(apperr.Expired, "token has expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperr.Wrap(apperr.SignatureInvalid, "token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperr.Wrap(apperr.MalformedToken, "token is malformed", err)
	}
	return apperr.Wrap(apperr.Unauthenticated, "invalid token", err)
}
