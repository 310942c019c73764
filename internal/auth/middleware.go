package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"academics/internal/apperr"
	"academics/internal/metrics"
	"academics/internal/principal"
)

// PrincipalLookup fetches the live state of a principal.
type PrincipalLookup interface {
	Get(ctx context.Context, kind principal.Kind, id string) (*principal.Principal, error)
}

// Guard authenticates bearer sessions and enforces role membership.
type Guard struct {
	sessions   *Issuer
	principals PrincipalLookup
	metrics    *metrics.Metrics
}

// NewGuard creates an access guard.
func NewGuard(sessions *Issuer, principals PrincipalLookup, m *metrics.Metrics) *Guard {
	return &Guard{sessions: sessions, principals: principals, metrics: m}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}

// Authenticate validates the session and re-reads the principal on every
// request, so a block takes effect on the next call even while the token
// itself is still valid. The role placed on the context is the live one.
func (g *Guard) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actor, err := g.resolve(ctx, BearerToken(c))
		if err != nil {
			g.reject(c, err)
			return
		}
		c.Request = c.Request.WithContext(WithCaller(ctx, actor))
		c.Next()
	}
}

func (g *Guard) resolve(ctx context.Context, token string) (principal.Actor, error) {
	sess, err := g.sessions.Validate(ctx, token)
	if err != nil {
		return principal.Actor{}, err
	}
	p, err := g.principals.Get(ctx, sess.Role.Kind(), sess.PrincipalID)
	if err != nil {
		return principal.Actor{}, err
	}
	if p == nil {
		return principal.Actor{}, apperr.New(apperr.Unauthenticated, "account no longer exists")
	}
	if err := checkStatus(p); err != nil {
		return principal.Actor{}, err
	}
	return principal.Actor{ID: p.ID, Role: p.Role()}, nil
}

// RequireRoles admits only callers whose role is in allowed. It must run
// after Authenticate.
func (g *Guard) RequireRoles(allowed ...principal.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CallerFrom(c.Request.Context())
		if !ok {
			g.reject(c, apperr.New(apperr.Unauthenticated, "user role not determined"))
			return
		}
		for _, r := range allowed {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		g.reject(c, apperr.New(apperr.Forbidden, "access denied: insufficient privileges"))
	}
}

// Protect combines Authenticate and RequireRoles.
func (g *Guard) Protect(allowed ...principal.Role) []gin.HandlerFunc {
	return []gin.HandlerFunc{g.Authenticate(), g.RequireRoles(allowed...)}
}

func (g *Guard) reject(c *gin.Context, err error) {
	g.metrics.GuardRejected(string(apperr.CodeOf(err)))
	c.AbortWithStatusJSON(apperr.Body(err))
}
