package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"academics/internal/metrics"
	"academics/internal/principal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type guardHarness struct {
	*fixture
	sessions *Issuer
	router   *gin.Engine
}

func newGuardHarness(t *testing.T, m *metrics.Metrics) *guardHarness {
	t.Helper()
	f := newFixture(t)
	sessions := NewIssuer("guard-secret", "records-test", 0, NewMemoryRevocations(), f.clock)
	guard := NewGuard(sessions, f.principals.Repository(), m)

	r := gin.New()
	whoami := func(c *gin.Context) {
		actor, _ := CallerFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"u_id": actor.ID, "role": actor.Role})
	}
	r.GET("/faculty", append(guard.Protect(principal.RoleFaculty), whoami)...)
	r.GET("/admin", append(guard.Protect(principal.RoleAdmin, principal.RoleSuperAdmin), whoami)...)
	return &guardHarness{fixture: f, sessions: sessions, router: r}
}

func (h *guardHarness) call(t *testing.T, path, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestGuardAdmitsMatchingRole(t *testing.T) {
	h := newGuardHarness(t, nil)
	h.create(t, principal.NewPrincipal{Kind: principal.KindFaculty, ID: "F_001", Name: "Alan", Email: "alan@school.edu", DOB: "1980-01-01"})
	sess, err := h.sessions.Issue("F_001", principal.RoleFaculty)
	require.NoError(t, err)

	code, body := h.call(t, "/faculty", sess.Token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "F_001", body["u_id"])
	assert.Equal(t, "faculty", body["role"])

	code, body = h.call(t, "/admin", sess.Token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["code"])
}

func TestGuardRejectsMissingAndRevokedTokens(t *testing.T) {
	h := newGuardHarness(t, nil)
	h.create(t, principal.NewPrincipal{Kind: principal.KindFaculty, ID: "F_001", Name: "Alan", Email: "alan@school.edu", DOB: "1980-01-01"})

	code, body := h.call(t, "/faculty", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["ok"])

	sess, err := h.sessions.Issue("F_001", principal.RoleFaculty)
	require.NoError(t, err)
	require.NoError(t, h.sessions.Revoke(context.Background(), sess.Token))
	code, body = h.call(t, "/faculty", sess.Token)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "revoked", body["code"])
}

func TestGuardSeesBlockMidSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newGuardHarness(t, m)
	h.create(t, principal.NewPrincipal{Kind: principal.KindStudent, ID: "S_001", Name: "Jane", Email: "jane@school.edu", DOB: "2005-08-15"})
	r := h.router
	r.GET("/student", append(NewGuard(h.sessions, h.principals.Repository(), m).Protect(principal.RoleStudent), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})...)

	sess, err := h.sessions.Issue("S_001", principal.RoleStudent)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/student", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	h.block(t, principal.KindStudent, "S_001", "library fine")
	code, body := h.call(t, "/student", sess.Token)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "account_blocked", body["code"])
	assert.Equal(t, "library fine", body["blocked_reason"])
	n, err := testutil.GatherAndCount(reg, "records_guard_rejections_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestGuardUsesLiveRole(t *testing.T) {
	h := newGuardHarness(t, nil)
	h.create(t, principal.NewPrincipal{Kind: principal.KindAdmin, ID: "A_002", Name: "Ops", Email: "ops@school.edu", DOB: "1990-01-01"})
	forged, err := h.sessions.Issue("A_002", principal.RoleSuperAdmin)
	require.NoError(t, err)

	code, body := h.call(t, "/admin", forged.Token)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "admin", body["role"])
}

func TestGuardRejectsDeletedPrincipal(t *testing.T) {
	h := newGuardHarness(t, nil)
	sess, err := h.sessions.Issue("F_404", principal.RoleFaculty)
	require.NoError(t, err)
	code, body := h.call(t, "/faculty", sess.Token)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", body["code"])
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	} {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Request.Header.Set("Authorization", header)
		assert.Equal(t, want, BearerToken(c), "header %q", header)
	}
}
