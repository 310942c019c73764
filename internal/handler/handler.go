// Package handler exposes the records services over HTTP.
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"academics/internal/apperr"
	"academics/internal/auth"
	"academics/internal/blocking"
	"academics/internal/httpmiddleware"
	"academics/internal/ledger"
	"academics/internal/principal"
)

// API bundles the services the routes delegate to.
type API struct {
	Auth         *auth.Service
	Guard        *auth.Guard
	Principals   *principal.Service
	Blocking     *blocking.Authority
	Ledger       *ledger.Service
	LoginLimiter *httpmiddleware.Limiter
}

// Register mounts every route under /api on r.
func (a *API) Register(r gin.IRouter) {
	api := r.Group("/api")

	login := []gin.HandlerFunc{}
	if a.LoginLimiter != nil {
		login = append(login, a.LoginLimiter.GinMiddleware())
	}
	authGroup := api.Group("/auth")
	authGroup.POST("/login", append(login, a.login)...)
	authGroup.POST("/logout", a.logout)
	authGroup.GET("/me", a.Guard.Authenticate(), a.me)

	admin := api.Group("/admin", a.Guard.Protect(principal.RoleAdmin, principal.RoleSuperAdmin)...)
	for path, kind := range map[string]principal.Kind{
		"students": principal.KindStudent,
		"faculty":  principal.KindFaculty,
		"admins":   principal.KindAdmin,
	} {
		admin.GET("/"+path, a.listPrincipals(kind))
		admin.POST("/"+path, a.createPrincipal(kind))
		admin.GET("/"+path+"/:id", a.getPrincipal(kind))
		admin.DELETE("/"+path+"/:id", a.deletePrincipal(kind))
	}
	admin.POST("/users/:role/:id/block", a.block)
	admin.POST("/users/:role/:id/unblock", a.unblock)
	admin.PUT("/users/:role/:id/status", a.setStatus)
	admin.GET("/audit-logs", a.auditLogs)
	admin.GET("/dashboard", a.dashboard)
	admin.GET("/subjects", a.listSubjects)
	admin.POST("/subjects", a.createSubject)

	faculty := api.Group("/faculty", a.Guard.Protect(principal.RoleFaculty)...)
	faculty.GET("/attendance", a.attendanceFor)
	faculty.POST("/attendance", a.markAttendance)
	faculty.GET("/results", a.facultyResults)
	faculty.POST("/results", a.uploadMarks)
	faculty.PUT("/results/:student_id/:subject_id", a.updateMarks)

	student := api.Group("/student", a.Guard.Protect(principal.RoleStudent)...)
	student.GET("/profile", a.me)
	student.GET("/results", a.studentResults)
	student.GET("/attendance", a.studentAttendance)
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.Body(err))
}

func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return false
	}
	return true
}

// bindOptional is bind for routes whose body may be absent altogether.
func bindOptional(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		fail(c, apperr.Wrap(apperr.Validation, "invalid request body", err))
		return false
	}
	return true
}

// caller is only called behind the guard, which always sets it.
func caller(c *gin.Context) principal.Actor {
	actor, _ := auth.CallerFrom(c.Request.Context())
	return actor
}

func ok(c *gin.Context, status int, fields gin.H) {
	body := gin.H{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

func int64Param(raw, field string, required bool) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return 0, apperr.Newf(apperr.Validation, "%s is required", field).With("field", field)
		}
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.Newf(apperr.Validation, "invalid %s", field).With("field", field)
	}
	return v, nil
}

// parseUnblockAt accepts a calendar date (released at midnight UTC) or an
// RFC 3339 instant.
func parseUnblockAt(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(principal.DateLayout, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperr.New(apperr.Validation, "unblock_at must be YYYY-MM-DD or RFC 3339").With("field", "unblock_at")
	}
	return &t, nil
}

// Health reports dependency status for /healthz.
func Health(checks map[string]func(*gin.Context) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok"}
		for name, check := range checks {
			healthy := check(c)
			body[name] = healthy
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}
