package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"academics/internal/apperr"
	"academics/internal/principal"
)

func (a *API) listPrincipals(kind principal.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ps, err := a.Principals.List(c.Request.Context(), caller(c), kind)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"users": ps})
	}
}

func (a *API) createPrincipal(kind principal.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in principal.NewPrincipal
		if !bind(c, &in) {
			return
		}
		in.Kind = kind
		p, err := a.Principals.Create(c.Request.Context(), caller(c), in)
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusCreated, gin.H{"user": p})
	}
}

func (a *API) getPrincipal(kind principal.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if kind == principal.KindAdmin && caller(c).Role != principal.RoleSuperAdmin {
			fail(c, apperr.New(apperr.HierarchyDenied, "only a super admin can view admins"))
			return
		}
		p, err := a.Principals.Get(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"user": p})
	}
}

func (a *API) deletePrincipal(kind principal.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := a.Principals.Delete(c.Request.Context(), caller(c), kind, c.Param("id")); err != nil {
			fail(c, err)
			return
		}
		ok(c, http.StatusOK, gin.H{"message": string(kind) + " deleted"})
	}
}

type statusRequest struct {
	Status    principal.Status `json:"status"`
	Reason    string           `json:"reason"`
	UnblockAt string           `json:"unblock_at"`
}

func targetKind(c *gin.Context) (principal.Kind, bool) {
	kind, valid := principal.ParseKind(c.Param("role"))
	if !valid {
		fail(c, apperr.Newf(apperr.Validation, "invalid role %q", c.Param("role")).With("field", "role"))
	}
	return kind, valid
}

func (a *API) block(c *gin.Context) {
	kind, valid := targetKind(c)
	if !valid {
		return
	}
	var req statusRequest
	if !bindOptional(c, &req) {
		return
	}
	until, err := parseUnblockAt(req.UnblockAt)
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.Blocking.Block(c.Request.Context(), caller(c), kind, c.Param("id"), req.Reason, until); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "user blocked"})
}

func (a *API) unblock(c *gin.Context) {
	kind, valid := targetKind(c)
	if !valid {
		return
	}
	if err := a.Blocking.Unblock(c.Request.Context(), caller(c), kind, c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "user unblocked"})
}

func (a *API) setStatus(c *gin.Context) {
	kind, valid := targetKind(c)
	if !valid {
		return
	}
	var req statusRequest
	if !bind(c, &req) {
		return
	}
	until, err := parseUnblockAt(req.UnblockAt)
	if err != nil {
		fail(c, err)
		return
	}
	if err := a.Blocking.SetStatus(c.Request.Context(), caller(c), kind, c.Param("id"), req.Status, req.Reason, until); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"status": req.Status})
}

func (a *API) auditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := a.Blocking.AuditLog(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"logs": entries})
}

func (a *API) dashboard(c *gin.Context) {
	d, err := a.Principals.Dashboard(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"stats": d})
}

func (a *API) listSubjects(c *gin.Context) {
	subjects, err := a.Ledger.Subjects(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"subjects": subjects})
}

func (a *API) createSubject(c *gin.Context) {
	var req struct {
		Name string `json:"subject_name"`
	}
	if !bind(c, &req) {
		return
	}
	subj, err := a.Ledger.CreateSubject(c.Request.Context(), caller(c), req.Name)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusCreated, gin.H{"subject": subj})
}
