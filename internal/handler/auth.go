package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academics/internal/auth"
)

func (a *API) login(c *gin.Context) {
	var req auth.LoginRequest
	if !bind(c, &req) {
		return
	}
	res, err := a.Auth.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{
		"token":      res.Token,
		"role":       res.Role,
		"u_id":       res.UID,
		"email":      res.Email,
		"expires_at": res.ExpiresAt,
	})
}

// logout is not behind the guard: any presented token, even an expired
// one, is added to the deny-list.
func (a *API) logout(c *gin.Context) {
	if err := a.Auth.Logout(c.Request.Context(), auth.BearerToken(c)); err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"message": "logged out"})
}

func (a *API) me(c *gin.Context) {
	actor := caller(c)
	p, err := a.Principals.Get(c.Request.Context(), actor.Role.Kind(), actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user": p, "role": actor.Role})
}
