package auth

import (
	"context"
	"log"
	"time"

	"academics/internal/apperr"
	"academics/internal/metrics"
	"academics/internal/principal"
)

// LoginRequest carries either a federated token or an identifier and password.
type LoginRequest struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UID      string `json:"u_id"`
	Password string `json:"password"`
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	Token     string         `json:"token"`
	Role      principal.Role `json:"role"`
	UID       string         `json:"u_id"`
	Email     string         `json:"email"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Service ties credential verification to session issuance.
type Service struct {
	verifier *Verifier
	sessions *Issuer
	metrics  *metrics.Metrics
}

// NewService creates the login/logout service.
func NewService(verifier *Verifier, sessions *Issuer, m *metrics.Metrics) *Service {
	return &Service{verifier: verifier, sessions: sessions, metrics: m}
}

// Login authenticates the request and issues a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	var (
		p      *principal.Principal
		err    error
		method = "password"
	)
	switch {
	case req.Token != "":
		method = "federated"
		p, err = s.verifier.VerifyFederated(ctx, req.Token)
	case req.Username != "" || req.UID != "":
		uid := req.Username
		if uid == "" {
			uid = req.UID
		}
		p, err = s.verifier.VerifyPassword(ctx, uid, req.Password)
	default:
		err = apperr.New(apperr.Validation, "provide either token or username and password")
	}
	if err != nil {
		s.metrics.Login(method, string(apperr.CodeOf(err)))
		return LoginResult{}, err
	}

	role := p.Role()
	sess, err := s.sessions.Issue(p.ID, role)
	if err != nil {
		s.metrics.Login(method, string(apperr.CodeOf(err)))
		return LoginResult{}, err
	}
	s.metrics.Login(method, "ok")
	log.Printf("login: %s as %s via %s", p.ID, role, method)
	return LoginResult{Token: sess.Token, Role: role, UID: p.ID, Email: p.Email, ExpiresAt: sess.ExpiresAt}, nil
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}
