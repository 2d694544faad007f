package service

import (
	"strings"
	"time"

	"github.com/spec-kit/sla-engine/internal/auth"
	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
	apperrors "github.com/spec-kit/sla-engine/pkg/util/errorutil"
)

// AuthService issues tokens for the admin surface and for the external
// ticket system. There is no user store: the bootstrap admin credential
// comes from configuration, and admins mint service tokens from it.
type AuthService struct {
	cfg    config.AuthConfig
	tokens *auth.TokenManager
}

// NewAuthService constructs the service.
func NewAuthService(cfg config.AuthConfig) *AuthService {
	return &AuthService{
		cfg:    cfg,
		tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
	}
}

// TokenManager exposes the manager for middleware wiring.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokens
}

// Login verifies the bootstrap admin credential and issues an admin token.
func (s *AuthService) Login(email, password string) (string, time.Time, error) {
	if !strings.EqualFold(strings.TrimSpace(email), s.cfg.AdminEmail) ||
		!auth.VerifyPassword(s.cfg.AdminPasswordHash, password) {
		return "", time.Time{}, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.tokens.GenerateToken(s.cfg.AdminEmail, domain.RoleAdmin)
}

// MintServiceToken issues a service-role token for the named integration,
// used by the ticket system to push lifecycle events.
func (s *AuthService) MintServiceToken(name string) (string, time.Time, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", time.Time{}, apperrors.NewValidationError("integration name required", nil)
	}
	return s.tokens.GenerateToken(name, domain.RoleService)
}
