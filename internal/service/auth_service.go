package service

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

// LoginResult carries an issued operator token.
type LoginResult struct {
	AccessToken string
	ExpiresAt   time.Time
	Role        domain.Role
}

// AuthService logs the configured operator and admin accounts in.
type AuthService struct {
	accounts []account
	tokens   *auth.TokenManager
	logger   *zap.Logger
}

type account struct {
	email        string
	passwordHash string
	role         domain.Role
}

// NewAuthService builds the service from the credentials in cfg. Accounts
// without a password hash cannot log in.
func NewAuthService(cfg config.AuthConfig, tokens *auth.TokenManager, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &AuthService{tokens: tokens, logger: logger}
	for _, a := range []account{
		{email: cfg.OperatorEmail, passwordHash: cfg.OperatorPasswordHash, role: domain.RoleOperator},
		{email: cfg.AdminEmail, passwordHash: cfg.AdminPasswordHash, role: domain.RoleAdmin},
	} {
		a.email = strings.ToLower(strings.TrimSpace(a.email))
		if a.email == "" || a.passwordHash == "" {
			continue
		}
		s.accounts = append(s.accounts, a)
	}
	return s
}

// Login verifies the credentials and issues an access token carrying the
// account's role.
func (s *AuthService) Login(_ context.Context, email, password string) (*LoginResult, error) {
	if len(s.accounts) == 0 {
		return nil, apperrors.NewUnauthorized("operator login is not configured")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	var matched *account
	for i := range s.accounts {
		a := &s.accounts[i]
		emailMatch := subtle.ConstantTimeCompare([]byte(email), []byte(a.email)) == 1
		// the hash is always checked so a wrong email costs the same as a wrong password
		passwordErr := auth.ComparePassword(a.passwordHash, password)
		if emailMatch && passwordErr == nil && matched == nil {
			matched = a
		}
	}
	if matched == nil {
		s.logger.Warn("login rejected", zap.String("email", email))
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}

	token, expiresAt, err := s.tokens.GenerateToken(matched.email, matched.role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("logged in", zap.String("email", matched.email), zap.String("role", string(matched.role)))
	return &LoginResult{AccessToken: token, ExpiresAt: expiresAt, Role: matched.role}, nil
}
