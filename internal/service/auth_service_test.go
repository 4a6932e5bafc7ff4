package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

func TestOperatorLogin(t *testing.T) {
	hash, err := auth.HashPassword("letmein-please", 4)
	require.NoError(t, err)
	tokens := auth.NewTokenManager("secret", 15)
	svc := NewAuthService(config.AuthConfig{OperatorEmail: "Ops@Example.com", OperatorPasswordHash: hash}, tokens, nil)

	result, err := svc.Login(context.Background(), " ops@example.com ", "letmein-please")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, result.Role)
	claims, err := tokens.ParseToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)

	for _, creds := range [][2]string{{"ops@example.com", "wrong"}, {"someone@example.com", "letmein-please"}} {
		_, err := svc.Login(context.Background(), creds[0], creds[1])
		var domainErr *apperrors.DomainError
		require.True(t, errors.As(err, &domainErr))
		assert.Equal(t, "UNAUTHORIZED", domainErr.Code)
	}
}

func TestOperatorLoginDisabledWithoutHash(t *testing.T) {
	svc := NewAuthService(config.AuthConfig{OperatorEmail: "ops@example.com"}, auth.NewTokenManager("secret", 15), nil)
	_, err := svc.Login(context.Background(), "ops@example.com", "anything")
	assert.Error(t, err)
}

func TestAdminLoginIssuesAdminRole(t *testing.T) {
	opHash, err := auth.HashPassword("operator-pass", 4)
	require.NoError(t, err)
	adminHash, err := auth.HashPassword("admin-pass", 4)
	require.NoError(t, err)
	tokens := auth.NewTokenManager("secret", 15)
	svc := NewAuthService(config.AuthConfig{
		OperatorEmail:        "ops@example.com",
		OperatorPasswordHash: opHash,
		AdminEmail:           "admin@example.com",
		AdminPasswordHash:    adminHash,
	}, tokens, nil)

	result, err := svc.Login(context.Background(), "admin@example.com", "admin-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, result.Role)
	claims, err := tokens.ParseToken(result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, claims.Role)

	// passwords are not interchangeable between accounts
	_, err = svc.Login(context.Background(), "admin@example.com", "operator-pass")
	assert.Error(t, err)

	result, err = svc.Login(context.Background(), "ops@example.com", "operator-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleOperator, result.Role)
}
