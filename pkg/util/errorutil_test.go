package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	notFound := ToDomainError(fmt.Errorf("load: %w", pgx.ErrNoRows))
	assert.Equal(t, "NOT_FOUND", notFound.Code)
	assert.Equal(t, http.StatusNotFound, notFound.HTTPStatus)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, "INTERNAL_ERROR", internal.Code)

	wrapped := fmt.Errorf("create: %w", NewPersistenceError(errors.New("conn refused")))
	de := ToDomainError(wrapped)
	assert.Equal(t, http.StatusServiceUnavailable, de.HTTPStatus)
	assert.True(t, IsPersistence(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestValidationErrorDetails(t *testing.T) {
	err := NewValidationError("invalid", map[string]any{"field": "description"})
	assert.True(t, IsValidation(err))
	de := ToDomainError(err)
	assert.Equal(t, "description", de.Details["field"])
	assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
}
