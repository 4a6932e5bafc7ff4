package service

import (
	"errors"
	"fmt"

	"github.com/civic-kit/grievance-service/internal/llm"
)

// ErrEmptyDescription rejects complaints with nothing to analyse.
var ErrEmptyDescription = errors.New("complaint description is empty")

// ExternalServiceError reports an unavailable or unusable completion stage.
// It is always recovered with a fallback and never reaches the citizen.
type ExternalServiceError struct {
	Stage string
	Err   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func externalError(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &ExternalServiceError{Stage: stage, Err: err}
}

// isTransportFailure reports whether the completion request itself failed,
// as opposed to returning an unusable answer.
func isTransportFailure(err error) bool {
	var callErr *llm.CallError
	if errors.As(err, &callErr) {
		return callErr.Transport
	}
	return err != nil
}

// EscalationComputationError is collected per complaint during a monitoring cycle.
type EscalationComputationError struct {
	ComplaintID string
	Err         error
}

func (e *EscalationComputationError) Error() string {
	return fmt.Sprintf("complaint %s: %v", e.ComplaintID, e.Err)
}

func (e *EscalationComputationError) Unwrap() error { return e.Err }
