// Package llm is the text-completion capability used by every analysis stage.
package llm

import (
	"context"
	"errors"
)

// Stage names identify which analysis a request belongs to.
const (
	StageClassification = "classification"
	StageUnderstanding  = "understanding"
	StageRouting        = "routing"
	StageSentiment      = "sentiment"
	StageSLA            = "sla"
	StagePolicy         = "policy"
	StageEscalation     = "escalation"
	StageFollowUp       = "followup"
	StageCitizenMessage = "citizen_message"
)

// ErrNotConfigured is returned when no provider credentials are set.
var ErrNotConfigured = errors.New("completion provider not configured")

// Request is a single prompt to the completion provider.
type Request struct {
	Stage       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int64
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Disabled is the Completer used when no provider is configured.
type Disabled struct{}

// Complete always fails with ErrNotConfigured.
func (Disabled) Complete(context.Context, Request) (string, error) {
	return "", ErrNotConfigured
}
