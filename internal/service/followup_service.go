package service

import (
	"context"
	"fmt"
	"time"

	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// Follow-up action kinds.
const (
	FollowUpEmail   = "email"
	FollowUpAPICall = "api_call"
)

// FollowUpAction is a nudge to the department plus the message for the citizen.
type FollowUpAction struct {
	Kind           string
	Recipient      string
	Subject        string
	Body           string
	CitizenMessage string
	Priority       string
	Source         string
}

// FollowUpService drafts follow-ups for complaints stuck in progress.
type FollowUpService struct {
	caller      *llm.Caller
	useModel    bool
	temperature float64
	now         func() time.Time
}

// NewFollowUpService constructs the service; a nil clock uses time.Now.
func NewFollowUpService(caller *llm.Caller, useModel bool, temperature float64, now func() time.Time) *FollowUpService {
	if now == nil {
		now = time.Now
	}
	return &FollowUpService{caller: caller, useModel: useModel, temperature: temperature, now: now}
}

// FallbackFollowUp is the deterministic follow-up.
func FallbackFollowUp(c *domain.Complaint) FollowUpAction {
	dept := c.DepartmentName
	if dept == "" {
		dept = c.Department
	}
	ref := shortID(c.ID)
	return FollowUpAction{
		Kind:           FollowUpEmail,
		Recipient:      dept,
		Subject:        fmt.Sprintf("Follow-up on Complaint #%s", ref),
		Body:           fmt.Sprintf("Please provide an update on complaint #%s", ref),
		CitizenMessage: fmt.Sprintf("We've requested an update from %s. You'll receive a response within 24 hours.", dept),
		Priority:       PriorityNormal,
		Source:         "fallback",
	}
}

// Plan drafts the follow-up. On a model failure it returns the fallback
// together with the error.
func (s *FollowUpService) Plan(ctx context.Context, c *domain.Complaint) (FollowUpAction, error) {
	fallback := FallbackFollowUp(c)
	if !s.useModel {
		return fallback, nil
	}

	days := int(s.now().Sub(c.UpdatedAt).Hours() / 24)
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:  llm.StageFollowUp,
		System: followUpSystemPrompt,
		Prompt: fmt.Sprintf("Complaint #%s: %s\nDepartment: %s\nStatus: %s\nDays since last update: %d",
			shortID(c.ID), c.Description, fallback.Recipient, c.Status, days),
		Temperature: s.temperature,
	}, nil)
	if err != nil {
		return fallback, externalError(llm.StageFollowUp, err)
	}

	action := fallback
	action.Source = "model"
	if kind := stringField(obj, "action_type"); kind == FollowUpEmail || kind == FollowUpAPICall {
		action.Kind = kind
	}
	if details := objectField(obj, "action_details"); details != nil {
		if subject := stringField(details, "subject"); subject != "" {
			action.Subject = subject
		}
		if body := stringField(details, "body"); body != "" {
			action.Body = body
		}
	}
	if msg := stringField(obj, "citizen_message"); msg != "" {
		action.CitizenMessage = msg
	}
	if p := stringField(obj, "priority"); validPriorities[p] {
		action.Priority = p
	}
	return action, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
