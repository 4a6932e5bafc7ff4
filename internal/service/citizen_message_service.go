package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// CitizenMessage is the subject and body shown to the citizen.
type CitizenMessage struct {
	Subject string
	Message string
	Source  string
}

// CitizenMessageService writes status-change and escalation updates for
// citizens.
type CitizenMessageService struct {
	caller      *llm.Caller
	useModel    bool
	temperature float64
}

// NewCitizenMessageService constructs the service.
func NewCitizenMessageService(caller *llm.Caller, useModel bool, temperature float64) *CitizenMessageService {
	return &CitizenMessageService{caller: caller, useModel: useModel, temperature: temperature}
}

var citizenMessageSchema = map[string]any{
	"type":     "object",
	"required": []string{"message"},
	"properties": map[string]any{
		"subject": map[string]any{"type": []string{"string", "null"}},
		"message": map[string]any{"type": "string", "minLength": 1},
	},
}

// FallbackStatusMessage is the template update for a status change.
func FallbackStatusMessage(c *domain.Complaint) CitizenMessage {
	return CitizenMessage{
		Subject: fmt.Sprintf("Update on complaint #%s", shortID(c.ID)),
		Message: statusMessage(c),
		Source:  "fallback",
	}
}

// FallbackEscalationMessage is the template update for an escalation.
func FallbackEscalationMessage(c *domain.Complaint, esc domain.Escalation) CitizenMessage {
	msg := "Your complaint has been escalated to a higher authority."
	if esc.EscalatedTo != "" {
		msg = fmt.Sprintf("Your complaint has been escalated to %s because it is %.0f hours past its deadline.",
			esc.EscalatedTo, esc.HoursOverdue)
	}
	return CitizenMessage{
		Subject: fmt.Sprintf("Complaint #%s escalated", shortID(c.ID)),
		Message: msg,
		Source:  "fallback",
	}
}

// StatusChange drafts the update for a move from old to c.Status. A model
// failure yields the template together with the error.
func (s *CitizenMessageService) StatusChange(ctx context.Context, c *domain.Complaint, old domain.ComplaintStatus) (CitizenMessage, error) {
	fallback := FallbackStatusMessage(c)
	deadline := "none"
	if c.SLADeadline != nil {
		deadline = c.SLADeadline.UTC().Format("2006-01-02 15:04 MST")
	}
	return s.draft(ctx, fallback, fmt.Sprintf(
		"Complaint #%s: %s\nDepartment: %s\nStatus changed from %s to %s\nResolution deadline: %s",
		shortID(c.ID), c.Description, departmentLabel(c), orNone(string(old)), c.Status, deadline))
}

// Escalation drafts the update for esc. A model failure yields the template
// together with the error.
func (s *CitizenMessageService) Escalation(ctx context.Context, c *domain.Complaint, esc domain.Escalation) (CitizenMessage, error) {
	fallback := FallbackEscalationMessage(c, esc)
	return s.draft(ctx, fallback, fmt.Sprintf(
		"Complaint #%s: %s\nDepartment: %s\nEscalated to: %s (%s)\nHours past deadline: %.1f\nReason: %s",
		shortID(c.ID), c.Description, departmentLabel(c), orNone(esc.EscalatedTo), esc.Level, esc.HoursOverdue, esc.Reason))
}

func (s *CitizenMessageService) draft(ctx context.Context, fallback CitizenMessage, prompt string) (CitizenMessage, error) {
	if s == nil || !s.useModel || s.caller == nil {
		return fallback, nil
	}
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageCitizenMessage,
		System:      citizenMessageSystemPrompt,
		Prompt:      prompt,
		Temperature: s.temperature,
	}, citizenMessageSchema)
	if err != nil {
		return fallback, externalError(llm.StageCitizenMessage, err)
	}
	out := fallback
	out.Source = "model"
	if msg := strings.TrimSpace(stringField(obj, "message")); msg != "" {
		out.Message = msg
	}
	if subject := strings.TrimSpace(stringField(obj, "subject")); subject != "" {
		out.Subject = subject
	}
	return out, nil
}

func departmentLabel(c *domain.Complaint) string {
	if c.DepartmentName != "" {
		return c.DepartmentName
	}
	return c.Department
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
