package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// EscalationThresholds are the overdue hours per escalation step, by urgency.
type EscalationThresholds struct {
	High         float64
	Medium       float64
	Low          float64
	UrgentFactor float64
}

// ThresholdsFromConfig reads the thresholds, keeping defaults for unset values.
func ThresholdsFromConfig(cfg config.MonitoringConfig) EscalationThresholds {
	t := EscalationThresholds{High: 24, Medium: 48, Low: 72, UrgentFactor: 0.5}
	if cfg.ThresholdHighHours > 0 {
		t.High = cfg.ThresholdHighHours
	}
	if cfg.ThresholdMediumHours > 0 {
		t.Medium = cfg.ThresholdMediumHours
	}
	if cfg.ThresholdLowHours > 0 {
		t.Low = cfg.ThresholdLowHours
	}
	if cfg.UrgentThresholdFactor > 0 {
		t.UrgentFactor = cfg.UrgentThresholdFactor
	}
	return t
}

// For returns the threshold in hours for an urgency.
func (t EscalationThresholds) For(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyUrgent:
		return t.High * t.UrgentFactor
	case domain.UrgencyHigh:
		return t.High
	case domain.UrgencyLow:
		return t.Low
	}
	return t.Medium
}

// CeilingLevel is the highest level an overdue complaint may have reached.
func CeilingLevel(hoursOverdue, threshold float64) domain.EscalationLevel {
	if threshold <= 0 || hoursOverdue <= 0 {
		return domain.EscalationNone
	}
	return domain.EscalationLevelFromRank(int(math.Floor(hoursOverdue / threshold)))
}

// StepOpensAt is the overdue time, in hours, at which the step above level
// becomes due: one threshold per rung, and one threshold past the overdue
// time recorded with the previous step.
func StepOpensAt(level domain.EscalationLevel, threshold, lastOverdue float64) float64 {
	return max(threshold*float64(level.Rank()+1), lastOverdue+threshold)
}

// NextEscalation returns the level one step above current when the overdue
// time allows it. Escalation never skips a level. lastOverdue is the hours
// overdue stored with the latest escalation record, zero when there is none.
func NextEscalation(current domain.EscalationLevel, hoursOverdue, threshold, lastOverdue float64) (domain.EscalationLevel, bool) {
	if current.IsTerminal() || current.Rank() < 0 || threshold <= 0 {
		return current, false
	}
	candidate := current.Next()
	if candidate.Rank() > CeilingLevel(hoursOverdue, threshold).Rank() {
		return current, false
	}
	if hoursOverdue < StepOpensAt(current, threshold, lastOverdue) {
		return current, false
	}
	return candidate, true
}

// NextCheckAt is when the complaint becomes eligible for the step above
// level. It reports false once no further step exists.
func NextCheckAt(deadline time.Time, level domain.EscalationLevel, threshold, lastOverdue float64) (time.Time, bool) {
	if level.IsTerminal() || level.Rank() < 0 || threshold <= 0 {
		return time.Time{}, false
	}
	hours := StepOpensAt(level, threshold, lastOverdue)
	return deadline.Add(time.Duration(hours * float64(time.Hour))), true
}

// EscalationDecision is the outcome for one candidate step.
type EscalationDecision struct {
	Escalate  bool
	Level     domain.EscalationLevel
	Reason    string
	Authority string
	Source    string
}

// EscalationService confirms a candidate step and names who receives it.
type EscalationService struct {
	caller      *llm.Caller
	catalog     *catalog.Catalog
	useModel    bool
	temperature float64
}

// NewEscalationService constructs the decider. When useModel is false the
// decision is purely deterministic.
func NewEscalationService(caller *llm.Caller, cat *catalog.Catalog, useModel bool, temperature float64) *EscalationService {
	return &EscalationService{caller: caller, catalog: cat, useModel: useModel, temperature: temperature}
}

var escalationSchema = map[string]any{
	"type":     "object",
	"required": []string{"escalation_needed"},
	"properties": map[string]any{
		"escalation_needed": map[string]any{"type": []string{"boolean", "string"}},
		"escalation_level":  map[string]any{"type": []string{"string", "null"}},
	},
}

// Decide confirms the step to candidate. The model may veto the step or
// supply reason and authority; it can never choose a different level. A
// model failure yields the deterministic decision along with the error.
func (s *EscalationService) Decide(ctx context.Context, c *domain.Complaint, candidate domain.EscalationLevel, hoursOverdue, threshold float64) (EscalationDecision, error) {
	decision := EscalationDecision{
		Escalate:  true,
		Level:     candidate,
		Reason:    fmt.Sprintf("SLA exceeded by %.1f hours (%s urgency, %.0f hour step)", hoursOverdue, c.Urgency, threshold),
		Authority: s.catalog.Authority(candidate, c.Department),
		Source:    "rules",
	}
	if !s.useModel {
		return decision, nil
	}

	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:  llm.StageEscalation,
		System: escalationSystemPrompt,
		Prompt: fmt.Sprintf("Complaint: %s\nDepartment: %s\nUrgency: %s\nCurrent level: %s\nProposed level: %s\nHours overdue: %.1f\nFollow-ups sent: %d",
			c.Description, c.DepartmentName, c.Urgency, c.EscalationLevel, candidate, hoursOverdue, c.FollowUpCount),
		Temperature: s.temperature,
	}, escalationSchema)
	if err != nil {
		return decision, externalError(llm.StageEscalation, err)
	}

	proposed, ok := domain.ParseEscalationLevel(stringField(obj, "escalation_level"))
	if !boolField(obj, "escalation_needed") || (ok && proposed.Rank() <= c.EscalationLevel.Rank()) {
		decision.Escalate = false
		decision.Source = "model_veto"
		if reason := stringField(obj, "reason"); reason != "" {
			decision.Reason = reason
		}
		return decision, nil
	}

	decision.Source = "model"
	if reason := stringField(obj, "reason"); reason != "" {
		decision.Reason = reason
	}
	if to := stringField(obj, "escalated_to"); to != "" {
		decision.Authority = to
	}
	return decision, nil
}
