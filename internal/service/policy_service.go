package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/llm"
)

const defaultSuggestedAction = "Standard complaint processing"

// PolicyService checks an assigned deadline against the governing statutes.
type PolicyService struct {
	caller      *llm.Caller
	catalog     *catalog.Catalog
	temperature float64
}

// NewPolicyService constructs the service.
func NewPolicyService(caller *llm.Caller, cat *catalog.Catalog, temperature float64) *PolicyService {
	return &PolicyService{caller: caller, catalog: cat, temperature: temperature}
}

// DefaultPolicyAssessment is the safe result when analysis is unavailable.
func DefaultPolicyAssessment() domain.PolicyAssessment {
	return domain.PolicyAssessment{
		ApplicablePolicies: []domain.PolicyReference{},
		SuggestedAction:    defaultSuggestedAction,
	}
}

var policySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"applicable_policies": map[string]any{"type": []string{"array", "null"}},
		"legal_sla":           map[string]any{"type": []string{"object", "null"}},
		"escalation_strategy": map[string]any{"type": []string{"array", "object", "null"}},
	},
}

// Analyze returns the compliance assessment. On error it returns the default
// assessment together with the error for the caller to record.
func (s *PolicyService) Analyze(ctx context.Context, description string, c Classification, slaHours float64) (domain.PolicyAssessment, error) {
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StagePolicy,
		System:      policySystemPrompt,
		Prompt:      s.prompt(description, c, slaHours),
		Temperature: s.temperature,
	}, policySchema)
	if err != nil {
		return DefaultPolicyAssessment(), externalError(llm.StagePolicy, err)
	}

	result := DefaultPolicyAssessment()
	result.ApplicablePolicies = parsePolicies(obj["applicable_policies"])
	if legal := objectField(obj, "legal_sla"); legal != nil {
		if hours, ok := floatField(legal, "hours"); ok && hours > 0 {
			result.LegalSLAHours = &hours
		}
		result.LegalSLABasis = stringField(legal, "basis")
	}
	if action := stringField(obj, "suggested_action"); action != "" {
		result.SuggestedAction = action
	}
	result.PolicyReference = stringField(obj, "policy_reference")
	result.EscalationAuthority = stringField(obj, "escalation_authority")
	result.EscalationStrategy = parseStrategy(obj["escalation_strategy"])
	result.Violation = boolField(obj, "policy_violation")

	return RecomputeViolation(result, slaHours), nil
}

// RecomputeViolation forces the flag on when the assigned SLA exceeds a known
// legal SLA. A violation the model reported is never cleared.
func RecomputeViolation(p domain.PolicyAssessment, slaHours float64) domain.PolicyAssessment {
	if p.LegalSLAHours != nil && slaHours > *p.LegalSLAHours {
		p.Violation = true
	}
	return p
}

func (s *PolicyService) prompt(description string, c Classification, slaHours float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complaint: %s\nCategory: %s\nDepartment: %s\nUrgency: %s\nAssigned SLA hours: %.2f\n\nKnowledge base:\n",
		description, c.Category, c.DepartmentName, c.Urgency, slaHours)
	for _, p := range s.catalog.Policies(c.Category, description) {
		fmt.Fprintf(&b, "- %s: %s (legal SLA %.2f hours)\n", p.Name, p.Description, p.LegalSLAHours)
	}
	return b.String()
}

func parsePolicies(raw any) []domain.PolicyReference {
	items, ok := raw.([]any)
	if !ok {
		return []domain.PolicyReference{}
	}
	out := make([]domain.PolicyReference, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if v != "" {
				out = append(out, domain.PolicyReference{Name: v})
			}
		case map[string]any:
			ref := domain.PolicyReference{
				Name:        stringField(v, "name"),
				Reference:   stringField(v, "reference"),
				Description: stringField(v, "description"),
			}
			if ref.Name != "" || ref.Reference != "" {
				out = append(out, ref)
			}
		}
	}
	return out
}

func parseStrategy(raw any) []domain.EscalationStep {
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case map[string]any:
		if steps, ok := v["steps"].([]any); ok {
			items = steps
		}
	}
	out := make([]domain.EscalationStep, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		level, ok := domain.ParseEscalationLevel(stringField(m, "level"))
		if !ok || level == domain.EscalationNone {
			continue
		}
		step := domain.EscalationStep{Level: level, Authority: stringField(m, "authority")}
		if after, ok := floatField(m, "after_hours"); ok {
			step.AfterHrs = after
		}
		out = append(out, step)
	}
	return out
}
