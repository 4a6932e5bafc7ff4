package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/keywords"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// Classification is the routing decision for a complaint.
type Classification struct {
	Urgency           domain.Urgency
	Category          domain.Category
	Department        string
	DepartmentName    string
	Jurisdiction      string
	Location          domain.Location
	Confidence        float64
	Reasoning         string
	EmergencyDetected bool
	KeyDetails        []string
	// Rule names the keyword rule that fixed routing, if any.
	Rule string
}

// ClassificationService decides urgency, category and department.
type ClassificationService struct {
	caller      *llm.Caller
	catalog     *catalog.Catalog
	matcher     *keywords.Matcher
	temperature float64
}

// ClassificationDependencies bundles collaborators for the classifier.
type ClassificationDependencies struct {
	Caller      *llm.Caller
	Catalog     *catalog.Catalog
	Matcher     *keywords.Matcher
	Temperature float64
}

// NewClassificationService constructs the service.
func NewClassificationService(deps ClassificationDependencies) *ClassificationService {
	return &ClassificationService{
		caller:      deps.Caller,
		catalog:     deps.Catalog,
		matcher:     deps.Matcher,
		temperature: deps.Temperature,
	}
}

var classificationSchema = map[string]any{
	"type":     "object",
	"required": []string{"urgency", "category"},
	"properties": map[string]any{
		"urgency":            map[string]any{"type": "string"},
		"category":           map[string]any{"type": "string"},
		"department":         map[string]any{"type": []string{"string", "null"}},
		"location":           map[string]any{"type": []string{"object", "null"}},
		"key_details":        map[string]any{"type": []string{"array", "null"}},
		"emergency_detected": map[string]any{"type": []string{"boolean", "string", "null"}},
	},
}

var routingSchema = map[string]any{
	"type":     "object",
	"required": []string{"department"},
	"properties": map[string]any{
		"department": map[string]any{"type": "string"},
	},
}

// Classify runs the keyword scan, asks the model and merges both answers.
func (s *ClassificationService) Classify(ctx context.Context, description string, hint domain.Location) (Classification, error) {
	if strings.TrimSpace(description) == "" {
		return Classification{}, ErrEmptyDescription
	}

	hits := s.matcher.Match(description)
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageClassification,
		System:      classificationSystemPrompt,
		Prompt:      s.classificationPrompt(description, hint),
		Temperature: s.temperature,
	}, classificationSchema)
	if err != nil {
		return Classification{}, externalError(llm.StageClassification, err)
	}

	result := Classification{
		Urgency:           domain.UrgencyMedium,
		Category:          domain.CategoryOther,
		Department:        catalog.DefaultDepartment,
		Reasoning:         stringField(obj, "reasoning"),
		EmergencyDetected: boolField(obj, "emergency_detected"),
		KeyDetails:        stringsField(obj, "key_details"),
		Location:          mergeLocation(hint, objectField(obj, "location")),
	}
	if u, ok := domain.ParseUrgency(stringField(obj, "urgency")); ok {
		result.Urgency = u
	}
	if c, ok := domain.ParseCategory(stringField(obj, "category")); ok {
		result.Category = c
	}
	if key := strings.ToLower(stringField(obj, "department")); key != "" {
		if _, ok := s.catalog.Department(key); ok {
			result.Department = key
		}
	}
	if conf, ok := floatField(obj, "confidence"); ok {
		result.Confidence = clamp(conf, 0, 1)
	}

	if rule, ok := firstRule(departmentRules, hits); ok {
		result.Department = s.resolveFamily(rule.family, description, result.Location)
		result.Category = rule.category
		result.Rule = rule.name
		if rule.family == domain.FamilyPolice {
			result.Urgency = domain.MaxUrgency(result.Urgency, domain.UrgencyHigh)
		}
	}

	return s.applySafetyNet(result, description, hits), nil
}

// Understand is the degraded first fallback: urgency, category and location only.
func (s *ClassificationService) Understand(ctx context.Context, description string, hint domain.Location) (Classification, error) {
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageUnderstanding,
		System:      understandingSystemPrompt,
		Prompt:      fmt.Sprintf("Complaint: %s\nLocation hint: %s", description, formatLocation(hint)),
		Temperature: s.temperature,
	}, classificationSchema)
	if err != nil {
		return Classification{}, externalError(llm.StageUnderstanding, err)
	}
	result := Classification{
		Urgency:  domain.UrgencyMedium,
		Category: domain.CategoryOther,
		Location: mergeLocation(hint, objectField(obj, "location")),
	}
	if u, ok := domain.ParseUrgency(stringField(obj, "urgency")); ok {
		result.Urgency = u
	}
	if c, ok := domain.ParseCategory(stringField(obj, "category")); ok {
		result.Category = c
	}
	return result, nil
}

// Route is the degraded second fallback: pick a department for an understood complaint.
func (s *ClassificationService) Route(ctx context.Context, description string, partial Classification) (Classification, error) {
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageRouting,
		System:      routingSystemPrompt,
		Prompt:      fmt.Sprintf("Complaint: %s\nCategory: %s\nCity: %s\n\nDepartments:\n%s", description, partial.Category, partial.Location.City, s.departmentList()),
		Temperature: s.temperature,
	}, routingSchema)
	if err != nil {
		return Classification{}, externalError(llm.StageRouting, err)
	}
	key := strings.ToLower(stringField(obj, "department"))
	if _, ok := s.catalog.Department(key); !ok {
		key = catalog.DefaultDepartment
	}
	partial.Department = key
	partial.Reasoning = stringField(obj, "reasoning")
	return partial, nil
}

// Default is the last-resort classification when every model call failed.
func (s *ClassificationService) Default(hint domain.Location) Classification {
	return Classification{
		Urgency:    domain.UrgencyMedium,
		Category:   domain.CategoryOther,
		Department: catalog.DefaultDepartment,
		Location:   hint,
		Reasoning:  "default routing; classification unavailable",
	}
}

// ApplySafetyNet re-applies the deterministic keyword overrides and resolves
// the final department. It is safe on any Classification, including fallbacks.
func (s *ClassificationService) ApplySafetyNet(c Classification, description string) Classification {
	return s.applySafetyNet(c, description, s.matcher.Match(description))
}

func (s *ClassificationService) applySafetyNet(c Classification, description string, hits keywords.Hits) Classification {
	if rule, ok := firstRule(emergencyRules, hits); ok {
		c.Urgency = domain.UrgencyUrgent
		c.Category = rule.category
		c.Department = s.resolveFamily(rule.family, description, c.Location)
		c.EmergencyDetected = true
		c.Rule = rule.name
		return s.finish(c, description)
	}

	if _, ok := s.catalog.Department(c.Department); !ok {
		c.Department = catalog.DefaultDepartment
	}
	dept, _ := s.catalog.Department(c.Department)

	switch {
	case dept.IsMunicipal() && hits.Has(groupPolice):
		c.Department = s.resolveFamily(domain.FamilyPolice, description, c.Location)
		c.Category = domain.CategorySafety
		c.Urgency = domain.MaxUrgency(c.Urgency, domain.UrgencyHigh)
		c.Rule = "police_override"
	case c.Department == catalog.DefaultDepartment:
		if rule, ok := firstRule(departmentRules, hits); ok {
			if rule.family != domain.FamilyMunicipal {
				c.Department = s.resolveFamily(rule.family, description, c.Location)
			}
			if c.Category == domain.CategoryOther {
				c.Category = rule.category
			}
			c.Rule = rule.name
		}
	}
	return s.finish(c, description)
}

// finish resolves city-specific departments and fills display fields.
func (s *ClassificationService) finish(c Classification, description string) Classification {
	if dept, ok := s.catalog.Department(c.Department); ok {
		if dept.Family == domain.FamilyMunicipal || dept.Family == domain.FamilyPolice {
			c.Department = s.resolveFamily(dept.Family, description, c.Location)
		}
	}
	dept, ok := s.catalog.Department(c.Department)
	if !ok {
		dept, _ = s.catalog.Department(catalog.DefaultDepartment)
	}
	c.Department = dept.Key
	c.DepartmentName = dept.Name
	c.Jurisdiction = dept.Jurisdiction
	return c
}

func (s *ClassificationService) resolveFamily(family, description string, loc domain.Location) string {
	city := loc.City
	if city == "" {
		city = loc.District
	}
	if city == "" {
		city = s.catalog.CityIn(description)
	}
	if dept, ok := s.catalog.Resolve(family, city); ok {
		return dept.Key
	}
	return catalog.DefaultDepartment
}

func (s *ClassificationService) classificationPrompt(description string, hint domain.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Complaint: %s\n", description)
	fmt.Fprintf(&b, "Location hint: %s\n\n", formatLocation(hint))
	b.WriteString("Departments:\n")
	b.WriteString(s.departmentList())
	return b.String()
}

func (s *ClassificationService) departmentList() string {
	var b strings.Builder
	for _, dept := range s.catalog.Departments() {
		fmt.Fprintf(&b, "- %s: %s (%s)\n", dept.Key, dept.Name, strings.Join(dept.Handles, ", "))
	}
	return b.String()
}

func mergeLocation(hint domain.Location, extracted map[string]any) domain.Location {
	loc := hint
	if extracted == nil {
		return loc
	}
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = stringField(extracted, key)
		}
	}
	fill(&loc.Country, "country")
	fill(&loc.State, "state")
	fill(&loc.District, "district")
	fill(&loc.City, "city")
	fill(&loc.Pincode, "pincode")
	fill(&loc.Address, "address")
	return loc
}

func formatLocation(loc domain.Location) string {
	if loc.IsZero() {
		return "not provided"
	}
	parts := []string{}
	for _, p := range []string{loc.Address, loc.City, loc.District, loc.State, loc.Pincode, loc.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
