package service

import (
	"context"
	"fmt"
	"time"

	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/keywords"
	"github.com/civic-kit/grievance-service/internal/llm"
)

// Hard bounds for any deadline, in hours.
const (
	minSLAHours = 0.25
	maxSLAHours = 336
)

var defaultSLAHours = map[domain.Urgency]float64{
	domain.UrgencyUrgent: 0.5,
	domain.UrgencyHigh:   6,
	domain.UrgencyMedium: 72,
	domain.UrgencyLow:    168,
}

type window struct{ min, max float64 }

func (w window) apply(h float64) float64 { return clamp(h, w.min, w.max) }

var tierWindows = map[domain.Urgency]window{
	domain.UrgencyUrgent: {minSLAHours, 2},
	domain.UrgencyHigh:   {minSLAHours, 12},
	domain.UrgencyMedium: {24, 168},
	domain.UrgencyLow:    {168, 336},
}

// slaBand narrows the tier window for a recognised situation.
type slaBand struct {
	name    string
	tier    domain.Urgency
	window  window
	applies func(h keywords.Hits, dept domain.Department) bool
}

func inFamilies(dept domain.Department, families ...string) bool {
	for _, f := range families {
		if dept.Family == f {
			return true
		}
	}
	return false
}

// slaBands are applied in order, each clamping the running value.
var slaBands = []slaBand{
	{"fire", domain.UrgencyUrgent, window{0.25, 0.5}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupFire) || d.Family == domain.FamilyFire
	}},
	{"medical", domain.UrgencyUrgent, window{0.25, 0.5}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupMedical) || d.Family == domain.FamilyHealth
	}},
	{"accident", domain.UrgencyUrgent, window{0.5, 1}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupAccident) && d.Family == domain.FamilyPolice
	}},
	{"gas_leak", domain.UrgencyUrgent, window{0.25, 0.5}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupGasLeak)
	}},
	{"structural_collapse", domain.UrgencyUrgent, window{0.5, 1}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupStructural)
	}},
	{"crime", domain.UrgencyUrgent, window{0.5, 1}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupPolice) && d.Family == domain.FamilyPolice
	}},
	{"electrical_hazard", domain.UrgencyUrgent, window{0.25, 0.5}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupElectricalHazard) && inFamilies(d, domain.FamilyFire, familyElectricity)
	}},
	{"health_risk", domain.UrgencyHigh, window{2, 6}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupHealthRisk)
	}},
	{"infrastructure_failure", domain.UrgencyHigh, window{4, 12}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupInfrastructureFailure) && inFamilies(d, familyPWD, domain.FamilyMunicipal)
	}},
	{"power_outage", domain.UrgencyHigh, window{2, 8}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupElectricity) && d.Family == familyElectricity
	}},
	{"water_contamination", domain.UrgencyHigh, window{2, 6}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupWaterContamination) && d.IsMunicipal()
	}},
	{"garbage", domain.UrgencyMedium, window{24, 72}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupGarbage) && d.IsMunicipal()
	}},
	{"road", domain.UrgencyMedium, window{48, 120}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupRoads)
	}},
	{"water_supply", domain.UrgencyMedium, window{24, 72}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupWaterSupply)
	}},
	{"electricity", domain.UrgencyMedium, window{24, 72}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupElectricity) && d.Family == familyElectricity
	}},
	{"drainage", domain.UrgencyMedium, window{48, 96}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupDrainage)
	}},
	{"street_light", domain.UrgencyMedium, window{48, 120}, func(h keywords.Hits, d domain.Department) bool {
		return h.Has(groupStreetLight) && inFamilies(d, domain.FamilyMunicipal, familyPWD)
	}},
	{"cosmetic", domain.UrgencyLow, window{168, 336}, func(h keywords.Hits, _ domain.Department) bool {
		return h.Has(groupCosmetic)
	}},
}

// SLAAssignment is the resolution deadline chosen for a complaint.
type SLAAssignment struct {
	Hours     float64
	Deadline  time.Time
	Reasoning string
	Source    string
	Bands     []string
}

// SLAService assigns deadlines. The model suggests; the clamp decides.
type SLAService struct {
	caller      *llm.Caller
	catalog     *catalog.Catalog
	matcher     *keywords.Matcher
	now         func() time.Time
	temperature float64
}

// NewSLAService constructs the service; a nil clock uses time.Now.
func NewSLAService(caller *llm.Caller, cat *catalog.Catalog, matcher *keywords.Matcher, now func() time.Time, temperature float64) *SLAService {
	if now == nil {
		now = time.Now
	}
	return &SLAService{caller: caller, catalog: cat, matcher: matcher, now: now, temperature: temperature}
}

// DefaultSLAHours is the baseline for an urgency tier.
func DefaultSLAHours(u domain.Urgency) float64 {
	if h, ok := defaultSLAHours[u]; ok {
		return h
	}
	return defaultSLAHours[domain.UrgencyMedium]
}

// Assign asks the model for hours and clamps them. Only a failed request is
// an error; unusable output falls back to the tier default.
func (s *SLAService) Assign(ctx context.Context, description string, c Classification) (SLAAssignment, error) {
	obj, err := s.caller.Object(ctx, llm.Request{
		Stage:       llm.StageSLA,
		System:      slaSystemPrompt,
		Prompt:      fmt.Sprintf("Complaint: %s\nUrgency: %s\nCategory: %s\nDepartment: %s", description, c.Urgency, c.Category, c.Department),
		Temperature: s.temperature,
	}, nil)
	if err != nil && isTransportFailure(err) {
		return SLAAssignment{}, externalError(llm.StageSLA, err)
	}

	source := "model"
	hours, ok := floatField(obj, "sla_hours")
	if err != nil || !ok || hours <= 0 {
		hours = DefaultSLAHours(c.Urgency)
		source = "default"
	}
	return s.finalize(description, c, hours, source, stringField(obj, "reasoning")), nil
}

// Fallback computes a deadline without calling the model.
func (s *SLAService) Fallback(description string, c Classification) SLAAssignment {
	return s.finalize(description, c, DefaultSLAHours(c.Urgency), "fallback", "deterministic fallback")
}

func (s *SLAService) finalize(description string, c Classification, hours float64, source, reasoning string) SLAAssignment {
	dept, _ := s.catalog.Department(c.Department)
	clamped, bands := ClampHours(hours, c.Urgency, s.matcher.Match(description), dept)
	return SLAAssignment{
		Hours:     clamped,
		Deadline:  s.now().Add(time.Duration(clamped * float64(time.Hour))),
		Reasoning: reasoning,
		Source:    source,
		Bands:     bands,
	}
}

// ClampHours applies the tier window, then matching situational bands, then
// the hard bounds. It returns the band names that applied.
func ClampHours(hours float64, urgency domain.Urgency, hits keywords.Hits, dept domain.Department) (float64, []string) {
	if w, ok := tierWindows[urgency]; ok {
		hours = w.apply(hours)
	}
	var applied []string
	for _, band := range slaBands {
		if band.tier != urgency || !band.applies(hits, dept) {
			continue
		}
		hours = band.window.apply(hours)
		applied = append(applied, band.name)
	}
	return clamp(hours, minSLAHours, maxSLAHours), applied
}
