package domain

import (
	"strings"
	"time"
)

// ComplaintStatus enumerates complaint lifecycle states.
type ComplaintStatus string

const (
	ComplaintStatusOpen       ComplaintStatus = "open"
	ComplaintStatusInProgress ComplaintStatus = "in_progress"
	ComplaintStatusEscalated  ComplaintStatus = "escalated"
	ComplaintStatusResolved   ComplaintStatus = "resolved"
	ComplaintStatusClosed     ComplaintStatus = "closed"
)

// IsTerminal reports whether monitoring should ignore the status.
func (s ComplaintStatus) IsTerminal() bool {
	return s == ComplaintStatusResolved || s == ComplaintStatusClosed
}

// Valid reports whether s is a known status.
func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintStatusOpen, ComplaintStatusInProgress, ComplaintStatusEscalated,
		ComplaintStatusResolved, ComplaintStatusClosed:
		return true
	}
	return false
}

// Category enumerates complaint categories.
type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryUtilities      Category = "utilities"
	CategorySanitation     Category = "sanitation"
	CategoryTransport      Category = "transport"
	CategoryHealth         Category = "health"
	CategoryEducation      Category = "education"
	CategorySafety         Category = "safety"
	CategoryEnvironment    Category = "environment"
	CategoryGovernance     Category = "governance"
	CategoryOther          Category = "other"
)

var validCategories = map[Category]struct{}{
	CategoryInfrastructure: {},
	CategoryUtilities:      {},
	CategorySanitation:     {},
	CategoryTransport:      {},
	CategoryHealth:         {},
	CategoryEducation:      {},
	CategorySafety:         {},
	CategoryEnvironment:    {},
	CategoryGovernance:     {},
	CategoryOther:          {},
}

// ParseCategory normalizes raw into a Category.
func ParseCategory(raw string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := validCategories[c]
	return c, ok
}

// Location is a free-form address hint, all fields optional.
type Location struct {
	Country  string `json:"country,omitempty"`
	State    string `json:"state,omitempty"`
	District string `json:"district,omitempty"`
	City     string `json:"city,omitempty"`
	Pincode  string `json:"pincode,omitempty"`
	Address  string `json:"address,omitempty"`
}

// IsZero reports whether no field is set.
func (l Location) IsZero() bool {
	return l == Location{}
}

// CitizenContact holds the optional ways to reach the complainant.
type CitizenContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Reachable reports whether any channel is available.
func (c CitizenContact) Reachable() bool {
	return c.Email != "" || c.Phone != ""
}

// Sentiment is the output of sentiment analysis stored with the complaint.
type Sentiment struct {
	Score                  float64  `json:"score"`
	EmotionLevel           string   `json:"emotion_level"`
	UrgencyBoost           float64  `json:"urgency_boost"`
	PriorityRecommendation string   `json:"priority_recommendation"`
	Indicators             []string `json:"indicators,omitempty"`
	DetectedEmotions       []string `json:"detected_emotions,omitempty"`
}

// PolicyReference names one applicable policy.
type PolicyReference struct {
	Name        string `json:"name"`
	Reference   string `json:"reference,omitempty"`
	Description string `json:"description,omitempty"`
}

// EscalationStep is one rung of a suggested escalation blueprint.
type EscalationStep struct {
	Level     EscalationLevel `json:"level"`
	Authority string          `json:"authority"`
	AfterHrs  float64         `json:"after_hours,omitempty"`
}

// PolicyAssessment is the compliance result stored with the complaint.
type PolicyAssessment struct {
	ApplicablePolicies  []PolicyReference `json:"applicable_policies"`
	LegalSLAHours       *float64          `json:"legal_sla_hours,omitempty"`
	LegalSLABasis       string            `json:"legal_sla_basis,omitempty"`
	Violation           bool              `json:"policy_violation"`
	SuggestedAction     string            `json:"suggested_action"`
	PolicyReference     string            `json:"policy_reference,omitempty"`
	EscalationStrategy  []EscalationStep  `json:"escalation_strategy,omitempty"`
	EscalationAuthority string            `json:"escalation_authority,omitempty"`
}

// Complaint is the central grievance entity.
type Complaint struct {
	ID               string
	Description      string
	Contact          CitizenContact
	Attachments      []string
	LocationHint     Location
	Location         Location
	Category         Category
	Urgency          Urgency
	Department       string
	DepartmentName   string
	Jurisdiction     string
	SLAHours         float64
	SLADeadline      *time.Time
	Sentiment        Sentiment
	Policy           PolicyAssessment
	Status           ComplaintStatus
	EscalationLevel  EscalationLevel
	FollowUpCount    int
	LastFollowUpAt   *time.Time
	BreachNotifiedAt *time.Time
	Upvotes          int
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsBreaching reports whether the SLA deadline has passed on an active complaint.
func (c *Complaint) IsBreaching(now time.Time) bool {
	if c.SLADeadline == nil || c.Status.IsTerminal() {
		return false
	}
	return c.SLADeadline.Before(now)
}

// HoursOverdue returns how far past the deadline the complaint is, or zero.
func (c *Complaint) HoursOverdue(now time.Time) float64 {
	if c.SLADeadline == nil || !c.SLADeadline.Before(now) {
		return 0
	}
	return now.Sub(*c.SLADeadline).Hours()
}

// HoursRemaining returns the time left until the deadline; negative when overdue.
func (c *Complaint) HoursRemaining(now time.Time) float64 {
	if c.SLADeadline == nil {
		return 0
	}
	return c.SLADeadline.Sub(now).Hours()
}
