package dto

import (
	"time"

	"github.com/civic-kit/grievance-service/internal/domain"
)

// CreateComplaintRequest payload.
type CreateComplaintRequest struct {
	Description string                `json:"description"`
	Contact     domain.CitizenContact `json:"contact"`
	Location    domain.Location       `json:"location"`
	Attachments []string              `json:"attachments"`
}

// ComplaintResponse is the citizen-facing view of a complaint.
type ComplaintResponse struct {
	ID                 string                 `json:"id"`
	Description        string                 `json:"description"`
	Category           domain.Category        `json:"category"`
	Urgency            domain.Urgency         `json:"urgency"`
	Department         string                 `json:"department"`
	DepartmentName     string                 `json:"department_name"`
	Jurisdiction       string                 `json:"jurisdiction,omitempty"`
	Location           domain.Location        `json:"location"`
	Status             domain.ComplaintStatus `json:"status"`
	EscalationLevel    domain.EscalationLevel `json:"escalation_level"`
	SLAHours           float64                `json:"sla_hours"`
	SLADeadline        *time.Time             `json:"sla_deadline"`
	TimeRemainingHours float64                `json:"time_remaining_hours"`
	SLABreached        bool                   `json:"sla_breached"`
	Upvotes            int                    `json:"upvotes"`
	FollowUpCount      int                    `json:"followup_count"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// AdminComplaintResponse adds the fields only operators see.
type AdminComplaintResponse struct {
	ComplaintResponse
	Contact          domain.CitizenContact   `json:"contact"`
	Attachments      []string                `json:"attachments"`
	LocationHint     domain.Location         `json:"location_hint"`
	Sentiment        domain.Sentiment        `json:"sentiment"`
	Policy           domain.PolicyAssessment `json:"policy"`
	LastFollowUpAt   *time.Time              `json:"last_followup_at"`
	BreachNotifiedAt *time.Time              `json:"breach_notified_at"`
	Metadata         map[string]any          `json:"metadata"`
}

// SubmissionResponse is returned from POST /complaints.
type SubmissionResponse struct {
	Complaint ComplaintResponse `json:"complaint"`
	Stage     string            `json:"processing_stage"`
	Degraded  bool              `json:"degraded"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status domain.ComplaintStatus `json:"status"`
	Note   string                 `json:"note"`
}

// EscalationResponse is one entry of the escalation audit trail.
type EscalationResponse struct {
	ID           string                 `json:"id"`
	Level        domain.EscalationLevel `json:"escalation_level"`
	EscalatedTo  string                 `json:"escalated_to"`
	Reason       string                 `json:"reason"`
	HoursOverdue float64                `json:"hours_overdue"`
	CreatedAt    time.Time              `json:"created_at"`
}
