package events

import (
	"time"

	"github.com/civic-kit/grievance-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventComplaintStatusChanged EventType = "complaint_status_changed"
	EventComplaintEscalated     EventType = "complaint_escalated"
	EventSLABreached            EventType = "complaint_sla_breached"
	EventFollowUp               EventType = "complaint_follow_up"
)

// Event is a citizen-facing notice about one complaint. Subject and Message
// are the text delivered to the citizen.
type Event struct {
	ID          string                `json:"id"`
	Type        EventType             `json:"type"`
	ComplaintID string                `json:"complaint_id"`
	Recipient   domain.CitizenContact `json:"recipient"`
	Subject     string                `json:"subject"`
	Message     string                `json:"message"`
	Timestamp   time.Time             `json:"timestamp"`
	Payload     any                   `json:"payload"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus      domain.ComplaintStatus `json:"old_status,omitempty"`
	NewStatus      domain.ComplaintStatus `json:"new_status"`
	Department     string                 `json:"department"`
	DepartmentName string                 `json:"department_name"`
	SLADeadline    *time.Time             `json:"sla_deadline,omitempty"`
	Message        string                 `json:"message"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	Level        domain.EscalationLevel `json:"level"`
	EscalatedTo  string                 `json:"escalated_to"`
	Reason       string                 `json:"reason"`
	HoursOverdue float64                `json:"hours_overdue"`
}

// SLABreachedPayload payload.
type SLABreachedPayload struct {
	Deadline       time.Time `json:"deadline"`
	HoursOverdue   float64   `json:"hours_overdue"`
	DepartmentName string    `json:"department_name"`
}

// FollowUpPayload payload.
type FollowUpPayload struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Count   int    `json:"count"`
}
