package domain

import "time"

// Escalation is an append-only audit record of one escalation decision.
type Escalation struct {
	ID           string
	ComplaintID  string
	Level        EscalationLevel
	Reason       string
	EscalatedTo  string
	HoursOverdue float64
	CreatedAt    time.Time
}
