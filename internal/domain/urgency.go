package domain

import "strings"

// Urgency is the ordered priority of a complaint.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

var urgencyOrder = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyUrgent}

// ParseUrgency normalizes raw into an Urgency.
func ParseUrgency(raw string) (Urgency, bool) {
	u := Urgency(strings.ToLower(strings.TrimSpace(raw)))
	return u, u.Rank() >= 0
}

// Rank returns the position of u in the ordering, or -1 when unknown.
func (u Urgency) Rank() int {
	for i, candidate := range urgencyOrder {
		if candidate == u {
			return i
		}
	}
	return -1
}

// Raise moves u up by steps, saturating at urgent.
func (u Urgency) Raise(steps int) Urgency {
	idx := u.Rank()
	if idx < 0 {
		idx = UrgencyMedium.Rank()
	}
	idx += steps
	if idx >= len(urgencyOrder) {
		idx = len(urgencyOrder) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return urgencyOrder[idx]
}

// AtLeast reports whether u ranks at or above other.
func (u Urgency) AtLeast(other Urgency) bool {
	return u.Rank() >= other.Rank()
}

// UrgenciesBelow lists the urgencies ranked strictly below u.
func UrgenciesBelow(u Urgency) []Urgency {
	rank := u.Rank()
	if rank <= 0 {
		return nil
	}
	return append([]Urgency(nil), urgencyOrder[:rank]...)
}

// MaxUrgency returns the higher of a and b.
func MaxUrgency(a, b Urgency) Urgency {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// EscalationLevel is the rung of the authority hierarchy a complaint sits on.
type EscalationLevel string

const (
	EscalationNone   EscalationLevel = "none"
	EscalationLevel1 EscalationLevel = "level_1"
	EscalationLevel2 EscalationLevel = "level_2"
	EscalationLevel3 EscalationLevel = "level_3"
	EscalationLevel4 EscalationLevel = "level_4"
)

var escalationOrder = []EscalationLevel{
	EscalationNone, EscalationLevel1, EscalationLevel2, EscalationLevel3, EscalationLevel4,
}

// ParseEscalationLevel normalizes raw; an empty value maps to none.
func ParseEscalationLevel(raw string) (EscalationLevel, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return EscalationNone, true
	}
	l := EscalationLevel(trimmed)
	return l, l.Rank() >= 0
}

// EscalationLevelFromRank maps a numeric rung to a level, saturating at both ends.
func EscalationLevelFromRank(rank int) EscalationLevel {
	if rank <= 0 {
		return EscalationNone
	}
	if rank >= len(escalationOrder) {
		return EscalationLevel4
	}
	return escalationOrder[rank]
}

// Rank returns 0 for none through 4 for level_4, or -1 when unknown.
func (l EscalationLevel) Rank() int {
	for i, candidate := range escalationOrder {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Next returns the following rung; level_4 returns itself.
func (l EscalationLevel) Next() EscalationLevel {
	return EscalationLevelFromRank(l.Rank() + 1)
}

// IsTerminal reports whether no further escalation is possible.
func (l EscalationLevel) IsTerminal() bool {
	return l == EscalationLevel4
}
