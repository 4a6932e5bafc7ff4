package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/civic-kit/grievance-service/internal/domain"
)

// MemoryStore keeps complaints and escalations in process. It backs local
// runs without POSTGRES_DSN and the service tests. Not-found lookups return
// pgx.ErrNoRows so callers map errors the same way for both stores.
type MemoryStore struct {
	mu          sync.Mutex
	complaints  map[string]*domain.Complaint
	escalations map[string][]domain.Escalation
	now         func() time.Time
}

// NewMemoryStore creates an empty store; a nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		complaints:  make(map[string]*domain.Complaint),
		escalations: make(map[string][]domain.Escalation),
		now:         now,
	}
}

// Complaints exposes the store as a ComplaintRepository.
func (m *MemoryStore) Complaints() ComplaintRepository { return memoryComplaints{m} }

// Escalations exposes the store as an EscalationRepository.
func (m *MemoryStore) Escalations() EscalationRepository { return memoryEscalations{m} }

// Put stores a complaint as-is, timestamps included. Used to seed fixtures.
func (m *MemoryStore) Put(c domain.Complaint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneComplaint(c)
	m.complaints[c.ID] = &stored
}

type memoryComplaints struct{ m *MemoryStore }

func (r memoryComplaints) Create(_ context.Context, c *domain.Complaint) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	now := r.m.now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	stored := cloneComplaint(*c)
	r.m.complaints[c.ID] = &stored
	return nil
}

func (r memoryComplaints) GetByID(_ context.Context, id string) (*domain.Complaint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.complaints[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	out := cloneComplaint(*c)
	return &out, nil
}

func (r memoryComplaints) Update(_ context.Context, id string, patch ComplaintPatch) (*domain.Complaint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.complaints[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.Urgency != nil {
		c.Urgency = *patch.Urgency
	} else if patch.UrgencyAtLeast != nil {
		c.Urgency = domain.MaxUrgency(c.Urgency, *patch.UrgencyAtLeast)
	}
	c.Upvotes += patch.UpvoteDelta
	if patch.FollowUpAt != nil {
		at := *patch.FollowUpAt
		c.LastFollowUpAt = &at
		c.FollowUpCount++
	}
	if patch.BreachNotifiedAt != nil {
		at := *patch.BreachNotifiedAt
		c.BreachNotifiedAt = &at
	}
	if len(patch.Metadata) > 0 {
		if c.Metadata == nil {
			c.Metadata = map[string]any{}
		}
		maps.Copy(c.Metadata, patch.Metadata)
	}
	c.UpdatedAt = r.m.now()
	out := cloneComplaint(*c)
	return &out, nil
}

func (r memoryComplaints) ListWithFilter(_ context.Context, f ComplaintFilter) ([]domain.Complaint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	var matched []domain.Complaint
	for _, c := range r.m.complaints {
		if matchesFilter(c, f) {
			matched = append(matched, cloneComplaint(*c))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if f.SortByDeadline {
			return deadlineOf(matched[i]).Before(deadlineOf(matched[j]))
		}
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit, offset := normalizePage(f.Limit, f.Offset)
	if offset >= len(matched) {
		return nil, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (r memoryComplaints) Escalate(_ context.Context, esc *domain.Escalation, from domain.EscalationLevel) (*domain.Complaint, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	c, ok := r.m.complaints[esc.ComplaintID]
	if !ok || c.EscalationLevel != from || c.Status.IsTerminal() {
		return nil, ErrEscalationConflict
	}
	now := r.m.now()
	c.EscalationLevel = esc.Level
	c.Status = domain.ComplaintStatusEscalated
	c.UpdatedAt = now
	esc.CreatedAt = now
	r.m.escalations[esc.ComplaintID] = append(r.m.escalations[esc.ComplaintID], *esc)
	out := cloneComplaint(*c)
	return &out, nil
}

type memoryEscalations struct{ m *MemoryStore }

func (r memoryEscalations) Create(_ context.Context, esc *domain.Escalation) error {
	if esc.Level.Rank() < 1 {
		return fmt.Errorf("escalation level %q cannot be recorded", esc.Level)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.complaints[esc.ComplaintID]; !ok {
		return pgx.ErrNoRows
	}
	history := r.m.escalations[esc.ComplaintID]
	if n := len(history); n > 0 && history[n-1].Level.Rank() >= esc.Level.Rank() {
		return ErrEscalationConflict
	}
	esc.CreatedAt = r.m.now()
	r.m.escalations[esc.ComplaintID] = append(history, *esc)
	return nil
}

func (r memoryEscalations) ListByComplaint(_ context.Context, complaintID string) ([]domain.Escalation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return slices.Clone(r.m.escalations[complaintID]), nil
}

func matchesFilter(c *domain.Complaint, f ComplaintFilter) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
		return false
	}
	if len(f.Departments) > 0 && !slices.Contains(f.Departments, c.Department) {
		return false
	}
	if len(f.Urgencies) > 0 && !slices.Contains(f.Urgencies, c.Urgency) {
		return false
	}
	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.UpdatedFrom != nil && c.UpdatedAt.Before(*f.UpdatedFrom) {
		return false
	}
	if f.UpdatedTo != nil && c.UpdatedAt.After(*f.UpdatedTo) {
		return false
	}
	if f.DeadlineBefore != nil && (c.SLADeadline == nil || !c.SLADeadline.Before(*f.DeadlineBefore)) {
		return false
	}
	return true
}

func deadlineOf(c domain.Complaint) time.Time {
	if c.SLADeadline == nil {
		return time.Time{}
	}
	return *c.SLADeadline
}

func cloneComplaint(c domain.Complaint) domain.Complaint {
	c.Attachments = slices.Clone(c.Attachments)
	c.Metadata = maps.Clone(c.Metadata)
	c.Sentiment.Indicators = slices.Clone(c.Sentiment.Indicators)
	c.Sentiment.DetectedEmotions = slices.Clone(c.Sentiment.DetectedEmotions)
	c.Policy.ApplicablePolicies = slices.Clone(c.Policy.ApplicablePolicies)
	c.Policy.EscalationStrategy = slices.Clone(c.Policy.EscalationStrategy)
	return c
}
