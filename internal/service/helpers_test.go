package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/catalog"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/keywords"
	"github.com/civic-kit/grievance-service/internal/llm"
	"github.com/civic-kit/grievance-service/internal/schema"
)

var errUnavailable = errors.New("provider unavailable")

// scriptedCompleter answers per stage; unscripted stages fail.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   map[string]int
}

func newScripted(replies map[string]string) *scriptedCompleter {
	return &scriptedCompleter{replies: replies, errs: map[string]error{}, calls: map[string]int{}}
}

func (s *scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.Stage]++
	if err, ok := s.errs[req.Stage]; ok {
		return "", err
	}
	if reply, ok := s.replies[req.Stage]; ok {
		return reply, nil
	}
	return "", errUnavailable
}

func (s *scriptedCompleter) callCount(stage string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[stage]
}

type fixture struct {
	catalog    *catalog.Catalog
	matcher    *keywords.Matcher
	caller     *llm.Caller
	classifier *ClassificationService
	sentiment  *SentimentService
	sla        *SLAService
	policy     *PolicyService
	now        time.Time
}

func newFixture(t *testing.T, completer llm.Completer) *fixture {
	t.Helper()
	cat, err := catalog.Default()
	require.NoError(t, err)
	matcher := keywords.NewMatcher(cat.KeywordGroups())
	caller := llm.NewCaller(completer, schema.NewCompiler(32, time.Minute), nil)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	return &fixture{
		catalog: cat,
		matcher: matcher,
		caller:  caller,
		classifier: NewClassificationService(ClassificationDependencies{
			Caller:  caller,
			Catalog: cat,
			Matcher: matcher,
		}),
		sentiment: NewSentimentService(caller, matcher, 0.1),
		sla:       NewSLAService(caller, cat, matcher, clock, 0.1),
		policy:    NewPolicyService(caller, cat, 0.1),
		now:       now,
	}
}

type notice struct {
	kind        string
	complaintID string
	oldStatus   domain.ComplaintStatus
	newStatus   domain.ComplaintStatus
	level       domain.EscalationLevel
}

// recordingNotifier keeps every notice it is asked to send.
type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
	fail    error
}

func (r *recordingNotifier) add(n notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.fail
}

func (r *recordingNotifier) SendStatusChange(_ context.Context, c *domain.Complaint, old domain.ComplaintStatus) error {
	return r.add(notice{kind: "status", complaintID: c.ID, oldStatus: old, newStatus: c.Status})
}

func (r *recordingNotifier) SendEscalation(_ context.Context, c *domain.Complaint, esc domain.Escalation) error {
	return r.add(notice{kind: "escalation", complaintID: c.ID, level: esc.Level})
}

func (r *recordingNotifier) SendSLABreach(_ context.Context, c *domain.Complaint, _ float64) error {
	return r.add(notice{kind: "breach", complaintID: c.ID})
}

func (r *recordingNotifier) SendFollowUp(_ context.Context, c *domain.Complaint, _ FollowUpAction) error {
	return r.add(notice{kind: "followup", complaintID: c.ID})
}

func (r *recordingNotifier) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.notices {
		if item.kind == kind {
			n++
		}
	}
	return n
}
