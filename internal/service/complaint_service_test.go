package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/repository"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

func newComplaintService(store *repository.MemoryStore, notifier Notifier) *ComplaintService {
	return NewComplaintService(ComplaintDependencies{
		Complaints:  store.Complaints(),
		Escalations: store.Escalations(),
		Notifier:    notifier,
		Community:   config.CommunityConfig{HighVotes: 3, UrgentVotes: 5},
	})
}

func seedComplaint(store *repository.MemoryStore, id string, status domain.ComplaintStatus, urgency domain.Urgency) time.Time {
	deadline := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	store.Put(domain.Complaint{
		ID:              id,
		Description:     "Broken footpath tiles outside the school gate",
		Urgency:         urgency,
		Department:      "municipal",
		SLADeadline:     &deadline,
		Status:          status,
		EscalationLevel: domain.EscalationNone,
	})
	return deadline
}

func TestUpdateStatusAllowedTransitionNotifies(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyMedium)
	notifier := &recordingNotifier{}
	svc := newComplaintService(store, notifier)

	updated, err := svc.UpdateStatus(context.Background(), "c1", domain.ComplaintStatusInProgress, "crew assigned")
	require.NoError(t, err)
	assert.Equal(t, domain.ComplaintStatusInProgress, updated.Status)
	assert.Equal(t, "crew assigned", updated.Metadata["status_note"])

	require.Equal(t, 1, notifier.count("status"))
	assert.Equal(t, domain.ComplaintStatusOpen, notifier.notices[0].oldStatus)
	assert.Equal(t, domain.ComplaintStatusInProgress, notifier.notices[0].newStatus)
}

func TestUpdateStatusRejectsDisallowedTransition(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "closed", domain.ComplaintStatusClosed, domain.UrgencyLow)
	seedComplaint(store, "resolved", domain.ComplaintStatusResolved, domain.UrgencyLow)
	notifier := &recordingNotifier{}
	svc := newComplaintService(store, notifier)

	cases := []struct {
		id   string
		next domain.ComplaintStatus
	}{
		{"closed", domain.ComplaintStatusOpen},
		{"resolved", domain.ComplaintStatusInProgress},
		{"resolved", domain.ComplaintStatusEscalated},
	}
	for _, tc := range cases {
		_, err := svc.UpdateStatus(context.Background(), tc.id, tc.next, "")
		var domainErr *apperrors.DomainError
		require.True(t, errors.As(err, &domainErr), "%s -> %s", tc.id, tc.next)
		assert.Equal(t, "CONFLICT", domainErr.Code)
	}
	assert.Zero(t, notifier.count("status"))
}

func TestUpdateStatusUnknownValueIsValidationError(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyLow)

	_, err := newComplaintService(store, nil).UpdateStatus(context.Background(), "c1", domain.ComplaintStatus("archived"), "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestGetMissingComplaintIsNotFound(t *testing.T) {
	svc := newComplaintService(repository.NewMemoryStore(nil), nil)

	_, err := svc.Get(context.Background(), "nope")
	var domainErr *apperrors.DomainError
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)

	_, err = svc.ListEscalations(context.Background(), "nope")
	require.True(t, errors.As(err, &domainErr))
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}

func TestUpvoteRaisesUrgencyAtThresholds(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	deadline := seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyLow)
	svc := newComplaintService(store, nil)

	expected := []domain.Urgency{
		domain.UrgencyLow, domain.UrgencyLow, domain.UrgencyHigh, domain.UrgencyHigh, domain.UrgencyUrgent,
	}
	for i, want := range expected {
		c, err := svc.Upvote(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, i+1, c.Upvotes)
		assert.Equal(t, want, c.Urgency, "after %d votes", i+1)
		require.NotNil(t, c.SLADeadline)
		assert.True(t, c.SLADeadline.Equal(deadline))
	}
}

func TestUpvoteNeverLowersUrgency(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyUrgent)
	svc := newComplaintService(store, nil)

	for i := 0; i < 3; i++ {
		c, err := svc.Upvote(context.Background(), "c1")
		require.NoError(t, err)
		assert.Equal(t, domain.UrgencyUrgent, c.Urgency)
	}
}

// slowVoteRepo holds back the first upvote after its count is written until
// release is closed.
type slowVoteRepo struct {
	repository.ComplaintRepository
	once    sync.Once
	counted chan struct{}
	release chan struct{}
}

func (r *slowVoteRepo) Update(ctx context.Context, id string, patch repository.ComplaintPatch) (*domain.Complaint, error) {
	c, err := r.ComplaintRepository.Update(ctx, id, patch)
	if err == nil && patch.UpvoteDelta > 0 {
		first := false
		r.once.Do(func() { first = true })
		if first {
			close(r.counted)
			<-r.release
		}
	}
	return c, err
}

func TestUpvoteWithStaleCountKeepsHigherUrgency(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	store.Put(domain.Complaint{
		ID:      "c1",
		Urgency: domain.UrgencyMedium,
		Status:  domain.ComplaintStatusOpen,
		Upvotes: 8,
	})
	repo := &slowVoteRepo{
		ComplaintRepository: store.Complaints(),
		counted:             make(chan struct{}),
		release:             make(chan struct{}),
	}
	svc := NewComplaintService(ComplaintDependencies{
		Complaints:  repo,
		Escalations: store.Escalations(),
		Community:   config.CommunityConfig{HighVotes: 9, UrgentVotes: 10},
	})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Upvote(context.Background(), "c1")
		done <- err
	}()
	<-repo.counted

	// the second vote reaches the urgent threshold while the first still
	// holds its count of nine
	second, err := svc.Upvote(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.UrgencyUrgent, second.Urgency)

	close(repo.release)
	require.NoError(t, <-done)

	c, err := store.Complaints().GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 10, c.Upvotes)
	assert.Equal(t, domain.UrgencyUrgent, c.Urgency)
}

func TestConcurrentUpvotesNeverLowerUrgency(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyLow)
	svc := newComplaintService(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Upvote(context.Background(), "c1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, err := store.Complaints().GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 40, c.Upvotes)
	assert.Equal(t, domain.UrgencyUrgent, c.Urgency)
}

func TestUrgencyIsMonotonicAcrossUpvotes(t *testing.T) {
	for _, start := range []domain.Urgency{domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyHigh, domain.UrgencyUrgent} {
		store := repository.NewMemoryStore(nil)
		seedComplaint(store, "c1", domain.ComplaintStatusOpen, start)
		svc := newComplaintService(store, nil)

		previous := start
		for votes := 1; votes <= 12; votes++ {
			c, err := svc.Upvote(context.Background(), "c1")
			require.NoError(t, err)
			assert.GreaterOrEqual(t, c.Urgency.Rank(), previous.Rank(), "start %s, %d votes", start, votes)
			assert.True(t, c.Urgency.AtLeast(start))
			previous = c.Urgency
		}
		assert.Equal(t, domain.UrgencyUrgent, previous)
	}
}

func TestListEscalationsReturnsAuditTrail(t *testing.T) {
	store := repository.NewMemoryStore(nil)
	seedComplaint(store, "c1", domain.ComplaintStatusOpen, domain.UrgencyHigh)
	_, err := store.Complaints().Escalate(context.Background(), &domain.Escalation{
		ID:           "e1",
		ComplaintID:  "c1",
		Level:        domain.EscalationLevel1,
		EscalatedTo:  "Municipal Corporation - Department Head",
		Reason:       "deadline missed",
		HoursOverdue: 26,
	}, domain.EscalationNone)
	require.NoError(t, err)

	list, err := newComplaintService(store, nil).ListEscalations(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.EscalationLevel1, list[0].Level)
}
