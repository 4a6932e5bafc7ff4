package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civic-kit/grievance-service/internal/domain"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestMemoryStoreUpdateMergesMetadata(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	repo := store.Complaints()

	c := &domain.Complaint{ID: "c1", Status: domain.ComplaintStatusOpen, Metadata: map[string]any{"a": 1}}
	require.NoError(t, repo.Create(ctx, c))

	updated, err := repo.Update(ctx, "c1", ComplaintPatch{UpvoteDelta: 2, Metadata: map[string]any{"b": 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Upvotes)
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, updated.Metadata)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestMemoryStoreFollowUpStamp(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(fixedClock(now))
	repo := store.Complaints()
	require.NoError(t, repo.Create(ctx, &domain.Complaint{ID: "c1", Status: domain.ComplaintStatusInProgress}))

	updated, err := repo.Update(ctx, "c1", ComplaintPatch{FollowUpAt: &now})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.FollowUpCount)
	require.NotNil(t, updated.LastFollowUpAt)
	assert.True(t, updated.LastFollowUpAt.Equal(now))
}

func TestMemoryStoreEscalateCompareAndSet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)
	repo := store.Complaints()
	require.NoError(t, repo.Create(ctx, &domain.Complaint{ID: "c1", Status: domain.ComplaintStatusOpen, EscalationLevel: domain.EscalationNone}))

	var wg sync.WaitGroup
	results := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Escalate(ctx, &domain.Escalation{ID: "e", ComplaintID: "c1", Level: domain.EscalationLevel1}, domain.EscalationNone)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrEscalationConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	records, err := store.Escalations().ListByComplaint(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 1)

	c, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationLevel1, c.EscalationLevel)
	assert.Equal(t, domain.ComplaintStatusEscalated, c.Status)
}

func TestMemoryStoreCreateEscalationIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(fixedClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, store.Complaints().Create(ctx, &domain.Complaint{ID: "c1", Status: domain.ComplaintStatusOpen}))
	escalations := store.Escalations()

	require.NoError(t, escalations.Create(ctx, &domain.Escalation{ID: "e1", ComplaintID: "c1", Level: domain.EscalationLevel1}))
	require.NoError(t, escalations.Create(ctx, &domain.Escalation{ID: "e2", ComplaintID: "c1", Level: domain.EscalationLevel3}))

	err := escalations.Create(ctx, &domain.Escalation{ID: "e3", ComplaintID: "c1", Level: domain.EscalationLevel3})
	assert.ErrorIs(t, err, ErrEscalationConflict)
	err = escalations.Create(ctx, &domain.Escalation{ID: "e4", ComplaintID: "c1", Level: domain.EscalationLevel2})
	assert.ErrorIs(t, err, ErrEscalationConflict)

	assert.Error(t, escalations.Create(ctx, &domain.Escalation{ID: "e5", ComplaintID: "c1", Level: domain.EscalationNone}))
	assert.ErrorIs(t, escalations.Create(ctx, &domain.Escalation{ID: "e6", ComplaintID: "nope", Level: domain.EscalationLevel1}), pgx.ErrNoRows)

	records, err := escalations.ListByComplaint(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.EscalationLevel3, records[1].Level)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestMemoryStoreFilterBreaching(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(fixedClock(now))
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	store.Put(domain.Complaint{ID: "overdue", Status: domain.ComplaintStatusOpen, SLADeadline: &past})
	store.Put(domain.Complaint{ID: "fresh", Status: domain.ComplaintStatusOpen, SLADeadline: &future})
	store.Put(domain.Complaint{ID: "closed", Status: domain.ComplaintStatusClosed, SLADeadline: &past})
	store.Put(domain.Complaint{ID: "no-deadline", Status: domain.ComplaintStatusOpen})

	list, err := store.Complaints().ListWithFilter(ctx, ComplaintFilter{
		Statuses:       []domain.ComplaintStatus{domain.ComplaintStatusOpen, domain.ComplaintStatusInProgress, domain.ComplaintStatusEscalated},
		DeadlineBefore: &now,
		SortByDeadline: true,
		Limit:          10,
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "overdue", list[0].ID)
}
