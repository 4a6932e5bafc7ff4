package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/service"
)

type stubEvaluator struct {
	outcome service.EvaluationOutcome
	err     error
	ids     []string
}

func (s *stubEvaluator) EvaluateComplaint(_ context.Context, id string) (service.EvaluationOutcome, error) {
	s.ids = append(s.ids, id)
	return s.outcome, s.err
}

type stubScheduler struct {
	at map[string]time.Time
}

func (s *stubScheduler) ScheduleDeadline(_ context.Context, id string, at time.Time) error {
	if s.at == nil {
		s.at = map[string]time.Time{}
	}
	s.at[id] = at
	return nil
}

func TestHandleSLACheckChainsNextCheck(t *testing.T) {
	next := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	evaluator := &stubEvaluator{outcome: service.EvaluationOutcome{ComplaintID: "c1", Escalated: true, NextCheckAt: &next}}
	scheduler := &stubScheduler{}
	server := &DeadlineServer{evaluator: evaluator, scheduler: scheduler, logger: zap.NewNop()}

	task, err := newSLACheckTask("c1", next.Add(-48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, server.HandleSLACheck(context.Background(), task))

	assert.Equal(t, []string{"c1"}, evaluator.ids)
	assert.True(t, scheduler.at["c1"].Equal(next))
}

func TestHandleSLACheckRejectsBadPayload(t *testing.T) {
	server := &DeadlineServer{evaluator: &stubEvaluator{}, logger: zap.NewNop()}

	err := server.HandleSLACheck(context.Background(), asynq.NewTask(TaskSLACheck, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleSLACheckSkipsRetryForUnknownComplaint(t *testing.T) {
	evaluator := &stubEvaluator{err: &service.EscalationComputationError{ComplaintID: "gone", Err: errors.New("no rows")}}
	server := &DeadlineServer{evaluator: evaluator, logger: zap.NewNop()}

	task, err := newSLACheckTask("gone", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, server.HandleSLACheck(context.Background(), task), asynq.SkipRetry)
}

func TestSLACheckTaskPayload(t *testing.T) {
	due := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	task, err := newSLACheckTask("c9", due)
	require.NoError(t, err)
	assert.Equal(t, TaskSLACheck, task.Type())

	var payload slaCheckPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "c9", payload.ComplaintID)
	assert.Equal(t, "sla:c9:1717243200", slaTaskID("c9", due))
}

type blockingRunner struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingRunner) RunCycle(ctx context.Context) (*service.CycleReport, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.release != nil {
		<-b.release
	}
	return &service.CycleReport{}, nil
}

func TestMonitorSchedulerRejectsInvalidSchedule(t *testing.T) {
	_, err := NewMonitorScheduler(&blockingRunner{}, "every now and then", 0, nil)
	assert.Error(t, err)
}

func TestMonitorSchedulerRunNowSkipsOverlap(t *testing.T) {
	runner := &blockingRunner{release: make(chan struct{})}
	scheduler, err := NewMonitorScheduler(runner, "@every 1h", 0, nil)
	require.NoError(t, err)

	done := make(chan bool)
	go func() {
		_, ran, _ := scheduler.RunNow(context.Background())
		done <- ran
	}()
	require.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 5*time.Millisecond)

	_, ran, err := scheduler.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	close(runner.release)
	assert.True(t, <-done)
}
