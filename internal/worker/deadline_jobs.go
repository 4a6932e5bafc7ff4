package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/service"
)

// TaskSLACheck fires when a complaint's deadline, or its next escalation
// step, comes due.
const TaskSLACheck = "complaint:sla_check"

type slaCheckPayload struct {
	ComplaintID string    `json:"complaint_id"`
	DueAt       time.Time `json:"due_at"`
}

// Evaluator runs the breach and escalation checks for one complaint.
type Evaluator interface {
	EvaluateComplaint(ctx context.Context, id string) (service.EvaluationOutcome, error)
}

// DeadlineScheduler enqueues delayed SLA checks on asynq.
type DeadlineScheduler struct {
	client *asynq.Client
	queue  string
	logger *zap.Logger
}

// NewDeadlineScheduler creates a scheduler backed by the given redis connection.
func NewDeadlineScheduler(opt asynq.RedisConnOpt, queue string, logger *zap.Logger) *DeadlineScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeadlineScheduler{client: asynq.NewClient(opt), queue: queue, logger: logger}
}

// ScheduleDeadline enqueues one check per complaint and due time. Scheduling
// the same pair twice is a no-op.
func (s *DeadlineScheduler) ScheduleDeadline(ctx context.Context, complaintID string, dueAt time.Time) error {
	task, err := newSLACheckTask(complaintID, dueAt)
	if err != nil {
		return err
	}
	opts := []asynq.Option{
		asynq.ProcessAt(dueAt),
		asynq.TaskID(slaTaskID(complaintID, dueAt)),
		asynq.MaxRetry(5),
	}
	if s.queue != "" {
		opts = append(opts, asynq.Queue(s.queue))
	}
	info, err := s.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue sla check: %w", err)
	}
	s.logger.Debug("sla check scheduled",
		zap.String("complaint_id", complaintID),
		zap.String("task_id", info.ID),
		zap.Time("due_at", dueAt))
	return nil
}

// Close releases the redis connection.
func (s *DeadlineScheduler) Close() error {
	return s.client.Close()
}

func newSLACheckTask(complaintID string, dueAt time.Time) (*asynq.Task, error) {
	payload, err := json.Marshal(slaCheckPayload{ComplaintID: complaintID, DueAt: dueAt.UTC()})
	if err != nil {
		return nil, fmt.Errorf("encode sla check: %w", err)
	}
	return asynq.NewTask(TaskSLACheck, payload), nil
}

func slaTaskID(complaintID string, dueAt time.Time) string {
	return fmt.Sprintf("sla:%s:%d", complaintID, dueAt.Unix())
}

// DeadlineServer processes SLA checks as they come due.
type DeadlineServer struct {
	server    *asynq.Server
	evaluator Evaluator
	scheduler service.DeadlineScheduler
	logger    *zap.Logger
}

// NewDeadlineServer wires the asynq server. Checks that leave a further step
// pending are re-enqueued through scheduler.
func NewDeadlineServer(opt asynq.RedisConnOpt, cfg config.MonitoringConfig, evaluator Evaluator, scheduler service.DeadlineScheduler, logger *zap.Logger) *DeadlineServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.DeadlineConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	queue := cfg.DeadlineQueue
	if queue == "" {
		queue = "default"
	}
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		Logger:      logger.Sugar(),
	})
	return &DeadlineServer{server: server, evaluator: evaluator, scheduler: scheduler, logger: logger}
}

// Start begins processing in the background.
func (d *DeadlineServer) Start() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskSLACheck, d.HandleSLACheck)
	return d.server.Start(mux)
}

// Stop drains in-flight checks and stops the server.
func (d *DeadlineServer) Stop() {
	d.server.Shutdown()
}

// HandleSLACheck evaluates one complaint and chains the next check.
func (d *DeadlineServer) HandleSLACheck(ctx context.Context, t *asynq.Task) error {
	var payload slaCheckPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.ComplaintID == "" {
		return fmt.Errorf("invalid sla check payload: %v: %w", err, asynq.SkipRetry)
	}

	outcome, err := d.evaluator.EvaluateComplaint(ctx, payload.ComplaintID)
	if err != nil {
		var compErr *service.EscalationComputationError
		if errors.As(err, &compErr) && outcome.ComplaintID == "" {
			d.logger.Warn("sla check for unknown complaint", zap.String("complaint_id", payload.ComplaintID), zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	d.logger.Info("sla check processed",
		zap.String("complaint_id", payload.ComplaintID),
		zap.Bool("escalated", outcome.Escalated),
		zap.String("level", string(outcome.Level)),
		zap.String("skipped", outcome.Skipped))

	if outcome.NextCheckAt == nil || d.scheduler == nil {
		return nil
	}
	if err := d.scheduler.ScheduleDeadline(ctx, payload.ComplaintID, *outcome.NextCheckAt); err != nil {
		d.logger.Warn("unable to chain sla check", zap.String("complaint_id", payload.ComplaintID), zap.Error(err))
	}
	return nil
}
