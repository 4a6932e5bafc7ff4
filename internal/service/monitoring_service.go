package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/repository"
)

var activeStatuses = []domain.ComplaintStatus{
	domain.ComplaintStatusOpen,
	domain.ComplaintStatusInProgress,
	domain.ComplaintStatusEscalated,
}

// EvaluationOutcome records what happened to one complaint in a cycle.
type EvaluationOutcome struct {
	ComplaintID    string                 `json:"complaint_id"`
	HoursOverdue   float64                `json:"hours_overdue"`
	BreachNotified bool                   `json:"breach_notified"`
	Escalated      bool                   `json:"escalated"`
	Level          domain.EscalationLevel `json:"level"`
	EscalatedTo    string                 `json:"escalated_to,omitempty"`
	Skipped        string                 `json:"skipped,omitempty"`
	NextCheckAt    *time.Time             `json:"next_check_at,omitempty"`

	lastOverdue float64
}

// CycleReport summarises one monitoring cycle.
type CycleReport struct {
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	Breaching     int                 `json:"breaching"`
	Stale         int                 `json:"stale"`
	FollowUpsDue  int                 `json:"follow_ups_due"`
	FollowUpsSent int                 `json:"follow_ups_sent"`
	BreachNotices int                 `json:"breach_notices"`
	Escalated     int                 `json:"escalated"`
	Outcomes      []EvaluationOutcome `json:"outcomes"`
	Errors        []string            `json:"errors,omitempty"`

	mu sync.Mutex
}

func (r *CycleReport) record(fn func(*CycleReport)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r)
}

// MonitoringDependencies bundles collaborators for the monitor.
type MonitoringDependencies struct {
	Complaints  repository.ComplaintRepository
	Escalations repository.EscalationRepository
	Escalator   *EscalationService
	FollowUps   *FollowUpService
	Notifier    Notifier
	Config      config.MonitoringConfig
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

// MonitoringService re-evaluates persisted complaints against their deadlines.
type MonitoringService struct {
	complaints  repository.ComplaintRepository
	escalations repository.EscalationRepository
	escalator   *EscalationService
	followUps   *FollowUpService
	notifier    Notifier
	cfg         config.MonitoringConfig
	thresholds  EscalationThresholds
	metrics     *observability.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewMonitoringService constructs the monitor.
func NewMonitoringService(deps MonitoringDependencies) *MonitoringService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &MonitoringService{
		complaints:  deps.Complaints,
		escalations: deps.Escalations,
		escalator:   deps.Escalator,
		followUps:   deps.FollowUps,
		notifier:    deps.Notifier,
		cfg:         deps.Config,
		thresholds:  ThresholdsFromConfig(deps.Config),
		metrics:     deps.Metrics,
		logger:      logger,
		now:         now,
	}
}

// RunCycle scans for breaching, stale and follow-up-due complaints and acts
// on each. Per-complaint failures are collected in the report; only a failed
// scan aborts the cycle.
func (s *MonitoringService) RunCycle(ctx context.Context) (*CycleReport, error) {
	now := s.now()
	report := &CycleReport{StartedAt: now, Outcomes: []EvaluationOutcome{}}

	breaching, err := s.complaints.ListWithFilter(ctx, repository.ComplaintFilter{
		Statuses:       activeStatuses,
		DeadlineBefore: &now,
		SortByDeadline: true,
		Limit:          s.scanLimit(),
	})
	if err != nil {
		s.metrics.RecordMonitorCycle("failed")
		return nil, fmt.Errorf("scan breaching complaints: %w", err)
	}
	staleBefore := now.Add(-s.staleAfter())
	stale, err := s.complaints.ListWithFilter(ctx, repository.ComplaintFilter{
		Statuses:  []domain.ComplaintStatus{domain.ComplaintStatusInProgress},
		UpdatedTo: &staleBefore,
		Limit:     s.scanLimit(),
	})
	if err != nil {
		s.metrics.RecordMonitorCycle("failed")
		return nil, fmt.Errorf("scan stale complaints: %w", err)
	}
	followUpBefore := now.Add(-s.followUpAfter())
	due, err := s.complaints.ListWithFilter(ctx, repository.ComplaintFilter{
		Statuses:  []domain.ComplaintStatus{domain.ComplaintStatusInProgress},
		UpdatedTo: &followUpBefore,
		Limit:     s.scanLimit(),
	})
	if err != nil {
		s.metrics.RecordMonitorCycle("failed")
		return nil, fmt.Errorf("scan follow-up complaints: %w", err)
	}
	report.Breaching, report.Stale, report.FollowUpsDue = len(breaching), len(stale), len(due)

	s.runFollowUps(ctx, due, report)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers())
	for _, c := range unionByID(breaching, stale) {
		c := c
		group.Go(func() error {
			outcome, err := s.evaluate(groupCtx, &c, now)
			report.record(func(r *CycleReport) {
				if err != nil {
					r.Errors = append(r.Errors, err.Error())
					return
				}
				r.Outcomes = append(r.Outcomes, outcome)
				if outcome.BreachNotified {
					r.BreachNotices++
				}
				if outcome.Escalated {
					r.Escalated++
				}
			})
			return nil
		})
	}
	_ = group.Wait()

	report.FinishedAt = s.now()
	outcome := "ok"
	if len(report.Errors) > 0 {
		outcome = "partial"
	}
	s.metrics.RecordMonitorCycle(outcome)
	s.logger.Info("monitoring cycle finished",
		zap.Int("breaching", report.Breaching),
		zap.Int("stale", report.Stale),
		zap.Int("follow_ups_sent", report.FollowUpsSent),
		zap.Int("escalated", report.Escalated),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

// EvaluateComplaint runs the breach and escalation checks for one complaint.
func (s *MonitoringService) EvaluateComplaint(ctx context.Context, id string) (EvaluationOutcome, error) {
	c, err := s.complaints.GetByID(ctx, id)
	if err != nil {
		return EvaluationOutcome{}, &EscalationComputationError{ComplaintID: id, Err: err}
	}
	now := s.now()
	outcome, err := s.evaluate(ctx, c, now)
	if err != nil || c.Status.IsTerminal() || c.SLADeadline == nil {
		return outcome, err
	}
	threshold := s.thresholds.For(c.Urgency)
	lastOverdue := outcome.lastOverdue
	if outcome.Escalated {
		lastOverdue = outcome.HoursOverdue
	}
	if next, ok := NextCheckAt(*c.SLADeadline, outcome.Level, threshold, lastOverdue); ok {
		// a declined step is retried one threshold later
		if !next.After(now) {
			next = now.Add(time.Duration(threshold * float64(time.Hour)))
		}
		outcome.NextCheckAt = &next
	}
	return outcome, nil
}

func (s *MonitoringService) runFollowUps(ctx context.Context, due []domain.Complaint, report *CycleReport) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers())
	for _, c := range due {
		c := c
		group.Go(func() error {
			if s.followUp(groupCtx, &c) {
				report.record(func(r *CycleReport) { r.FollowUpsSent++ })
			}
			return nil
		})
	}
	_ = group.Wait()
}

func (s *MonitoringService) followUp(ctx context.Context, c *domain.Complaint) bool {
	action, err := s.followUps.Plan(ctx, c)
	if err != nil {
		s.logger.Warn("follow-up drafting fell back", zap.String("complaint_id", c.ID), zap.Error(err))
	}
	s.logger.Info("follow-up dispatched",
		zap.String("complaint_id", c.ID),
		zap.String("action", action.Kind),
		zap.String("recipient", action.Recipient),
		zap.String("source", action.Source))

	if s.notifier != nil && c.Contact.Reachable() {
		if err := s.notifier.SendFollowUp(ctx, c, action); err != nil {
			s.logger.Warn("follow-up notice failed", zap.String("complaint_id", c.ID), zap.Error(err))
		}
	}

	stamp := s.now()
	if _, err := s.complaints.Update(ctx, c.ID, repository.ComplaintPatch{FollowUpAt: &stamp}); err != nil {
		s.logger.Warn("unable to stamp follow-up", zap.String("complaint_id", c.ID), zap.Error(err))
	}
	s.metrics.RecordFollowUp(action.Kind)
	return true
}

func (s *MonitoringService) evaluate(ctx context.Context, c *domain.Complaint, now time.Time) (EvaluationOutcome, error) {
	outcome := EvaluationOutcome{
		ComplaintID:  c.ID,
		HoursOverdue: c.HoursOverdue(now),
		Level:        c.EscalationLevel,
	}
	if c.Status.IsTerminal() {
		outcome.Skipped = "terminal status"
		return outcome, nil
	}

	if c.IsBreaching(now) && c.BreachNotifiedAt == nil {
		outcome.BreachNotified = s.notifyBreach(ctx, c, outcome.HoursOverdue, now)
	}

	lastOverdue, err := s.lastEscalationOverdue(ctx, c)
	if err != nil {
		return outcome, &EscalationComputationError{ComplaintID: c.ID, Err: err}
	}
	outcome.lastOverdue = lastOverdue

	threshold := s.thresholds.For(c.Urgency)
	candidate, ok := NextEscalation(c.EscalationLevel, outcome.HoursOverdue, threshold, lastOverdue)
	if !ok {
		if c.EscalationLevel.IsTerminal() {
			outcome.Skipped = "highest level reached"
		} else {
			outcome.Skipped = "below threshold"
		}
		return outcome, nil
	}

	decision, err := s.escalator.Decide(ctx, c, candidate, outcome.HoursOverdue, threshold)
	if err != nil {
		s.logger.Warn("escalation decision fell back", zap.String("complaint_id", c.ID), zap.Error(err))
	}
	if !decision.Escalate {
		outcome.Skipped = "declined: " + decision.Reason
		return outcome, nil
	}

	esc := domain.Escalation{
		ID:           ulid.Make().String(),
		ComplaintID:  c.ID,
		Level:        decision.Level,
		Reason:       decision.Reason,
		EscalatedTo:  decision.Authority,
		HoursOverdue: outcome.HoursOverdue,
	}
	updated, err := s.complaints.Escalate(ctx, &esc, c.EscalationLevel)
	if errors.Is(err, repository.ErrEscalationConflict) {
		outcome.Skipped = "level changed concurrently"
		return outcome, nil
	}
	if err != nil {
		return outcome, &EscalationComputationError{ComplaintID: c.ID, Err: err}
	}

	outcome.Escalated = true
	outcome.Level = esc.Level
	outcome.EscalatedTo = esc.EscalatedTo
	s.metrics.RecordEscalation(string(esc.Level))
	s.logger.Info("complaint escalated",
		zap.String("complaint_id", c.ID),
		zap.String("level", string(esc.Level)),
		zap.String("escalated_to", esc.EscalatedTo),
		zap.Float64("hours_overdue", esc.HoursOverdue),
		zap.String("source", decision.Source))

	if s.notifier != nil {
		if err := s.notifier.SendEscalation(ctx, updated, esc); err != nil {
			s.logger.Warn("escalation notice failed", zap.String("complaint_id", c.ID), zap.Error(err))
		}
		if c.Status != domain.ComplaintStatusEscalated {
			if err := s.notifier.SendStatusChange(ctx, updated, c.Status); err != nil {
				s.logger.Warn("status notice failed", zap.String("complaint_id", c.ID), zap.Error(err))
			}
		}
	}
	return outcome, nil
}

// lastEscalationOverdue returns the hours overdue recorded with the latest
// escalation of c, or zero when c has never been escalated.
func (s *MonitoringService) lastEscalationOverdue(ctx context.Context, c *domain.Complaint) (float64, error) {
	if s.escalations == nil || c.EscalationLevel.Rank() < 1 {
		return 0, nil
	}
	records, err := s.escalations.ListByComplaint(ctx, c.ID)
	if err != nil {
		return 0, fmt.Errorf("load escalation history: %w", err)
	}
	var last float64
	for _, rec := range records {
		last = max(last, rec.HoursOverdue)
	}
	return last, nil
}

// notifyBreach sends the one-time breach notice and stamps it. Without a
// notifier nothing is sent, so nothing is stamped.
func (s *MonitoringService) notifyBreach(ctx context.Context, c *domain.Complaint, hoursOverdue float64, now time.Time) bool {
	if s.notifier == nil {
		return false
	}
	if err := s.notifier.SendSLABreach(ctx, c, hoursOverdue); err != nil {
		s.logger.Warn("breach notice failed", zap.String("complaint_id", c.ID), zap.Error(err))
		return false
	}
	if _, err := s.complaints.Update(ctx, c.ID, repository.ComplaintPatch{BreachNotifiedAt: &now}); err != nil {
		s.logger.Warn("unable to stamp breach notice", zap.String("complaint_id", c.ID), zap.Error(err))
	}
	c.BreachNotifiedAt = &now
	return true
}

func (s *MonitoringService) workers() int {
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	return 8
}

func (s *MonitoringService) scanLimit() int {
	if s.cfg.ScanLimit > 0 {
		return s.cfg.ScanLimit
	}
	return 500
}

func (s *MonitoringService) staleAfter() time.Duration {
	if d := s.cfg.StaleAfter(); d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

func (s *MonitoringService) followUpAfter() time.Duration {
	if d := s.cfg.FollowUpAfter(); d > 0 {
		return d
	}
	return 3 * 24 * time.Hour
}

func unionByID(lists ...[]domain.Complaint) []domain.Complaint {
	seen := make(map[string]bool)
	var out []domain.Complaint
	for _, list := range lists {
		for _, c := range list {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}
