package service

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/observability"
	"github.com/civic-kit/grievance-service/internal/repository"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

// PipelineStage names the last state a pipeline run reached.
type PipelineStage string

const (
	StageNew               PipelineStage = "new"
	StageClassified        PipelineStage = "classified"
	StageSentimentAdjusted PipelineStage = "sentiment_adjusted"
	StageSLAAssigned       PipelineStage = "sla_assigned"
	StagePolicyChecked     PipelineStage = "policy_checked"
	StagePersisted         PipelineStage = "persisted"
	StageNotified          PipelineStage = "notified"
	StageDone              PipelineStage = "done"
)

const minDescriptionLength = 10

var (
	pincodePattern = regexp.MustCompile(`^\d{6}$`)
	phonePattern   = regexp.MustCompile(`^(\+?91)?\d{10}$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "")
)

// ComplaintInput is what a citizen submits.
type ComplaintInput struct {
	Description string
	Contact     domain.CitizenContact
	Location    domain.Location
	Attachments []string
}

// PipelineResult carries the complaint as far as the run got.
type PipelineResult struct {
	Complaint      *domain.Complaint
	Stage          PipelineStage
	Classification Classification
	SLA            SLAAssignment
	Errors         []string
}

// Degraded reports whether any stage fell back.
func (r *PipelineResult) Degraded() bool { return len(r.Errors) > 0 }

// DeadlineScheduler arranges an SLA check at the deadline.
type DeadlineScheduler interface {
	ScheduleDeadline(ctx context.Context, complaintID string, deadline time.Time) error
}

// PipelineDependencies bundles the pipeline collaborators. Scheduler and
// Notifier are optional.
type PipelineDependencies struct {
	Classifier   *ClassificationService
	Sentiment    *SentimentService
	SLA          *SLAService
	Policy       *PolicyService
	Complaints   repository.ComplaintRepository
	Notifier     Notifier
	Scheduler    DeadlineScheduler
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	StageTimeout time.Duration
}

// ComplaintPipeline takes a submission from intake to a persisted, notified complaint.
type ComplaintPipeline struct {
	classifier   *ClassificationService
	sentiment    *SentimentService
	sla          *SLAService
	policy       *PolicyService
	complaints   repository.ComplaintRepository
	notifier     Notifier
	scheduler    DeadlineScheduler
	metrics      *observability.Metrics
	logger       *zap.Logger
	stageTimeout time.Duration
}

// NewComplaintPipeline wires the pipeline.
func NewComplaintPipeline(deps PipelineDependencies) *ComplaintPipeline {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.StageTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ComplaintPipeline{
		classifier:   deps.Classifier,
		sentiment:    deps.Sentiment,
		sla:          deps.SLA,
		policy:       deps.Policy,
		complaints:   deps.Complaints,
		notifier:     deps.Notifier,
		scheduler:    deps.Scheduler,
		metrics:      deps.Metrics,
		logger:       logger,
		stageTimeout: timeout,
	}
}

// ValidateInput checks a submission before any stage runs.
func ValidateInput(in ComplaintInput) error {
	details := map[string]any{}
	desc := strings.TrimSpace(in.Description)
	switch {
	case desc == "":
		details["description"] = "description is required"
	case len([]rune(desc)) < minDescriptionLength:
		details["description"] = "description must be at least 10 characters"
	}
	if pin := strings.TrimSpace(in.Location.Pincode); pin != "" && !pincodePattern.MatchString(pin) {
		details["pincode"] = "pincode must be 6 digits"
	}
	if phone := phoneSeparator.Replace(strings.TrimSpace(in.Contact.Phone)); phone != "" && !phonePattern.MatchString(phone) {
		details["phone"] = "phone must be 10 digits, optionally prefixed with +91"
	}
	if email := strings.TrimSpace(in.Contact.Email); email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			details["email"] = "email is not valid"
		}
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid complaint", details)
	}
	return nil
}

// Run processes one submission. Stage failures fall back and are recorded in
// the result; only validation and persistence failures are returned as errors.
// On a persistence failure the partially-filled result is returned too.
func (p *ComplaintPipeline) Run(ctx context.Context, in ComplaintInput) (*PipelineResult, error) {
	if err := ValidateInput(in); err != nil {
		p.metrics.RecordPipelineRun("invalid")
		return nil, err
	}
	description := strings.TrimSpace(in.Description)
	result := &PipelineResult{Stage: StageNew}

	result.Classification = p.classify(ctx, description, in.Location, result)
	result.Stage = StageClassified

	var sentiment domain.Sentiment
	p.runStage(ctx, "sentiment", result, func(stageCtx context.Context) error {
		var err error
		sentiment, err = p.sentiment.Analyze(stageCtx, description)
		return err
	})
	result.Classification.Urgency = AdjustUrgency(result.Classification.Urgency, sentiment)
	result.Stage = StageSentimentAdjusted

	if err := p.runStage(ctx, "sla", result, func(stageCtx context.Context) error {
		var err error
		result.SLA, err = p.sla.Assign(stageCtx, description, result.Classification)
		return err
	}); err != nil {
		result.SLA = p.sla.Fallback(description, result.Classification)
	}
	result.Stage = StageSLAAssigned

	var policy domain.PolicyAssessment
	p.runStage(ctx, "policy", result, func(stageCtx context.Context) error {
		var err error
		policy, err = p.policy.Analyze(stageCtx, description, result.Classification, result.SLA.Hours)
		return err
	})
	result.Stage = StagePolicyChecked

	complaint := p.buildComplaint(in, description, result, sentiment, policy)
	result.Complaint = complaint

	if err := p.timed(ctx, "persist", func(stageCtx context.Context) error {
		return p.complaints.Create(stageCtx, complaint)
	}); err != nil {
		p.logger.Error("complaint persistence failed", zap.String("complaint_id", complaint.ID), zap.Error(err))
		p.metrics.RecordPipelineRun("persistence_failed")
		return result, apperrors.NewPersistenceError(err)
	}
	result.Stage = StagePersisted

	p.finish(ctx, result)
	return result, nil
}

func (p *ComplaintPipeline) classify(ctx context.Context, description string, hint domain.Location, result *PipelineResult) Classification {
	var c Classification
	if err := p.runStage(ctx, "classification", result, func(stageCtx context.Context) error {
		var err error
		c, err = p.classifier.Classify(stageCtx, description, hint)
		return err
	}); err == nil {
		return c
	}

	if err := p.runStage(ctx, "understanding", result, func(stageCtx context.Context) error {
		var err error
		c, err = p.classifier.Understand(stageCtx, description, hint)
		return err
	}); err != nil {
		return p.classifier.ApplySafetyNet(p.classifier.Default(hint), description)
	}

	partial := c
	if err := p.runStage(ctx, "routing", result, func(stageCtx context.Context) error {
		var err error
		c, err = p.classifier.Route(stageCtx, description, partial)
		return err
	}); err != nil {
		return p.classifier.ApplySafetyNet(p.classifier.Default(hint), description)
	}
	return p.classifier.ApplySafetyNet(c, description)
}

// finish notifies the citizen and schedules the deadline check. Neither can
// fail the run.
func (p *ComplaintPipeline) finish(ctx context.Context, result *PipelineResult) {
	complaint := result.Complaint
	before := len(result.Errors)

	if p.notifier != nil {
		p.runStage(ctx, "notification", result, func(stageCtx context.Context) error {
			return p.notifier.SendStatusChange(stageCtx, complaint, "")
		})
	}
	result.Stage = StageNotified

	if p.scheduler != nil && complaint.SLADeadline != nil {
		p.runStage(ctx, "schedule", result, func(stageCtx context.Context) error {
			return p.scheduler.ScheduleDeadline(stageCtx, complaint.ID, *complaint.SLADeadline)
		})
	}

	if len(result.Errors) > before {
		if updated, err := p.complaints.Update(ctx, complaint.ID, repository.ComplaintPatch{
			Metadata: map[string]any{"workflow_errors": result.Errors},
		}); err != nil {
			p.logger.Warn("unable to record workflow errors", zap.String("complaint_id", complaint.ID), zap.Error(err))
		} else {
			result.Complaint = updated
		}
	}

	result.Stage = StageDone
	outcome := "ok"
	if result.Degraded() {
		outcome = "degraded"
	}
	p.metrics.RecordPipelineRun(outcome)
	p.logger.Info("complaint processed",
		zap.String("complaint_id", complaint.ID),
		zap.String("department", complaint.Department),
		zap.String("urgency", string(complaint.Urgency)),
		zap.Float64("sla_hours", complaint.SLAHours),
		zap.Int("stage_errors", len(result.Errors)))
}

func (p *ComplaintPipeline) buildComplaint(in ComplaintInput, description string, r *PipelineResult, sentiment domain.Sentiment, policy domain.PolicyAssessment) *domain.Complaint {
	c := r.Classification
	deadline := r.SLA.Deadline
	metadata := map[string]any{
		"classification_reasoning":  c.Reasoning,
		"classification_confidence": c.Confidence,
		"emergency_detected":        c.EmergencyDetected,
		"sla_reasoning":             r.SLA.Reasoning,
		"sla_source":                r.SLA.Source,
	}
	if c.Rule != "" {
		metadata["keyword_rule"] = c.Rule
	}
	if len(c.KeyDetails) > 0 {
		metadata["key_details"] = c.KeyDetails
	}
	if len(r.SLA.Bands) > 0 {
		metadata["sla_bands"] = r.SLA.Bands
	}
	if len(r.Errors) > 0 {
		metadata["workflow_errors"] = append([]string(nil), r.Errors...)
	}

	return &domain.Complaint{
		ID:              uuid.NewString(),
		Description:     description,
		Contact:         in.Contact,
		Attachments:     in.Attachments,
		LocationHint:    in.Location,
		Location:        c.Location,
		Category:        c.Category,
		Urgency:         c.Urgency,
		Department:      c.Department,
		DepartmentName:  c.DepartmentName,
		Jurisdiction:    c.Jurisdiction,
		SLAHours:        r.SLA.Hours,
		SLADeadline:     &deadline,
		Sentiment:       sentiment,
		Policy:          policy,
		Status:          domain.ComplaintStatusOpen,
		EscalationLevel: domain.EscalationNone,
		Metadata:        metadata,
	}
}

// runStage times fn and appends its error, if any, to the result.
func (p *ComplaintPipeline) runStage(ctx context.Context, name string, result *PipelineResult, fn func(context.Context) error) error {
	err := p.timed(ctx, name, fn)
	if err != nil {
		result.Errors = append(result.Errors, name+": "+err.Error())
		p.logger.Warn("pipeline stage degraded", zap.String("stage", name), zap.Error(err))
	}
	return err
}

func (p *ComplaintPipeline) timed(ctx context.Context, name string, fn func(context.Context) error) error {
	stageCtx, cancel := context.WithTimeout(ctx, p.stageTimeout)
	defer cancel()
	start := time.Now()
	err := fn(stageCtx)
	p.metrics.ObserveStage(name, time.Since(start), err != nil)
	return err
}
