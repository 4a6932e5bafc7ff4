package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/repository"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

var allowedTransitions = map[domain.ComplaintStatus][]domain.ComplaintStatus{
	domain.ComplaintStatusOpen:       {domain.ComplaintStatusInProgress, domain.ComplaintStatusEscalated, domain.ComplaintStatusResolved, domain.ComplaintStatusClosed},
	domain.ComplaintStatusInProgress: {domain.ComplaintStatusEscalated, domain.ComplaintStatusResolved, domain.ComplaintStatusClosed},
	domain.ComplaintStatusEscalated:  {domain.ComplaintStatusInProgress, domain.ComplaintStatusResolved, domain.ComplaintStatusClosed},
	domain.ComplaintStatusResolved:   {domain.ComplaintStatusClosed},
}

// ComplaintDependencies bundles collaborators for ComplaintService.
type ComplaintDependencies struct {
	Complaints  repository.ComplaintRepository
	Escalations repository.EscalationRepository
	Notifier    Notifier
	Community   config.CommunityConfig
	Logger      *zap.Logger
}

// ComplaintService serves reads, operator status changes and community upvotes.
type ComplaintService struct {
	complaints  repository.ComplaintRepository
	escalations repository.EscalationRepository
	notifier    Notifier
	community   config.CommunityConfig
	logger      *zap.Logger
}

// NewComplaintService constructs the service.
func NewComplaintService(deps ComplaintDependencies) *ComplaintService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ComplaintService{
		complaints:  deps.Complaints,
		escalations: deps.Escalations,
		notifier:    deps.Notifier,
		community:   deps.Community,
		logger:      logger,
	}
}

// Get returns one complaint.
func (s *ComplaintService) Get(ctx context.Context, id string) (*domain.Complaint, error) {
	c, err := s.complaints.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return c, nil
}

// List returns complaints matching the filter.
func (s *ComplaintService) List(ctx context.Context, filter repository.ComplaintFilter) ([]domain.Complaint, error) {
	list, err := s.complaints.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// ListEscalations returns the audit trail of a complaint, oldest first.
func (s *ComplaintService) ListEscalations(ctx context.Context, id string) ([]domain.Escalation, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	list, err := s.escalations.ListByComplaint(ctx, id)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// UpdateStatus applies an operator transition and notifies the citizen.
func (s *ComplaintService) UpdateStatus(ctx context.Context, id string, next domain.ComplaintStatus, note string) (*domain.Complaint, error) {
	if !next.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": next})
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isValidTransition(current.Status, next) {
		return nil, apperrors.NewConflict("status transition not allowed", map[string]any{
			"from": current.Status,
			"to":   next,
		})
	}

	patch := repository.ComplaintPatch{Status: &next}
	if note != "" {
		patch.Metadata = map[string]any{"status_note": note}
	}
	updated, err := s.complaints.Update(ctx, id, patch)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.SendStatusChange(ctx, updated, current.Status); err != nil {
			s.logger.Warn("status notification failed", zap.String("complaint_id", id), zap.Error(err))
		}
	}
	return updated, nil
}

// Upvote records one community vote. Crossing a vote threshold raises urgency;
// it never lowers it and never moves the deadline. The raise is written as a
// floor, so a vote that read an older count cannot undo a later one.
func (s *ComplaintService) Upvote(ctx context.Context, id string) (*domain.Complaint, error) {
	updated, err := s.complaints.Update(ctx, id, repository.ComplaintPatch{UpvoteDelta: 1})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	floor := s.communityUrgency(updated.Upvotes)
	if updated.Urgency.AtLeast(floor) {
		return updated, nil
	}
	before := updated.Urgency
	updated, err = s.complaints.Update(ctx, id, repository.ComplaintPatch{
		UrgencyAtLeast: &floor,
		Metadata:       map[string]any{"community_boost": fmt.Sprintf("%d upvotes", updated.Upvotes)},
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if updated.Urgency != before {
		s.logger.Info("community boost applied",
			zap.String("complaint_id", id),
			zap.String("urgency", string(updated.Urgency)),
			zap.Int("upvotes", updated.Upvotes))
	}
	return updated, nil
}

func (s *ComplaintService) communityUrgency(votes int) domain.Urgency {
	switch {
	case s.community.UrgentVotes > 0 && votes >= s.community.UrgentVotes:
		return domain.UrgencyUrgent
	case s.community.HighVotes > 0 && votes >= s.community.HighVotes:
		return domain.UrgencyHigh
	}
	return domain.UrgencyLow
}

func isValidTransition(current, next domain.ComplaintStatus) bool {
	for _, allowed := range allowedTransitions[current] {
		if allowed == next {
			return true
		}
	}
	return false
}
