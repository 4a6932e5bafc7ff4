package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civic-kit/grievance-service/internal/config"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/events"
	"github.com/civic-kit/grievance-service/internal/mailer"
	"github.com/civic-kit/grievance-service/internal/observability"
)

// Notifier delivers citizen-facing notices.
type Notifier interface {
	SendStatusChange(ctx context.Context, c *domain.Complaint, old domain.ComplaintStatus) error
	SendEscalation(ctx context.Context, c *domain.Complaint, esc domain.Escalation) error
	SendSLABreach(ctx context.Context, c *domain.Complaint, hoursOverdue float64) error
	SendFollowUp(ctx context.Context, c *domain.Complaint, action FollowUpAction) error
}

// Mailer sends one email.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// NotificationDependencies wires a NotificationService. Mailer and Messages
// are optional.
type NotificationDependencies struct {
	Dispatcher events.Dispatcher
	Mailer     Mailer
	Messages   *CitizenMessageService
	Config     config.NotificationConfig
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NotificationService turns notices into events and delivers them by email
// and webhook.
type NotificationService struct {
	dispatcher events.Dispatcher
	mailer     Mailer
	messages   *CitizenMessageService
	logger     *zap.Logger
	cfg        config.NotificationConfig
	metrics    *observability.Metrics
	now        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: deps.Dispatcher,
		mailer:     deps.Mailer,
		messages:   deps.Messages,
		logger:     logger,
		cfg:        deps.Config,
		metrics:    deps.Metrics,
		now:        time.Now,
	}
}

// RegisterHandlers subscribes the delivery channels to every notice type.
// Email is subscribed only when a mailer is configured.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, t := range []events.EventType{
		events.EventComplaintStatusChanged,
		events.EventComplaintEscalated,
		events.EventSLABreached,
		events.EventFollowUp,
	} {
		if n.mailer != nil {
			n.dispatcher.Subscribe(t, n.deliverEmail)
		}
		n.dispatcher.Subscribe(t, n.deliverWebhook)
	}
}

func (n *NotificationService) SendStatusChange(ctx context.Context, c *domain.Complaint, old domain.ComplaintStatus) error {
	msg, err := n.messages.StatusChange(ctx, c, old)
	n.logDraftFailure(c, events.EventComplaintStatusChanged, err)
	return n.publish(ctx, c, events.EventComplaintStatusChanged, msg, events.StatusChangedPayload{
		OldStatus:      old,
		NewStatus:      c.Status,
		Department:     c.Department,
		DepartmentName: c.DepartmentName,
		SLADeadline:    c.SLADeadline,
		Message:        msg.Message,
	})
}

func (n *NotificationService) SendEscalation(ctx context.Context, c *domain.Complaint, esc domain.Escalation) error {
	msg, err := n.messages.Escalation(ctx, c, esc)
	n.logDraftFailure(c, events.EventComplaintEscalated, err)
	return n.publish(ctx, c, events.EventComplaintEscalated, msg, events.EscalatedPayload{
		Level:        esc.Level,
		EscalatedTo:  esc.EscalatedTo,
		Reason:       esc.Reason,
		HoursOverdue: esc.HoursOverdue,
	})
}

func (n *NotificationService) SendSLABreach(ctx context.Context, c *domain.Complaint, hoursOverdue float64) error {
	payload := events.SLABreachedPayload{HoursOverdue: hoursOverdue, DepartmentName: c.DepartmentName}
	if c.SLADeadline != nil {
		payload.Deadline = *c.SLADeadline
	}
	msg := CitizenMessage{
		Subject: fmt.Sprintf("Complaint #%s is past its deadline", shortID(c.ID)),
		Message: fmt.Sprintf("%s has not resolved your complaint within its deadline. It is now %.0f hours overdue and is being tracked for escalation.",
			departmentLabel(c), hoursOverdue),
	}
	return n.publish(ctx, c, events.EventSLABreached, msg, payload)
}

func (n *NotificationService) SendFollowUp(ctx context.Context, c *domain.Complaint, action FollowUpAction) error {
	msg := CitizenMessage{Subject: action.Subject, Message: action.CitizenMessage}
	return n.publish(ctx, c, events.EventFollowUp, msg, events.FollowUpPayload{
		Action:  action.Kind,
		Subject: action.Subject,
		Body:    action.CitizenMessage,
		Count:   c.FollowUpCount + 1,
	})
}

func (n *NotificationService) logDraftFailure(c *domain.Complaint, eventType events.EventType, err error) {
	if err == nil {
		return
	}
	n.logger.Warn("citizen message drafting failed, using template",
		zap.String("complaint_id", c.ID),
		zap.String("event_type", string(eventType)),
		zap.Error(err))
}

func (n *NotificationService) publish(ctx context.Context, c *domain.Complaint, eventType events.EventType, msg CitizenMessage, payload any) error {
	if n.dispatcher == nil {
		return nil
	}
	err := n.dispatcher.Publish(ctx, events.Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		ComplaintID: c.ID,
		Recipient:   c.Contact,
		Subject:     msg.Subject,
		Message:     msg.Message,
		Timestamp:   n.now().UTC(),
		Payload:     payload,
	})
	n.metrics.RecordNotification(string(eventType), err)
	if err != nil {
		return fmt.Errorf("notify %s: %w", eventType, err)
	}
	return nil
}

func (n *NotificationService) deliverEmail(ctx context.Context, event events.Event) error {
	if event.Recipient.Email == "" || strings.TrimSpace(event.Message) == "" {
		return nil
	}
	if timeout := n.cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	err := n.mailer.Send(ctx, mailer.Message{
		To:      event.Recipient.Email,
		Subject: event.Subject,
		Body:    event.Message,
	})
	if err != nil {
		return fmt.Errorf("email %s: %w", event.Type, err)
	}
	n.logger.Debug("email delivered",
		zap.String("complaint_id", event.ComplaintID),
		zap.String("event_type", string(event.Type)))
	return nil
}

func (n *NotificationService) deliverWebhook(_ context.Context, event events.Event) error {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return nil
	}
	agent := fiber.Post(n.cfg.WebhookURL).JSON(event)
	if timeout := n.cfg.Timeout(); timeout > 0 {
		agent = agent.Timeout(timeout)
	}
	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", event.Type, errs[0])
	}
	if code >= fiber.StatusBadRequest {
		return fmt.Errorf("webhook %s: status %d", event.Type, code)
	}
	n.logger.Debug("webhook delivered",
		zap.String("complaint_id", event.ComplaintID),
		zap.String("event_type", string(event.Type)),
		zap.Int("status", code))
	return nil
}

func statusMessage(c *domain.Complaint) string {
	dept := departmentLabel(c)
	switch c.Status {
	case domain.ComplaintStatusOpen:
		if c.SLADeadline != nil {
			return fmt.Sprintf("Your complaint has been registered with %s. Expected resolution by %s.",
				dept, c.SLADeadline.Format(time.RFC1123))
		}
		return fmt.Sprintf("Your complaint has been registered with %s.", dept)
	case domain.ComplaintStatusInProgress:
		return fmt.Sprintf("%s has started working on your complaint.", dept)
	case domain.ComplaintStatusEscalated:
		return "Your complaint has been escalated to a higher authority."
	case domain.ComplaintStatusResolved:
		return "Your complaint has been marked as resolved."
	case domain.ComplaintStatusClosed:
		return "Your complaint has been closed."
	}
	return "Your complaint status has changed."
}
