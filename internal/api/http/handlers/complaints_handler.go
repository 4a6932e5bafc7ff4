package handlers

import (
	"math"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-kit/grievance-service/internal/api/dto"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/repository"
	"github.com/civic-kit/grievance-service/internal/service"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

const maxPageSize = 100

// ComplaintsHandler serves the public complaint endpoints.
type ComplaintsHandler struct {
	pipeline   *service.ComplaintPipeline
	complaints *service.ComplaintService
	now        func() time.Time
}

// NewComplaintsHandler constructs handler.
func NewComplaintsHandler(pipeline *service.ComplaintPipeline, complaints *service.ComplaintService) *ComplaintsHandler {
	return &ComplaintsHandler{pipeline: pipeline, complaints: complaints, now: time.Now}
}

// Submit POST /complaints.
func (h *ComplaintsHandler) Submit(c *fiber.Ctx) error {
	var req dto.CreateComplaintRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.pipeline.Run(c.UserContext(), service.ComplaintInput{
		Description: req.Description,
		Contact:     req.Contact,
		Location:    req.Location,
		Attachments: req.Attachments,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.SubmissionResponse{
		Complaint: complaintResponse(result.Complaint, h.now()),
		Stage:     string(result.Stage),
		Degraded:  result.Degraded(),
	}})
}

// List GET /complaints.
func (h *ComplaintsHandler) List(c *fiber.Ctx) error {
	filter := parseComplaintQuery(c, h.now())
	list, err := h.complaints.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	now := h.now()
	items := make([]dto.ComplaintResponse, 0, len(list))
	for i := range list {
		items = append(items, complaintResponse(&list[i], now))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /complaints/:id.
func (h *ComplaintsHandler) Get(c *fiber.Ctx) error {
	id, err := complaintID(c)
	if err != nil {
		return err
	}
	complaint, err := h.complaints.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": complaintResponse(complaint, h.now())})
}

// Escalations GET /complaints/:id/escalations.
func (h *ComplaintsHandler) Escalations(c *fiber.Ctx) error {
	id, err := complaintID(c)
	if err != nil {
		return err
	}
	list, err := h.complaints.ListEscalations(c.UserContext(), id)
	if err != nil {
		return err
	}
	items := make([]dto.EscalationResponse, 0, len(list))
	for _, esc := range list {
		items = append(items, dto.EscalationResponse{
			ID:           esc.ID,
			Level:        esc.Level,
			EscalatedTo:  esc.EscalatedTo,
			Reason:       esc.Reason,
			HoursOverdue: roundHours(esc.HoursOverdue),
			CreatedAt:    esc.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Upvote POST /complaints/:id/upvote.
func (h *ComplaintsHandler) Upvote(c *fiber.Ctx) error {
	id, err := complaintID(c)
	if err != nil {
		return err
	}
	complaint, err := h.complaints.Upvote(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": complaintResponse(complaint, h.now())})
}

func parseComplaintQuery(c *fiber.Ctx, now time.Time) repository.ComplaintFilter {
	filter := repository.ComplaintFilter{
		Statuses:    splitList[domain.ComplaintStatus](c.Query("status")),
		Departments: splitList[string](c.Query("department")),
		Urgencies:   splitList[domain.Urgency](c.Query("urgency")),
		CreatedFrom: parseTime(c.Query("created_from")),
		CreatedTo:   parseTime(c.Query("created_to")),
	}
	if c.QueryBool("overdue") {
		filter.DeadlineBefore = &now
		filter.SortByDeadline = true
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := min(parseInt(c.Query("page_size"), 20), maxPageSize)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func complaintResponse(c *domain.Complaint, now time.Time) dto.ComplaintResponse {
	return dto.ComplaintResponse{
		ID:                 c.ID,
		Description:        c.Description,
		Category:           c.Category,
		Urgency:            c.Urgency,
		Department:         c.Department,
		DepartmentName:     c.DepartmentName,
		Jurisdiction:       c.Jurisdiction,
		Location:           c.Location,
		Status:             c.Status,
		EscalationLevel:    c.EscalationLevel,
		SLAHours:           c.SLAHours,
		SLADeadline:        c.SLADeadline,
		TimeRemainingHours: roundHours(c.HoursRemaining(now)),
		SLABreached:        c.IsBreaching(now),
		Upvotes:            c.Upvotes,
		FollowUpCount:      c.FollowUpCount,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

func adminComplaintResponse(c *domain.Complaint, now time.Time) dto.AdminComplaintResponse {
	return dto.AdminComplaintResponse{
		ComplaintResponse: complaintResponse(c, now),
		Contact:           c.Contact,
		Attachments:       c.Attachments,
		LocationHint:      c.LocationHint,
		Sentiment:         c.Sentiment,
		Policy:            c.Policy,
		LastFollowUpAt:    c.LastFollowUpAt,
		BreachNotifiedAt:  c.BreachNotifiedAt,
		Metadata:          c.Metadata,
	}
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
