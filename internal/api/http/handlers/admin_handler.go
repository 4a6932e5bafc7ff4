package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/civic-kit/grievance-service/internal/api/dto"
	"github.com/civic-kit/grievance-service/internal/auth"
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/service"
	apperrors "github.com/civic-kit/grievance-service/pkg/util"
)

// MonitorTrigger starts a monitoring cycle on demand. ran is false when a
// cycle was already in progress.
type MonitorTrigger interface {
	RunNow(ctx context.Context) (report *service.CycleReport, ran bool, err error)
}

// AdminHandler serves operator-only endpoints.
type AdminHandler struct {
	complaints *service.ComplaintService
	monitor    MonitorTrigger
	now        func() time.Time
}

// NewAdminHandler constructs handler.
func NewAdminHandler(complaints *service.ComplaintService, monitor MonitorTrigger) *AdminHandler {
	return &AdminHandler{complaints: complaints, monitor: monitor, now: time.Now}
}

// GetComplaint GET /admin/complaints/:id.
func (h *AdminHandler) GetComplaint(c *fiber.Ctx) error {
	id, err := complaintID(c)
	if err != nil {
		return err
	}
	complaint, err := h.complaints.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": adminComplaintResponse(complaint, h.now())})
}

// UpdateStatus PATCH /admin/complaints/:id/status.
func (h *AdminHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := complaintID(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	note := strings.TrimSpace(req.Note)
	if principal, ok := auth.PrincipalFromContext(c); ok && note != "" {
		note = principal.Subject + ": " + note
	}

	status := domain.ComplaintStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	complaint, err := h.complaints.UpdateStatus(c.UserContext(), id, status, note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": adminComplaintResponse(complaint, h.now())})
}

// RunMonitoring POST /admin/monitoring/run.
func (h *AdminHandler) RunMonitoring(c *fiber.Ctx) error {
	if h.monitor == nil {
		return apperrors.NewDomainError("MONITORING_DISABLED", "monitoring is not configured", http.StatusServiceUnavailable, nil)
	}
	report, ran, err := h.monitor.RunNow(c.UserContext())
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ran {
		return apperrors.NewConflict("a monitoring cycle is already running", nil)
	}
	return c.JSON(fiber.Map{"data": report})
}
