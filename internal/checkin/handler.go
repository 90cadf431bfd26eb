package checkin

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/credential"
	"github.com/venueworks/ticketing-backend/internal/events"
	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

// CheckInRequest is the optional body for POST /events/:id/checkin/:rid.
type CheckInRequest struct {
	Note  string `json:"note"`
	Force bool   `json:"force"`
}

// BulkRequest is the body for POST /events/:id/checkin/bulk.
type BulkRequest struct {
	RegistrationIDs []uuid.UUID `json:"registration_ids" binding:"required,min=1"`
	Note            string      `json:"note"`
}

// ScanRequest is the body for POST /events/:id/checkin/scan.
type ScanRequest struct {
	Token string `json:"token" binding:"required"`
}

// UndoRequest is the optional body for DELETE /events/:id/checkin/:rid.
type UndoRequest struct {
	Note string `json:"note"`
}

// Handler handles check-in HTTP endpoints. Organizer access is enforced by
// middleware; the resolved event is on the context.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a check-in handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

func actorFrom(c *gin.Context) Actor {
	return Actor{
		ID:   c.MustGet(middleware.ContextUserID).(uuid.UUID),
		Name: c.GetString(middleware.ContextUserName),
	}
}

// CheckIn handles POST /events/:id/checkin/:rid.
func (h *Handler) CheckIn(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	regID, err := uuid.Parse(c.Param("rid"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid registration id")
		return
	}
	var req CheckInRequest
	_ = c.ShouldBindJSON(&req)
	res, err := h.service.CheckIn(c.Request.Context(), e.ID, regID, actorFrom(c), req.Note, req.Force)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, res)
}

// Undo handles DELETE /events/:id/checkin/:rid.
func (h *Handler) Undo(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	regID, err := uuid.Parse(c.Param("rid"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid registration id")
		return
	}
	var req UndoRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.service.Undo(c.Request.Context(), e.ID, regID, actorFrom(c), req.Note); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// Bulk handles POST /events/:id/checkin/bulk.
func (h *Handler) Bulk(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	var req BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}
	summary := h.service.BulkCheckIn(c.Request.Context(), e.ID, req.RegistrationIDs, actorFrom(c), req.Note)
	response.OK(c, summary)
}

// Scan handles POST /events/:id/checkin/scan: verify a ticket credential and
// check in the registration it names.
func (h *Handler) Scan(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}
	res, err := h.service.Scan(c.Request.Context(), e.ID, req.Token, actorFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, res)
}

// Audit handles GET /events/:id/checkin/:rid/audit.
func (h *Handler) Audit(c *gin.Context) {
	e := c.MustGet(events.ContextEvent).(*models.Event)
	regID, err := uuid.Parse(c.Param("rid"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid registration id")
		return
	}
	entries, err := h.service.Audit(c.Request.Context(), e.ID, regID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if entries == nil {
		entries = []models.CheckinEntry{}
	}
	response.OK(c, entries)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, "registration not found")
	case errors.Is(err, ErrWrongEvent):
		response.Conflict(c, response.CodeWrongEvent, err.Error())
	case errors.Is(err, ErrNotCheckedIn):
		response.Conflict(c, response.CodeNotCheckedIn, err.Error())
	case errors.Is(err, credential.ErrInvalidCredential):
		response.UnprocessableEntity(c, response.CodeInvalidCredential, err.Error())
	default:
		h.logger.Error("check-in operation failed", zap.Error(err))
		response.Internal(c, "check-in operation failed")
	}
}
