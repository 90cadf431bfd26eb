package registrations

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/events"
	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/promo"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/register. Tickets drives
// events with ticket types; quantity is the fallback for events without them.
type RegisterRequest struct {
	Tickets []struct {
		TicketTypeID uuid.UUID `json:"ticket_type_id" binding:"required"`
		Quantity     int       `json:"quantity" binding:"required,min=1"`
	} `json:"tickets"`
	Quantity  int    `json:"quantity"`
	PromoCode string `json:"promo_code"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger}
}

// Register handles POST /events/:id/register.
func (h *Handler) Register(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}

	in := RegisterInput{
		UserID:    userID,
		EventID:   eventID,
		Quantity:  req.Quantity,
		PromoCode: req.PromoCode,
	}
	for _, t := range req.Tickets {
		in.Lines = append(in.Lines, Line{TicketTypeID: t.TicketTypeID, Quantity: t.Quantity})
	}

	reg, err := h.service.Register(c.Request.Context(), in)
	if err != nil {
		h.writeRegisterError(c, err)
		return
	}
	ticketCount := 0
	for _, p := range reg.Purchases {
		ticketCount += p.Quantity
	}
	if ticketCount == 0 {
		ticketCount = reg.LegacyQuantity()
	}
	response.Created(c, gin.H{
		"registration": reg,
		"summary": gin.H{
			"subtotal_cents": reg.TotalCents,
			"discount_cents": reg.TotalCents - reg.FinalCents,
			"total_cents":    reg.FinalCents,
			"ticket_count":   ticketCount,
		},
	})
}

func (h *Handler) writeRegisterError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		response.NotFound(c, "event not found")
	case errors.Is(err, ErrEventNotPublished):
		response.Conflict(c, response.CodeEventNotPublished, err.Error())
	case errors.Is(err, ErrEventEnded):
		response.Conflict(c, response.CodeEventEnded, err.Error())
	case errors.Is(err, ErrAlreadyRegistered):
		response.Conflict(c, response.CodeAlreadyRegistered, err.Error())
	case errors.Is(err, inventory.ErrInvalidQuantity):
		response.BadRequest(c, response.CodeInvalidQuantity, err.Error())
	case errors.Is(err, inventory.ErrInsufficientInventory):
		response.Conflict(c, response.CodeCapacityExceeded, err.Error())
	case errors.Is(err, promo.ErrInvalidPromo):
		response.UnprocessableEntity(c, response.CodeInvalidPromo, err.Error())
	case errors.Is(err, ErrCommitConflict):
		response.Conflict(c, response.CodeCommitFailed, err.Error())
	default:
		h.logger.Error("registration failed", zap.Error(err))
		response.Internal(c, "failed to complete registration")
	}
}

// Cancel handles DELETE /events/:id/register.
func (h *Handler) Cancel(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}
	if err := h.service.Cancel(c.Request.Context(), userID, eventID); err != nil {
		switch {
		case errors.Is(err, events.ErrNotFound):
			response.NotFound(c, "event not found")
		case errors.Is(err, ErrNotRegistered):
			response.NotFound(c, "not registered for this event")
		case errors.Is(err, ErrCancellationLocked):
			response.Conflict(c, response.CodeCancellationLocked, err.Error())
		case errors.Is(err, ErrCommitConflict):
			response.Conflict(c, response.CodeCommitFailed, err.Error())
		default:
			h.logger.Error("cancellation failed", zap.Error(err))
			response.Internal(c, "failed to cancel registration")
		}
		return
	}
	response.NoContent(c)
}

// ListMine handles GET /registrations.
func (h *Handler) ListMine(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	list, err := h.service.ListMine(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}

// Ticket handles GET /registrations/:id/ticket, returning the credential
// token and the numbered tickets it covers.
func (h *Handler) Ticket(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	regID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid registration id")
		return
	}
	reg, err := h.service.Ticket(c.Request.Context(), userID, regID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "registration not found")
			return
		}
		h.logger.Error("ticket lookup failed", zap.Error(err))
		response.Internal(c, "failed to load ticket")
		return
	}
	response.OK(c, gin.H{
		"registration_id": reg.ID,
		"event_id":        reg.EventID,
		"ticket_token":    reg.TicketToken,
		"purchases":       reg.Purchases,
	})
}
