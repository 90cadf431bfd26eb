package events

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/inventory"
	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

// CreateEventRequest is the body for POST /events.
type CreateEventRequest struct {
	Title          string     `json:"title" binding:"required"`
	Description    string     `json:"description"`
	Location       string     `json:"location"`
	Capacity       int        `json:"capacity"`
	PriceCents     int        `json:"price_cents"`
	Currency       string     `json:"currency"`
	StartsAt       time.Time  `json:"starts_at" binding:"required"`
	EndsAt         time.Time  `json:"ends_at" binding:"required"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
}

// CreateTicketTypeRequest is the body for POST /events/:id/ticket-types.
type CreateTicketTypeRequest struct {
	Name            string     `json:"name" binding:"required"`
	Description     string     `json:"description"`
	PriceCents      int        `json:"price_cents"`
	EarlyBirdCents  *int       `json:"early_bird_cents,omitempty"`
	EarlyBirdEndsAt *time.Time `json:"early_bird_ends_at,omitempty"`
	Quantity        int        `json:"quantity" binding:"required,min=1"`
	MinPerOrder     int        `json:"min_per_order"`
	MaxPerOrder     int        `json:"max_per_order"`
	SortOrder       int        `json:"sort_order"`
}

// TicketTypeStats is the per-type slice of the event stats response.
type TicketTypeStats struct {
	TicketTypeID uuid.UUID `json:"ticket_type_id"`
	Name         string    `json:"name"`
	Quantity     int       `json:"quantity"`
	Sold         int       `json:"sold"`
	Remaining    int       `json:"remaining"`
	FillRate     float64   `json:"fill_rate"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	repo   *Repository
	ledger *inventory.Ledger
	logger *zap.Logger
}

// NewHandler creates an events handler.
func NewHandler(repo *Repository, ledger *inventory.Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, ledger: ledger, logger: logger}
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}
	if !req.EndsAt.After(req.StartsAt) {
		response.BadRequest(c, response.CodeValidation, "ends_at must be after starts_at")
		return
	}
	if req.Capacity < 0 {
		response.BadRequest(c, response.CodeValidation, "capacity cannot be negative")
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	e := &models.Event{
		Title:          req.Title,
		Description:    req.Description,
		Location:       req.Location,
		Capacity:       req.Capacity,
		PriceCents:     req.PriceCents,
		Currency:       currency,
		StartsAt:       req.StartsAt,
		EndsAt:         req.EndsAt,
		Status:         models.EventStatusDraft,
		CreatedBy:      userID,
		OrganizationID: req.OrganizationID,
	}
	if err := h.repo.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// List handles GET /events. Optional ?status= filter.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}
	e, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "event not found")
			return
		}
		response.Internal(c, "failed to load event")
		return
	}
	response.OK(c, e)
}

// Publish handles POST /events/:id/publish. Organizer access enforced by
// middleware; the resolved event is on the context.
func (h *Handler) Publish(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	if e.Status != models.EventStatusDraft {
		response.Conflict(c, response.CodeValidation, "only draft events can be published")
		return
	}
	if err := h.repo.SetStatus(c.Request.Context(), e.ID, models.EventStatusPublished); err != nil {
		response.Internal(c, "failed to publish event")
		return
	}
	e.Status = models.EventStatusPublished
	response.OK(c, e)
}

// CreateTicketType handles POST /events/:id/ticket-types.
func (h *Handler) CreateTicketType(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	var req CreateTicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}
	minPer := req.MinPerOrder
	if minPer < 1 {
		minPer = 1
	}
	maxPer := req.MaxPerOrder
	if maxPer < 1 {
		maxPer = 10
	}
	if maxPer < minPer {
		response.BadRequest(c, response.CodeValidation, "max_per_order cannot be below min_per_order")
		return
	}
	if req.EarlyBirdCents != nil && req.EarlyBirdEndsAt == nil {
		response.BadRequest(c, response.CodeValidation, "early_bird_ends_at required with early_bird_cents")
		return
	}
	t := &models.TicketType{
		EventID:         e.ID,
		Name:            req.Name,
		Description:     req.Description,
		PriceCents:      req.PriceCents,
		EarlyBirdCents:  req.EarlyBirdCents,
		EarlyBirdEndsAt: req.EarlyBirdEndsAt,
		Quantity:        req.Quantity,
		MinPerOrder:     minPer,
		MaxPerOrder:     maxPer,
		Status:          models.TicketTypeStatusActive,
		SortOrder:       req.SortOrder,
	}
	if err := h.repo.CreateTicketType(c.Request.Context(), t); err != nil {
		h.logger.Error("create ticket type failed", zap.Error(err), zap.String("event_id", e.ID.String()))
		response.Internal(c, "failed to create ticket type")
		return
	}
	response.Created(c, t)
}

// ListTicketTypes handles GET /events/:id/ticket-types.
func (h *Handler) ListTicketTypes(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}
	list, err := h.repo.ListTicketTypes(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to list ticket types")
		return
	}
	response.OK(c, list)
}

// Stats handles GET /events/:id/stats: sold and remaining units per ticket
// type with fill rates, plus registration and check-in totals.
func (h *Handler) Stats(c *gin.Context) {
	e := c.MustGet(ContextEvent).(*models.Event)
	ctx := c.Request.Context()

	types, err := h.repo.ListTicketTypes(ctx, e.ID)
	if err != nil {
		response.Internal(c, "failed to load ticket types")
		return
	}

	perType := make([]TicketTypeStats, 0, len(types))
	totalSold, totalCapacity := 0, 0
	for _, t := range types {
		sold, err := h.ledger.SoldCount(ctx, t.ID)
		if err != nil {
			response.Internal(c, "failed to compute sold counts")
			return
		}
		perType = append(perType, TicketTypeStats{
			TicketTypeID: t.ID,
			Name:         t.Name,
			Quantity:     t.Quantity,
			Sold:         sold,
			Remaining:    t.Quantity - sold,
			FillRate:     fillRate(sold, t.Quantity),
		})
		totalSold += sold
		totalCapacity += t.Quantity
	}

	if len(types) == 0 {
		legacySold, err := h.ledger.LegacySoldCount(ctx, e.ID)
		if err != nil {
			response.Internal(c, "failed to compute sold counts")
			return
		}
		totalSold = legacySold
		totalCapacity = e.Capacity
	}

	registrations, checkedIn, err := h.repo.CountRegistrations(ctx, e.ID)
	if err != nil {
		response.Internal(c, "failed to count registrations")
		return
	}

	response.OK(c, gin.H{
		"event_id":      e.ID,
		"ticket_types":  perType,
		"sold":          totalSold,
		"capacity":      totalCapacity,
		"fill_rate":     fillRate(totalSold, totalCapacity),
		"registrations": registrations,
		"checked_in":    checkedIn,
	})
}

func fillRate(sold, capacity int) float64 {
	if capacity <= 0 {
		return 0
	}
	return float64(sold) / float64(capacity) * 100
}
