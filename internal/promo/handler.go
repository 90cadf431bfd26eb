package promo

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

// CreatePromoCodeRequest is the body for POST /events/:id/promo-codes.
type CreatePromoCodeRequest struct {
	Code                  string      `json:"code" binding:"required"`
	Type                  string      `json:"type" binding:"required"`
	DiscountValue         int         `json:"discount_value" binding:"required"`
	MaxUses               *int        `json:"max_uses,omitempty"`
	MaxUsesPerUser        int         `json:"max_uses_per_user"`
	ValidFrom             *time.Time  `json:"valid_from,omitempty"`
	ValidUntil            *time.Time  `json:"valid_until,omitempty"`
	MinPurchaseCents      *int        `json:"min_purchase_cents,omitempty"`
	ApplicableTicketTypes []uuid.UUID `json:"applicable_ticket_types,omitempty"`
}

// Handler handles promo code HTTP endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a promo code handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /events/:id/promo-codes. Organizer access is enforced
// by middleware before this runs.
func (h *Handler) Create(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}

	var req CreatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid request: "+err.Error())
		return
	}

	switch req.Type {
	case models.PromoTypePercentage:
		if req.DiscountValue < 1 || req.DiscountValue > 100 {
			response.BadRequest(c, response.CodeValidation, "percentage discount must be between 1 and 100")
			return
		}
	case models.PromoTypeFixedAmount, models.PromoTypeEarlyBird:
		if req.DiscountValue < 1 {
			response.BadRequest(c, response.CodeValidation, "discount value must be positive")
			return
		}
	default:
		response.BadRequest(c, response.CodeValidation, "type must be percentage, fixed_amount or early_bird")
		return
	}

	maxUsesPerUser := req.MaxUsesPerUser
	if maxUsesPerUser <= 0 {
		maxUsesPerUser = 1
	}
	pc := &models.PromoCode{
		EventID:               &eventID,
		Code:                  req.Code,
		Type:                  req.Type,
		DiscountValue:         req.DiscountValue,
		MaxUses:               req.MaxUses,
		MaxUsesPerUser:        maxUsesPerUser,
		ValidFrom:             req.ValidFrom,
		ValidUntil:            req.ValidUntil,
		MinPurchaseCents:      req.MinPurchaseCents,
		ApplicableTicketTypes: req.ApplicableTicketTypes,
		IsActive:              true,
	}
	if pc.ApplicableTicketTypes == nil {
		pc.ApplicableTicketTypes = []uuid.UUID{}
	}
	if err := h.repo.Create(c.Request.Context(), pc); err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			response.Conflict(c, response.CodeDuplicateCode, "a promo code with this code already exists")
			return
		}
		h.logger.Error("create promo code failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Internal(c, "failed to create promo code")
		return
	}
	response.Created(c, pc)
}

// ListByEvent handles GET /events/:id/promo-codes.
func (h *Handler) ListByEvent(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, response.CodeValidation, "invalid event id")
		return
	}
	list, err := h.repo.ListByEvent(c.Request.Context(), eventID)
	if err != nil {
		response.Internal(c, "failed to list promo codes")
		return
	}
	response.OK(c, list)
}
