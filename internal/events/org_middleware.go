package events

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/internal/organizations"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

// ContextEvent is the context key for the resolved event when organizer
// access is enforced.
const ContextEvent = "event"

// RequireOrganizerAccess validates that the caller may manage the event:
// platform admins, the event creator, and members of the event's organization
// qualify. Call after JWT.
func RequireOrganizerAccess(eventRepo *Repository, orgRepo *organizations.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.BadRequest(c, response.CodeValidation, "invalid event id")
			c.Abort()
			return
		}
		e, err := eventRepo.GetByID(c.Request.Context(), eventID)
		if err != nil || e == nil {
			response.NotFound(c, "event not found")
			c.Abort()
			return
		}
		userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
		role, _ := c.MustGet(middleware.ContextUserRole).(string)

		authorized := role == string(models.RoleAdmin) || e.CreatedBy == userID
		if !authorized && e.OrganizationID != nil {
			authorized, _ = orgRepo.UserHasOrgAccess(c.Request.Context(), *e.OrganizationID, userID)
		}
		if !authorized {
			response.Forbidden(c, "not authorized to manage this event")
			c.Abort()
			return
		}
		c.Set(ContextEvent, e)
		c.Next()
	}
}
