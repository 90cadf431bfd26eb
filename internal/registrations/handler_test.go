package registrations

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venueworks/ticketing-backend/internal/middleware"
	"github.com/venueworks/ticketing-backend/internal/models"
	"github.com/venueworks/ticketing-backend/pkg/response"
)

func registerRouter(svc *Service, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(svc, nil)
	r.POST("/events/:id/register", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
	}, h.Register)
	return r
}

func TestRegisterResponseCarriesOrderSummary(t *testing.T) {
	event := publishedEvent()
	ga := ticketType(event, "General Admission", 5000, 100)
	vip := ticketType(event, "VIP", 10000, 20)

	store := newFakeStore()
	store.types[ga.ID] = &ga
	store.types[vip.ID] = &vip
	store.promos["SUMMER10"] = &models.PromoCode{
		ID:             uuid.New(),
		EventID:        &event.ID,
		Code:           "SUMMER10",
		Type:           models.PromoTypePercentage,
		DiscountValue:  10,
		MaxUsesPerUser: 1,
		IsActive:       true,
	}
	svc := newTestService(store, &fakeEvents{event: event, types: []models.TicketType{ga, vip}}, &fakeLedger{}, nil, nil)

	userID := uuid.New()
	router := registerRouter(svc, userID)

	body := fmt.Sprintf(`{"tickets":[{"ticket_type_id":%q,"quantity":2},{"ticket_type_id":%q,"quantity":1}],"promo_code":"SUMMER10"}`,
		ga.ID, vip.ID)
	req := httptest.NewRequest(http.MethodPost, "/events/"+event.ID.String()+"/register",
		bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Registration models.Registration `json:"registration"`
			Summary      struct {
				SubtotalCents int `json:"subtotal_cents"`
				DiscountCents int `json:"discount_cents"`
				TotalCents    int `json:"total_cents"`
				TicketCount   int `json:"ticket_count"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)

	assert.Equal(t, userID, resp.Data.Registration.UserID)
	assert.Equal(t, 20000, resp.Data.Summary.SubtotalCents)
	assert.Equal(t, 2000, resp.Data.Summary.DiscountCents)
	assert.Equal(t, 18000, resp.Data.Summary.TotalCents)
	assert.Equal(t, 3, resp.Data.Summary.TicketCount)
}

func TestRegisterLegacySummaryUsesFlatQuantity(t *testing.T) {
	event := publishedEvent()
	store := newFakeStore()
	svc := newTestService(store, &fakeEvents{event: event}, &fakeLedger{sold: 40}, nil, nil)

	router := registerRouter(svc, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/events/"+event.ID.String()+"/register",
		bytes.NewBufferString(`{"quantity":2}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Summary struct {
				TotalCents  int `json:"total_cents"`
				TicketCount int `json:"ticket_count"`
			} `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3000, resp.Data.Summary.TotalCents)
	assert.Equal(t, 2, resp.Data.Summary.TicketCount)
}

func TestRegisterConflictCarriesReasonCode(t *testing.T) {
	event := publishedEvent()
	event.Status = models.EventStatusDraft
	svc := newTestService(newFakeStore(), &fakeEvents{event: event}, &fakeLedger{}, nil, nil)

	router := registerRouter(svc, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/events/"+event.ID.String()+"/register",
		bytes.NewBufferString(`{"quantity":1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
	var resp response.Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, response.CodeEventNotPublished, resp.Code)
}
