package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(fn func(c *gin.Context)) (*httptest.ResponseRecorder, Body) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	fn(c)
	c.Writer.WriteHeaderNow()

	var body Body
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &body)
	}
	return w, body
}

func TestEnvelope(t *testing.T) {
	w, body := record(func(c *gin.Context) { OK(c, gin.H{"id": "x"}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)
	assert.Empty(t, body.Code)

	w, body = record(func(c *gin.Context) { Conflict(c, CodeAlreadyRegistered, "already registered") })
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, body.Success)
	assert.Equal(t, CodeAlreadyRegistered, body.Code)
	assert.Equal(t, "already registered", body.Error)

	w, body = record(func(c *gin.Context) { UnprocessableEntity(c, CodeInvalidPromo, "expired") })
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, CodeInvalidPromo, body.Code)

	w, body = record(func(c *gin.Context) { NotFound(c, "event not found") })
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, CodeNotFound, body.Code)

	w, _ = record(NoContent)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Zero(t, w.Body.Len())
}
