package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newBodyLimitedRouter(maxBytes int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(BodyLimit(maxBytes))
	engine.POST("/bulk-users/import", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	return engine
}

func TestBodyLimit_AllowsSmallPayload(t *testing.T) {
	engine := newBodyLimitedRouter(1024)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bulk-users/import", strings.NewReader(`{"users":[]}`))
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBodyLimit_RejectsOversizedPayload(t *testing.T) {
	engine := newBodyLimitedRouter(64)

	body := bytes.Repeat([]byte("x"), 128)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bulk-users/import", bytes.NewReader(body))
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "ERR_BAD_REQUEST")
}
