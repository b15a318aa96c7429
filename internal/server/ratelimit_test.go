package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(1))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := map[int]int{}
	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		statuses[w.Code]++
	}

	assert.Greater(t, statuses[http.StatusOK], 0)
	assert.Greater(t, statuses[http.StatusTooManyRequests], 0, "burst beyond the limit must be rejected")
}
