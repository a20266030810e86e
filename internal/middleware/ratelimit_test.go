package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

func doGet(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3)
	router := newTestRouter(rl.Middleware())

	for i := 0; i < 3; i++ {
		w := doGet(router, "10.0.0.1:1234")
		assert.Equal(t, http.StatusOK, w.Code, "request %d within burst should succeed", i+1)
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	router := newTestRouter(rl.Middleware())

	doGet(router, "10.0.0.2:1234")
	doGet(router, "10.0.0.2:1234")
	w := doGet(router, "10.0.0.2:1234")

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimiter_TracksClientsIndependently(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	router := newTestRouter(rl.Middleware())

	w1 := doGet(router, "10.0.0.3:1234")
	w2 := doGet(router, "10.0.0.4:1234")

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code, "a different client IP should have its own bucket")
}

func TestRateLimiter_StrictMiddlewarePersistsAcrossRequests(t *testing.T) {
	rl := NewRateLimiter(1, 10)
	router := newTestRouter(rl.StrictMiddleware(2))

	w1 := doGet(router, "10.0.0.5:1234")
	w2 := doGet(router, "10.0.0.5:1234")
	w3 := doGet(router, "10.0.0.5:1234")

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, http.StatusTooManyRequests, w3.Code, "the bucket must be shared across requests, not rebuilt each call")
}

func TestUserRateLimiter_SkipsUnauthenticatedRequests(t *testing.T) {
	url := NewUserRateLimiter(1, 1)
	router := newTestRouter(url.Middleware())

	w1 := doGet(router, "10.0.0.6:1234")
	w2 := doGet(router, "10.0.0.6:1234")

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusOK, w2.Code, "no userID in context means IP-based limiting still applies, not this middleware")
}

func TestUserRateLimiter_LimitsPerUser(t *testing.T) {
	url := NewUserRateLimiter(1, 1)
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", "user-1")
		c.Next()
	})
	router.Use(url.Middleware())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w1 := doGet(router, "10.0.0.7:1234")
	w2 := doGet(router, "10.0.0.7:1234")

	assert.Equal(t, http.StatusOK, w1.Code)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}
