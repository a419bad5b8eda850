package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/taskboard/frontend/go-services/pkg/metrics"
)

func serve(r *gin.Engine, method, path string) int {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w.Code
}

func TestRateLimitMiddleware_AllowsUnderLimit(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(10, 2))
	r.GET("/ok", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	require.Equal(t, http.StatusOK, serve(r, "GET", "/ok"))
	require.Equal(t, http.StatusOK, serve(r, "GET", "/ok"))

	require.Equal(t, 2.0, testutil.ToFloat64(metrics.RateLimitAllowed.WithLabelValues("memory"))-before)
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	before := testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory"))
	r := gin.New()
	r.Use(RateLimitMiddleware(2, 1))
	r.POST("/tasks/refresh", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	require.Equal(t, http.StatusAccepted, serve(r, "POST", "/tasks/refresh"))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "POST", "/tasks/refresh"))
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.RateLimitRejected.WithLabelValues("memory"))-before)

	// one token back after half a second
	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusAccepted, serve(r, "POST", "/tasks/refresh"))
}

func TestRateLimitMiddleware_KeysByUser(t *testing.T) {
	user := "u-1"
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(UserIDKey, user)
		c.Next()
	})
	r.Use(RateLimitMiddleware(0.5, 1))
	r.GET("/u", func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, "GET", "/u"))
	require.Equal(t, http.StatusTooManyRequests, serve(r, "GET", "/u"))

	// same IP, different user, separate bucket
	user = "u-2"
	require.Equal(t, http.StatusOK, serve(r, "GET", "/u"))
}

func TestRateLimitMiddleware_InstancesDoNotShareBuckets(t *testing.T) {
	r := gin.New()
	r.GET("/a", RateLimitMiddleware(0.5, 1), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", RateLimitMiddleware(0.5, 1), func(c *gin.Context) { c.Status(http.StatusOK) })

	require.Equal(t, http.StatusOK, serve(r, "GET", "/a"))
	require.Equal(t, http.StatusOK, serve(r, "GET", "/b"))
}
