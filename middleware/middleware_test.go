package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quiet() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(&bytes.Buffer{})
	return log
}

func do(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimiterPerIP(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, quiet())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, do(r, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do(r, "10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do(r, "10.0.0.1"))
	assert.Equal(t, http.StatusOK, do(r, "10.0.0.2"), "other clients have their own bucket")
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(1, 1, quiet())
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	rl.limiter("a")
	clock = clock.Add(time.Minute)
	rl.limiter("b")
	require.Equal(t, 2, rl.size())

	rl.Cleanup(30 * time.Second)
	assert.Equal(t, 1, rl.size())
}

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetFormatter(&logrus.JSONFormatter{})

	r := gin.New()
	r.Use(Logger(log))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	do(r, "10.0.0.9")
	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"status":500`)
	assert.Contains(t, out, `"ip":"10.0.0.9"`)
}
