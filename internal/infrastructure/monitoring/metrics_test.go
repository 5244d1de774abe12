package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLayout(10, 20)
		m.RecordBroadcastTarget("claude", "success")
		m.RecordPersist("state", errors.New("disk full"))
		m.IncWSConnections()
	})
}

func TestIndependentRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordBroadcastTarget("gemini", "success")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.BroadcastTargets.WithLabelValues("gemini", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.BroadcastTargets.WithLabelValues("gemini", "success")))
}

func TestRecordPersist(t *testing.T) {
	m := NewMetrics()
	m.RecordPersist("state", nil)
	m.RecordPersist("state", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistWrites.WithLabelValues("state", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistWrites.WithLabelValues("state", "error")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/api/panels/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/panels/claude", nil))
	require.Equal(t, http.StatusOK, w.Code)

	m.RecordLayout(12, 100)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `tabwall_http_requests_total{method="GET",path="/api/panels/:id",status="200"} 1`), body)
	assert.Contains(t, body, "tabwall_scroll_offset_pixels 12")
}
