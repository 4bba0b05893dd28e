package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGinMiddlewareCountsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m, err := newHTTPMetrics(reg, Config{ServiceName: "tollgate", Environment: "test"})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/usage", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/usage", nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("/usage", http.MethodGet, "200"))
	if got != 3 {
		t.Fatalf("expected 3 requests counted, got %v", got)
	}
	if inflight := testutil.ToFloat64(m.inflight); inflight != 0 {
		t.Fatalf("expected no inflight requests, got %v", inflight)
	}
}

func TestNewHTTPMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := newHTTPMetrics(reg, Config{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := newHTTPMetrics(reg, Config{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.requests != second.requests {
		t.Fatalf("expected collectors to be reused")
	}
}
