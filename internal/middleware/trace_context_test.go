package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/moveatlas/moveatlas-backend/internal/pkg/ctxutil"
)

func TestAttachTraceContextGeneratesIDs(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	var td *ctxutil.TraceData
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/ping", func(c *gin.Context) {
		td = ctxutil.GetTraceData(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if td == nil || td.TraceID == "" || td.RequestID == "" {
		t.Fatalf("trace data should be populated, got %+v", td)
	}
	if got := rec.Header().Get("X-Trace-Id"); got != td.TraceID {
		t.Fatalf("X-Trace-Id header: want=%q got=%q", td.TraceID, got)
	}
	if got := rec.Header().Get("X-Request-Id"); got != td.RequestID {
		t.Fatalf("X-Request-Id header: want=%q got=%q", td.RequestID, got)
	}
}

func TestAttachTraceContextHonorsInboundIDs(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-Id", "trace-from-upstream")
	req.Header.Set("X-Request-Id", "req-from-upstream")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Trace-Id"); got != "trace-from-upstream" {
		t.Fatalf("X-Trace-Id: want upstream value, got=%q", got)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "req-from-upstream" {
		t.Fatalf("X-Request-Id: want upstream value, got=%q", got)
	}
}
