package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return zap.New(core), logs
}

func TestStartSpanInheritsTrace(t *testing.T) {
	tracer := New("forge", nil)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, childCtx := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, root.TraceID)
	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.NotEqual(t, root.SpanID, child.SpanID)
	assert.Equal(t, child.SpanID, GetSpanID(childCtx))
}

func TestCloseFlushesSpans(t *testing.T) {
	logger, logs := observed()
	tracer := New("forge", logger)

	span, _ := tracer.StartSpan(context.Background(), "ok")
	span.Finish()
	tracer.Submit(span)

	failed, _ := tracer.StartSpan(context.Background(), "failed")
	failed.SetError(errors.New("boom"))
	failed.Finish()
	tracer.Submit(failed)

	tracer.Close()
	tracer.Submit(span)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("span completed with error").Len())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger, logs := observed()
	tracer := New("forge", logger)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Header("X-Request-ID", "req_1")
		c.Next()
	})
	r.Use(HTTPMiddleware(tracer))
	var seen TraceID
	r.GET("/builds/:id", func(c *gin.Context) {
		seen = GetTraceID(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/builds/bld_1", nil))
	assert.Equal(t, TraceID("req_1"), seen)
	assert.Equal(t, "req_1", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))

	req := httptest.NewRequest(http.MethodGet, "/builds/bld_2", nil)
	req.Header.Set(HeaderTraceID, "upstream-trace")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, TraceID("upstream-trace"), seen)

	tracer.Close()
	entries := logs.FilterMessage("span completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "/builds/:id", entries[0].ContextMap()["operation"])
	assert.Equal(t, "204", entries[0].ContextMap()["http.status"])
}
