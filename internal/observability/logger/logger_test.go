package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	obscontext "github.com/smallbiznis/songgift/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	require.Error(t, err)
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithOrderID(ctx, "1001")
	ctx = obscontext.WithActor(ctx, "admin")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "1001", fields["order_id"])
	assert.Equal(t, "admin", fields["actor"])
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UPDATE", operationFromSQL(`UPDATE "orders" SET status = $1`))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestActorForPath(t *testing.T) {
	assert.Equal(t, "webhook", actorForPath("/api/webhooks/music"))
	assert.Equal(t, "public", actorForPath("/api/orders"))
	assert.Equal(t, "system", actorForPath("/health"))
}

func TestGinMiddlewareLogsActorAndOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{}))
	r.GET("/api/orders/:id", func(c *gin.Context) {
		c.Set("order_id", c.Param("id"))
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/orders/42", nil)
	req.Header.Set("X-Request-Id", "req-1")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "public", fields["actor"])
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "42", fields["order_id"])
	assert.Equal(t, "/api/orders/:id", fields["route"])
	assert.EqualValues(t, http.StatusNoContent, fields["status"])
}
