package server

import (
	"crypto/subtle"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/songgift/internal/observability/context"
	"go.uber.org/zap"
)

const contextOrderIDKey = "order_id"

// AdminRequired authenticates operator calls with the static admin bearer token.
// An unset token disables the admin API entirely.
func (s *Server) AdminRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.AdminAPIToken))
	return func(c *gin.Context) {
		if len(expected) == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(strings.TrimSpace(c.GetHeader("Authorization")))
		if len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "admin")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// tagOrder attaches the path order id to the request context and access log.
func tagOrder(c *gin.Context) string {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		return id
	}
	c.Set(contextOrderIDKey, id)
	c.Request = c.Request.WithContext(obscontext.WithOrderID(c.Request.Context(), id))
	return id
}

// IntakeRateLimit throttles order submissions per client address. Limiter
// failures let the request through.
func (s *Server) IntakeRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		res, err := s.limiter.AllowClient(c.Request.Context(), c.ClientIP())
		if err != nil {
			s.log.Warn("rate limit check failed", zap.String("backend", s.limiter.Backend()), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}
