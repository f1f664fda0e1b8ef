package server

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/marketpay/internal/authorization"
	obscontext "github.com/smallbiznis/marketpay/internal/observability/context"
	"github.com/smallbiznis/marketpay/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"

	contextActorKey = "actor"
)

// ActorRequired resolves the caller from the actor headers set by the
// upstream gateway.
func ActorRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawID := strings.TrimSpace(c.GetHeader(HeaderActorID))
		id, err := snowflake.ParseString(rawID)
		if rawID == "" || err != nil || id <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		actor := authorization.Actor{
			ID:   id,
			Role: strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderActorRole))),
		}
		c.Set(contextActorKey, actor)
		ctx := obscontext.WithActor(c.Request.Context(), actor.NormalizedRole(), id.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func actorFromContext(c *gin.Context) authorization.Actor {
	if v, ok := c.Get(contextActorKey); ok {
		if actor, ok := v.(authorization.Actor); ok {
			return actor
		}
	}
	return authorization.Actor{}
}

// WebhookRateLimit throttles notification bursts per client address.
func (s *Server) WebhookRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		res, err := s.limiter.AllowWebhook(ctx, c.ClientIP())
		if err != nil {
			// Fail open.
			logger.FromContext(ctx).Warn("webhook rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			if res.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(res.RetryAfter.Seconds()+0.5)))
			}
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
