// Package ratelimit enforces request and message rate limits using a
// Redis-backed store when available, falling back to local memory.
package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/peercall/broker/internal/v1/logging"
	"github.com/peercall/broker/internal/v1/metrics"
)

// Limit definitions for the REST surface.
var (
	// RESTRate applies per client IP across the /api surface.
	RESTRate = limiter.Rate{Period: 15 * time.Minute, Limit: 100}

	// WebhookRate applies per client IP to the webhook sink, which tends to
	// see bursty retries from upstream providers.
	WebhookRate = limiter.Rate{Period: time.Minute, Limit: 50}
)

// RateLimiter holds the limiter instances backing the HTTP middlewares.
type RateLimiter struct {
	rest    *limiter.Limiter
	webhook *limiter.Limiter
	store   limiter.Store
}

// NewRateLimiter builds the limiter set. A nil redisClient selects the
// in-memory store, which is per-process and therefore only suitable for
// single-instance deployments and tests.
func NewRateLimiter(redisClient *redis.Client) (*RateLimiter, error) {
	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:broker:",
		})
		if err != nil {
			return nil, err
		}
		store = s
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "Rate limiter using memory store (Redis disabled)")
	}

	return &RateLimiter{
		rest:    limiter.New(store, RESTRate),
		webhook: limiter.New(store, WebhookRate),
		store:   store,
	}, nil
}

// RESTMiddleware limits the general REST API per client IP.
func (rl *RateLimiter) RESTMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.rest, "rest")
}

// WebhookMiddleware limits the webhook sink per client IP.
func (rl *RateLimiter) WebhookMiddleware() gin.HandlerFunc {
	return rl.middleware(rl.webhook, "webhook")
}

func (rl *RateLimiter) middleware(instance *limiter.Limiter, surface string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		lctx, err := instance.Get(ctx, c.ClientIP())
		if err != nil {
			// Fail open: a degraded limiter store should not take the API down.
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues(surface).Inc()
			retryAfter := lctx.Reset - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests, please try again later.",
			})
			return
		}

		c.Next()
	}
}
