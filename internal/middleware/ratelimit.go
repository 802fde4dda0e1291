package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window request limiter backed by Redis
type RateLimiter struct {
	Redis  *redis.Client
	Prefix string
	Limit  int // requests per window
	Window time.Duration
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window}
}

// MiddlewareByKey limits requests per key. keyFunc usually derives the key
// from the authenticated user id. With no Redis client the limiter is a
// no-op (single-process dev mode).
func (r *RateLimiter) MiddlewareByKey(keyFunc func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if r.Redis == nil {
			c.Next()
			return
		}

		ctx := context.Background()
		redisKey := fmt.Sprintf("%s:%s", r.Prefix, keyFunc(c))

		count, err := r.Redis.Incr(ctx, redisKey).Result()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limiter error"})
			return
		}
		if count == 1 {
			r.Redis.Expire(ctx, redisKey, r.Window)
		}
		if count > int64(r.Limit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Next()
	}
}
