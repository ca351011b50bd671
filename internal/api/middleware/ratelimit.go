package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/metrics"
)

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter implements sliding window rate limiting per client IP,
// backed by the same Redis connection the chat store uses.
type RateLimiter struct {
	client *redis.Client
	limits map[string]RateLimit
	logger zerolog.Logger
}

// NewRateLimiter creates a rate limiter covering the chat API.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger,
		limits: map[string]RateLimit{
			"POST /api/1/chat":    {10, time.Hour},
			"GET /api/1/chat/":    {120, time.Minute},
			"PUT /api/1/chat/":    {60, time.Minute},
			"DELETE /api/1/chat/": {30, time.Minute},
		},
	}
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// findLimit returns the limit for the request's endpoint, or nil.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	pattern := r.Method + " " + r.URL.Path
	for prefix, limit := range rl.limits {
		if pattern == prefix || strings.HasPrefix(pattern, prefix) {
			return &limit
		}
	}
	return nil
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		now := time.Now()
		key := fmt.Sprintf("ratelimit:ip:%s:%d", RealIP(r), now.Unix()/int64(limit.Window.Seconds()))

		pipe := rl.client.Pipeline()
		pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10))
		countCmd := pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(now.UnixMilli()),
			Member: strconv.FormatInt(now.UnixNano(), 10),
		})
		pipe.Expire(ctx, key, limit.Window*2)
		if _, err := pipe.Exec(ctx); err != nil {
			// Fail open: losing rate limiting beats refusing all traffic.
			rl.logger.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}

		count := countCmd.Val()
		remaining := int64(limit.Requests) - count - 1
		if remaining < 0 {
			remaining = 0
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count >= int64(limit.Requests) {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
