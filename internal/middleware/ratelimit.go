// Package middleware holds the request limiters shared by the REST routes
// and the socket event loop.
package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/PaulBabatuyi/support-chat/internal/apperr"
	"github.com/PaulBabatuyi/support-chat/internal/response"
)

// Limiter decides whether one more event for key is permitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LimiterStore maintains per-key rate limiters and performs periodic cleanup.
type LimiterStore struct {
	mu              sync.Mutex
	limit           rate.Limit
	burst           int
	clients         map[string]*clientEntry
	cleanupInterval time.Duration
	stopCh          chan struct{}
	stopOnce        sync.Once
}

type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a new store for per-key rate limiters.
// limitPerMinute controls allowed events per minute; burst is the burst capacity.
func NewLimiterStore(limitPerMinute int, burst int, cleanupInterval time.Duration) *LimiterStore {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	s := &LimiterStore{
		limit:           rate.Every(time.Minute / time.Duration(limitPerMinute)),
		burst:           burst,
		clients:         map[string]*clientEntry{},
		cleanupInterval: cleanupInterval,
		stopCh:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *LimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			s.mu.Lock()
			for k, v := range s.clients {
				if v.lastSeen.Before(cutoff) {
					delete(s.clients, k)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *LimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// getLimiter returns or creates a limiter for key
func (s *LimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.clients[key]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}
	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// Allow checks whether an event for the given key is permitted. It never fails.
func (s *LimiterStore) Allow(_ context.Context, key string) (bool, error) {
	return s.getLimiter(key).Allow(), nil
}

// RedisLimiter is a fixed one-minute window counter in Redis, shared by every
// instance of the service.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	prefix string
}

// NewRedisLimiter allows limitPerMinute events per key and minute.
func NewRedisLimiter(client *redis.Client, limitPerMinute int) *RedisLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 60
	}
	return &RedisLimiter{client: client, limit: int64(limitPerMinute), prefix: "ratelimit:"}
}

// Allow increments the counter of the current window.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	window := time.Now().Unix() / 60
	k := fmt.Sprintf("%s%s:%d", r.prefix, key, window)

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= r.limit, nil
}

// RateLimit returns echo middleware that rejects requests over the limit with
// 429 RATE_LIMITED. keyFn picks the key, usually the caller's user id. A
// limiter backend failure is logged and the request is let through.
func RateLimit(l Limiter, keyFn func(echo.Context) string, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := keyFn(c)
			if key == "" {
				key = "ip:" + c.RealIP()
			}
			ok, err := l.Allow(c.Request().Context(), c.Path()+"|"+key)
			if err != nil {
				log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}
			if !ok {
				return response.Error(c, apperr.RateLimited())
			}
			return next(c)
		}
	}
}
