package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"scenecast/internal/config"
	"scenecast/internal/logging"
)

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter gates request admission per API key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Ping(ctx context.Context) error
	Close() error
}

// New builds a Redis-backed fixed-window limiter, or a noop one when rate
// limiting is disabled in config.
func New(cfg *config.Config, logger *slog.Logger) Limiter {
	if !cfg.RateLimit.Enabled {
		return nopLimiter{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &redisLimiter{
		client: client,
		limit:  cfg.RateLimit.RequestsPerMinute,
		window: time.Minute,
		logger: logging.WithComponent(logger, "ratelimit"),
	}
}

type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// Allow counts the request against the caller's current window. Redis being
// unreachable fails open: admission control should not take the service down
// with it.
func (l *redisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	resetAt := time.Unix((windowStart+1)*int64(l.window.Seconds()), 0)
	counter := fmt.Sprintf("rate_limit:%s:%d", key, windowStart)

	current, err := l.client.Get(ctx, counter).Int()
	if err != nil && err != redis.Nil {
		l.logger.Warn("rate limit check failed, allowing request", logging.Error(err))
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: resetAt}, nil
	}

	if current >= l.limit {
		return Decision{Allowed: false, Limit: l.limit, Remaining: 0, ResetAt: resetAt}, nil
	}

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, counter)
	pipe.Expire(ctx, counter, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit increment failed, allowing request", logging.Error(err))
		return Decision{Allowed: true, Limit: l.limit, Remaining: l.limit - current - 1, ResetAt: resetAt}, nil
	}

	remaining := l.limit - int(incr.Val())
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: l.limit, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l *redisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *redisLimiter) Close() error {
	return l.client.Close()
}

type nopLimiter struct{}

func (nopLimiter) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}
func (nopLimiter) Ping(context.Context) error { return nil }
func (nopLimiter) Close() error               { return nil }
