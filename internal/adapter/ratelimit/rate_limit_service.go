package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Service limits how often a key may perform an action inside a fixed window.
type Service interface {
	// Allow increments the counter for key and reports whether the call is
	// still within limit for the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Config controls the Redis-backed limiter.
type Config struct {
	Enabled  bool
	RedisURL string
}

type redisService struct {
	client *redis.Client
	logger *logrus.Logger
}

// New builds a rate limit service. When disabled it returns a noop that
// allows everything, so callers never branch on configuration.
func New(cfg Config, logger *logrus.Logger) (Service, error) {
	if !cfg.Enabled {
		logger.Info("rate limiting disabled")
		return &noopService{}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("rate limiting service initialized")
	return &redisService{client: client, logger: logger}, nil
}

func (s *redisService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	redisKey := "ratelimit:" + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("failed to set rate limit window")
		}
	}
	if count > int64(limit) {
		s.logger.WithFields(logrus.Fields{
			"key":   key,
			"count": count,
			"limit": limit,
		}).Warn("rate limit exceeded")
		return false, nil
	}
	return true, nil
}

type noopService struct{}

func (*noopService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}
