package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect establishes a connection to a Redis server using the provided configuration.
// It pings the server up to RetryAttempts times, pausing RetryInterval between
// attempts, and gives up once ConnectTimeout elapses.
//
// Hooks are attached to the client before the first ping, so a circuit breaker
// or metrics hook observes the connection attempts too.
//
// Returns ErrEmptyConnectionURL or ErrFailedToParseRedisConnString for a bad
// URL and ErrRedisNotReady if the server never answered.
func Connect(ctx context.Context, cfg Config, hooks ...redis.Hook) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for attempt := range attempts {
		client := redis.NewClient(opts)
		for _, hook := range hooks {
			client.AddHook(hook)
		}

		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}
