package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// CommandObserver records the outcome of Redis round trips.
type CommandObserver interface {
	ObserveCommand(name string, d time.Duration, err error)
	ObserveDialError()
}

// MetricsHook reports every command and pipeline to a CommandObserver.
type MetricsHook struct {
	observer CommandObserver
}

var _ redis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(observer CommandObserver) *MetricsHook {
	return &MetricsHook{observer: observer}
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.observer.ObserveDialError()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.observer.ObserveCommand(cmd.Name(), time.Since(start), failure(err))
		return err
	}
}

// ProcessPipelineHook tracks a pipeline as a single operation.
func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.observer.ObserveCommand("pipeline", time.Since(start), failure(err))
		return err
	}
}

func failure(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
