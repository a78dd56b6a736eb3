package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/logger"
)

// Observer is notified about every admission decision.
type Observer interface {
	RequestAdmitted()
	RequestRejected(scope string)
}

// Limiter is a fixed-window admission controller with an hourly and a daily
// quota per user. Counters live in a kvstore.Store and are incremented with a
// single atomic operation each, so concurrent requests never share a count.
type Limiter struct {
	store    kvstore.Store
	limits   LimitsFunc
	clock    clockwork.Clock
	logger   *slog.Logger
	observer Observer
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits sets static quotas.
func WithLimits(limits Limits) Option {
	return func(l *Limiter) {
		l.limits = func() Limits { return limits }
	}
}

// WithLimitsFunc reads quotas on every check so they follow config reloads.
func WithLimitsFunc(fn LimitsFunc) Option {
	return func(l *Limiter) {
		if fn != nil {
			l.limits = fn
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(l *Limiter) {
		l.observer = observer
	}
}

// New creates a limiter. Default quotas are 100 per hour and 1000 per day.
func New(store kvstore.Store, opts ...Option) *Limiter {
	if store == nil {
		panic("ratelimit: store is required")
	}

	l := &Limiter{
		store:  store,
		limits: func() Limits { return Limits{Hour: 100, Day: 1000} },
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("ratelimit"))
	return l
}

// CheckAndIncrement counts one request against both windows and decides
// whether it is admitted. Rejected requests still count. Storage failures are
// returned as errors; callers should deny the request.
func (l *Limiter) CheckAndIncrement(ctx context.Context, userID string) (*Decision, error) {
	if userID == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock.Now()
	limits := l.limits()

	var windows [len(scopes)]Window
	for i, scope := range scopes {
		bucket := Bucket(scope, now)
		resetAt := BucketEnd(scope, bucket)

		count, err := l.store.Incr(ctx, Key(userID, scope, bucket), resetAt.Sub(now))
		if err != nil {
			l.logger.ErrorContext(ctx, "rate limit counter unavailable",
				logger.UserID(userID), logger.Scope(string(scope)), logger.Error(err))
			return nil, err
		}
		windows[i] = newWindow(scope, bucket, limits.of(scope), count, resetAt)
	}

	d := newDecision(now, windows[0], windows[1])
	if d.Allowed {
		if l.observer != nil {
			l.observer.RequestAdmitted()
		}
		return d, nil
	}

	l.logger.InfoContext(ctx, "request rejected by rate limit",
		logger.UserID(userID),
		logger.Scope(string(d.Exceeded)),
		slog.Duration("retry_after", d.RetryAfter()))
	if l.observer != nil {
		l.observer.RequestRejected(string(d.Exceeded))
	}
	return d, nil
}

// Status reports the current quota without counting a request.
// Allowed tells whether the next request would be admitted.
func (l *Limiter) Status(ctx context.Context, userID string) (*Decision, error) {
	if userID == "" {
		return nil, ErrKeyRequired
	}

	now := l.clock.Now()
	limits := l.limits()

	var windows [len(scopes)]Window
	for i, scope := range scopes {
		bucket := Bucket(scope, now)
		count, err := l.count(ctx, Key(userID, scope, bucket))
		if err != nil {
			return nil, err
		}
		windows[i] = newWindow(scope, bucket, limits.of(scope), count, BucketEnd(scope, bucket))
	}

	d := newDecision(now, windows[0], windows[1])
	// The next request is admitted only while every window has a slot left.
	for _, w := range windows {
		if w.Remaining == 0 {
			d.Allowed = false
			d.Exceeded = w.Scope
			d.ResetAt = w.ResetAt
			break
		}
	}
	return d, nil
}

// Reset clears the user's counters for the current windows.
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrKeyRequired
	}

	now := l.clock.Now()
	keys := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		keys = append(keys, Key(userID, scope, Bucket(scope, now)))
	}
	if _, err := l.store.Delete(ctx, keys...); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "rate limit reset", logger.UserID(userID))
	return nil
}

func (l *Limiter) count(ctx context.Context, key string) (int64, error) {
	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, errors.Join(ErrCorruptCounter, err)
	}
	return n, nil
}

func newWindow(scope Scope, bucket int64, limit int, count int64, resetAt time.Time) Window {
	return Window{
		Scope:     scope,
		Bucket:    bucket,
		Limit:     limit,
		Count:     count,
		Remaining: remaining(limit, count),
		ResetAt:   resetAt,
	}
}

func remaining(limit int, count int64) int {
	if limit <= 0 {
		return -1
	}
	return int(max(int64(limit)-count, 0))
}
