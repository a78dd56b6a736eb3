package cache

import (
	"context"
	"time"
)

// Typed is a Manager view for one value type under a key namespace.
//
//	orders := cache.NewTyped[Order](manager, "order")
//	order, err := orders.Fetch(ctx, serial, 0, func(ctx context.Context) (Order, error) {
//	    return api.Order(ctx, serial)
//	})
type Typed[T any] struct {
	m         *Manager
	namespace string
}

// NewTyped returns a typed view storing keys as "{namespace}:{key}".
func NewTyped[T any](m *Manager, namespace string) *Typed[T] {
	return &Typed[T]{m: m, namespace: namespace}
}

func (t *Typed[T]) Get(ctx context.Context, key string) (T, bool) {
	var v T
	if !t.m.Get(ctx, t.key(key), &v) {
		var zero T
		return zero, false
	}
	return v, true
}

func (t *Typed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	return t.m.Set(ctx, t.key(key), value, ttl)
}

// Fetch returns the cached value or loads, caches and returns it.
func (t *Typed[T]) Fetch(ctx context.Context, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var v T
	err := t.m.Fetch(ctx, t.key(key), ttl, &v, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func (t *Typed[T]) Invalidate(ctx context.Context, key string) (bool, error) {
	return t.m.Invalidate(ctx, t.key(key))
}

// InvalidateAll removes every entry in the namespace. The namespace is
// normalized the same way as when keys are written, so a namespace that
// Key hashes still matches its entries. An empty namespace clears the cache.
func (t *Typed[T]) InvalidateAll(ctx context.Context) (int64, error) {
	if t.namespace == "" {
		return t.m.InvalidatePrefix(ctx, "")
	}
	return t.m.InvalidatePrefix(ctx, Key(t.namespace)+":")
}

func (t *Typed[T]) key(key string) string {
	if t.namespace == "" {
		return Key(key)
	}
	return Key(t.namespace, key)
}
