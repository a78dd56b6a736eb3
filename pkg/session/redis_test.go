package session_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/redis"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

func newRedisManager(t *testing.T) *session.Manager {
	t.Helper()

	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return session.New(redis.NewStore(client), session.WithLogger(discardLogger()))
}

func TestManager_RedisStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("concurrent activity never fails", func(t *testing.T) {
		t.Parallel()
		manager := newRedisManager(t)
		_, err := manager.Create(ctx, "u1")
		require.NoError(t, err)

		const workers = 64
		var (
			wg       sync.WaitGroup
			failures atomic.Int32
		)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var err error
				if i%4 == 0 {
					_, err = manager.Touch(ctx, "u1")
				} else {
					_, err = manager.Record(ctx, "u1", fmt.Sprintf("m%d", i))
				}
				if err != nil {
					failures.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Zero(t, failures.Load())

		sess, err := manager.Get(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, sess.History, session.HistoryLimit)
		for _, marker := range sess.History {
			assert.True(t, strings.HasPrefix(marker, "m"), marker)
		}
	})

	t.Run("racing transitions apply once", func(t *testing.T) {
		t.Parallel()
		manager := newRedisManager(t)
		_, err := manager.Create(ctx, "u1")
		require.NoError(t, err)

		const workers = 16
		var (
			wg       sync.WaitGroup
			applied  atomic.Int32
			refused  atomic.Int32
			unwanted atomic.Int32
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := manager.Transition(ctx, "u1", session.EventStartAuth)
				switch {
				case err == nil:
					applied.Add(1)
				case errors.Is(err, session.ErrInvalidStateTransition):
					refused.Add(1)
				default:
					unwanted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), applied.Load())
		assert.Equal(t, int32(workers-1), refused.Load())
		assert.Zero(t, unwanted.Load())

		sess, err := manager.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, session.StateAwaitingAuth.Name(), sess.State)
	})

	t.Run("payloads survive the store round trip", func(t *testing.T) {
		t.Parallel()
		manager := newRedisManager(t)
		_, err := manager.Create(ctx, "u1")
		require.NoError(t, err)

		const orderID int64 = 9007199254740993
		_, err = manager.TransitionWith(ctx, "u1", session.EventStartAuth, map[string]any{"order_id": orderID})
		require.NoError(t, err)
		_, err = manager.Authenticate(ctx, "u1", "0012345678", map[string]any{"name": "Sara", "customer_id": orderID})
		require.NoError(t, err)
		_, err = manager.Record(ctx, "u1", "menu:orders")
		require.NoError(t, err)

		sess, err := manager.LookupByIdentity(ctx, "0012345678")
		require.NoError(t, err)
		assert.Equal(t, session.StateAuthenticated.Name(), sess.State)
		assert.Equal(t, []string{"menu:orders"}, sess.History)

		var got int64
		ok, err := sess.DecodeData("order_id", &got)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, orderID, got)

		var auth struct {
			Name       string `json:"name"`
			CustomerID int64  `json:"customer_id"`
		}
		require.NoError(t, sess.DecodeAuthData(&auth))
		assert.Equal(t, "Sara", auth.Name)
		assert.Equal(t, orderID, auth.CustomerID)

		sess, err = manager.Transition(ctx, "u1", session.EventLogout)
		require.NoError(t, err)
		assert.Empty(t, sess.Data)
		assert.False(t, sess.IsAuthenticated())

		_, err = manager.LookupByIdentity(ctx, "0012345678")
		assert.ErrorIs(t, err, session.ErrIdentityNotFound)
	})
}
