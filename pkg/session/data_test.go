package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

func TestManager_Data(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("transition stores values", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		_, err := f.manager.Create(ctx, "u1")
		require.NoError(t, err)

		sess, err := f.manager.TransitionWith(ctx, "u1", session.EventStartAuth, map[string]any{
			"lookup_type": "order",
			"attempts":    2,
		})
		require.NoError(t, err)
		assert.Equal(t, session.StateAwaitingAuth.Name(), sess.State)

		var lookup string
		ok, err := sess.DecodeData("lookup_type", &lookup)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "order", lookup)

		stored, err := f.manager.Get(ctx, "u1")
		require.NoError(t, err)
		var attempts int
		ok, err = stored.DecodeData("attempts", &attempts)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, attempts)

		ok, err = stored.DecodeData("missing", &attempts)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set data keeps state and earlier values", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		_, err := f.manager.Create(ctx, "u1")
		require.NoError(t, err)
		_, err = f.manager.TransitionWith(ctx, "u1", session.EventStartAuth, map[string]any{"lookup_type": "order"})
		require.NoError(t, err)

		sess, err := f.manager.SetData(ctx, "u1", map[string]any{"last_menu": "orders"})
		require.NoError(t, err)
		assert.Equal(t, session.StateAwaitingAuth.Name(), sess.State)
		assert.Contains(t, sess.Data, "lookup_type")
		assert.Contains(t, sess.Data, "last_menu")
	})

	t.Run("returning to start clears values", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		_, err := f.manager.Create(ctx, "u1")
		require.NoError(t, err)
		_, err = f.manager.TransitionWith(ctx, "u1", session.EventStartAuth, map[string]any{"complaint_type": "delivery"})
		require.NoError(t, err)

		sess, err := f.manager.Transition(ctx, "u1", session.EventCancel)
		require.NoError(t, err)
		assert.Equal(t, session.StateStart.Name(), sess.State)
		assert.Empty(t, sess.Data)

		stored, err := f.manager.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, stored.Data)
	})

	t.Run("refused transition stores nothing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		_, err := f.manager.Create(ctx, "u1")
		require.NoError(t, err)

		_, err = f.manager.TransitionWith(ctx, "u1", session.EventDone, map[string]any{"k": "v"})
		require.ErrorIs(t, err, session.ErrInvalidStateTransition)

		stored, err := f.manager.Get(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, stored.Data)
	})

	t.Run("unencodable value", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		_, err := f.manager.Create(ctx, "u1")
		require.NoError(t, err)

		_, err = f.manager.SetData(ctx, "u1", map[string]any{"f": func() {}})
		assert.ErrorIs(t, err, session.ErrInvalidData)
	})
}

func TestManager_LookupByIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	authenticate := func(t *testing.T, m *session.Manager, userID, identity string) {
		t.Helper()
		_, err := m.Create(ctx, userID)
		require.NoError(t, err)
		_, err = m.Transition(ctx, userID, session.EventStartAuth)
		require.NoError(t, err)
		_, err = m.Authenticate(ctx, userID, identity, map[string]string{"name": userID})
		require.NoError(t, err)
	}

	t.Run("finds the authenticated session", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		authenticate(t, f.manager, "u1", "0012345678")

		sess, err := f.manager.LookupByIdentity(ctx, "0012345678")
		require.NoError(t, err)
		assert.Equal(t, "u1", sess.UserID)
		assert.Equal(t, "0012345678", sess.Identity)

		bound, err := f.store.Get(ctx, "auth:0012345678")
		require.NoError(t, err)
		assert.Equal(t, "u1", string(bound))

		_, err = f.manager.LookupByIdentity(ctx, "unknown")
		assert.ErrorIs(t, err, session.ErrIdentityNotFound)
		_, err = f.manager.LookupByIdentity(ctx, "")
		assert.ErrorIs(t, err, session.ErrIdentityNotFound)
	})

	t.Run("logout drops the binding", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		authenticate(t, f.manager, "u1", "0012345678")

		sess, err := f.manager.Transition(ctx, "u1", session.EventLogout)
		require.NoError(t, err)
		assert.Empty(t, sess.Identity)

		_, err = f.manager.LookupByIdentity(ctx, "0012345678")
		assert.ErrorIs(t, err, session.ErrIdentityNotFound)
		_, err = f.store.Get(ctx, "auth:0012345678")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("destroy drops the binding", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		authenticate(t, f.manager, "u1", "0012345678")

		require.NoError(t, f.manager.Destroy(ctx, "u1"))
		_, err := f.store.Get(ctx, "auth:0012345678")
		assert.ErrorIs(t, err, kvstore.ErrNotFound)
	})

	t.Run("binding expires after auth ttl", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.AuthTTL = 30 * time.Second
		f := newFixture(t, cfg)
		authenticate(t, f.manager, "u1", "0012345678")

		f.clock.Advance(31 * time.Second)
		_, err := f.manager.LookupByIdentity(ctx, "0012345678")
		assert.ErrorIs(t, err, session.ErrIdentityNotFound)

		_, err = f.manager.Get(ctx, "u1")
		assert.NoError(t, err)
	})

	t.Run("latest login owns the identity", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, testConfig())
		authenticate(t, f.manager, "u1", "0012345678")
		authenticate(t, f.manager, "u2", "0012345678")

		_, err := f.manager.Transition(ctx, "u1", session.EventLogout)
		require.NoError(t, err)

		sess, err := f.manager.LookupByIdentity(ctx, "0012345678")
		require.NoError(t, err)
		assert.Equal(t, "u2", sess.UserID)
	})
}
