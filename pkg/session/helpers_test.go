package session_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store   *kvstore.MemoryStore
	clock   *clockwork.FakeClock
	manager *session.Manager
}

func newFixture(t *testing.T, cfg session.Config, opts ...session.Option) fixture {
	t.Helper()

	clock := clockwork.NewFakeClock()
	store := kvstore.NewMemoryStore(kvstore.WithClock(clock), kvstore.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	base := []session.Option{
		session.WithClock(clock),
		session.WithLogger(discardLogger()),
	}
	return fixture{
		store:   store,
		clock:   clock,
		manager: session.NewFromConfig(store, cfg, append(base, opts...)...),
	}
}

func testConfig() session.Config {
	return session.Config{
		MaxSessions: 10,
		CapScope:    session.ScopeGlobal,
		Timeout:     time.Minute,
	}
}

type observerRecorder struct {
	mu          sync.Mutex
	created     int
	rejected    int
	destroyed   int
	transitions []string
}

func (o *observerRecorder) SessionCreated() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.created++
}

func (o *observerRecorder) SessionRejected() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected++
}

func (o *observerRecorder) SessionTransitioned(from, event, to string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from+"->"+event+"->"+to)
}

func (o *observerRecorder) SessionDestroyed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.destroyed++
}

// conflictStore fails every conditional patch as if the state had changed.
type conflictStore struct {
	kvstore.Store
	calls int
}

func (s *conflictStore) Patch(ctx context.Context, index, key string, p kvstore.Patch, ttl time.Duration) ([]byte, error) {
	if len(p.Expect) > 0 {
		s.calls++
		return nil, kvstore.ErrConflict
	}
	return s.Store.Patch(ctx, index, key, p, ttl)
}
