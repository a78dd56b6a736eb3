package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/supportcore/pkg/kvstore"
	"github.com/dmitrymomot/supportcore/pkg/logger"
	"github.com/dmitrymomot/supportcore/pkg/statemachine"
)

const (
	keyPrefix      = "session:"
	indexPrefix    = "index:session"
	identityPrefix = "auth:"

	defaultMaxAttempts = 10
)

// Observer is notified about session lifecycle events.
type Observer interface {
	SessionCreated()
	SessionRejected()
	SessionTransitioned(from, event, to string)
	SessionDestroyed()
}

// Manager handles session operations. Every mutation is a single atomic
// patch of the stored record. Activity updates are unconditional and never
// conflict; transitions are conditional on the state they were resolved
// from and re-resolve only when another transition won the race.
type Manager struct {
	store       kvstore.Store
	table       *statemachine.Table
	config      ConfigFunc
	instanceID  string
	clock       clockwork.Clock
	logger      *slog.Logger
	observer    Observer
	maxAttempts int
}

// New creates a new session manager backed by store
func New(store kvstore.Store, opts ...Option) *Manager {
	if store == nil {
		panic("session: store is required")
	}

	m := &Manager{
		store:       store,
		config:      DefaultConfig,
		clock:       clockwork.NewRealClock(),
		logger:      slog.Default(),
		maxAttempts: defaultMaxAttempts,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.table == nil {
		m.table = DefaultTable()
	}
	if m.instanceID == "" {
		m.instanceID = uuid.NewString()
	}
	m.logger = m.logger.With(logger.Component("session"))

	return m
}

// Table returns the conversation state machine.
func (m *Manager) Table() *statemachine.Table {
	return m.table
}

// InstanceID identifies this manager for the instance cap scope.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Create returns the user's live session or starts a new one in the initial
// state. A new session is refused with ErrMaxSessionsExceeded when the cap is
// reached; an existing one is always returned.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	cfg := m.config()
	owner := m.owner(cfg)
	key := sessionKey(userID)

	for range m.maxAttempts {
		sess := newSession(userID, owner, m.table.Initial().Name(), m.clock.Now(), cfg.Timeout)
		data, err := sess.encode()
		if err != nil {
			return nil, err
		}

		current, created, err := m.store.Insert(ctx, indexFor(owner), key, data, cfg.Timeout, cfg.MaxSessions)
		if errors.Is(err, kvstore.ErrLimitReached) {
			m.logger.WarnContext(ctx, "session cap reached",
				logger.UserID(userID),
				slog.Int("max_sessions", cfg.MaxSessions),
				logger.Scope(string(cfg.CapScope)))
			if m.observer != nil {
				m.observer.SessionRejected()
			}
			return nil, ErrMaxSessionsExceeded
		}
		if err != nil {
			return nil, err
		}
		if created {
			m.logger.DebugContext(ctx, "session created", logger.UserID(userID), logger.SessionID(sess.ID))
			if m.observer != nil {
				m.observer.SessionCreated()
			}
			return sess, nil
		}

		existing, err := decode(current)
		if err == nil {
			return existing, nil
		}
		m.dropCorrupt(ctx, userID, err)
	}

	return nil, ErrConcurrentUpdate
}

// Get returns the user's live session or ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, userID string) (*Session, error) {
	return m.load(ctx, userID)
}

// Transition applies event to the user's session. When the table has no edge
// for the current state the session is left untouched and the returned error
// matches ErrInvalidStateTransition.
func (m *Manager) Transition(ctx context.Context, userID string, event statemachine.Event) (*Session, error) {
	return m.transition(ctx, userID, event, kvstore.Patch{})
}

// TransitionWith applies event and stores data values in the same atomic
// step. Values are JSON-encoded and merged into Session.Data.
func (m *Manager) TransitionWith(ctx context.Context, userID string, event statemachine.Event, data map[string]any) (*Session, error) {
	merge, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	return m.transition(ctx, userID, event, kvstore.Patch{Merge: merge})
}

// SetData merges values into Session.Data without changing the state.
func (m *Manager) SetData(ctx context.Context, userID string, data map[string]any) (*Session, error) {
	merge, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	return m.patch(ctx, userID, kvstore.Patch{Merge: merge})
}

// Authenticate completes authentication, stores the auth payload and binds
// identity (for example a national ID) to the user for LookupByIdentity.
// An empty identity binds nothing.
func (m *Manager) Authenticate(ctx context.Context, userID, identity string, authData any) (*Session, error) {
	payload, err := json.Marshal(authData)
	if err != nil {
		return nil, errors.Join(ErrInvalidAuthData, err)
	}
	set, err := encodeFields(map[string]any{"auth_data": string(payload)})
	if err != nil {
		return nil, err
	}
	if identity != "" {
		set["identity"], _ = json.Marshal(identity)
	}

	sess, err := m.transition(ctx, userID, EventAuthSucceeded, kvstore.Patch{Set: set})
	if err != nil {
		return nil, err
	}
	if identity == "" {
		return sess, nil
	}

	ttl := m.config().authTTL()
	if err := m.store.Set(ctx, identityKey(identity), []byte(userID), ttl); err != nil {
		return nil, err
	}
	m.logger.InfoContext(ctx, "identity bound", logger.UserID(userID), logger.SessionID(sess.ID))
	return sess, nil
}

// LookupByIdentity returns the live session bound to identity by the latest
// Authenticate. It fails with ErrIdentityNotFound when the binding expired,
// the user logged out or the session is gone.
func (m *Manager) LookupByIdentity(ctx context.Context, identity string) (*Session, error) {
	if identity == "" {
		return nil, ErrIdentityNotFound
	}

	userID, err := m.store.Get(ctx, identityKey(identity))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}

	sess, err := m.load(ctx, string(userID))
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, err
	}
	if sess.Identity != identity {
		return nil, ErrIdentityNotFound
	}
	return sess, nil
}

// Touch extends the session TTL without changing its state.
func (m *Manager) Touch(ctx context.Context, userID string) (*Session, error) {
	return m.patch(ctx, userID, kvstore.Patch{})
}

// Record appends an interaction marker, keeping the last HistoryLimit, and
// extends the TTL.
func (m *Manager) Record(ctx context.Context, userID, marker string) (*Session, error) {
	value, err := json.Marshal(marker)
	if err != nil {
		return nil, err
	}
	return m.patch(ctx, userID, kvstore.Patch{
		Append: &kvstore.Append{Field: "message_history", Value: value, Limit: HistoryLimit},
	})
}

// Destroy removes the user's session. Destroying an absent session is not an error.
func (m *Manager) Destroy(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	index := indexFor(m.owner(m.config()))
	raw, err := m.store.Get(ctx, sessionKey(userID))
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return nil
	case err != nil:
		return err
	}
	var identity string
	if sess, err := decode(raw); err == nil {
		index = indexFor(sess.Owner)
		identity = sess.Identity
	}

	n, err := m.store.Remove(ctx, index, sessionKey(userID))
	if err != nil {
		return err
	}
	m.unbind(ctx, userID, identity)
	if n > 0 {
		m.logger.DebugContext(ctx, "session destroyed", logger.UserID(userID))
		if m.observer != nil {
			m.observer.SessionDestroyed()
		}
	}
	return nil
}

// Count returns the number of live sessions counted against the cap.
func (m *Manager) Count(ctx context.Context) (int64, error) {
	return m.store.Len(ctx, indexFor(m.owner(m.config())))
}

// List returns the user IDs of all live sessions in the store, sorted.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := m.store.Scan(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, keyPrefix))
	}
	slices.Sort(ids)
	return ids, nil
}

// transition resolves event against the stored state and applies it together
// with extra, conditional on the state still being the one resolved from.
func (m *Manager) transition(ctx context.Context, userID string, event statemachine.Event, extra kvstore.Patch) (*Session, error) {
	for attempt := range m.maxAttempts {
		current, err := m.load(ctx, userID)
		if err != nil {
			return nil, err
		}

		from := current.State
		next, err := m.resolve(ctx, current, event)
		if err != nil {
			m.logger.InfoContext(ctx, "transition refused",
				logger.UserID(userID), logger.State(from), logger.Event(nameOf(event)))
			return nil, err
		}

		p := extra
		p.Expect = map[string]string{"state": from}
		p.Set = make(map[string]json.RawMessage, len(extra.Set)+1)
		maps.Copy(p.Set, extra.Set)
		p.Set["state"], _ = json.Marshal(next.Name())
		logout := next == m.table.Initial()
		if logout {
			p.Unset = append(slices.Clone(extra.Unset), "auth_data", "identity", "data")
		}

		sess, err := m.apply(ctx, current, p)
		if errors.Is(err, kvstore.ErrConflict) {
			m.logger.DebugContext(ctx, "state changed concurrently, retrying",
				logger.UserID(userID), logger.RetryCount(attempt+1))
			continue
		}
		if err != nil {
			return nil, err
		}

		if logout {
			m.unbind(ctx, userID, current.Identity)
		}
		m.logger.DebugContext(ctx, "session transitioned",
			logger.UserID(userID), logger.Transition(from, event.Name(), sess.State))
		if m.observer != nil {
			m.observer.SessionTransitioned(from, event.Name(), sess.State)
		}
		return sess, nil
	}
	return nil, ErrConcurrentUpdate
}

func (m *Manager) resolve(ctx context.Context, sess *Session, event statemachine.Event) (statemachine.State, error) {
	current, ok := m.table.Lookup(sess.State)
	if !ok {
		return nil, errors.Join(ErrInvalidStateTransition, statemachine.ErrUnknownState)
	}
	next, err := m.table.Next(ctx, current, event, sess)
	if err != nil {
		return nil, errors.Join(ErrInvalidStateTransition, err)
	}
	return next, nil
}

// patch loads the session and applies p to it.
func (m *Manager) patch(ctx context.Context, userID string, p kvstore.Patch) (*Session, error) {
	current, err := m.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.apply(ctx, current, p)
}

// apply writes p to the stored record of current together with the activity
// fields every mutation refreshes. Without p.Expect it cannot conflict. The
// owner never changes during a session, so current.Owner names the index
// even if the record changed since it was read.
func (m *Manager) apply(ctx context.Context, current *Session, p kvstore.Patch) (*Session, error) {
	userID := current.UserID
	ttl := m.config().Timeout
	now := m.clock.Now()
	activity, err := encodeFields(map[string]any{
		"last_activity_at": now,
		"expires_at":       now.Add(ttl),
		"ttl_seconds":      int64(ttl / time.Second),
	})
	if err != nil {
		return nil, err
	}
	maps.Copy(activity, p.Set)
	p.Set = activity

	raw, err := m.store.Patch(ctx, indexFor(current.Owner), sessionKey(userID), p, ttl)
	switch {
	case errors.Is(err, kvstore.ErrNotFound):
		return nil, ErrSessionNotFound
	case errors.Is(err, kvstore.ErrMalformed):
		m.dropCorrupt(ctx, userID, err)
		return nil, ErrSessionNotFound
	case err != nil:
		return nil, err
	}

	sess, err := decode(raw)
	if err != nil {
		m.dropCorrupt(ctx, userID, err)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (m *Manager) load(ctx context.Context, userID string) (*Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}

	raw, err := m.store.Get(ctx, sessionKey(userID))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	sess, err := decode(raw)
	if err != nil {
		m.dropCorrupt(ctx, userID, err)
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// dropCorrupt deletes an undecodable record so the user can start over.
func (m *Manager) dropCorrupt(ctx context.Context, userID string, cause error) {
	m.logger.ErrorContext(ctx, "dropping corrupt session record",
		logger.UserID(userID), logger.Error(cause))
	if _, err := m.store.Remove(ctx, indexFor(m.owner(m.config())), sessionKey(userID)); err != nil {
		m.logger.ErrorContext(ctx, "failed to drop corrupt session record",
			logger.UserID(userID), logger.Error(err))
	}
}

func (m *Manager) owner(cfg Config) string {
	if cfg.CapScope == ScopeInstance {
		return m.instanceID
	}
	return ""
}

// unbind drops the identity binding if it still points at userID. A later
// Authenticate on another user keeps its binding.
func (m *Manager) unbind(ctx context.Context, userID, identity string) {
	if identity == "" {
		return
	}
	key := identityKey(identity)
	bound, err := m.store.Get(ctx, key)
	if err != nil || string(bound) != userID {
		return
	}
	if _, err := m.store.Delete(ctx, key); err != nil {
		m.logger.ErrorContext(ctx, "failed to drop identity binding",
			logger.UserID(userID), logger.Error(err))
	}
}

func sessionKey(userID string) string {
	return keyPrefix + userID
}

func identityKey(identity string) string {
	return identityPrefix + identity
}

func indexFor(owner string) string {
	if owner == "" {
		return indexPrefix
	}
	return indexPrefix + ":" + owner
}

func nameOf(event statemachine.Event) string {
	if event == nil {
		return ""
	}
	return event.Name()
}

func encodeFields(values map[string]any) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

// encodeData turns data values into the merge step for Session.Data. Each
// value is stored as a JSON string holding its encoding.
func encodeData(data map[string]any) (map[string]map[string]json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	values := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Join(ErrInvalidData, err)
		}
		values[k], _ = json.Marshal(string(raw))
	}
	return map[string]map[string]json.RawMessage{"data": values}, nil
}
