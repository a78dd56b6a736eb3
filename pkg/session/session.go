package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// recordFormat is bumped whenever the stored layout changes.
	recordFormat = 2

	// HistoryLimit is how many interaction markers a session keeps.
	HistoryLimit = 5
)

// Session is one user's conversation state.
type Session struct {
	ID       uuid.UUID       `json:"id"`
	UserID   string          `json:"user_id"`
	State    string          `json:"state"`
	AuthData json.RawMessage `json:"auth_data,omitempty"`
	// Identity is the external identity bound by Authenticate.
	Identity string `json:"identity,omitempty"`
	// Data holds per-conversation values set alongside transitions.
	// It is cleared when the session returns to the initial state.
	Data           map[string]json.RawMessage `json:"data,omitempty"`
	History        []string                   `json:"message_history"`
	Owner          string                     `json:"owner,omitempty"`
	CreatedAt      time.Time                  `json:"created_at"`
	LastActivityAt time.Time                  `json:"last_activity_at"`
	ExpiresAt      time.Time                  `json:"expires_at"`
	TTLSeconds     int64                      `json:"ttl_seconds"`
}

// record is the stored layout. JSON payloads are kept as strings so the store
// can patch a record without re-encoding values it does not own.
type record struct {
	Format         int               `json:"format"`
	ID             uuid.UUID         `json:"id"`
	UserID         string            `json:"user_id"`
	State          string            `json:"state"`
	AuthData       string            `json:"auth_data,omitempty"`
	Identity       string            `json:"identity,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	History        []string          `json:"message_history,omitempty"`
	Owner          string            `json:"owner,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	LastActivityAt time.Time         `json:"last_activity_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
	TTLSeconds     int64             `json:"ttl_seconds"`
}

func newSession(userID, owner, state string, now time.Time, ttl time.Duration) *Session {
	return &Session{
		ID:             uuid.New(),
		UserID:         userID,
		State:          state,
		History:        []string{},
		Owner:          owner,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
		TTLSeconds:     int64(ttl / time.Second),
	}
}

// IsAuthenticated returns true if the session carries an auth payload
func (s *Session) IsAuthenticated() bool {
	return s != nil && len(s.AuthData) > 0
}

// DecodeAuthData unmarshals the auth payload into v.
func (s *Session) DecodeAuthData(v any) error {
	if !s.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return json.Unmarshal(s.AuthData, v)
}

// DecodeData unmarshals the value stored under key into v and reports
// whether the key was present.
func (s *Session) DecodeData(key string, v any) (bool, error) {
	raw, ok := s.Data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, v)
}

// TTL returns the session idle timeout.
func (s *Session) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// Remaining reports how long the session stays alive without activity.
func (s *Session) Remaining(now time.Time) time.Duration {
	return max(s.ExpiresAt.Sub(now), 0)
}

func (s *Session) encode() ([]byte, error) {
	r := record{
		Format:         recordFormat,
		ID:             s.ID,
		UserID:         s.UserID,
		State:          s.State,
		AuthData:       string(s.AuthData),
		Identity:       s.Identity,
		History:        s.History,
		Owner:          s.Owner,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.ExpiresAt,
		TTLSeconds:     s.TTLSeconds,
	}
	if len(s.Data) > 0 {
		r.Data = make(map[string]string, len(s.Data))
		for k, v := range s.Data {
			r.Data[k] = string(v)
		}
	}
	return json.Marshal(r)
}

func decode(data []byte) (*Session, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, errors.Join(ErrCorruptSession, err)
	}
	if r.Format != recordFormat || r.UserID == "" || r.State == "" {
		return nil, ErrCorruptSession
	}

	s := &Session{
		ID:             r.ID,
		UserID:         r.UserID,
		State:          r.State,
		Identity:       r.Identity,
		History:        r.History,
		Owner:          r.Owner,
		CreatedAt:      r.CreatedAt,
		LastActivityAt: r.LastActivityAt,
		ExpiresAt:      r.ExpiresAt,
		TTLSeconds:     r.TTLSeconds,
	}
	if s.History == nil {
		s.History = []string{}
	}
	if r.AuthData != "" {
		if !json.Valid([]byte(r.AuthData)) {
			return nil, ErrCorruptSession
		}
		s.AuthData = json.RawMessage(r.AuthData)
	}
	if len(r.Data) > 0 {
		s.Data = make(map[string]json.RawMessage, len(r.Data))
		for k, v := range r.Data {
			if !json.Valid([]byte(v)) {
				return nil, ErrCorruptSession
			}
			s.Data[k] = json.RawMessage(v)
		}
	}
	return s, nil
}
