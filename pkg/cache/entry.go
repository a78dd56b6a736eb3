package cache

import (
	"encoding/json"
	"errors"
	"time"
)

const entryVersion = 1

// entry is the stored envelope around a cached value.
type entry struct {
	Version    int             `json:"version"`
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	TTLSeconds int64           `json:"ttl_seconds"`
}

func decodeEntry(key string, data []byte) (*entry, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, errors.Join(ErrDeserialization, err)
	}
	if e.Version != entryVersion || e.Key != key || len(e.Value) == 0 {
		return nil, ErrDeserialization
	}
	return &e, nil
}
