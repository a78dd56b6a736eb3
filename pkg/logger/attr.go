package logger

import "log/slog"

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID records the user identifier under the key "user_id".
// An empty id yields an empty Attr.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("user_id", id)
}

// SessionID records the session identifier under the key "session_id".
func SessionID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("session_id", id)
}

// State records a conversation state under the key "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Transition records a state change as a "transition" group.
func Transition(from, event, to string) slog.Attr {
	return Group("transition",
		slog.String("from", from),
		slog.String("event", event),
		slog.String("to", to),
	)
}

// Scope records a rate limit scope under the key "scope".
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// CacheKey records a cache key under the key "cache_key".
func CacheKey(key string) slog.Attr {
	return slog.String("cache_key", key)
}

// Count records a quantity under the key "count".
func Count(n int64) slog.Attr {
	return slog.Int64("count", n)
}

// RetryCount records the retry count under the key "retry_count".
func RetryCount(count int) slog.Attr {
	return slog.Int("retry_count", count)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}
