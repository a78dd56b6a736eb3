package kvstore

import "errors"

var (
	ErrNotFound     = errors.New("kvstore.not_found")
	ErrConflict     = errors.New("kvstore.conflict")
	ErrLimitReached = errors.New("kvstore.limit_reached")
	ErrUnavailable  = errors.New("kvstore.unavailable")
	ErrInvalidTTL   = errors.New("kvstore.invalid_ttl")
	ErrEmptyKey     = errors.New("kvstore.empty_key")
	ErrMalformed    = errors.New("kvstore.malformed_value")
)
