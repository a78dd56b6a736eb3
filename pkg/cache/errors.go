package cache

import "errors"

var (
	// ErrDeserialization indicates a stored entry could not be decoded.
	// It is logged and reported as a miss, never returned from Get.
	ErrDeserialization = errors.New("cache.deserialization")
	ErrEmptyKey        = errors.New("cache.empty_key")
	ErrSerialization   = errors.New("cache.serialization")
)
