package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Validator is implemented by configuration structs that check their own
// constraints after parsing.
type Validator interface {
	Validate() error
}

// cached holds the outcome of parsing one configuration type.
type cached struct {
	mu    sync.Mutex
	value any
	ok    bool
}

var (
	// loaded maps a reflect.Type to its *cached entry.
	loaded sync.Map

	defaultEnvLoaded sync.Once
)

// Load parses the process environment into v once per configuration type.
// Later calls for the same type copy the first result, which suits static
// settings such as the Redis URL. A failed parse is not cached, so the next
// call retries.
//
// Settings that change at runtime go through Manager instead.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	loadDefaultEnv()
	if v == nil {
		return ErrNilPointer
	}

	entry, _ := loaded.LoadOrStore(reflect.TypeFor[T](), &cached{})
	c := entry.(*cached)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.ok {
		var fresh T
		if err := Parse(&fresh); err != nil {
			return err
		}
		c.value, c.ok = fresh, true
	}
	*v = c.value.(T)
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: load %s: %v", reflect.TypeFor[T](), err))
	}
}

// ParseOption adjusts a single Parse call.
type ParseOption func(*env.Options)

// WithEnvironment parses from the given map instead of the process environment.
func WithEnvironment(environment map[string]string) ParseOption {
	return func(o *env.Options) {
		o.Environment = environment
	}
}

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) ParseOption {
	return func(o *env.Options) {
		o.Prefix = prefix
	}
}

// Parse fills v from the environment without caching and runs Validate when
// v implements Validator.
func Parse[T any](v *T, opts ...ParseOption) error {
	loadDefaultEnv()
	if v == nil {
		return ErrNilPointer
	}

	var options env.Options
	for _, opt := range opts {
		opt(&options)
	}

	if err := env.ParseWithOptions(v, options); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	if validator, ok := any(v).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return errors.Join(ErrValidation, err)
		}
	}
	return nil
}

// LoadEnv loads the given .env files into the process environment.
// Variables that are already set win over file values.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

// ResetCache forgets every configuration cached by Load.
func ResetCache() {
	loaded.Clear()
}

func loadDefaultEnv() {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})
}
