// Package config loads settings from the environment and keeps the runtime
// settings of the service hot-reloadable.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11 and offers
// two levels of API.
//
// # Static configuration
//
// Load parses the environment into any struct once per type and caches the
// result. It suits settings that never change while the process runs:
//
//	var redisCfg redis.Config
//	if err := config.Load(&redisCfg); err != nil {
//	    return err
//	}
//
// Parse does the same without caching and accepts options such as
// WithEnvironment, which makes it easy to parse from a map in tests.
// Both run Validate on structs implementing Validator.
//
// # Runtime settings
//
// Manager owns the Snapshot of runtime settings (session cap, rate limits,
// cache bounds, maintenance mode, feature flags). Readers call Current and get
// an immutable snapshot without locking. Reload builds a fresh snapshot from
// the environment, optionally merges YAML overrides from
// DYNAMIC_CONFIG_SOURCE (a local file or s3://bucket/key), validates it and
// publishes it atomically. A rejected reload leaves the previous snapshot in
// place.
//
//	mgr := config.NewManager()
//	if err := mgr.Load(ctx); err != nil {
//	    return err // invalid settings at startup
//	}
//	limit := mgr.Current().MaxRequestsHour
//
// # Error Handling
//
//   - ErrParsingConfig: the environment could not be parsed into the struct.
//   - ErrValidation: a value is out of range; ValidationError names the field.
//   - ErrSourceNotFound, ErrSourceAccessDenied, ErrSourceUnavailable: the
//     override document could not be fetched.
//   - ErrNilPointer: nil pointer passed to Load or Parse.
package config
