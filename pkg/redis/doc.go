// Package redis connects to Redis and implements kvstore.Store on top of it.
//
// It wraps the go-redis client and adds:
//
//   - Connect, which retries the initial ping and attaches hooks.
//   - Store, an atomic kvstore.Store backed by Lua scripts.
//   - CircuitBreakerHook, which fails fast while the server is down.
//   - MetricsHook, which reports command latency and failures.
//   - Healthcheck, a probe for readiness checks.
//
// Configuration is described by Config and is usually loaded from the
// environment with config.Load.
//
// # Usage
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	breaker := redis.NewCircuitBreakerHookFromConfig(cfg)
//	client, err := redis.Connect(ctx, cfg, breaker)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	store := redis.NewStore(client, redis.WithConfig(cfg))
//
// # Errors
//
// Store methods return the kvstore sentinel errors. Any failure to reach the
// server is joined with kvstore.ErrUnavailable, so callers can check it with
// errors.Is without knowing about go-redis.
package redis
