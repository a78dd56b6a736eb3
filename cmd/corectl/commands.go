package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/supportcore/internal/core"
)

const commandsHelp = `commands:
  config show                      print the active settings
  config check                     re-read and validate settings without applying them elsewhere
  session get <user>               print one session
  session lookup <identity>        print the session bound to an identity
  session list                     list users with a live session
  session count                    number of live sessions in the current cap scope
  session destroy <user>           end a session
  ratelimit status <user>          print the current quota windows
  ratelimit reset <user>           clear the current quota windows
  cache stats                      print cache size and counters
  cache invalidate <key>           drop one entry
  cache invalidate-prefix <prefix> drop every entry under a prefix
  health                           ping redis`

var errUsage = errors.New("invalid usage")

type cli struct {
	core   *core.Core
	health func(context.Context) error
	out    *printer
}

type handler func(ctx context.Context, args []string) error

func (c *cli) execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("missing command")
	}

	commands := map[string]map[string]handler{
		"config": {
			"show":  c.configShow,
			"check": c.configCheck,
		},
		"session": {
			"get":     c.sessionGet,
			"lookup":  c.sessionLookup,
			"list":    c.sessionList,
			"count":   c.sessionCount,
			"destroy": c.sessionDestroy,
		},
		"ratelimit": {
			"status": c.rateLimitStatus,
			"reset":  c.rateLimitReset,
		},
		"cache": {
			"stats":             c.cacheStats,
			"invalidate":        c.cacheInvalidate,
			"invalidate-prefix": c.cacheInvalidatePrefix,
		},
	}

	if args[0] == "health" {
		return c.healthcheck(ctx)
	}
	group, ok := commands[args[0]]
	if !ok {
		return usage("unknown command %q", args[0])
	}
	if len(args) < 2 {
		return usage("%s: missing subcommand", args[0])
	}
	run, ok := group[args[1]]
	if !ok {
		return usage("%s: unknown subcommand %q", args[0], args[1])
	}
	return run(ctx, args[2:])
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func one(args []string, name string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", usage("expected exactly one <%s>", name)
	}
	return args[0], nil
}

func (c *cli) configShow(_ context.Context, _ []string) error {
	return c.out.print(c.core.Config().MustCurrent())
}

func (c *cli) configCheck(ctx context.Context, _ []string) error {
	snap, err := c.core.Reload(ctx)
	if err != nil {
		return err
	}
	return c.out.print(map[string]any{"valid": true, "revision": snap.Revision})
}

func (c *cli) sessionGet(ctx context.Context, args []string) error {
	user, err := one(args, "user")
	if err != nil {
		return err
	}
	sess, err := c.core.Sessions().Get(ctx, user)
	if err != nil {
		return err
	}
	return c.out.print(sess)
}

func (c *cli) sessionLookup(ctx context.Context, args []string) error {
	identity, err := one(args, "identity")
	if err != nil {
		return err
	}
	sess, err := c.core.Sessions().LookupByIdentity(ctx, identity)
	if err != nil {
		return err
	}
	return c.out.print(sess)
}

func (c *cli) sessionList(ctx context.Context, _ []string) error {
	users, err := c.core.Sessions().List(ctx)
	if err != nil {
		return err
	}
	return c.out.list(users)
}

func (c *cli) sessionCount(ctx context.Context, _ []string) error {
	n, err := c.core.Sessions().Count(ctx)
	if err != nil {
		return err
	}
	return c.out.print(map[string]any{"sessions": n})
}

func (c *cli) sessionDestroy(ctx context.Context, args []string) error {
	user, err := one(args, "user")
	if err != nil {
		return err
	}
	if err := c.core.Sessions().Destroy(ctx, user); err != nil {
		return err
	}
	return c.out.print(map[string]any{"destroyed": user})
}

func (c *cli) rateLimitStatus(ctx context.Context, args []string) error {
	user, err := one(args, "user")
	if err != nil {
		return err
	}
	d, err := c.core.Limiter().Status(ctx, user)
	if err != nil {
		return err
	}
	return c.out.print(d)
}

func (c *cli) rateLimitReset(ctx context.Context, args []string) error {
	user, err := one(args, "user")
	if err != nil {
		return err
	}
	if err := c.core.Limiter().Reset(ctx, user); err != nil {
		return err
	}
	return c.out.print(map[string]any{"reset": user})
}

func (c *cli) cacheStats(ctx context.Context, _ []string) error {
	stats, err := c.core.Cache().Stats(ctx)
	if err != nil {
		return err
	}
	return c.out.print(stats)
}

func (c *cli) cacheInvalidate(ctx context.Context, args []string) error {
	key, err := one(args, "key")
	if err != nil {
		return err
	}
	removed, err := c.core.Cache().Invalidate(ctx, key)
	if err != nil {
		return err
	}
	return c.out.print(map[string]any{"key": key, "removed": removed})
}

func (c *cli) cacheInvalidatePrefix(ctx context.Context, args []string) error {
	prefix, err := one(args, "prefix")
	if err != nil {
		return err
	}
	n, err := c.core.Cache().InvalidatePrefix(ctx, prefix)
	if err != nil {
		return err
	}
	return c.out.print(map[string]any{"prefix": prefix, "removed": n})
}

func (c *cli) healthcheck(ctx context.Context) error {
	if c.health == nil {
		return errors.New("health: no health check configured")
	}
	if err := c.health(ctx); err != nil {
		return err
	}
	return c.out.print(map[string]any{"status": "ok"})
}
