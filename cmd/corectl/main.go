// Command corectl inspects and administers the shared state of running bots:
// configuration, sessions, rate limit windows and the response cache.
//
// Usage:
//
//	corectl [-env-file .env] [-json] <command> [args]
//
// Commands:
//
//	config show | check
//	session get <user> | lookup <identity> | list | count | destroy <user>
//	ratelimit status <user> | reset <user>
//	cache stats | invalidate <key> | invalidate-prefix <prefix>
//	health
//
// Redis and logger settings are read from the environment (REDIS_URL, LOG_LEVEL, ...).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrymomot/supportcore/internal/core"
	"github.com/dmitrymomot/supportcore/pkg/config"
	"github.com/dmitrymomot/supportcore/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("corectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		envFile = fs.String("env-file", "", "Load environment variables from this file first")
		asJSON  = fs.Bool("json", false, "Print results as JSON")
		timeout = fs.Duration("timeout", 30*time.Second, "Overall command timeout")
		verbose = fs.Bool("verbose", false, "Log at debug level")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: corectl [flags] <command> [args]")
		fs.PrintDefaults()
		fmt.Fprintln(stderr, commandsHelp)
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *envFile != "" {
		if err := config.LoadEnv(*envFile); err != nil {
			fmt.Fprintf(stderr, "corectl: load %s: %v\n", *envFile, err)
			return 1
		}
	}

	settings, err := core.LoadSettings()
	if err != nil {
		fmt.Fprintf(stderr, "corectl: %v\n", err)
		return 1
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logger.NewFromConfig(settings.Logger, logger.WithOutput(stderr), logger.WithLevelName(level))

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	rt, err := core.Open(ctx, settings, core.WithRuntimeLogger(log))
	if err != nil {
		fmt.Fprintf(stderr, "corectl: %v\n", err)
		return 1
	}
	defer rt.Close()

	cli := &cli{
		core:   rt.Core,
		health: rt.Healthcheck,
		out:    newPrinter(stdout, *asJSON),
	}
	if err := cli.execute(ctx, fs.Args()); err != nil {
		fmt.Fprintf(stderr, "corectl: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
