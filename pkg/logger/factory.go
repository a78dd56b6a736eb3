package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Environment names understood by WithEnvironment. "prod" and "stage" are
// accepted as aliases.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config describes the logger through environment variables.
type Config struct {
	Level   string `env:"LOG_LEVEL" envDefault:"info"`
	Format  Format `env:"LOG_FORMAT"`
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"SERVICE_NAME" envDefault:"supportcore"`
}

// Format is the record encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// profile holds the defaults applied for one deployment environment.
type profile struct {
	name   string
	level  slog.Level
	format Format
}

var profiles = map[string]profile{
	EnvDevelopment: {EnvDevelopment, slog.LevelDebug, FormatText},
	EnvStaging:     {EnvStaging, slog.LevelInfo, FormatJSON},
	"stage":        {EnvStaging, slog.LevelInfo, FormatJSON},
	EnvProduction:  {EnvProduction, slog.LevelInfo, FormatJSON},
	"prod":         {EnvProduction, slog.LevelInfo, FormatJSON},
}

// Option configures logger creation.
type Option func(*config)

type config struct {
	level          slog.Level
	format         Format
	output         io.Writer
	attrs          []slog.Attr
	handlerOptions *slog.HandlerOptions
	extractors     []ContextExtractor
}

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithLevelName parses "debug", "info", "warn" or "error".
// Unknown names leave the level unchanged.
func WithLevelName(name string) Option {
	return func(c *config) {
		var level slog.Level
		if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err == nil {
			c.level = level
		}
	}
}

// WithFormat sets the encoding. An unknown format panics: a logger is built
// once at startup and a typo there should stop the process.
func WithFormat(f Format) Option {
	return func(c *config) {
		switch f {
		case FormatJSON, FormatText:
			c.format = f
		default:
			panic(fmt.Errorf("logger: invalid format %q, want %q or %q", f, FormatJSON, FormatText))
		}
	}
}

// WithOutput sets the destination. Nil is ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithHandlerOptions replaces the slog handler options, including the level.
func WithHandlerOptions(opts *slog.HandlerOptions) Option {
	return func(c *config) {
		if opts != nil {
			c.handlerOptions = opts
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithContextExtractors registers functions that add attributes from the
// context of each log call. Nil extractors are ignored.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithEnvironment applies the level and format defaults of env and tags every
// record with "service" and "env". Unknown environments fall back to development.
func WithEnvironment(env, service string) Option {
	return func(c *config) {
		p, ok := profiles[strings.ToLower(strings.TrimSpace(env))]
		if !ok {
			p = profiles[EnvDevelopment]
		}
		c.level = p.level
		c.format = p.format
		if service != "" {
			c.attrs = append(c.attrs, slog.String("service", service))
		}
		c.attrs = append(c.attrs, slog.String("env", p.name))
	}
}

// NewFromConfig builds a logger from environment settings. The level and
// format from cfg override the environment defaults, and user IDs stored with
// WithUserID are always extracted from context.
func NewFromConfig(cfg Config, opts ...Option) *slog.Logger {
	base := []Option{WithEnvironment(cfg.Env, cfg.Service)}
	if cfg.Level != "" {
		base = append(base, WithLevelName(cfg.Level))
	}
	if cfg.Format != "" {
		base = append(base, WithFormat(cfg.Format))
	}
	base = append(base, WithContextExtractors(UserIDExtractor))
	return New(append(base, opts...)...)
}

func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// New creates a logger writing JSON at info level to stdout unless options
// say otherwise.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := cfg.handlerOptions
	if handlerOpts == nil {
		handlerOpts = &slog.HandlerOptions{Level: cfg.level}
	}

	var handler slog.Handler
	if cfg.format == FormatText {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}
	return slog.New(NewLogHandlerDecorator(handler, cfg.extractors...))
}
