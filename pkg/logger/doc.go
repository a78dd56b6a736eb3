// Package logger builds *slog.Logger values for the session, rate limit and
// cache layers and keeps their attribute names consistent.
//
// New assembles a JSON or text handler from Option values and wraps it in a
// LogHandlerDecorator, which runs every registered ContextExtractor on each
// record. NewFromConfig does the same from a Config parsed out of the
// environment (LOG_LEVEL, LOG_FORMAT, APP_ENV, SERVICE_NAME) and always
// extracts the user stored with WithUserID:
//
//	var cfg logger.Config
//	config.MustLoad(&cfg)
//
//	log := logger.NewFromConfig(cfg)
//	logger.SetAsDefault(log)
//
//	ctx := logger.WithUserID(ctx, "user-42")
//	log.InfoContext(ctx, "session transition",
//	    logger.Transition("authenticated", "browse_orders", "browsing_orders"))
//
// WithEnvironment picks the level and format for development (debug, text),
// staging and production (info, JSON). Explicit WithLevel, WithLevelName and
// WithFormat options applied after it take precedence.
//
// Error returns an empty attribute for a nil error, so
//
//	log.Info("cache refreshed", logger.Error(err))
//
// needs no nil check.
package logger
