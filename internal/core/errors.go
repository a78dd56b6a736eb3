package core

import "errors"

var (
	// ErrMaintenance indicates the bot is in maintenance mode and admits nobody.
	ErrMaintenance = errors.New("core.maintenance")
	ErrNoStore     = errors.New("core.no_store")
)
