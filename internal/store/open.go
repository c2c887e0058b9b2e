package store

import (
	"context"
	"fmt"

	"github.com/harrison/ptw/internal/config"
)

// Open returns the Repository selected by cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (Repository, error) {
	switch cfg.Driver {
	case config.DriverFile:
		return NewFile(cfg.Path)
	case config.DriverSQLite:
		return NewSQLite(cfg.Path)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
