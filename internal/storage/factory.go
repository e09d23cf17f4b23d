package storage

import (
	"context"
	"fmt"

	"github.com/yourname/sleepbot/internal"
	"github.com/yourname/sleepbot/internal/config"
)

// New opens the backend selected by cfg.DBType.
func New(ctx context.Context, cfg *config.Config, logger internal.Logger) (Store, error) {
	switch cfg.DBType {
	case "sqlite":
		return NewSQLiteStorage(ctx, cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStorage(ctx, cfg.DBDSN, logger)
	case "file":
		return NewFileStorage(cfg.DataFile, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.DBType)
	}
}
