package cli

import (
	"context"
	"fmt"

	"github.com/lazypower/rapport/internal/dynamo"
	"github.com/lazypower/rapport/internal/engine"
	"github.com/lazypower/rapport/internal/server"
	"github.com/lazypower/rapport/internal/store"
)

// openBackend opens the configured store. The returned close func is never nil.
func openBackend(ctx context.Context) (server.Backend, string, func() error, error) {
	switch cfg.Database.Driver {
	case "dynamodb":
		s, err := dynamo.New(ctx, cfg.Dynamo, logger)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open dynamodb: %w", err)
		}
		desc := "dynamodb " + cfg.Dynamo.InteractionsTable
		return s, desc, func() error { return nil }, nil
	default:
		dbPath := cfg.Database.Path
		if dbPath == "" {
			var err error
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				return nil, "", nil, fmt.Errorf("resolve db path: %w", err)
			}
		}
		db, err := store.Open(dbPath)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open database: %w", err)
		}
		return db, "sqlite " + dbPath, db.Close, nil
	}
}

// openEngine opens the backend and an engine reading from it.
func openEngine(ctx context.Context) (*engine.Engine, server.Backend, func() error, error) {
	b, _, closeFn, err := openBackend(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine.New(b, cfg.Scoring, engine.WithLogger(logger)), b, closeFn, nil
}
