package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/eventwindow/eventwindow/internal/config"
	"github.com/eventwindow/eventwindow/internal/core/store"
	errwrap "github.com/eventwindow/eventwindow/internal/errors"
)

// openStore opens and migrates the run history store.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// openHistory loads config and opens the store for the history commands.
func openHistory(cmd *cobra.Command) (*store.Store, error) {
	ctx := cmd.Context()
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, errwrap.WrapConfigInvalid(ctx, err, "failed to load configuration")
	}
	db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, errwrap.WrapDatabaseError(ctx, err, "run history store unavailable")
	}
	return db, nil
}
