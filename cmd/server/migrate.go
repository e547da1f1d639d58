package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/config"
	"github.com/iliyamo/book-exchange/internal/database"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.StoreDriver != config.DriverMySQL {
		return errors.New("migrate needs STORE_DRIVER=mysql")
	}
	db, err := database.Open(cmd.Context(), dbOptions(cfg))
	if err != nil {
		log.Error("database connection failed", zap.Error(err))
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		log.Error("migration failed", zap.Error(err))
		return err
	}
	log.Info("schema is up to date", zap.String("db", cfg.DBName))
	return nil
}
