// Command server runs the book exchange API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/book-exchange/internal/config"
	"github.com/iliyamo/book-exchange/internal/database"
	"github.com/iliyamo/book-exchange/internal/logger"
)

func main() {
	root := &cobra.Command{
		Use:          "server",
		Short:        "Peer-to-peer book exchange API",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or update the MySQL schema",
			RunE:  runMigrate,
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and builds the logger every command needs.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.IsProd())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, log, nil
}

func dbOptions(cfg config.Config) database.Options {
	return database.Options{
		User: cfg.DBUser,
		Pass: cfg.DBPass,
		Host: cfg.DBHost,
		Port: cfg.DBPort,
		Name: cfg.DBName,
	}
}
