package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eviatarm/go-spotify-history-enricher/internal/config"
	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
	"github.com/eviatarm/go-spotify-history-enricher/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the enriched dataset and run reports over HTTP",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx := cmd.Context()
	hist, err := history.Load(cfg.History.DataDir, logger)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	server := web.NewServer(web.ServerConfig{
		Addr:    cfg.Serve.Addr,
		Backend: &web.StoreBackend{DB: database, History: hist},
		Logger:  logger,
	})
	return server.Run()
}
