package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eviatarm/go-spotify-history-enricher/internal/config"
	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/enrich"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
)

var exportTop int

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the enriched history to a timestamped CSV file",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().IntVar(&exportTop, "top", 0, "also print the N most-played tracks")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
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

	dataset, err := enrich.BuildDataset(ctx, hist, database)
	if err != nil {
		return fmt.Errorf("building dataset: %w", err)
	}

	path, err := enrich.ExportCSV(cfg.Export.Dir, dataset)
	if err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	fmt.Printf("Wrote %d rows (%d enriched, %d unenriched) to %s\n",
		len(dataset.Events), dataset.Enriched, dataset.Unenriched, path)

	if exportTop > 0 {
		counts := dataset.TimesListened()
		if exportTop < len(counts) {
			counts = counts[:exportTop]
		}
		fmt.Printf("\n%-6s %-40s %s\n", "PLAYS", "TRACK", "ARTIST")
		for _, c := range counts {
			fmt.Printf("%-6d %-40s %s\n", c.Plays, c.TrackName, c.ArtistName)
		}
	}
	return nil
}
