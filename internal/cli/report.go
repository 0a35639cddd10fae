package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eviatarm/go-spotify-history-enricher/internal/config"
	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
)

var reportFailures bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the most recent enrichment run report",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().BoolVar(&reportFailures, "failures", false, "also list every unresolved ID in the cache")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx := cmd.Context()
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	run, err := database.Runs().Latest(ctx)
	if errors.Is(err, db.ErrNotFound) {
		fmt.Println("No enrichment runs recorded yet. Run `enrich` first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading latest run: %w", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, run.Report, "", "  "); err != nil {
		return fmt.Errorf("formatting report: %w", err)
	}
	fmt.Println(pretty.String())

	if reportFailures {
		failures, err := database.Failures().All(ctx)
		if err != nil {
			return fmt.Errorf("loading failures: %w", err)
		}
		if len(failures) == 0 {
			fmt.Println("No unresolved IDs.")
			return nil
		}
		fmt.Printf("\n%-30s %-8s %-20s %s\n", "ID", "KIND", "REASON", "ATTEMPTS")
		for _, f := range failures {
			fmt.Printf("%-30s %-8s %-20s %d\n", f.ID, f.Kind, f.Reason, f.Attempts)
		}
	}
	return nil
}
