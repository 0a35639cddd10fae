package cli

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eviatarm/go-spotify-history-enricher/internal/config"
	"github.com/eviatarm/go-spotify-history-enricher/internal/db"
	"github.com/eviatarm/go-spotify-history-enricher/internal/enrich"
	"github.com/eviatarm/go-spotify-history-enricher/internal/history"
	"github.com/eviatarm/go-spotify-history-enricher/internal/spotify"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Fetch metadata for every track in the history export",
	Long: `Loads the streaming history, resolves every distinct track through the
cache and the Spotify Web API, then resolves the artists behind those
tracks for genre data. Progress is persisted as it happens, so an
interrupted run picks up where it left off.`,
	RunE: runEnrich,
}

func init() {
	rootCmd.AddCommand(enrichCmd)
}

func runEnrich(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.RequireAPI(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hist, err := history.Load(cfg.History.DataDir, logger)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	fmt.Printf("Loaded %d plays (%d distinct tracks) from %s\n",
		hist.Len(), len(hist.DistinctTrackIDs()), cfg.History.DataDir)

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}

	client := spotify.NewClient(ctx, spotify.Config{
		ClientID:          cfg.Spotify.ClientID,
		ClientSecret:      cfg.Spotify.ClientSecret,
		RequestsPerSecond: cfg.Fetch.RateLimit,
		Burst:             cfg.Fetch.RateBurst,
		FeaturesBatchSize: cfg.Fetch.FeaturesBatchSize,
		Timeout:           cfg.Fetch.Timeout,
		Retry: spotify.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxAttempts,
			BackoffMin:  cfg.Fetch.BackoffMin,
			BackoffMax:  cfg.Fetch.BackoffMax,
		},
		Logger: logger,
	})

	opts := []enrich.Option{enrich.WithProgress(stageProgress())}
	if cfg.Fetch.MetricsAddr != "" {
		opts = append(opts, enrich.WithMetrics(enrich.NewMetrics()))
		go serveMetrics(cfg.Fetch.MetricsAddr)
	}

	pipeline := enrich.New(database, client, enrich.Config{
		Workers:            cfg.Fetch.Workers,
		TrackBatchSize:     cfg.Fetch.TrackBatchSize,
		ArtistBatchSize:    cfg.Fetch.ArtistBatchSize,
		CacheTTL:           cfg.Cache.TTL,
		RetryNotFound:      cfg.Retry.NotFound,
		MaxFailureAttempts: cfg.Retry.MaxAttempts,
	}, logger, opts...)

	report, err := pipeline.Run(ctx, hist)
	if err != nil {
		return fmt.Errorf("enrichment run: %w", err)
	}

	printReport(report)
	return nil
}

// stageProgress renders one bar per pipeline stage, recreating the bar
// when the stage changes.
func stageProgress() func(stage string, done, total int) {
	var bar *progressbar.ProgressBar
	var current string
	return func(stage string, done, total int) {
		if total == 0 {
			return
		}
		if bar == nil || current != stage {
			if bar != nil {
				_ = bar.Finish()
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("resolving "+stage+"s"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
			current = stage
		}
		_ = bar.Set(done)
	}
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics listener stopped", zap.Error(err))
	}
}

func printReport(r *enrich.Report) {
	fmt.Printf("\nRun %s finished in %dms\n", r.RunID, r.DurationMs)
	fmt.Printf("Tracks:  %d total, %d cached, %d resolved, %d failed\n",
		r.TotalTracks, r.TrackCacheHits, r.TracksResolved, r.TracksFailed)
	fmt.Printf("Artists: %d total, %d cached, %d resolved, %d failed\n",
		r.TotalArtists, r.ArtistCacheHits, r.ArtistsResolved, r.ArtistsFailed)
	if len(r.Unresolved) > 0 {
		fmt.Printf("Unresolved IDs: %d (run again to retry, see `report` for details)\n", len(r.Unresolved))
	}
}
