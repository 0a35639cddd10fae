// Package cli wires the cobra commands for the spotify-history-enricher
// binary.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/eviatarm/go-spotify-history-enricher/internal/config"
)

var (
	cfgFile string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "spotify-history-enricher",
	Short: "Enrich exported Spotify listening history with track metadata",
	Long: `Loads a Spotify extended streaming history export, fetches track and
artist metadata from the Spotify Web API with a Postgres-backed cache,
and produces enriched reports and CSV exports.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			cfg := zap.NewProductionConfig()
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
			logger, err = cfg.Build()
		}
		return err
	},
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Sync()
	}
	if err != nil {
		os.Stderr.WriteString("error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("data-dir", "", "directory containing endsong_*.json exports")
	rootCmd.PersistentFlags().String("database-url", "", "Postgres connection string")

	_ = viper.BindPFlag("history.data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	config.BindEnv()
	config.SetDefaults()

	if err := viper.ReadInConfig(); err == nil && verbose {
		os.Stderr.WriteString("using config file: " + viper.ConfigFileUsed() + "\n")
	}
}
