// Package config loads runtime configuration from a config file and
// environment variables via viper. Rate limits, retry counts and cache
// staleness are deliberately configuration, not constants.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Common errors.
var (
	ErrMissingDatabaseURL = errors.New("missing database_url (or DATABASE_URL)")
	ErrMissingCredentials = errors.New("missing spotify.client_id / spotify.client_secret (or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET)")
)

// Config is the resolved runtime configuration.
type Config struct {
	DatabaseURL string

	Spotify struct {
		ClientID     string
		ClientSecret string
	}

	History struct {
		DataDir string
	}

	Fetch struct {
		Workers           int
		TrackBatchSize    int
		ArtistBatchSize   int
		FeaturesBatchSize int
		RateLimit         float64 // requests per second
		RateBurst         int
		MaxAttempts       int
		BackoffMin        time.Duration
		BackoffMax        time.Duration
		Timeout           time.Duration
		MetricsAddr       string // empty disables the metrics listener
	}

	Cache struct {
		TTL time.Duration // zero means entries never go stale
	}

	Retry struct {
		NotFound    bool
		MaxAttempts int // attempts across runs before an ID is held
	}

	Export struct {
		Dir string
	}

	Serve struct {
		Addr string
	}
}

// SetDefaults registers every configuration default with viper.
func SetDefaults() {
	viper.SetDefault("history.data_dir", "data")
	viper.SetDefault("fetch.workers", 4)
	viper.SetDefault("fetch.track_batch_size", 50)
	viper.SetDefault("fetch.artist_batch_size", 50)
	viper.SetDefault("fetch.features_batch_size", 100)
	viper.SetDefault("fetch.rate_limit", 5.0)
	viper.SetDefault("fetch.rate_burst", 5)
	viper.SetDefault("fetch.max_attempts", 4)
	viper.SetDefault("fetch.backoff_min", "1s")
	viper.SetDefault("fetch.backoff_max", "30s")
	viper.SetDefault("fetch.timeout", "10s")
	viper.SetDefault("fetch.metrics_addr", "")
	viper.SetDefault("cache.ttl", "0")
	viper.SetDefault("retry.not_found", false)
	viper.SetDefault("retry.max_attempts", 5)
	viper.SetDefault("export.dir", "exports")
	viper.SetDefault("serve.addr", "127.0.0.1:8080")
}

// BindEnv wires environment variable lookups: dots become underscores, so
// spotify.client_id resolves from SPOTIFY_CLIENT_ID.
func BindEnv() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// Load reads the resolved configuration out of viper.
func Load() *Config {
	var cfg Config
	cfg.DatabaseURL = viper.GetString("database_url")
	cfg.Spotify.ClientID = viper.GetString("spotify.client_id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify.client_secret")
	cfg.History.DataDir = viper.GetString("history.data_dir")
	cfg.Fetch.Workers = viper.GetInt("fetch.workers")
	cfg.Fetch.TrackBatchSize = viper.GetInt("fetch.track_batch_size")
	cfg.Fetch.ArtistBatchSize = viper.GetInt("fetch.artist_batch_size")
	cfg.Fetch.FeaturesBatchSize = viper.GetInt("fetch.features_batch_size")
	cfg.Fetch.RateLimit = viper.GetFloat64("fetch.rate_limit")
	cfg.Fetch.RateBurst = viper.GetInt("fetch.rate_burst")
	cfg.Fetch.MaxAttempts = viper.GetInt("fetch.max_attempts")
	cfg.Fetch.BackoffMin = viper.GetDuration("fetch.backoff_min")
	cfg.Fetch.BackoffMax = viper.GetDuration("fetch.backoff_max")
	cfg.Fetch.Timeout = viper.GetDuration("fetch.timeout")
	cfg.Fetch.MetricsAddr = viper.GetString("fetch.metrics_addr")
	cfg.Cache.TTL = viper.GetDuration("cache.ttl")
	cfg.Retry.NotFound = viper.GetBool("retry.not_found")
	cfg.Retry.MaxAttempts = viper.GetInt("retry.max_attempts")
	cfg.Export.Dir = viper.GetString("export.dir")
	cfg.Serve.Addr = viper.GetString("serve.addr")
	return &cfg
}

// RequireDatabase validates the settings every cache-touching command
// needs.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// RequireAPI validates the settings the enrich command needs on top of the
// database.
func (c *Config) RequireAPI() error {
	if err := c.RequireDatabase(); err != nil {
		return err
	}
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
		return ErrMissingCredentials
	}
	return nil
}
