// Command spotify-history-enricher enriches an exported Spotify listening
// history with track and artist metadata.
package main

import (
	"github.com/joho/godotenv"

	"github.com/eviatarm/go-spotify-history-enricher/internal/cli"
)

func main() {
	// A missing .env file is fine, the environment may be set directly.
	_ = godotenv.Load()
	cli.Execute()
}
