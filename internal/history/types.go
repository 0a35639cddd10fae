package history

import "time"

// Event is a single playback record from the extended streaming history
// export, reduced to the fields the enrichment pipeline and reports use.
// Privacy columns from the raw export (username, IP address, user agent)
// are dropped at load time.
type Event struct {
	Timestamp   time.Time `json:"ts"`
	TrackID     string    `json:"track_id"`
	TrackName   string    `json:"track_name"`
	ArtistName  string    `json:"artist_name"`
	AlbumName   string    `json:"album_name"`
	MsPlayed    int64     `json:"ms_played"`
	Platform    string    `json:"platform,omitempty"`
	ConnCountry string    `json:"conn_country,omitempty"`
	Shuffle     bool      `json:"shuffle,omitempty"`
	Skipped     bool      `json:"skipped,omitempty"`
	Incognito   bool      `json:"incognito,omitempty"`
}

// PlayDuration returns the played portion of the event as a duration.
func (e Event) PlayDuration() time.Duration {
	return time.Duration(e.MsPlayed) * time.Millisecond
}

// rawRecord mirrors one JSON object in an endsong export file. Extra fields
// in the export are ignored by the decoder.
type rawRecord struct {
	Ts            string `json:"ts"`
	MsPlayed      *int64 `json:"ms_played"`
	TrackURI      string `json:"spotify_track_uri"`
	EpisodeURI    string `json:"spotify_episode_uri"`
	TrackName     string `json:"master_metadata_track_name"`
	ArtistName    string `json:"master_metadata_album_artist_name"`
	AlbumName     string `json:"master_metadata_album_album_name"`
	Platform      string `json:"platform"`
	ConnCountry   string `json:"conn_country"`
	Shuffle       bool   `json:"shuffle"`
	Skipped       *bool  `json:"skipped"`
	IncognitoMode bool   `json:"incognito_mode"`
}
