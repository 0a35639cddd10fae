package spotify

// TrackMetadata is the enriched record for one track: naming, artists and
// audio features merged from the tracks and audio-features endpoints.
type TrackMetadata struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Artists    []string       `json:"artists"`
	ArtistIDs  []string       `json:"artist_ids"`
	Album      string         `json:"album"`
	AlbumID    string         `json:"album_id"`
	DurationMs int            `json:"duration_ms"`
	Popularity int            `json:"popularity"`
	Features   *AudioFeatures `json:"features,omitempty"`
}

// AudioFeatures holds the analysis fields for a track. Not every track has
// them; Features stays nil in that case.
type AudioFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Mode             int     `json:"mode"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
}

// ArtistMetadata is the enriched record for one artist; genres live here,
// not on tracks.
type ArtistMetadata struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
}

// Wire types for the Web API responses. Unknown identifiers come back as
// null entries, which is how per-item not-found is signaled.

type trackObject struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMs int    `json:"duration_ms"`
	Popularity int    `json:"popularity"`
	Artists    []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"album"`
}

type tracksResponse struct {
	Tracks []*trackObject `json:"tracks"`
}

type audioFeaturesObject struct {
	ID               string  `json:"id"`
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Key              int     `json:"key"`
	Mode             int     `json:"mode"`
	Loudness         float64 `json:"loudness"`
	Speechiness      float64 `json:"speechiness"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Liveness         float64 `json:"liveness"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	TimeSignature    int     `json:"time_signature"`
}

type audioFeaturesResponse struct {
	AudioFeatures []*audioFeaturesObject `json:"audio_features"`
}

type artistObject struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Genres     []string `json:"genres"`
	Popularity int      `json:"popularity"`
}

type artistsResponse struct {
	Artists []*artistObject `json:"artists"`
}

type apiErrorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}
