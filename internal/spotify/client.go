// Package spotify is a rate-limited batch client for the Spotify Web API
// metadata endpoints. Authentication uses the client-credentials flow; the
// oauth2 transport refreshes tokens transparently.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.spotify.com/v1"
	tokenURL       = "https://accounts.spotify.com/api/token" //nolint:gosec

	// Per-request identifier limits of the batch endpoints.
	MaxTracksPerRequest        = 50
	MaxArtistsPerRequest       = 50
	MaxAudioFeaturesPerRequest = 100
)

// Config holds client construction parameters. Rate and retry values come
// from configuration, not constants, so operators can adapt to their own
// API quota.
type Config struct {
	ClientID     string
	ClientSecret string

	// RequestsPerSecond and Burst shape the token-bucket limiter gating
	// every HTTP call.
	RequestsPerSecond float64
	Burst             int

	// FeaturesBatchSize is the audio-features chunk size, capped at
	// MaxAudioFeaturesPerRequest.
	FeaturesBatchSize int

	Timeout time.Duration
	Retry   RetryPolicy
	Logger  *zap.Logger
}

// Client issues batched metadata lookups with rate limiting and retries.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	limiter       *rate.Limiter
	retry         RetryPolicy
	featuresBatch int
	logger        *zap.Logger
}

// NewClient creates an authenticated client. The context is used for token
// refresh requests for the lifetime of the client.
func NewClient(ctx context.Context, cfg Config) *Client {
	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
	}

	httpClient := creds.Client(ctx)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return newClient(httpClient, cfg)
}

// newClient wires a client around an existing HTTP client. Tests use it to
// point at an httptest server.
func newClient(httpClient *http.Client, cfg Config) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy
	}
	if cfg.FeaturesBatchSize <= 0 || cfg.FeaturesBatchSize > MaxAudioFeaturesPerRequest {
		cfg.FeaturesBatchSize = MaxAudioFeaturesPerRequest
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		httpClient:    httpClient,
		baseURL:       defaultBaseURL,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		retry:         cfg.Retry,
		featuresBatch: cfg.FeaturesBatchSize,
		logger:        logger,
	}
}

// FetchTracks resolves up to MaxTracksPerRequest track IDs into full
// metadata, merging the tracks and audio-features endpoints. The second
// return value lists identifiers the API did not recognize, preserving
// input order. The caller is responsible for chunking.
func (c *Client) FetchTracks(ctx context.Context, ids []string) (map[string]TrackMetadata, []string, error) {
	if len(ids) == 0 {
		return map[string]TrackMetadata{}, nil, nil
	}
	if len(ids) > MaxTracksPerRequest {
		return nil, nil, fmt.Errorf("%w: %d track ids, max %d", ErrBatchTooLarge, len(ids), MaxTracksPerRequest)
	}

	query := url.Values{"ids": {strings.Join(ids, ",")}}
	var tr tracksResponse
	if err := c.getJSON(ctx, "/tracks", query, &tr); err != nil {
		return nil, nil, fmt.Errorf("fetching tracks: %w", err)
	}

	result := make(map[string]TrackMetadata, len(tr.Tracks))
	for _, obj := range tr.Tracks {
		if obj == nil {
			continue
		}
		meta := TrackMetadata{
			ID:         obj.ID,
			Name:       obj.Name,
			Album:      obj.Album.Name,
			AlbumID:    obj.Album.ID,
			DurationMs: obj.DurationMs,
			Popularity: obj.Popularity,
		}
		for _, a := range obj.Artists {
			meta.Artists = append(meta.Artists, a.Name)
			meta.ArtistIDs = append(meta.ArtistIDs, a.ID)
		}
		result[obj.ID] = meta
	}

	if err := c.attachAudioFeatures(ctx, result); err != nil {
		return nil, nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	return result, missing, nil
}

// attachAudioFeatures fills in Features for every resolved track. Tracks
// without analysis data come back as null entries and keep a nil Features.
func (c *Client) attachAudioFeatures(ctx context.Context, tracks map[string]TrackMetadata) error {
	if len(tracks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(tracks))
	for id := range tracks {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += c.featuresBatch {
		end := min(start+c.featuresBatch, len(ids))

		query := url.Values{"ids": {strings.Join(ids[start:end], ",")}}
		var fr audioFeaturesResponse
		if err := c.getJSON(ctx, "/audio-features", query, &fr); err != nil {
			return fmt.Errorf("fetching audio features: %w", err)
		}

		for _, obj := range fr.AudioFeatures {
			if obj == nil {
				continue
			}
			meta, ok := tracks[obj.ID]
			if !ok {
				continue
			}
			meta.Features = &AudioFeatures{
				Danceability:     obj.Danceability,
				Energy:           obj.Energy,
				Key:              obj.Key,
				Mode:             obj.Mode,
				Loudness:         obj.Loudness,
				Speechiness:      obj.Speechiness,
				Acousticness:     obj.Acousticness,
				Instrumentalness: obj.Instrumentalness,
				Liveness:         obj.Liveness,
				Valence:          obj.Valence,
				Tempo:            obj.Tempo,
				TimeSignature:    obj.TimeSignature,
			}
			tracks[obj.ID] = meta
		}
	}
	return nil
}

// FetchArtists resolves up to MaxArtistsPerRequest artist IDs. The second
// return value lists unrecognized identifiers in input order.
func (c *Client) FetchArtists(ctx context.Context, ids []string) (map[string]ArtistMetadata, []string, error) {
	if len(ids) == 0 {
		return map[string]ArtistMetadata{}, nil, nil
	}
	if len(ids) > MaxArtistsPerRequest {
		return nil, nil, fmt.Errorf("%w: %d artist ids, max %d", ErrBatchTooLarge, len(ids), MaxArtistsPerRequest)
	}

	query := url.Values{"ids": {strings.Join(ids, ",")}}
	var ar artistsResponse
	if err := c.getJSON(ctx, "/artists", query, &ar); err != nil {
		return nil, nil, fmt.Errorf("fetching artists: %w", err)
	}

	result := make(map[string]ArtistMetadata, len(ar.Artists))
	for _, obj := range ar.Artists {
		if obj == nil {
			continue
		}
		result[obj.ID] = ArtistMetadata{
			ID:         obj.ID,
			Name:       obj.Name,
			Genres:     obj.Genres,
			Popularity: obj.Popularity,
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	return result, missing, nil
}

// getJSON performs a GET with rate limiting and the retry state machine.
func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	reqURL := c.baseURL + endpoint + "?" + query.Encode()
	state := c.retry.newState()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		err := c.doSingleRequest(ctx, reqURL, out)
		if err == nil {
			return nil
		}

		delay, retry := state.Next(err)
		if !retry {
			if isTransient(err) {
				return fmt.Errorf("%w after %d attempts: %v", ErrExhaustedRetries, state.Attempts(), err)
			}
			return err
		}

		c.logger.Warn("retrying request",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", state.Attempts()),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// doSingleRequest performs one HTTP round trip and maps the response onto
// the error taxonomy.
func (c *Client) doSingleRequest(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return fmt.Errorf("%w: token request failed with status %d", ErrAuth, retrieveErr.Response.StatusCode)
		}
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parsing response: %w", err)
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrAuth, apiMessage(body, resp.StatusCode))

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: retryAfter(resp)}

	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, apiMessage(body, resp.StatusCode))

	default:
		return &APIError{Status: resp.StatusCode, Message: apiMessage(body, resp.StatusCode)}
	}
}

// retryAfter parses the Retry-After header, defaulting to one second when
// the server does not send one.
func retryAfter(resp *http.Response) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return time.Second
}

func apiMessage(body []byte, status int) string {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return http.StatusText(status)
}
