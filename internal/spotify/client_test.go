package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// testClient points a client at an httptest server with a fast retry policy
// and an effectively unlimited rate limiter.
func testClient(srv *httptest.Server, policy RetryPolicy) *Client {
	if policy.MaxAttempts == 0 {
		policy = RetryPolicy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 5 * time.Millisecond}
	}
	c := newClient(srv.Client(), Config{
		RequestsPerSecond: 1000,
		Burst:             100,
		Retry:             policy,
	})
	c.baseURL = srv.URL
	return c
}

func TestFetchTracksMergesAudioFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks":
			fmt.Fprint(w, `{"tracks":[
				{"id":"t1","name":"One","duration_ms":201000,"popularity":64,
				 "artists":[{"id":"a1","name":"Alpha"},{"id":"a2","name":"Beta"}],
				 "album":{"id":"al1","name":"First"}},
				null,
				{"id":"t3","name":"Three","duration_ms":95000,
				 "artists":[{"id":"a1","name":"Alpha"}],
				 "album":{"id":"al2","name":"Second"}}
			]}`)
		case "/audio-features":
			fmt.Fprint(w, `{"audio_features":[
				{"id":"t1","danceability":0.7,"energy":0.8,"key":1,"mode":0,"tempo":120.5,"valence":0.4,"time_signature":4},
				null
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{})
	tracks, missing, err := c.FetchTracks(context.Background(), []string{"t1", "t2", "t3"})
	if err != nil {
		t.Fatalf("FetchTracks() error = %v", err)
	}

	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if len(missing) != 1 || missing[0] != "t2" {
		t.Errorf("missing = %v, want [t2]", missing)
	}

	t1 := tracks["t1"]
	if t1.Name != "One" || t1.Album != "First" || t1.AlbumID != "al1" {
		t.Errorf("unexpected t1 metadata: %+v", t1)
	}
	if len(t1.Artists) != 2 || t1.Artists[0] != "Alpha" || t1.ArtistIDs[1] != "a2" {
		t.Errorf("unexpected t1 artists: %v / %v", t1.Artists, t1.ArtistIDs)
	}
	if t1.Features == nil {
		t.Fatal("t1.Features = nil, want merged audio features")
	}
	if t1.Features.Key != 1 || t1.Features.Mode != 0 || t1.Features.Tempo != 120.5 {
		t.Errorf("unexpected t1 features: %+v", t1.Features)
	}

	// t3 resolved but has no analysis data.
	if tracks["t3"].Features != nil {
		t.Errorf("t3.Features = %+v, want nil", tracks["t3"].Features)
	}
}

func TestFetchTracksRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tracks" && calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		switch r.URL.Path {
		case "/tracks":
			fmt.Fprint(w, `{"tracks":[{"id":"t1","name":"One","artists":[],"album":{}}]}`)
		case "/audio-features":
			fmt.Fprint(w, `{"audio_features":[null]}`)
		}
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{})
	tracks, _, err := c.FetchTracks(context.Background(), []string{"t1"})
	if err != nil {
		t.Fatalf("FetchTracks() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Errorf("got %d tracks, want 1", len(tracks))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("tracks endpoint called %d times, want 2", got)
	}
}

func TestFetchTracksExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{MaxAttempts: 3, BackoffMin: time.Millisecond, BackoffMax: 2 * time.Millisecond})
	_, _, err := c.FetchTracks(context.Background(), []string{"t1"})
	if !errors.Is(err, ErrExhaustedRetries) {
		t.Fatalf("FetchTracks() error = %v, want ErrExhaustedRetries", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server called %d times, want 3", got)
	}
}

func TestFetchTracksAuthErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"status":401,"message":"Invalid access token"}}`)
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{})
	_, _, err := c.FetchTracks(context.Background(), []string{"t1"})
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("FetchTracks() error = %v, want ErrAuth", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server called %d times, want 1", got)
	}
}

func TestFetchTracksBadRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"status":400,"message":"invalid id"}}`)
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{})
	_, _, err := c.FetchTracks(context.Background(), []string{"t1"})
	if !errors.Is(err, ErrBadRequest) {
		t.Fatalf("FetchTracks() error = %v, want ErrBadRequest", err)
	}
}

func TestFetchTracksBatchLimit(t *testing.T) {
	c := newClient(http.DefaultClient, Config{})

	ids := make([]string, MaxTracksPerRequest+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
	}
	_, _, err := c.FetchTracks(context.Background(), ids)
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Errorf("FetchTracks() error = %v, want ErrBatchTooLarge", err)
	}

	// Empty input never hits the network.
	tracks, missing, err := c.FetchTracks(context.Background(), nil)
	if err != nil || len(tracks) != 0 || missing != nil {
		t.Errorf("FetchTracks(nil) = %v, %v, %v; want empty", tracks, missing, err)
	}
}

func TestFetchArtists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/artists" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"artists":[
			{"id":"a1","name":"Alpha","genres":["indie rock","shoegaze"],"popularity":55},
			null
		]}`)
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{})
	artists, missing, err := c.FetchArtists(context.Background(), []string{"a1", "a2"})
	if err != nil {
		t.Fatalf("FetchArtists() error = %v", err)
	}
	if len(artists) != 1 {
		t.Fatalf("got %d artists, want 1", len(artists))
	}
	if len(missing) != 1 || missing[0] != "a2" {
		t.Errorf("missing = %v, want [a2]", missing)
	}
	a1 := artists["a1"]
	if a1.Name != "Alpha" || len(a1.Genres) != 2 || a1.Genres[0] != "indie rock" {
		t.Errorf("unexpected artist: %+v", a1)
	}
}

func TestFetchTracksContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := testClient(srv, RetryPolicy{MaxAttempts: 5, BackoffMin: time.Second, BackoffMax: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, _, err := c.FetchTracks(ctx, []string{"t1"})
	if err == nil {
		t.Fatal("FetchTracks() succeeded, want context error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchTracks() error = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %v, should not wait out the Retry-After delay", elapsed)
	}
}
