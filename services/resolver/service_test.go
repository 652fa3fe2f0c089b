package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeSource struct {
	streams      []Stream
	fetchCalls   int
	resolveCalls int
	fetchErr     error
}

func (f *fakeSource) MovieStreams(ctx context.Context, imdbID string) ([]Stream, error) {
	f.fetchCalls++
	return f.streams, f.fetchErr
}

func (f *fakeSource) ShowStreams(ctx context.Context, imdbID string, season, episode int) ([]Stream, error) {
	f.fetchCalls++
	return f.streams, f.fetchErr
}

func (f *fakeSource) Resolve(ctx context.Context, streamURL string) (string, error) {
	f.resolveCalls++
	return "https://host/final/" + streamURL, nil
}

func TestMovieMemoized(t *testing.T) {
	src := &fakeSource{streams: []Stream{{Name: "RD+ 1080p", URL: "abc"}}}
	r := New(src)

	ctx := context.Background()
	first, err := r.Movie(ctx, "tt0137523")
	if err != nil {
		t.Fatalf("Movie failed: %v", err)
	}
	second, err := r.Movie(ctx, "tt0137523")
	if err != nil {
		t.Fatalf("second Movie failed: %v", err)
	}
	if first != second || first != "https://host/final/abc" {
		t.Errorf("unexpected URLs: %q, %q", first, second)
	}
	if src.fetchCalls != 1 || src.resolveCalls != 1 {
		t.Errorf("expected single upstream round trip, got fetch=%d resolve=%d", src.fetchCalls, src.resolveCalls)
	}
}

func TestShowKeyedPerEpisode(t *testing.T) {
	src := &fakeSource{streams: []Stream{{URL: "ep"}}}
	r := New(src)

	ctx := context.Background()
	if _, err := r.Show(ctx, "tt0903747", 1, 1); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if _, err := r.Show(ctx, "tt0903747", 1, 2); err != nil {
		t.Fatalf("Show failed: %v", err)
	}
	if src.fetchCalls != 2 {
		t.Errorf("distinct episodes should fetch separately, got %d fetches", src.fetchCalls)
	}
}

func TestNoStreamsNotCached(t *testing.T) {
	src := &fakeSource{}
	r := New(src)

	ctx := context.Background()
	if _, err := r.Movie(ctx, "tt0000001"); !errors.Is(err, ErrNoStreams) {
		t.Fatalf("expected ErrNoStreams, got %v", err)
	}

	src.streams = []Stream{{URL: "late"}}
	got, err := r.Movie(ctx, "tt0000001")
	if err != nil {
		t.Fatalf("Movie after streams appeared failed: %v", err)
	}
	if got != "https://host/final/late" {
		t.Errorf("unexpected URL: %q", got)
	}
	if src.fetchCalls != 2 {
		t.Errorf("failure should not be cached, got %d fetches", src.fetchCalls)
	}
}

func TestTorrentioClientURLAndResolve(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/play/") {
			http.Redirect(w, r, "/final/movie.mkv", http.StatusFound)
			return
		}
		if r.URL.Path == "/final/movie.mkv" {
			w.WriteHeader(http.StatusOK)
			return
		}
		gotPath = r.URL.RequestURI()
		fmt.Fprintf(w, `{"streams":[{"name":"RD+ 1080p","title":"Movie 1080p","url":"%s/play/1"}]}`, srvURL(r))
	}))
	defer srv.Close()

	c := NewTorrentioClient(srv.URL, "limit=10", "rd-key")
	streams, err := c.MovieStreams(context.Background(), "tt0137523")
	if err != nil {
		t.Fatalf("MovieStreams failed: %v", err)
	}
	if want := "/limit=10%7Crealdebrid=rd-key/stream/movie/tt0137523.json"; gotPath != want {
		t.Errorf("unexpected request path: %q, want %q", gotPath, want)
	}
	if len(streams) != 1 {
		t.Fatalf("expected 1 stream, got %d", len(streams))
	}

	final, err := c.Resolve(context.Background(), streams[0].URL)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !strings.HasSuffix(final, "/final/movie.mkv") {
		t.Errorf("expected redirect target, got %q", final)
	}
}

func srvURL(r *http.Request) string {
	return "http://" + r.Host
}
