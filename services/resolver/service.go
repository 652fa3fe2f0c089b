package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// ErrNoStreams means Torrentio returned no playable candidate for a title.
var ErrNoStreams = errors.New("resolver: no streams available")

// StreamSource lists and resolves stream candidates. *TorrentioClient is the
// production implementation.
type StreamSource interface {
	MovieStreams(ctx context.Context, imdbID string) ([]Stream, error)
	ShowStreams(ctx context.Context, imdbID string, season, episode int) ([]Stream, error)
	Resolve(ctx context.Context, streamURL string) (string, error)
}

// Resolver memoizes resolved stream URLs per title. Lookups never expire
// within a process lifetime; a restart clears the cache.
type Resolver struct {
	source StreamSource

	mu    sync.Mutex
	cache map[string]string
}

// New creates a Resolver backed by source.
func New(source StreamSource) *Resolver {
	return &Resolver{
		source: source,
		cache:  make(map[string]string),
	}
}

// Movie returns a playable URL for a movie. Failures are not cached, so a
// title that gains a cached release later resolves on a subsequent request.
func (r *Resolver) Movie(ctx context.Context, imdbID string) (string, error) {
	return r.resolve(ctx, imdbID, func(ctx context.Context) ([]Stream, error) {
		return r.source.MovieStreams(ctx, imdbID)
	})
}

// Show returns a playable URL for one episode of a series.
func (r *Resolver) Show(ctx context.Context, imdbID string, season, episode int) (string, error) {
	key := fmt.Sprintf("%s|%d|%d", imdbID, season, episode)
	return r.resolve(ctx, key, func(ctx context.Context) ([]Stream, error) {
		return r.source.ShowStreams(ctx, imdbID, season, episode)
	})
}

func (r *Resolver) resolve(ctx context.Context, key string, fetch func(context.Context) ([]Stream, error)) (string, error) {
	r.mu.Lock()
	if u, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return u, nil
	}
	r.mu.Unlock()

	streams, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	if len(streams) == 0 {
		return "", fmt.Errorf("%w for %s", ErrNoStreams, key)
	}

	best := streams[0]
	resolved, err := r.source.Resolve(ctx, best.URL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", key, err)
	}
	log.Printf("[resolver] %s -> %s", key, best.Name)

	r.mu.Lock()
	r.cache[key] = resolved
	r.mu.Unlock()
	return resolved, nil
}
