// Package resolver turns IMDb references into playable stream URLs via the
// Torrentio addon, with results memoized per title.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOptions is the Torrentio option string used when none is configured.
// Debrid-cached results only, best quality first, capped at ten candidates.
const DefaultOptions = "sizefilter=10GB|sort=qualitysize|qualityfilter=scr,cam|limit=10|debridoptions=nodownloadlinks,nocatalog"

const defaultBaseURL = "https://torrentio.strem.fun"

// Stream is one playable candidate returned by Torrentio.
type Stream struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TorrentioClient fetches debrid-resolved stream candidates from a Torrentio
// instance. The Real-Debrid key is embedded in the options path segment, so
// returned stream URLs point at Torrentio's own resolve endpoint.
type TorrentioClient struct {
	baseURL    string
	options    string
	apiKey     string
	httpClient *http.Client
}

// NewTorrentioClient constructs a client. Empty baseURL and options fall back
// to the public instance and DefaultOptions.
func NewTorrentioClient(baseURL, options, realDebridKey string) *TorrentioClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(options) == "" {
		options = DefaultOptions
	}
	return &TorrentioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		options:    options,
		apiKey:     strings.TrimSpace(realDebridKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// MovieStreams returns candidates for a movie.
func (c *TorrentioClient) MovieStreams(ctx context.Context, imdbID string) ([]Stream, error) {
	return c.fetchStreams(ctx, "movie", imdbID)
}

// ShowStreams returns candidates for one episode of a series.
func (c *TorrentioClient) ShowStreams(ctx context.Context, imdbID string, season, episode int) ([]Stream, error) {
	id := fmt.Sprintf("%s%%3A%d%%3A%d", imdbID, season, episode)
	return c.fetchStreams(ctx, "series", id)
}

func (c *TorrentioClient) fetchStreams(ctx context.Context, mediaType, streamID string) ([]Stream, error) {
	endpoint := fmt.Sprintf("%s/%s|realdebrid=%s/stream/%s/%s.json",
		c.baseURL, c.options, c.apiKey, mediaType, streamID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("torrentio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("torrentio status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Streams []Stream `json:"streams"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode torrentio response: %w", err)
	}
	return payload.Streams, nil
}

// Resolve follows a candidate's resolve endpoint to its final hoster URL. A
// HEAD request is enough: Torrentio answers with redirects and the debrid
// host's final response carries no body we need.
func (c *TorrentioClient) Resolve(ctx context.Context, streamURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, streamURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("resolve stream: status %d", resp.StatusCode)
	}
	return resp.Request.URL.String(), nil
}
