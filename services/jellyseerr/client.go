// Package jellyseerr projects a Jellyseerr request list onto virtual library
// entries whose references point at the on-demand stream resolver.
package jellyseerr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const requestPageSize = 1000

// Client talks to a Jellyseerr instance's v1 API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Jellyseerr API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// MediaRequest is one entry of the request list. Type is "movie" or "tv".
type MediaRequest struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Media struct {
		TmdbID int `json:"tmdbId"`
	} `json:"media"`
}

// MovieDetails is the subset of Jellyseerr's movie detail we project from.
type MovieDetails struct {
	Title       string `json:"title"`
	ReleaseDate string `json:"releaseDate"`
	ExternalIDs struct {
		ImdbID string `json:"imdbId"`
	} `json:"externalIds"`
}

// TvDetails is the subset of Jellyseerr's series detail we project from.
type TvDetails struct {
	Name         string `json:"name"`
	FirstAirDate string `json:"firstAirDate"`
	ExternalIDs  struct {
		ImdbID string `json:"imdbId"`
	} `json:"externalIds"`
	Seasons []struct {
		SeasonNumber int `json:"seasonNumber"`
		EpisodeCount int `json:"episodeCount"`
	} `json:"seasons"`
}

// Requests returns all media requests, newest first.
func (c *Client) Requests(ctx context.Context) ([]MediaRequest, error) {
	q := url.Values{}
	q.Set("take", fmt.Sprint(requestPageSize))
	q.Set("skip", "0")
	q.Set("filter", "all")
	q.Set("sort", "added")

	var payload struct {
		Results []MediaRequest `json:"results"`
	}
	if err := c.get(ctx, "/api/v1/request?"+q.Encode(), &payload); err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return payload.Results, nil
}

// Movie returns the detail of a movie by TMDB id.
func (c *Client) Movie(ctx context.Context, tmdbID int) (*MovieDetails, error) {
	var details MovieDetails
	if err := c.get(ctx, fmt.Sprintf("/api/v1/movie/%d", tmdbID), &details); err != nil {
		return nil, fmt.Errorf("movie %d: %w", tmdbID, err)
	}
	return &details, nil
}

// Tv returns the detail of a series by TMDB id.
func (c *Client) Tv(ctx context.Context, tmdbID int) (*TvDetails, error) {
	var details TvDetails
	if err := c.get(ctx, fmt.Sprintf("/api/v1/tv/%d", tmdbID), &details); err != nil {
		return nil, fmt.Errorf("tv %d: %w", tmdbID, err)
	}
	return &details, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("jellyseerr URL not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
