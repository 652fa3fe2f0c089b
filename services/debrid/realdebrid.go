// Package debrid wraps the Real-Debrid REST API surface the library cache
// depends on: torrent listing, per-torrent detail, link unrestricting and the
// recent-downloads listing.
package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.real-debrid.com/rest/1.0"

// ErrBadToken reports an invalid or expired API token. The caller cannot
// recover from this without operator intervention.
var ErrBadToken = errors.New("realdebrid: bad token")

// errorMessages maps Real-Debrid error codes to their documented meanings.
var errorMessages = map[int]string{
	-1: "Internal error",
	1:  "Missing parameter",
	2:  "Bad parameter value",
	3:  "Unknown method",
	4:  "Method not allowed",
	5:  "Slow down",
	6:  "Resource unreachable",
	7:  "Resource not found",
	8:  "Bad token",
	9:  "Permission denied",
	16: "Unsupported hoster",
	17: "Hoster in maintenance",
	18: "Hoster limit reached",
	19: "Hoster temporarily unavailable",
	20: "Hoster not available for free users",
	21: "Too many active downloads",
	22: "IP address not allowed",
	23: "Traffic exhausted",
	24: "File unavailable",
	25: "Service unavailable",
	29: "Torrent too big",
	30: "Torrent file invalid",
	31: "Action already done",
	33: "Torrent already active",
	34: "Too many requests",
	35: "Infringing file",
	36: "Fair usage limit",
}

// APIError is a structured upstream error carrying Real-Debrid's error code.
type APIError struct {
	Code    int
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("realdebrid: %s (code %d, http %d)", e.Message, e.Code, e.Status)
}

func (e *APIError) Unwrap() error {
	if e.Code == 8 {
		return ErrBadToken
	}
	return nil
}

// TorrentListItem is one row of the torrent listing. The listing is the
// authoritative view of which torrents exist; detail fetches only enrich it.
type TorrentListItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Hash     string `json:"hash"`
	Bytes    int64  `json:"bytes"`
	Added    string `json:"added"`
	Status   string `json:"status"`
}

// TorrentInfo is the full detail of one torrent including its file list and
// the restricted links matching the selected files in order.
type TorrentInfo struct {
	ID       string        `json:"id"`
	Filename string        `json:"filename"`
	Hash     string        `json:"hash"`
	Bytes    int64         `json:"bytes"`
	Added    string        `json:"added"`
	Status   string        `json:"status"`
	Files    []TorrentFile `json:"files"`
	Links    []string      `json:"links"`
}

type TorrentFile struct {
	ID       int    `json:"id"`
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Selected int    `json:"selected"`
}

// UnrestrictResult is the response of the link-unrestrict operation.
type UnrestrictResult struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Download string `json:"download"`
	Host     string `json:"host"`
	MimeType string `json:"mimeType"`
}

// DownloadItem is one row of the recent-downloads listing. Real-Debrid
// records an already-unrestricted URL here, which the library cache reuses to
// skip per-file unrestrict calls.
type DownloadItem struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	Download string `json:"download"`
	Host     string `json:"host"`
}

// Client is a Real-Debrid REST client with request pacing and transient-error
// retries. Structured upstream errors are surfaced as *APIError; only network
// failures and 5xx responses are retried.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Real-Debrid API client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// Real-Debrid tolerates roughly two requests per second before
		// answering 34 "Too many requests".
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
	}
}

// ListTorrents returns one page of the torrent listing.
func (c *Client) ListTorrents(ctx context.Context, page, limit int) ([]TorrentListItem, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))

	var items []TorrentListItem
	if err := c.get(ctx, "/torrents", q, &items); err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	return items, nil
}

// TorrentInfo returns the full detail of one torrent.
func (c *Client) TorrentInfo(ctx context.Context, torrentID string) (*TorrentInfo, error) {
	id := strings.TrimSpace(torrentID)
	if id == "" {
		return nil, fmt.Errorf("torrent ID is required")
	}
	var info TorrentInfo
	if err := c.get(ctx, "/torrents/info/"+url.PathEscape(id), nil, &info); err != nil {
		return nil, fmt.Errorf("torrent info %s: %w", id, err)
	}
	return &info, nil
}

// Unrestrict converts a restricted hoster link into a direct download URL.
func (c *Client) Unrestrict(ctx context.Context, link string) (*UnrestrictResult, error) {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return nil, fmt.Errorf("link is required")
	}
	form := url.Values{}
	form.Set("link", trimmed)

	var result UnrestrictResult
	if err := c.postForm(ctx, "/unrestrict/link", form, &result); err != nil {
		return nil, fmt.Errorf("unrestrict: %w", err)
	}
	return &result, nil
}

// ListDownloads returns one page of the recent-downloads listing.
func (c *Client) ListDownloads(ctx context.Context, page, limit int) ([]DownloadItem, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("limit", fmt.Sprint(limit))

	var items []DownloadItem
	if err := c.get(ctx, "/downloads", q, &items); err != nil {
		return nil, fmt.Errorf("list downloads: %w", err)
	}
	return items, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	endpoint := c.baseURL + path
	body := form.Encode()
	return c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}, out)
}

// do executes a request with pacing and retries, decoding a successful
// response into out. The request is rebuilt per attempt because bodies are
// single-use.
func (c *Client) do(ctx context.Context, build func() (*http.Request, error), out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("realdebrid API key not configured")
	}

	return retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			req, err := build()
			if err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+c.apiKey)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read response body: %w", err)
			}

			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return decodeError(resp.StatusCode, body)
			}
			if out == nil || len(body) == 0 {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode response: %w (body: %.200s)", err, string(body))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
}

func decodeError(status int, body []byte) error {
	var payload struct {
		Error     string `json:"error"`
		ErrorCode int    `json:"error_code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.ErrorCode != 0 {
		msg := errorMessages[payload.ErrorCode]
		if msg == "" {
			msg = payload.Error
		}
		if msg == "" {
			msg = "unknown error"
		}
		return &APIError{Code: payload.ErrorCode, Message: msg, Status: status}
	}
	return fmt.Errorf("realdebrid: unexpected status %d: %.200s", status, string(body))
}

// isTransient reports whether an error is worth retrying: network failures
// and 5xx responses. Structured API errors are definitive.
func isTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var generic interface{ Timeout() bool }
	if errors.As(err, &generic) {
		return true
	}
	return strings.Contains(err.Error(), "request failed") ||
		strings.Contains(err.Error(), "unexpected status 5")
}
