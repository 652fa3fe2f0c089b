package jellyseerr

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// JellyfinNotifier asks a Jellyfin server to rescan its libraries after the
// virtual tree changed. A notifier without a configured server is a no-op.
type JellyfinNotifier struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewJellyfinNotifier(baseURL, apiKey string) *JellyfinNotifier {
	return &JellyfinNotifier{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// RefreshLibrary triggers a full library scan.
func (n *JellyfinNotifier) RefreshLibrary(ctx context.Context) error {
	if n.baseURL == "" || n.apiKey == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/Library/Refresh", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", fmt.Sprintf("MediaBrowser Token=%q", n.apiKey))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jellyfin refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("jellyfin refresh: status %d", resp.StatusCode)
	}
	log.Printf("[jellyfin] library refresh triggered")
	return nil
}
