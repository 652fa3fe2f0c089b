// Package library maintains the local cache of debrid torrents and files and
// maps cached files onto virtual media paths.
package library

import (
	"context"
	"fmt"
	"log"
	"path"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"strmbridge/models"
	"strmbridge/services/debrid"
	"strmbridge/utils/mediapath"
)

const detailFetchConcurrency = 4

// DebridClient is the slice of the Real-Debrid API the library depends on.
type DebridClient interface {
	ListTorrents(ctx context.Context, page, limit int) ([]debrid.TorrentListItem, error)
	TorrentInfo(ctx context.Context, torrentID string) (*debrid.TorrentInfo, error)
	Unrestrict(ctx context.Context, link string) (*debrid.UnrestrictResult, error)
	ListDownloads(ctx context.Context, page, limit int) ([]debrid.DownloadItem, error)
}

// Service keeps the sqlite cache in sync with the debrid account and answers
// fingerprint lookups with direct download URLs.
type Service struct {
	store    *Store
	client   DebridClient
	parser   mediapath.Parser
	pageSize int

	mu         sync.Mutex
	activeURLs map[string]string // fingerprint -> unrestricted URL
}

// NewService creates the library service.
func NewService(store *Store, client DebridClient, parser mediapath.Parser, pageSize int) *Service {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Service{
		store:      store,
		client:     client,
		parser:     parser,
		pageSize:   pageSize,
		activeURLs: make(map[string]string),
	}
}

// Refresh reconciles the cache against the remote torrent listing. Torrents
// whose status is unchanged keep their cached detail unless force is set;
// torrents absent from the listing are removed. Failures on individual
// torrents are logged and skipped so one bad torrent never aborts a cycle.
func (s *Service) Refresh(ctx context.Context, force bool) error {
	statuses, err := s.store.TorrentStatuses()
	if err != nil {
		return fmt.Errorf("load cached statuses: %w", err)
	}

	seen := make(map[string]bool)
	var pending []debrid.TorrentListItem

	for page := 1; ; page++ {
		items, err := s.client.ListTorrents(ctx, page, s.pageSize)
		if err != nil {
			return fmt.Errorf("list torrents page %d: %w", page, err)
		}
		for _, item := range items {
			seen[item.ID] = true
			if !force && statuses[item.ID] == item.Status {
				continue
			}
			pending = append(pending, item)
		}
		if len(items) < s.pageSize {
			break
		}
	}

	if len(pending) > 0 {
		log.Printf("[library] refreshing %d of %d torrents", len(pending), len(seen))
	}

	p := pool.New().WithMaxGoroutines(detailFetchConcurrency)
	var mu sync.Mutex
	var refreshed []models.Torrent
	for _, item := range pending {
		item := item
		p.Go(func() {
			t, err := s.refreshTorrent(ctx, item)
			if err != nil {
				log.Printf("[library] refresh torrent %s (%s): %v", item.ID, item.Filename, err)
				return
			}
			mu.Lock()
			refreshed = append(refreshed, *t)
			mu.Unlock()
		})
	}
	p.Wait()

	for _, t := range refreshed {
		if err := s.store.ReplaceTorrent(t); err != nil {
			log.Printf("[library] store torrent %s: %v", t.ID, err)
		}
	}

	for id := range statuses {
		if seen[id] {
			continue
		}
		if err := s.store.DeleteTorrent(id); err != nil {
			log.Printf("[library] delete torrent %s: %v", id, err)
			continue
		}
		log.Printf("[library] removed torrent %s no longer present upstream", id)
	}

	return nil
}

// refreshTorrent fetches a torrent's detail and builds its file rows. Links
// are returned by the API in selected-file order, so the i-th selected file
// pairs with the i-th link.
func (s *Service) refreshTorrent(ctx context.Context, item debrid.TorrentListItem) (*models.Torrent, error) {
	info, err := s.client.TorrentInfo(ctx, item.ID)
	if err != nil {
		return nil, err
	}

	t := models.Torrent{
		ID:     info.ID,
		Name:   info.Filename,
		Added:  parseAdded(info.Added),
		Status: info.Status,
		Bytes:  info.Bytes,
		Hash:   info.Hash,
	}

	linkIdx := 0
	for _, f := range info.Files {
		if f.Selected != 1 {
			continue
		}
		var link string
		if linkIdx < len(info.Links) {
			link = info.Links[linkIdx]
		}
		linkIdx++

		name := path.Base(f.Path)
		t.Files = append(t.Files, models.File{
			Name:         name,
			TorrentID:    info.ID,
			Bytes:        f.Bytes,
			Link:         link,
			VirtualPath:  mediapath.Build(s.parser, name),
			Fingerprint:  models.Fingerprint(name, f.Bytes),
			OriginalPath: f.Path,
		})
	}

	return &t, nil
}

func parseAdded(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// RefreshActiveURLs loads the account's recent downloads so files that were
// already unrestricted resolve without an extra unrestrict call.
func (s *Service) RefreshActiveURLs(ctx context.Context) error {
	items, err := s.client.ListDownloads(ctx, 1, 5000)
	if err != nil {
		return fmt.Errorf("list downloads: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, item := range items {
		if item.Download == "" {
			continue
		}
		fp := models.Fingerprint(item.Filename, item.Filesize)
		if _, ok := s.activeURLs[fp]; ok {
			continue
		}
		s.activeURLs[fp] = item.Download
		added++
	}
	if added > 0 {
		log.Printf("[library] preloaded %d download urls", added)
	}
	return nil
}

// FileByFingerprint looks up a cached file by fingerprint.
func (s *Service) FileByFingerprint(fp string) (*models.File, error) {
	return s.store.FileByFingerprint(fp)
}

// DownloadURL returns a direct download URL for a cached file, reusing the
// account's existing unrestricted downloads when possible.
func (s *Service) DownloadURL(ctx context.Context, f *models.File) (string, error) {
	s.mu.Lock()
	if u, ok := s.activeURLs[f.Fingerprint]; ok {
		s.mu.Unlock()
		return u, nil
	}
	s.mu.Unlock()

	res, err := s.client.Unrestrict(ctx, f.Link)
	if err != nil {
		return "", fmt.Errorf("unrestrict %s: %w", f.Name, err)
	}

	s.mu.Lock()
	s.activeURLs[f.Fingerprint] = res.Download
	s.mu.Unlock()
	return res.Download, nil
}

// Entries projects the cache of downloaded torrents onto virtual path
// entries. Files without a recognizable media path are excluded; when two
// files map to the same path the first wins.
func (s *Service) Entries() ([]models.PathEntry, error) {
	torrents, err := s.store.Torrents(models.StatusDownloaded)
	if err != nil {
		return nil, fmt.Errorf("load downloaded torrents: %w", err)
	}

	seen := make(map[string]bool)
	var entries []models.PathEntry
	for _, t := range torrents {
		for _, f := range t.Files {
			if f.VirtualPath == "" || seen[f.VirtualPath] {
				continue
			}
			seen[f.VirtualPath] = true
			entries = append(entries, models.PathEntry{
				Path:      f.VirtualPath,
				Reference: f.Fingerprint,
			})
		}
	}
	return entries, nil
}
