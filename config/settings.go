package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LibraryMode selects which source the structure synchronizer projects.
type LibraryMode string

const (
	// LibraryModeDebrid projects the debrid library cache's file set.
	LibraryModeDebrid LibraryMode = "debrid"
	// LibraryModeRequests projects the Jellyseerr request list.
	LibraryModeRequests LibraryMode = "requests"
)

// StreamingMode selects how resolved URLs are served to players.
type StreamingMode string

const (
	// StreamingModeRedirect answers with a 302 to the direct URL.
	StreamingModeRedirect StreamingMode = "redirect"
	// StreamingModeProxy streams the upstream body through this server.
	StreamingModeProxy StreamingMode = "proxy"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server     ServerSettings     `json:"server"`
	RealDebrid RealDebridSettings `json:"realDebrid"`
	Torrentio  TorrentioSettings  `json:"torrentio"`
	Jellyseerr JellyseerrSettings `json:"jellyseerr"`
	Jellyfin   JellyfinSettings   `json:"jellyfin"`
	Library    LibrarySettings    `json:"library"`
	Database   DatabaseSettings   `json:"database"`
	Streaming  StreamingSettings  `json:"streaming"`
	Sync       SyncSettings       `json:"sync"`
	Log        LogConfig          `json:"log"`
}

type ServerSettings struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// PublicURL is the address players can reach this server at. It is
	// embedded into every pointer file, so it must be routable from the
	// media server's point of view.
	PublicURL string `json:"publicUrl"`
}

type RealDebridSettings struct {
	APIKey string `json:"apiKey"`
	// PageSize bounds the torrent listing page size on refresh.
	PageSize int `json:"pageSize"`
}

type TorrentioSettings struct {
	Enabled bool   `json:"enabled"`
	BaseURL string `json:"baseUrl"`
	// Options is the torrentio URL path segment controlling ranking and
	// filtering (e.g. "sizefilter=10GB|sort=qualitysize").
	Options string `json:"options"`
}

type JellyseerrSettings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	APIKey  string `json:"apiKey"`
}

// JellyfinSettings configures the library-refresh notification. Optional; an
// empty API key disables the call.
type JellyfinSettings struct {
	URL    string `json:"url"`
	APIKey string `json:"apiKey"`
}

type LibrarySettings struct {
	Root string      `json:"root"`
	Mode LibraryMode `json:"mode"`
}

type DatabaseSettings struct {
	Path string `json:"path"`
}

type StreamingSettings struct {
	Mode StreamingMode `json:"mode"`
}

type SyncSettings struct {
	IntervalSeconds int `json:"intervalSeconds"`
	// ForceRefresh disables the status-unchanged short-circuit so every
	// cycle re-fetches full torrent details.
	ForceRefresh bool `json:"forceRefresh"`
}

// LogConfig controls file logging and rotation.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration written on first start.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8080,
		},
		RealDebrid: RealDebridSettings{
			PageSize: 1000,
		},
		Torrentio: TorrentioSettings{
			Enabled: true,
			BaseURL: "https://torrentio.strem.fun",
			Options: "sizefilter=10GB|sort=qualitysize|qualityfilter=scr,cam|limit=10|debridoptions=nodownloadlinks,nocatalog",
		},
		Jellyseerr: JellyseerrSettings{
			URL: "http://localhost:5055",
		},
		Jellyfin: JellyfinSettings{
			URL: "http://localhost:8096",
		},
		Library: LibrarySettings{
			Root: "library",
			Mode: LibraryModeDebrid,
		},
		Database: DatabaseSettings{
			Path: "config/strmbridge.db",
		},
		Streaming: StreamingSettings{
			Mode: StreamingModeRedirect,
		},
		Sync: SyncSettings{
			IntervalSeconds: 60,
		},
		Log: LogConfig{
			File:       "config/logs/strmbridge.log",
			MaxSize:    50, // MB per file
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   true,
		},
	}
}

// BaseURL returns the public base URL without a trailing slash.
func (s Settings) BaseURL() string {
	u := strings.TrimSpace(s.Server.PublicURL)
	if u == "" {
		u = fmt.Sprintf("http://localhost:%d", s.Server.Port)
	}
	return strings.TrimRight(u, "/")
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures the parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the settings file from disk, creating it with defaults when
// missing, and backfills fields a config written by an older version lacks.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults for configs that predate newer fields.
	if s.Server.Port == 0 {
		s.Server.Port = 8080
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}
	if s.RealDebrid.PageSize <= 0 {
		s.RealDebrid.PageSize = 1000
	}
	if strings.TrimSpace(s.Torrentio.BaseURL) == "" {
		s.Torrentio.BaseURL = "https://torrentio.strem.fun"
	}
	if strings.TrimSpace(s.Torrentio.Options) == "" {
		s.Torrentio.Options = "sizefilter=10GB|sort=qualitysize|qualityfilter=scr,cam|limit=10|debridoptions=nodownloadlinks,nocatalog"
	}
	if strings.TrimSpace(s.Jellyseerr.URL) == "" {
		s.Jellyseerr.URL = "http://localhost:5055"
	}
	if strings.TrimSpace(s.Jellyfin.URL) == "" {
		s.Jellyfin.URL = "http://localhost:8096"
	}
	if strings.TrimSpace(s.Library.Root) == "" {
		s.Library.Root = "library"
	}
	if s.Library.Mode == "" {
		s.Library.Mode = LibraryModeDebrid
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = "config/strmbridge.db"
	}
	if s.Streaming.Mode == "" {
		s.Streaming.Mode = StreamingModeRedirect
	}
	if s.Sync.IntervalSeconds <= 0 {
		s.Sync.IntervalSeconds = 60
	}
	if strings.TrimSpace(s.Log.File) == "" {
		s.Log.File = "config/logs/strmbridge.log"
	}
	if s.Log.MaxSize == 0 {
		s.Log.MaxSize = 50
	}
	if s.Log.MaxBackups == 0 {
		s.Log.MaxBackups = 3
	}
	if s.Log.MaxAge == 0 {
		s.Log.MaxAge = 7
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
