// Package handlers exposes the HTTP surface: fingerprint playback, on-demand
// IMDb stream resolution and the manual reconcile trigger.
package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gorilla/mux"

	"strmbridge/config"
	"strmbridge/models"
	"strmbridge/services/library"
)

// LibraryProvider answers fingerprint lookups with direct download URLs.
type LibraryProvider interface {
	FileByFingerprint(fp string) (*models.File, error)
	DownloadURL(ctx context.Context, f *models.File) (string, error)
}

// StreamResolver resolves IMDb references on demand.
type StreamResolver interface {
	Movie(ctx context.Context, imdbID string) (string, error)
	Show(ctx context.Context, imdbID string, season, episode int) (string, error)
}

// CycleRunner triggers one reconciliation cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context)
}

// LibraryNotifier tells downstream media servers to rescan.
type LibraryNotifier interface {
	RefreshLibrary(ctx context.Context) error
}

// StreamHandler serves playback and reconcile requests. resolver is nil when
// no stream resolver is configured; its routes then answer 400.
type StreamHandler struct {
	configManager *config.Manager
	library       LibraryProvider
	resolver      StreamResolver
	scheduler     CycleRunner
	notifier      LibraryNotifier

	proxyClient *http.Client
}

// NewStreamHandler wires the playback handler.
func NewStreamHandler(configManager *config.Manager, lib LibraryProvider, res StreamResolver, sched CycleRunner, notifier LibraryNotifier) *StreamHandler {
	return &StreamHandler{
		configManager: configManager,
		library:       lib,
		resolver:      res,
		scheduler:     sched,
		notifier:      notifier,
		// No overall timeout: proxied playback runs for the length of
		// the media.
		proxyClient: &http.Client{},
	}
}

// ByFingerprint serves "GET /{fingerprint}": look up the cached file and send
// the player to its direct download URL.
func (h *StreamHandler) ByFingerprint(w http.ResponseWriter, r *http.Request) {
	fp := mux.Vars(r)["fingerprint"]

	f, err := h.library.FileByFingerprint(fp)
	if errors.Is(err, library.ErrNotFound) {
		http.Error(w, "unknown fingerprint", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[stream] lookup %s: %v", fp, err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	u, err := h.library.DownloadURL(r.Context(), f)
	if err != nil {
		log.Printf("[stream] download url for %s: %v", f.Name, err)
		http.Error(w, "failed to resolve download", http.StatusInternalServerError)
		return
	}
	h.deliver(w, r, u)
}

// Movie serves "GET /movie/{imdbID}".
func (h *StreamHandler) Movie(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		http.Error(w, "stream resolver not configured", http.StatusBadRequest)
		return
	}
	imdbID := mux.Vars(r)["imdbID"]

	u, err := h.resolver.Movie(r.Context(), imdbID)
	if err != nil {
		log.Printf("[stream] resolve movie %s: %v", imdbID, err)
		http.Error(w, "failed to resolve stream", http.StatusInternalServerError)
		return
	}
	h.deliver(w, r, u)
}

// Show serves "GET /show/{imdbID}/{season}/{episode}".
func (h *StreamHandler) Show(w http.ResponseWriter, r *http.Request) {
	if h.resolver == nil {
		http.Error(w, "stream resolver not configured", http.StatusBadRequest)
		return
	}
	vars := mux.Vars(r)
	imdbID := vars["imdbID"]
	season, err := strconv.Atoi(vars["season"])
	if err != nil || season < 0 {
		http.Error(w, "invalid season", http.StatusBadRequest)
		return
	}
	episode, err := strconv.Atoi(vars["episode"])
	if err != nil || episode < 0 {
		http.Error(w, "invalid episode", http.StatusBadRequest)
		return
	}

	u, err := h.resolver.Show(r.Context(), imdbID, season, episode)
	if err != nil {
		log.Printf("[stream] resolve show %s s%de%d: %v", imdbID, season, episode, err)
		http.Error(w, "failed to resolve stream", http.StatusInternalServerError)
		return
	}
	h.deliver(w, r, u)
}

// Reconcile serves "GET|POST /reconcile": run one cycle now and nudge the
// media server afterwards.
func (h *StreamHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	log.Printf("[stream] manual reconcile requested by %s", r.RemoteAddr)
	h.scheduler.RunCycle(r.Context())

	if h.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := h.notifier.RefreshLibrary(ctx); err != nil {
			log.Printf("[stream] notify media server: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// deliver sends the player to u, either by redirect or by proxying the body
// through this server, per the configured streaming mode.
func (h *StreamHandler) deliver(w http.ResponseWriter, r *http.Request, u string) {
	settings, err := h.configManager.Load()
	if err != nil {
		log.Printf("[stream] load settings: %v", err)
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return
	}

	if settings.Streaming.Mode == config.StreamingModeProxy {
		h.proxy(w, r, u)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}

// proxy streams the upstream body to the client, forwarding the Range header
// so players can seek.
func (h *StreamHandler) proxy(w http.ResponseWriter, r *http.Request, u string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u, nil)
	if err != nil {
		http.Error(w, "bad upstream url", http.StatusInternalServerError)
		return
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := h.proxyClient.Do(req)
	if err != nil {
		log.Printf("[stream] proxy %s: %v", u, err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for _, header := range []string{"Content-Length", "Content-Range", "Accept-Ranges"} {
		if v := resp.Header.Get(header); v != "" {
			w.Header().Set(header, v)
		}
	}

	body := io.Reader(resp.Body)
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		// Sniff the real type from the first bytes so players that
		// trust Content-Type still play octet-stream hosters.
		head := make([]byte, 3072)
		n, _ := io.ReadFull(resp.Body, head)
		head = head[:n]
		contentType = mimetype.Detect(head).String()
		body = io.MultiReader(bytes.NewReader(head), resp.Body)
	}
	w.Header().Set("Content-Type", contentType)

	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, body); err != nil {
		// Players drop connections constantly when seeking.
		log.Printf("[stream] proxy copy ended: %v", err)
	}
}
