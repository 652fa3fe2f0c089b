// Package scheduler drives the periodic reconciliation cycle that keeps the
// virtual library in step with the debrid account and the request list.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"strmbridge/config"
	"strmbridge/models"
)

// LibrarySource feeds the debrid-backed projection.
type LibrarySource interface {
	Refresh(ctx context.Context, force bool) error
	RefreshActiveURLs(ctx context.Context) error
	Entries() ([]models.PathEntry, error)
}

// RequestSource feeds the request-list projection.
type RequestSource interface {
	Entries(ctx context.Context) ([]models.PathEntry, error)
}

// Synchronizer materializes entries on disk.
type Synchronizer interface {
	Sync(entries []models.PathEntry) error
}

// Service runs the reconciliation cycle on a fixed interval. The same cycle
// is also triggered on demand by the reconcile endpoint.
type Service struct {
	configManager *config.Manager
	library       LibrarySource
	requests      RequestSource
	synchronizer  Synchronizer

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService creates the scheduler. requests may be nil when the request-list
// projection is disabled.
func NewService(configManager *config.Manager, library LibrarySource, requests RequestSource, synchronizer Synchronizer) *Service {
	return &Service{
		configManager: configManager,
		library:       library,
		requests:      requests,
		synchronizer:  synchronizer,
	}
}

// Start begins the background loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go s.loop()

	log.Println("[scheduler] started")
	return nil
}

// Stop halts the loop, waiting for an in-flight cycle up to ctx's deadline.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[scheduler] stopped")
	case <-ctx.Done():
		log.Println("[scheduler] stopped without waiting for running cycle")
	}

	s.running = false
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	interval := s.interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First cycle runs immediately so a fresh start populates the tree
	// without waiting a full interval.
	s.RunCycle(s.ctx)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunCycle(s.ctx)
		}
	}
}

func (s *Service) interval() time.Duration {
	settings, err := s.configManager.Load()
	if err != nil {
		log.Printf("[scheduler] load settings: %v", err)
		return time.Minute
	}
	if settings.Sync.IntervalSeconds < 1 {
		return time.Minute
	}
	return time.Duration(settings.Sync.IntervalSeconds) * time.Second
}

// RunCycle executes one reconciliation cycle: refresh active download URLs,
// refresh the torrent cache, project entries for the configured mode and
// synchronize the tree. Stage failures are logged; later stages still run on
// the data that is available.
func (s *Service) RunCycle(ctx context.Context) {
	runID := uuid.NewString()[:8]
	start := time.Now()
	log.Printf("[scheduler] cycle %s starting", runID)

	settings, err := s.configManager.Load()
	if err != nil {
		log.Printf("[scheduler] cycle %s: load settings: %v", runID, err)
		return
	}

	if err := s.library.RefreshActiveURLs(ctx); err != nil {
		log.Printf("[scheduler] cycle %s: refresh active urls: %v", runID, err)
	}
	if err := s.library.Refresh(ctx, settings.Sync.ForceRefresh); err != nil {
		log.Printf("[scheduler] cycle %s: refresh library: %v", runID, err)
	}

	entries, err := s.projectEntries(ctx, settings)
	if err != nil {
		log.Printf("[scheduler] cycle %s: project entries: %v", runID, err)
		return
	}
	if err := s.synchronizer.Sync(entries); err != nil {
		log.Printf("[scheduler] cycle %s: sync tree: %v", runID, err)
		return
	}

	log.Printf("[scheduler] cycle %s finished in %s (%d entries)", runID, time.Since(start).Round(time.Millisecond), len(entries))
}

func (s *Service) projectEntries(ctx context.Context, settings config.Settings) ([]models.PathEntry, error) {
	if settings.Library.Mode == config.LibraryModeRequests && s.requests != nil {
		return s.requests.Entries(ctx)
	}
	return s.library.Entries()
}
