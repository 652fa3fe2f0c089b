package jellyseerr

import (
	"context"
	"fmt"
	"log"
	"strings"

	"strmbridge/models"
)

// RequestSource is the slice of the Jellyseerr API the projection needs.
type RequestSource interface {
	Requests(ctx context.Context) ([]MediaRequest, error)
	Movie(ctx context.Context, tmdbID int) (*MovieDetails, error)
	Tv(ctx context.Context, tmdbID int) (*TvDetails, error)
}

// Service projects requested media onto virtual path entries. A movie becomes
// one entry referencing "movie/{imdb}"; a series becomes one entry per known
// episode referencing "show/{imdb}/{season}/{episode}".
type Service struct {
	source RequestSource
}

func NewService(source RequestSource) *Service {
	return &Service{source: source}
}

// Entries builds the projection of the current request list. Requests whose
// detail cannot be fetched, or that carry no IMDb id, are logged and skipped.
func (s *Service) Entries(ctx context.Context) ([]models.PathEntry, error) {
	requests, err := s.source.Requests(ctx)
	if err != nil {
		return nil, fmt.Errorf("load requests: %w", err)
	}

	seen := make(map[string]bool)
	var entries []models.PathEntry
	for _, req := range requests {
		var items []models.PathEntry
		var err error
		switch req.Type {
		case "movie":
			items, err = s.movieEntries(ctx, req.Media.TmdbID)
		case "tv":
			items, err = s.showEntries(ctx, req.Media.TmdbID)
		default:
			continue
		}
		if err != nil {
			log.Printf("[jellyseerr] request %d (tmdb %d): %v", req.ID, req.Media.TmdbID, err)
			continue
		}
		for _, e := range items {
			if seen[e.Path] {
				continue
			}
			seen[e.Path] = true
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (s *Service) movieEntries(ctx context.Context, tmdbID int) ([]models.PathEntry, error) {
	details, err := s.source.Movie(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	imdb := strings.TrimSpace(details.ExternalIDs.ImdbID)
	if imdb == "" {
		return nil, fmt.Errorf("no imdb id")
	}

	folder := titleFolder(details.Title, details.ReleaseDate, tmdbID)
	return []models.PathEntry{{
		Path:      fmt.Sprintf("Movies/%s/%s", folder, details.Title),
		Reference: "movie/" + imdb,
	}}, nil
}

func (s *Service) showEntries(ctx context.Context, tmdbID int) ([]models.PathEntry, error) {
	details, err := s.source.Tv(ctx, tmdbID)
	if err != nil {
		return nil, err
	}
	imdb := strings.TrimSpace(details.ExternalIDs.ImdbID)
	if imdb == "" {
		return nil, fmt.Errorf("no imdb id")
	}

	folder := titleFolder(details.Name, details.FirstAirDate, tmdbID)
	var entries []models.PathEntry
	for _, season := range details.Seasons {
		// Season 0 collects specials, which have no reliable episode order.
		if season.SeasonNumber == 0 {
			continue
		}
		for ep := 1; ep <= season.EpisodeCount; ep++ {
			entries = append(entries, models.PathEntry{
				Path: fmt.Sprintf("Shows/%s/Season %02d/%s S%02dE%02d",
					folder, season.SeasonNumber, details.Name, season.SeasonNumber, ep),
				Reference: fmt.Sprintf("show/%s/%d/%d", imdb, season.SeasonNumber, ep),
			})
		}
	}
	return entries, nil
}

// titleFolder formats "Name (Year) [tmdbid-ID]" from a title and an ISO date.
func titleFolder(title, date string, tmdbID int) string {
	year := ""
	if len(date) >= 4 {
		year = fmt.Sprintf(" (%s)", date[:4])
	}
	return fmt.Sprintf("%s%s [tmdbid-%d]", title, year, tmdbID)
}
