// Package mediapath turns release file names into library-relative virtual
// paths ("Shows/Title/Season 01/Title S01E02", "Movies/Title (2020)/...").
// The actual name-parsing heuristics live behind the Parser interface so they
// can be swapped without touching the projection logic.
package mediapath

import (
	"fmt"
	"strings"

	"github.com/cehbz/torrentname"
)

const (
	showsFolder  = "Shows"
	moviesFolder = "Movies"
)

// Metadata is the parsed view of a release name.
type Metadata struct {
	Title      string
	Year       int
	Season     int
	Episode    int
	Resolution string
	IsEpisode  bool
}

// Parser extracts media metadata from a release file name. The boolean is
// false when the name cannot be decomposed into valid media metadata.
type Parser interface {
	Parse(name string) (Metadata, bool)
}

// ReleaseNameParser implements Parser on top of torrentname's scene-name
// heuristics.
type ReleaseNameParser struct{}

func (ReleaseNameParser) Parse(name string) (Metadata, bool) {
	info := torrentname.Parse(name)
	if info == nil || strings.TrimSpace(info.Title) == "" {
		return Metadata{}, false
	}
	meta := Metadata{
		Title:     strings.TrimSpace(info.Title),
		Year:      info.Year,
		Season:    info.Season,
		Episode:   info.Episode,
		IsEpisode: info.Season > 0 && info.Episode > 0,
	}
	// torrentname reports unknown attributes as "?".
	if info.Resolution != "" && info.Resolution != "?" {
		meta.Resolution = info.Resolution
	}
	return meta, true
}

// Build returns the library-relative path a file should appear at, without
// extension, or the empty string when the name is unparseable. Episodes land
// under Shows/, everything else under Movies/ with an optional year and
// screen-size suffix.
func Build(p Parser, name string) string {
	meta, ok := p.Parse(name)
	if !ok {
		return ""
	}

	if meta.IsEpisode {
		return fmt.Sprintf("%s/%s/Season %02d/%s S%02dE%02d",
			showsFolder, meta.Title, meta.Season, meta.Title, meta.Season, meta.Episode)
	}

	year := ""
	if meta.Year > 0 {
		year = fmt.Sprintf(" (%d)", meta.Year)
	}
	screen := ""
	if meta.Resolution != "" {
		screen = fmt.Sprintf(" - [%s]", meta.Resolution)
	}
	return fmt.Sprintf("%s/%s%s/%s%s%s", moviesFolder, meta.Title, year, meta.Title, year, screen)
}
