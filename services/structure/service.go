// Package structure materializes virtual path entries as a tree of .strm
// pointer files on disk and prunes whatever no longer belongs there.
package structure

import (
	"bytes"
	"fmt"
	"log"
	"path"
	"strings"

	"github.com/spf13/afero"

	"strmbridge/models"
)

const strmExt = ".strm"

// Service synchronizes the on-disk tree under root with a set of entries.
// Each entry becomes "{root}/{path}.strm" containing "{baseURL}/{reference}".
type Service struct {
	fs      afero.Fs
	root    string
	baseURL string
}

// NewService creates a synchronizer writing below root. baseURL is the public
// address of this server, without a trailing slash.
func NewService(fs afero.Fs, root, baseURL string) *Service {
	return &Service{
		fs:      fs,
		root:    strings.TrimRight(root, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Sync brings the tree in line with entries: missing files are created,
// changed files rewritten, and stale .strm files and empty directories
// removed. Foreign files are left alone.
func (s *Service) Sync(entries []models.PathEntry) error {
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create root: %w", err)
	}

	keep := make(map[string]bool, len(entries))
	var wrote, removed int
	for _, e := range entries {
		target := path.Join(s.root, e.Path) + strmExt
		keep[target] = true
		changed, err := s.writeIfChanged(target, s.baseURL+"/"+e.Reference)
		if err != nil {
			log.Printf("[structure] write %s: %v", target, err)
			continue
		}
		if changed {
			wrote++
		}
	}

	n, err := s.prune(s.root, keep)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	removed = n

	if wrote > 0 || removed > 0 {
		log.Printf("[structure] sync complete: %d written, %d removed, %d total", wrote, removed, len(entries))
	}
	return nil
}

// writeIfChanged writes content to target unless it already matches, so file
// mtimes stay stable across cycles and media scanners see no churn.
func (s *Service) writeIfChanged(target, content string) (bool, error) {
	want := []byte(content)
	existing, err := afero.ReadFile(s.fs, target)
	if err == nil && bytes.Equal(existing, want) {
		return false, nil
	}

	if err := s.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return false, fmt.Errorf("create directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, target, want, 0o644); err != nil {
		return false, fmt.Errorf("write file: %w", err)
	}
	return true, nil
}

// prune removes .strm files not in keep, then directories left empty. The
// root itself is never removed. Returns the number of files removed.
func (s *Service) prune(dir string, keep map[string]bool) (int, error) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", dir, err)
	}

	removed := 0
	for _, info := range infos {
		full := path.Join(dir, info.Name())
		if info.IsDir() {
			n, err := s.prune(full, keep)
			if err != nil {
				return removed, err
			}
			removed += n
			empty, err := afero.IsEmpty(s.fs, full)
			if err != nil {
				return removed, fmt.Errorf("check %s: %w", full, err)
			}
			if empty {
				if err := s.fs.Remove(full); err != nil {
					return removed, fmt.Errorf("remove dir %s: %w", full, err)
				}
			}
			continue
		}
		if !strings.HasSuffix(info.Name(), strmExt) || keep[full] {
			continue
		}
		if err := s.fs.Remove(full); err != nil {
			return removed, fmt.Errorf("remove %s: %w", full, err)
		}
		removed++
	}
	return removed, nil
}
