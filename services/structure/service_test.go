package structure

import (
	"testing"

	"github.com/spf13/afero"

	"strmbridge/models"
)

const baseURL = "http://localhost:9999"

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func exists(t *testing.T, fs afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fs, path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return ok
}

func TestSyncCreatesPointerFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)

	entries := []models.PathEntry{
		{Path: "Movies/Dune (2021)/Dune (2021)", Reference: "abc123"},
		{Path: "Shows/Severance/Season 01/Severance S01E01", Reference: "show/tt11280740/1/1"},
	}
	if err := svc.Sync(entries); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	got := readFile(t, fs, "/library/Movies/Dune (2021)/Dune (2021).strm")
	if got != baseURL+"/abc123" {
		t.Errorf("unexpected content: %q", got)
	}
	got = readFile(t, fs, "/library/Shows/Severance/Season 01/Severance S01E01.strm")
	if got != baseURL+"/show/tt11280740/1/1" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestSyncIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)
	entries := []models.PathEntry{{Path: "Movies/Foo (2020)/Foo (2020)", Reference: "abc"}}

	if err := svc.Sync(entries); err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	info1, err := fs.Stat("/library/Movies/Foo (2020)/Foo (2020).strm")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := svc.Sync(entries); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	info2, err := fs.Stat("/library/Movies/Foo (2020)/Foo (2020).strm")
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info2.ModTime().Equal(info1.ModTime()) {
		t.Error("unchanged file was rewritten")
	}
}

func TestSyncPrunesStaleFilesAndEmptyDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)

	if err := svc.Sync([]models.PathEntry{
		{Path: "Movies/Foo (2020)/Foo (2020)", Reference: "a"},
		{Path: "Movies/Bar (2021)/Bar (2021)", Reference: "b"},
	}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	if err := svc.Sync([]models.PathEntry{
		{Path: "Movies/Bar (2021)/Bar (2021)", Reference: "b"},
	}); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}

	if exists(t, fs, "/library/Movies/Foo (2020)") {
		t.Error("stale directory survived prune")
	}
	if !exists(t, fs, "/library/Movies/Bar (2021)/Bar (2021).strm") {
		t.Error("live entry was pruned")
	}
}

func TestSyncEmptySetClearsTreeKeepsRoot(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)

	if err := svc.Sync([]models.PathEntry{{Path: "Movies/Foo (2020)/Foo (2020)", Reference: "a"}}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := svc.Sync(nil); err != nil {
		t.Fatalf("empty Sync failed: %v", err)
	}

	if exists(t, fs, "/library/Movies") {
		t.Error("expected empty tree after syncing no entries")
	}
	if !exists(t, fs, "/library") {
		t.Error("root must survive an empty sync")
	}
}

func TestSyncLeavesForeignFilesAlone(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)

	if err := afero.WriteFile(fs, "/library/Movies/notes.txt", []byte("keep"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	if err := svc.Sync(nil); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if !exists(t, fs, "/library/Movies/notes.txt") {
		t.Error("non-strm file was removed")
	}
}

func TestSyncRewritesChangedReference(t *testing.T) {
	fs := afero.NewMemMapFs()
	svc := NewService(fs, "/library", baseURL)

	if err := svc.Sync([]models.PathEntry{{Path: "Movies/Foo (2020)/Foo (2020)", Reference: "old"}}); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := svc.Sync([]models.PathEntry{{Path: "Movies/Foo (2020)/Foo (2020)", Reference: "new"}}); err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}

	got := readFile(t, fs, "/library/Movies/Foo (2020)/Foo (2020).strm")
	if got != baseURL+"/new" {
		t.Errorf("expected rewritten content, got %q", got)
	}
}
