package library

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"strmbridge/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("library: not found")

// Store persists the torrent and file cache in sqlite. All writes for one
// torrent happen in a single transaction so readers never observe a torrent
// with a partial file list.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the sqlite database at path and runs
// pending migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set dialect: %w", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceTorrent upserts a torrent and replaces its file rows atomically.
func (s *Store) ReplaceTorrent(t models.Torrent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO torrents (id, name, date, status, bytes, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			date = excluded.date,
			status = excluded.status,
			bytes = excluded.bytes,
			hash = excluded.hash`,
		t.ID, t.Name, t.Added.UTC().Format(time.RFC3339), t.Status, t.Bytes, t.Hash)
	if err != nil {
		return fmt.Errorf("upsert torrent %s: %w", t.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM files WHERE torrent_id = ?`, t.ID); err != nil {
		return fmt.Errorf("clear files for %s: %w", t.ID, err)
	}
	for _, f := range t.Files {
		_, err := tx.Exec(`INSERT INTO files (name, torrent_id, bytes, link, path, tag, original_path)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			f.Name, t.ID, f.Bytes, f.Link, f.VirtualPath, f.Fingerprint, f.OriginalPath)
		if err != nil {
			return fmt.Errorf("insert file %s: %w", f.Name, err)
		}
	}

	return tx.Commit()
}

// DeleteTorrent removes a torrent and its files.
func (s *Store) DeleteTorrent(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM files WHERE torrent_id = ?`, id); err != nil {
		return fmt.Errorf("delete files for %s: %w", id, err)
	}
	if _, err := tx.Exec(`DELETE FROM torrents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete torrent %s: %w", id, err)
	}
	return tx.Commit()
}

// TorrentStatuses returns the cached status of every known torrent, keyed by
// torrent ID.
func (s *Store) TorrentStatuses() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, status FROM torrents`)
	if err != nil {
		return nil, fmt.Errorf("query statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]string)
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan status row: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

// Torrents returns all torrents with the given status, files included.
func (s *Store) Torrents(status string) ([]models.Torrent, error) {
	rows, err := s.db.Query(`SELECT id, name, date, status, bytes, hash FROM torrents WHERE status = ? ORDER BY date`, status)
	if err != nil {
		return nil, fmt.Errorf("query torrents: %w", err)
	}
	defer rows.Close()

	var torrents []models.Torrent
	for rows.Next() {
		var t models.Torrent
		var date string
		if err := rows.Scan(&t.ID, &t.Name, &date, &t.Status, &t.Bytes, &t.Hash); err != nil {
			return nil, fmt.Errorf("scan torrent row: %w", err)
		}
		t.Added, _ = time.Parse(time.RFC3339, date)
		torrents = append(torrents, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range torrents {
		files, err := s.filesForTorrent(torrents[i].ID)
		if err != nil {
			return nil, err
		}
		torrents[i].Files = files
	}
	return torrents, nil
}

func (s *Store) filesForTorrent(torrentID string) ([]models.File, error) {
	rows, err := s.db.Query(`SELECT name, torrent_id, bytes, link, path, tag, original_path
		FROM files WHERE torrent_id = ?`, torrentID)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		var f models.File
		if err := rows.Scan(&f.Name, &f.TorrentID, &f.Bytes, &f.Link, &f.VirtualPath, &f.Fingerprint, &f.OriginalPath); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// FileByFingerprint returns the first file whose fingerprint matches.
// Identical releases in multiple torrents share a fingerprint; any copy
// serves equally.
func (s *Store) FileByFingerprint(fp string) (*models.File, error) {
	row := s.db.QueryRow(`SELECT name, torrent_id, bytes, link, path, tag, original_path
		FROM files WHERE tag = ? LIMIT 1`, fp)

	var f models.File
	err := row.Scan(&f.Name, &f.TorrentID, &f.Bytes, &f.Link, &f.VirtualPath, &f.Fingerprint, &f.OriginalPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query file by fingerprint: %w", err)
	}
	return &f, nil
}
