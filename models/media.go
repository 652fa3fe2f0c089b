package models

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"
)

// StatusDownloaded is the listing status of torrents whose files are ready to
// serve. Statuses are reported by the debrid service as opaque strings and are
// only ever compared for equality.
const StatusDownloaded = "downloaded"

// Torrent mirrors one remote torrent as of the last successful listing
// refresh. Torrents are replaced wholesale, never patched field by field.
type Torrent struct {
	ID     string
	Name   string
	Added  time.Time
	Status string
	Bytes  int64
	Hash   string
	Files  []File
}

// File is one selected file inside a torrent. Fingerprint is the only
// identifier that may appear in public URLs; Link and TorrentID stay internal.
type File struct {
	Name         string // display name (basename of the upstream path)
	TorrentID    string
	Bytes        int64
	Link         string // restricted link, input to unrestrict
	VirtualPath  string // library-relative path, empty when the name is unparseable
	Fingerprint  string
	OriginalPath string // upstream raw path, kept for diagnostics
}

// PathEntry pairs a pointer-file location (library-relative, without
// extension) with the opaque reference embedded in the pointer file's body.
type PathEntry struct {
	Path      string
	Reference string
}

// Fingerprint derives the stable public content tag for a file: the hex md5
// of the display name concatenated with the decimal byte size. It is stable
// across refreshes as long as name and size are unchanged, and doubles as the
// join key against the recent-downloads listing.
func Fingerprint(name string, size int64) string {
	sum := md5.Sum([]byte(name + strconv.FormatInt(size, 10)))
	return hex.EncodeToString(sum[:])
}
