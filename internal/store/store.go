// Package store persists uploaded attachment files under date-bucketed
// directories and manages their lifecycle (delete, purge, retention sweep).
package store

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/lanboard/lanboard/pkg/proto"
)

// extPattern is the strict allow-pattern for file extensions. Anything that
// does not match is dropped and the file is saved without an extension.
var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,10}$`)

// imageExts is the fixed extension set that classifies an upload as an image.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".bmp":  true,
}

// Store is the attachment store. All file access goes through a
// billy.Filesystem rooted at the upload directory, which confines every
// operation to the store root and keeps the backend substitutable.
type Store struct {
	fs billy.Filesystem
}

// New creates a store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{fs: osfs.New(dir)}, nil
}

// NewWithFilesystem creates a store over an existing filesystem.
func NewWithFilesystem(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// SafeExt returns the lower-cased extension of name if it matches the strict
// allow-pattern, otherwise the empty string.
func SafeExt(name string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(name, "\\", "/")))
	if extPattern.MatchString(ext) {
		return ext
	}
	return ""
}

// KindFor derives the attachment kind from the original filename extension.
func KindFor(name string) string {
	if imageExts[strings.ToLower(path.Ext(name))] {
		return proto.KindImage
	}
	return proto.KindFile
}

// Save streams the uploaded bytes to disk under a date-bucketed directory and
// returns the resulting attachment reference. The on-disk name is a fresh
// unique id; only a validated extension of originalName is preserved.
func (s *Store) Save(originalName string, r io.Reader) (proto.Attachment, error) {
	if originalName == "" {
		originalName = "file"
	}

	id := uuid.New()
	fileName := hex.EncodeToString(id[:]) + SafeExt(originalName)
	day := time.Now().Format("2006-01-02")

	if err := s.fs.MkdirAll(day, 0o755); err != nil {
		return proto.Attachment{}, fmt.Errorf("create day bucket: %w", err)
	}

	rel := path.Join(day, fileName)
	f, err := s.fs.Create(rel)
	if err != nil {
		return proto.Attachment{}, fmt.Errorf("create upload file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(rel)
		return proto.Attachment{}, fmt.Errorf("write upload file: %w", err)
	}

	return proto.Attachment{
		URL:  URLPrefix + day + "/" + fileName,
		Name: originalName,
		Size: n,
		Kind: KindFor(originalName),
	}, nil
}

// DeleteByURL removes the file the URL resolves to, reporting whether a file
// was actually removed. URLs that escape the store root never delete anything.
func (s *Store) DeleteByURL(rawURL string) bool {
	rel, ok := resolveURL(rawURL)
	if !ok {
		return false
	}
	fi, err := s.fs.Lstat(rel)
	if err != nil || fi.IsDir() {
		return false
	}
	if err := s.fs.Remove(rel); err != nil {
		log.Debug().Err(err).Str("url", rawURL).Msg("attachment delete failed")
		return false
	}
	return true
}

// PurgeAll removes every file under the store root and any now-empty
// directories, returning the count of files removed.
func (s *Store) PurgeAll() int {
	return s.removeMatching(func(os.FileInfo) bool { return true })
}

// SweepExpired removes files whose modification time is older than maxAge,
// then removes empty directories. Returns the count of files removed.
func (s *Store) SweepExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	return s.removeMatching(func(fi os.FileInfo) bool {
		return fi.ModTime().Before(cutoff)
	})
}

// removeMatching walks the store, removes files the predicate selects, then
// prunes directories that ended up empty. Individual failures are skipped.
func (s *Store) removeMatching(match func(os.FileInfo) bool) int {
	var files []string
	var dirs []string
	s.enumerate(".", func(rel string, fi os.FileInfo) {
		if fi.IsDir() {
			dirs = append(dirs, rel)
		} else if match(fi) {
			files = append(files, rel)
		}
	})

	deleted := 0
	for _, rel := range files {
		if err := s.fs.Remove(rel); err == nil {
			deleted++
		}
	}

	// Deepest directories first so emptied parents can go too.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, dir := range dirs {
		entries, err := s.fs.ReadDir(dir)
		if err == nil && len(entries) == 0 {
			_ = s.fs.Remove(dir)
		}
	}
	return deleted
}

// enumerate visits every entry below dir, depth-first. The store root itself
// is not visited.
func (s *Store) enumerate(dir string, visit func(rel string, fi os.FileInfo)) {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		return
	}
	for _, fi := range entries {
		rel := path.Join(dir, fi.Name())
		visit(rel, fi)
		if fi.IsDir() {
			s.enumerate(rel, visit)
		}
	}
}
