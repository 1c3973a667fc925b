// Package scan enumerates backup-like files under a target root.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// BackupPatterns are the filename patterns treated as backup candidates.
var BackupPatterns = []string{
	"*.backup.*",
	"*.bak",
	"*.backup",
	"*~",
	"*.orig",
	"*.save",
}

// timestampedRe catches numeric-suffixed backups like config.bak.20240110.
var timestampedRe = regexp.MustCompile(`.*\.(backup|bak)\.[\d_]+$`)

// FileInfo is the subset of stat data the pipeline needs.
type FileInfo struct {
	Size  int64
	MTime time.Time
}

// Scanner is the filesystem capability consumed by the pipeline.
type Scanner interface {
	FindByPatterns(root string, patterns []string) ([]string, error)
	Stat(path string) (FileInfo, error)
	ContentHash(path string) (string, error)
}

// FS is the production Scanner backed by the real filesystem.
type FS struct{}

func NewFS() *FS { return &FS{} }

// FindByPatterns walks root and returns every regular file matching any of
// the patterns or the timestamped-backup form, deduplicated and sorted.
func (FS) FindByPatterns(root string, patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		for _, pat := range patterns {
			if ok, _ := filepath.Match(pat, name); ok {
				seen[path] = struct{}{}
				return nil
			}
		}
		if timestampedRe.MatchString(name) {
			seen[path] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (FS) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Size: info.Size(), MTime: info.ModTime()}, nil
}

func (FS) ContentHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
