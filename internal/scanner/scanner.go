// Package scanner discovers indexable files in a project and classifies them
// against the previously recorded file metadata.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/codesearch/internal/config"
)

// ignoreCacheSize bounds the number of parsed .gitignore files kept between walks.
const ignoreCacheSize = 1000

// FileInfo describes one discovered file.
type FileInfo struct {
	// Path is slash-separated and relative to the project root.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time
}

// Options configures which files are discovered.
type Options struct {
	Extensions       []string
	Filenames        []string
	SkipDirs         []string
	SkipFiles        []string
	RespectGitignore bool
	// MaxFileSize is the size ceiling in bytes; larger files are reported as oversized.
	MaxFileSize int64
	// Workers bounds concurrent hashing during change detection.
	Workers int
}

// OptionsFromConfig derives scan options from the index configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Extensions:       cfg.Index.Extensions,
		Filenames:        cfg.Index.Filenames,
		SkipDirs:         cfg.Index.SkipDirs,
		SkipFiles:        cfg.Index.SkipFiles,
		RespectGitignore: cfg.Index.RespectGitignore,
		MaxFileSize:      cfg.Index.MaxFileSize,
		Workers:          cfg.Index.Workers,
	}
}

// Listing is the result of a walk.
type Listing struct {
	Files []FileInfo
	// Oversized files exceed MaxFileSize. They are skipped, not silently dropped.
	Oversized []FileInfo
}

type cachedIgnore struct {
	modTime time.Time
	rules   []ignoreRule
}

// Scanner walks project trees.
type Scanner struct {
	opts       Options
	extensions map[string]bool
	filenames  map[string]bool

	ignoreCache *lru.Cache[string, cachedIgnore]
}

// New creates a Scanner.
func New(opts Options) (*Scanner, error) {
	cache, err := lru.New[string, cachedIgnore](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}

	s := &Scanner{
		opts:        opts,
		extensions:  make(map[string]bool, len(opts.Extensions)),
		filenames:   make(map[string]bool, len(opts.Filenames)),
		ignoreCache: cache,
	}
	for _, ext := range opts.Extensions {
		s.extensions[strings.ToLower(ext)] = true
	}
	for _, name := range opts.Filenames {
		s.filenames[name] = true
	}
	return s, nil
}

// Walk lists the indexable files under root. Symlinks are not followed and
// unreadable directories are skipped with a warning.
func (s *Scanner) Walk(ctx context.Context, root string) (*Listing, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	listing := &Listing{}
	matcher := &ignoreMatcher{}
	if s.opts.RespectGitignore {
		matcher.add(s.loadIgnore(absRoot, ""))
	}

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			slog.Warn("scan_path_skipped", slog.String("path", p), slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if matchAnyName(d.Name(), s.opts.SkipDirs) || matcher.match(rel, true) {
				return filepath.SkipDir
			}
			if s.opts.RespectGitignore {
				matcher.add(s.loadIgnore(p, rel))
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}
		if !s.isIndexable(d.Name()) || matcher.match(rel, false) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			// Vanished between readdir and stat.
			return nil
		}
		file := FileInfo{Path: rel, AbsPath: p, Size: fi.Size(), ModTime: fi.ModTime()}
		if s.opts.MaxFileSize > 0 && fi.Size() > s.opts.MaxFileSize {
			listing.Oversized = append(listing.Oversized, file)
			return nil
		}
		listing.Files = append(listing.Files, file)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// IsIndexable reports whether rel would be picked up by Walk, ignoring size
// and .gitignore. Used by the watcher to filter events.
func (s *Scanner) IsIndexable(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if part != "." && matchAnyName(part, s.opts.SkipDirs) {
			return false
		}
	}
	return s.isIndexable(filepath.Base(rel))
}

// SkipsDir reports whether a directory with this base name is never walked.
func (s *Scanner) SkipsDir(name string) bool {
	return matchAnyName(name, s.opts.SkipDirs)
}

func (s *Scanner) isIndexable(name string) bool {
	if matchAnyName(name, s.opts.SkipFiles) {
		return false
	}
	if s.filenames[name] {
		return true
	}
	return s.extensions[strings.ToLower(filepath.Ext(name))]
}

// loadIgnore returns the rules of dir/.gitignore, reusing the parsed copy
// while the file's mtime is unchanged.
func (s *Scanner) loadIgnore(dir, base string) []ignoreRule {
	file := filepath.Join(dir, ".gitignore")
	info, err := os.Stat(file)
	if err != nil {
		return nil
	}

	key := file + "\x00" + base
	cached, ok := s.ignoreCache.Get(key)
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.rules
	}

	rules, err := parseIgnoreFile(file, base)
	if err != nil {
		slog.Warn("gitignore_unreadable", slog.String("path", file), slog.String("error", err.Error()))
		return nil
	}

	s.ignoreCache.Add(key, cachedIgnore{modTime: info.ModTime(), rules: rules})
	return rules
}
