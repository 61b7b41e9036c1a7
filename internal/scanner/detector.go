package scanner

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	cserrors "github.com/Aman-CERP/codesearch/internal/errors"
	"github.com/Aman-CERP/codesearch/internal/fingerprint"
	"github.com/Aman-CERP/codesearch/internal/store"
)

// UnreadableFile is a candidate that could not be read during detection.
type UnreadableFile struct {
	Path string
	Err  error
}

// ChangeSet classifies the files of a project against its FileRecords.
// Added, Modified, Removed and Unchanged are disjoint.
type ChangeSet struct {
	Added     []FileInfo
	Modified  []FileInfo
	Removed   []string
	Unchanged []string
	// Touched are unchanged files whose mtime or size moved. Their records
	// carry the fresh values so the hash is not recomputed next run.
	Touched    []store.FileRecord
	Oversized  []FileInfo
	Unreadable []UnreadableFile
	// Scanned is the number of candidate files found by the walk.
	Scanned int
}

// Changed returns Added followed by Modified.
func (c *ChangeSet) Changed() []FileInfo {
	out := make([]FileInfo, 0, len(c.Added)+len(c.Modified))
	out = append(out, c.Added...)
	return append(out, c.Modified...)
}

// Empty reports whether there is nothing to index or remove.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Detector runs the three-tier change detection over a Scanner listing.
type Detector struct {
	scanner *Scanner
	workers int
}

// NewDetector creates a Detector. workers bounds concurrent hashing.
func NewDetector(s *Scanner, workers int) *Detector {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Detector{scanner: s, workers: workers}
}

type classification int

const (
	classUnchanged classification = iota
	classTouched
	classAdded
	classModified
	classUnreadable
)

type verdict struct {
	class   classification
	touched store.FileRecord
	err     error
}

// Detect walks root and classifies every candidate file. With force, every
// discovered file is modified, or added when it has no record.
//
// Per file: equal mtime and size means unchanged; otherwise the content hash
// decides between unchanged (touched) and modified. Unreadable files are
// reported and left out of every other set.
func (d *Detector) Detect(ctx context.Context, root string, records map[string]store.FileRecord, force bool) (*ChangeSet, error) {
	listing, err := d.scanner.Walk(ctx, root)
	if err != nil {
		return nil, err
	}

	verdicts := make([]verdict, len(listing.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, f := range listing.Files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, ok := records[f.Path]
			verdicts[i] = classify(f, rec, ok, force)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cs := &ChangeSet{
		Oversized: listing.Oversized,
		Scanned:   len(listing.Files),
	}
	live := make(map[string]bool, len(listing.Files))
	for i, f := range listing.Files {
		live[f.Path] = true
		v := verdicts[i]
		switch v.class {
		case classUnchanged:
			cs.Unchanged = append(cs.Unchanged, f.Path)
		case classTouched:
			cs.Unchanged = append(cs.Unchanged, f.Path)
			cs.Touched = append(cs.Touched, v.touched)
		case classAdded:
			cs.Added = append(cs.Added, f)
		case classModified:
			cs.Modified = append(cs.Modified, f)
		case classUnreadable:
			slog.Warn("file_unreadable", slog.String("path", f.Path), slog.String("error", v.err.Error()))
			cs.Unreadable = append(cs.Unreadable, UnreadableFile{Path: f.Path, Err: cserrors.FileUnreadable(f.Path, v.err)})
		}
	}

	for p := range records {
		if !live[p] {
			cs.Removed = append(cs.Removed, p)
		}
	}
	sort.Strings(cs.Removed)

	for _, f := range listing.Oversized {
		slog.Info("file_skipped", slog.String("path", f.Path), slog.String("reason", "oversized"), slog.Int64("size", f.Size))
	}

	slog.Debug("changes_detected",
		slog.Int("scanned", cs.Scanned),
		slog.Int("added", len(cs.Added)),
		slog.Int("modified", len(cs.Modified)),
		slog.Int("removed", len(cs.Removed)),
		slog.Int("unchanged", len(cs.Unchanged)),
		slog.Int("touched", len(cs.Touched)),
		slog.Int("unreadable", len(cs.Unreadable)))
	return cs, nil
}

func classify(f FileInfo, rec store.FileRecord, hasRecord, force bool) verdict {
	mtime := f.ModTime.UnixNano()

	if force || !hasRecord {
		if err := checkReadable(f.AbsPath); err != nil {
			return verdict{class: classUnreadable, err: err}
		}
		if hasRecord {
			return verdict{class: classModified}
		}
		return verdict{class: classAdded}
	}

	if rec.ModTime == mtime && rec.Size == f.Size {
		return verdict{class: classUnchanged}
	}

	hash, err := fingerprint.File(f.AbsPath)
	if err != nil {
		return verdict{class: classUnreadable, err: err}
	}
	if hash == rec.ContentHash {
		return verdict{
			class:   classTouched,
			touched: store.FileRecord{Path: f.Path, ModTime: mtime, Size: f.Size, ContentHash: hash, Chunks: rec.Chunks},
		}
	}
	return verdict{class: classModified}
}

func checkReadable(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}
