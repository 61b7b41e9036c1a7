package index

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/codesearch/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanVectors marks records of a file that has no FileRecord.
	// A deleted file in that state would never be removed by change detection.
	InconsistencyOrphanVectors InconsistencyType = iota
	// InconsistencyMissingVectors marks a non-empty file with a FileRecord but
	// no records, so change detection would keep skipping it.
	InconsistencyMissingVectors
)

// String returns a human-readable description of the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanVectors:
		return "orphan_vectors"
	case InconsistencyMissingVectors:
		return "missing_vectors"
	default:
		return "unknown"
	}
}

// Inconsistency is one file whose two tables disagree.
type Inconsistency struct {
	Type InconsistencyType
	Path string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of distinct files looked at.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// IndexedFileLister reports the record count per file of a vector store.
type IndexedFileLister interface {
	IndexedFiles() map[string]int
}

// ConsistencyChecker compares the FileRecord table with the vector records.
// They drift apart when a pass stops between the vector write and the
// FileRecord write.
type ConsistencyChecker struct {
	files   store.FileRecordStore
	vectors store.VectorStore
	lister  IndexedFileLister
}

// NewConsistencyChecker creates a checker. vectors must also implement
// IndexedFileLister.
func NewConsistencyChecker(files store.FileRecordStore, vectors interface {
	store.VectorStore
	IndexedFileLister
}) *ConsistencyChecker {
	return &ConsistencyChecker{files: files, vectors: vectors, lister: vectors}
}

// Check lists every file whose tables disagree, sorted by path.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()

	records, err := c.files.FileRecords(ctx)
	if err != nil {
		return nil, err
	}
	indexed := c.lister.IndexedFiles()

	var issues []Inconsistency
	for path := range indexed {
		if _, ok := records[path]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanVectors, Path: path})
		}
	}
	for path, rec := range records {
		if expectsVectors(rec) && indexed[path] == 0 {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingVectors, Path: path})
		}
	}
	sort.Slice(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })

	checked := len(records)
	for path := range indexed {
		if _, ok := records[path]; !ok {
			checked++
		}
	}

	return &CheckResult{
		Checked:         checked,
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// expectsVectors reports whether rec was written with at least one chunk.
// Rows that predate the chunk count fall back to the file size.
func expectsVectors(rec store.FileRecord) bool {
	if rec.Chunks < 0 {
		return rec.Size > 0
	}
	return rec.Chunks > 0
}

// Repair deletes orphaned records and forgets FileRecords without records,
// so the next pass re-indexes those files. It is best-effort: failures are
// logged and the remaining issues are still repaired.
func (c *ConsistencyChecker) Repair(ctx context.Context, issues []Inconsistency) error {
	var forget []string
	orphans := 0
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanVectors:
			if err := c.vectors.Delete(ctx, issue.Path); err != nil {
				slog.Warn("orphan_delete_failed",
					slog.String("path", issue.Path),
					slog.String("error", err.Error()))
				continue
			}
			orphans++
		case InconsistencyMissingVectors:
			forget = append(forget, issue.Path)
		}
	}

	if len(forget) > 0 {
		if err := c.files.DeleteFileRecords(ctx, forget); err != nil {
			return err
		}
	}
	if orphans > 0 || len(forget) > 0 {
		slog.Info("index_repaired",
			slog.Int("orphans_deleted", orphans),
			slog.Int("records_forgotten", len(forget)))
	}
	return nil
}
