// Package watcher turns file system activity under a project root into
// debounced batches of changes and drives incremental re-indexing from them.
//
// Events only say that something changed. The authoritative diff is always
// computed by the change detector on the next pass, so a dropped or
// mis-coalesced event costs at most one redundant pass.
package watcher

import (
	"time"
)

// Operation is the kind of change seen for a path.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	// OpRename is reported for the old name; the new name arrives as OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a path under the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event before a batch is
	// emitted.
	Debounce time.Duration
	// BufferSize is the capacity of the batch channel.
	BufferSize int
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:   500 * time.Millisecond,
		BufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = defaults.Debounce
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaults.BufferSize
	}
	return o
}
