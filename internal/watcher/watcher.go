// Package watcher observes a drop folder and turns file activity into
// indexing work. Files placed in the folder become documents; removing
// a file removes its document from the indexes.
package watcher

import (
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
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
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event inside the drop folder.
type FileEvent struct {
	// Path is the absolute path to the file.
	Path string

	// Operation is the type of file system operation.
	Operation Operation

	// Timestamp is when the event was detected.
	Timestamp time.Time
}

// Options configures the drop folder watcher.
type Options struct {
	// DebounceWindow is the time to wait before emitting coalesced events.
	// Editors and copy tools produce bursts of writes for a single save;
	// the window folds each burst into one event per path.
	DebounceWindow time.Duration

	// EventBufferSize is the size of the batched event channel buffer.
	EventBufferSize int

	// Extensions restricts imports to the given file extensions
	// (lowercase, with leading dot). Empty means all supported types.
	Extensions []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  200 * time.Millisecond,
		EventBufferSize: 100,
	}
}

// WithDefaults fills in zero values with defaults.
func (o Options) WithDefaults() Options {
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = 200 * time.Millisecond
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = 100
	}
	return o
}
