package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/pipeline"
)

// dropNamespace seeds path-derived document IDs. The same file path
// always maps to the same document, so a rewrite replaces rather than
// duplicates.
var dropNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("clipstash:drop-folder"))

// contentTypes maps file extensions to the content types the extractors
// understand. Files with other extensions are skipped.
var contentTypes = map[string]string{
	".txt":      "text/plain",
	".log":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".html":     "text/html",
	".htm":      "text/html",
}

// Indexer is the subset of the indexing pipeline the watcher needs.
type Indexer interface {
	IndexDocument(ctx context.Context, doc *docstore.Document) (*pipeline.Result, error)
	Delete(ctx context.Context, docID string) error
}

var _ Indexer = (*pipeline.Pipeline)(nil)

// DropWatcher watches a drop folder with fsnotify and imports files as
// documents. Events pass through a debouncer so a burst of writes for
// one file yields a single import.
type DropWatcher struct {
	indexer   Indexer
	debouncer *Debouncer
	opts      Options
	root      string

	fsWatcher *fsnotify.Watcher
	errs      chan error
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewDropWatcher creates a watcher for the given folder. The folder
// must exist before Start is called.
func NewDropWatcher(root string, indexer Indexer, opts Options) (*DropWatcher, error) {
	opts = opts.WithDefaults()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve drop folder path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &DropWatcher{
		indexer:   indexer,
		debouncer: NewDebouncer(opts.DebounceWindow),
		opts:      opts,
		root:      absRoot,
		fsWatcher: fsw,
		errs:      make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// DocIDForPath returns the stable document ID for a file path.
func DocIDForPath(path string) string {
	return uuid.NewSHA1(dropNamespace, []byte(path)).String()
}

// Start begins watching. It imports files already present in the
// folder, then processes events until Stop is called or the context is
// cancelled. Start does not block.
func (w *DropWatcher) Start(ctx context.Context) error {
	if err := w.fsWatcher.Add(w.root); err != nil {
		return fmt.Errorf("watch drop folder: %w", err)
	}

	if err := w.importExisting(ctx); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.forwardFsnotify(ctx)
	go w.applyBatches(ctx)

	slog.Info("drop_watcher_started", slog.String("path", w.root))
	return nil
}

// Stop stops the watcher and waits for in-flight imports to finish.
// Safe to call multiple times.
func (w *DropWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.fsWatcher.Close()
		w.debouncer.Stop()
		w.wg.Wait()
		close(w.errs)
	})
}

// Errors returns a channel of non-fatal watcher errors. The watcher
// keeps running after reporting one. The channel is closed by Stop.
func (w *DropWatcher) Errors() <-chan error {
	return w.errs
}

// importExisting indexes files already in the folder at startup, so
// documents dropped while the watcher was down are not lost.
func (w *DropWatcher) importExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return fmt.Errorf("read drop folder: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(w.root, entry.Name())
		if !w.supported(path) {
			continue
		}
		if err := w.importFile(ctx, path); err != nil {
			w.emitError(err)
		}
	}
	return nil
}

// forwardFsnotify translates raw fsnotify events into debounced
// FileEvents.
func (w *DropWatcher) forwardFsnotify(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.emitError(err)
		}
	}
}

func (w *DropWatcher) handleFsnotifyEvent(event fsnotify.Event) {
	if !w.supported(event.Name) {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename away from the folder drops the document; a rename
		// into the folder arrives as a separate Create.
		op = OpDelete
	default:
		// Chmod and friends carry no content change.
		return
	}

	if op != OpDelete {
		info, err := os.Stat(event.Name)
		if err != nil || info.IsDir() {
			return
		}
	}

	w.debouncer.Add(FileEvent{
		Path:      event.Name,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// applyBatches consumes debounced batches and runs imports and deletes.
func (w *DropWatcher) applyBatches(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			for _, event := range batch {
				if err := w.apply(ctx, event); err != nil {
					w.emitError(err)
				}
			}
		}
	}
}

func (w *DropWatcher) apply(ctx context.Context, event FileEvent) error {
	switch event.Operation {
	case OpCreate, OpModify:
		return w.importFile(ctx, event.Path)
	case OpDelete:
		docID := DocIDForPath(event.Path)
		if err := w.indexer.Delete(ctx, docID); err != nil {
			return fmt.Errorf("delete dropped file %s: %w", filepath.Base(event.Path), err)
		}
		slog.Info("drop_file_removed",
			slog.String("path", event.Path),
			slog.String("doc_id", docID),
		)
		return nil
	default:
		return nil
	}
}

// importFile reads a file and indexes it as a document.
func (w *DropWatcher) importFile(ctx context.Context, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Deleted between event and read; the delete event follows.
			return nil
		}
		return fmt.Errorf("read dropped file %s: %w", filepath.Base(path), err)
	}

	doc := &docstore.Document{
		ID:          DocIDForPath(path),
		Title:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Content:     content,
		ContentType: contentTypes[strings.ToLower(filepath.Ext(path))],
		SourceURL:   "file://" + path,
		Tags:        []string{"drop-folder"},
	}

	result, err := w.indexer.IndexDocument(ctx, doc)
	if err != nil {
		return fmt.Errorf("import dropped file %s: %w", filepath.Base(path), err)
	}

	slog.Info("drop_file_imported",
		slog.String("path", path),
		slog.String("doc_id", doc.ID),
		slog.Int("chunks", result.ChunkCount),
		slog.Bool("no_content", result.NoContent),
	)
	return nil
}

// supported reports whether the file should be imported, based on its
// extension and the configured allow list.
func (w *DropWatcher) supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := contentTypes[ext]; !ok {
		return false
	}
	if len(w.opts.Extensions) == 0 {
		return true
	}
	for _, allowed := range w.opts.Extensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (w *DropWatcher) emitError(err error) {
	select {
	case w.errs <- err:
	default:
		slog.Warn("watcher error channel full",
			slog.String("error", err.Error()),
		)
	}
}
