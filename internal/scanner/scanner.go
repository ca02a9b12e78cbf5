// Package scanner enforces the integrity contract between the document
// store and the search indexes: every live document must be present in
// both indexes. The scanner periodically diffs the authoritative ID set
// against each index and reindexes whatever is missing, including
// documents whose last pipeline run failed.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipstash/clipstash/internal/docstore"
	"github.com/clipstash/clipstash/internal/pipeline"
	"github.com/clipstash/clipstash/internal/store"
)

// State is the scanner's current phase.
type State string

const (
	// StateIdle means no scan is running.
	StateIdle State = "idle"

	// StateScanning means the ID diff is in progress.
	StateScanning State = "scanning"

	// StateReindexing means missing documents are being reindexed.
	StateReindexing State = "reindexing"
)

const (
	// DefaultInterval is the default period between automatic scans.
	DefaultInterval = 5 * time.Minute

	// DefaultSettleDelay is how long after the last write a scan
	// waits. Scanning mid-burst would flag documents whose indexing is
	// simply still in flight.
	DefaultSettleDelay = 2 * time.Second

	// DefaultBatchSize is how many documents are reindexed per batch.
	DefaultBatchSize = 8

	// DefaultBatchPause is the yield between batches, keeping the
	// write path from starving concurrent searches.
	DefaultBatchPause = 100 * time.Millisecond

	// DefaultPurgeAfter is how long soft-deleted documents are kept
	// before a scan hard-deletes them.
	DefaultPurgeAfter = 7 * 24 * time.Hour
)

// ErrScanInProgress is returned when a scan is already running.
var ErrScanInProgress = fmt.Errorf("scan already in progress")

// Report summarizes one scan pass.
type Report struct {
	StartedAt      time.Time
	Duration       time.Duration
	DocsChecked    int
	MissingVector  []string
	MissingKeyword []string
	RetriedFailed  []string
	Reindexed      int
	Failed         int
	Purged         int
}

// Config configures the scanner.
type Config struct {
	Docs     *docstore.Store
	Vector   store.VectorIndex // may be nil in keyword-only mode
	Keyword  store.KeywordIndex
	Pipeline *pipeline.Pipeline

	Interval    time.Duration
	SettleDelay time.Duration
	BatchSize   int
	BatchPause  time.Duration

	// PurgeAfter is the retention window for soft-deleted documents.
	PurgeAfter time.Duration
}

// Scanner runs integrity scans.
type Scanner struct {
	cfg Config

	state     atomic.Value // State
	lastWrite atomic.Int64 // unix nanos of the most recent write

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a scanner.
func New(cfg Config) (*Scanner, error) {
	if cfg.Docs == nil || cfg.Keyword == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("docs, keyword index, and pipeline are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = DefaultBatchPause
	}
	if cfg.PurgeAfter <= 0 {
		cfg.PurgeAfter = DefaultPurgeAfter
	}

	s := &Scanner{cfg: cfg, stopCh: make(chan struct{})}
	s.state.Store(StateIdle)
	return s, nil
}

// State returns the scanner's current phase.
func (s *Scanner) State() State {
	return s.state.Load().(State)
}

// NoteWrite records index write activity, pushing back the settle
// window. The service feeds this from the docstore change feed.
func (s *Scanner) NoteWrite() {
	s.lastWrite.Store(time.Now().UnixNano())
}

// settled reports whether the settle window has passed since the last
// write.
func (s *Scanner) settled() bool {
	last := s.lastWrite.Load()
	if last == 0 {
		return true
	}
	return time.Since(time.Unix(0, last)) >= s.cfg.SettleDelay
}

// Start launches periodic scanning until Stop or context cancellation.
func (s *Scanner) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if !s.settled() {
					slog.Debug("scan_postponed", slog.String("reason", "writes not settled"))
					continue
				}
				if _, err := s.Scan(ctx); err != nil && err != ErrScanInProgress {
					slog.Error("scan_failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop halts periodic scanning and waits for any running scan.
func (s *Scanner) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Scan performs one integrity pass: diff the authoritative ID set
// against both indexes, then reindex the union of missing and
// previously failed documents in small batches.
func (s *Scanner) Scan(ctx context.Context) (*Report, error) {
	if !s.state.CompareAndSwap(StateIdle, StateScanning) {
		return nil, ErrScanInProgress
	}
	defer s.state.Store(StateIdle)

	report := &Report{StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	// Soft-deleted documents past the retention window go first, so
	// the diff below only ever sees rows that can come back.
	purged, err := s.cfg.Docs.Purge(ctx, time.Now().Add(-s.cfg.PurgeAfter))
	if err != nil {
		return nil, fmt.Errorf("purge deleted documents: %w", err)
	}
	report.Purged = purged
	if purged > 0 {
		slog.Info("scan_purged_deleted", slog.Int("count", purged))
	}

	ids, err := s.cfg.Docs.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document IDs: %w", err)
	}
	report.DocsChecked = len(ids)

	if s.cfg.Vector != nil {
		missing, err := s.cfg.Vector.CheckMissing(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("check vector index: %w", err)
		}
		report.MissingVector = s.dropNoContent(missing)
	}

	missingKw, err := s.cfg.Keyword.CheckMissing(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check keyword index: %w", err)
	}
	report.MissingKeyword = s.dropNoContent(missingKw)

	for _, f := range s.cfg.Pipeline.Failures() {
		report.RetriedFailed = append(report.RetriedFailed, f.DocID)
	}

	targets := dedupe(report.MissingVector, report.MissingKeyword, report.RetriedFailed)
	if len(targets) == 0 {
		slog.Debug("scan_clean", slog.Int("docs", len(ids)))
		return report, nil
	}

	slog.Info("scan_found_missing",
		slog.Int("docs", len(ids)),
		slog.Int("missing_vector", len(report.MissingVector)),
		slog.Int("missing_keyword", len(report.MissingKeyword)),
		slog.Int("retrying_failed", len(report.RetriedFailed)))

	s.state.Store(StateReindexing)

	for start := 0; start < len(targets); start += s.cfg.BatchSize {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-s.stopCh:
			return report, nil
		default:
		}

		end := min(start+s.cfg.BatchSize, len(targets))
		for _, id := range targets[start:end] {
			if _, err := s.cfg.Pipeline.Reindex(ctx, id); err != nil {
				report.Failed++
				slog.Warn("scan_reindex_failed",
					slog.String("doc_id", id),
					slog.String("error", err.Error()))
				continue
			}
			report.Reindexed++
		}

		if end < len(targets) && s.cfg.BatchPause > 0 {
			time.Sleep(s.cfg.BatchPause)
		}
	}

	slog.Info("scan_completed",
		slog.Int("reindexed", report.Reindexed),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", time.Since(report.StartedAt)))

	return report, nil
}

// dedupe merges ID lists into a sorted unique slice. Sorting keeps scan
// order deterministic.
// dropNoContent filters out documents whose absence from an index is
// deliberate: they produced zero chunks, so there is nothing to repair.
func (s *Scanner) dropNoContent(ids []string) []string {
	out := ids[:0]
	for _, id := range ids {
		if !s.cfg.Pipeline.IsNoContent(id) {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
