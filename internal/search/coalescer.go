package search

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the default delay before a submitted query runs.
const DefaultDebounce = 150 * time.Millisecond

// Searcher is the engine surface the coalescer needs.
type Searcher interface {
	Search(ctx context.Context, query string, opts Options) (*Response, error)
}

// Coalescer debounces interactive search. Each Submit supersedes the
// previous one: only the latest query runs once the debounce window
// closes, and a result is delivered only if its query is still the
// latest when the search finishes. Stale results are dropped, never
// delivered out of order.
type Coalescer struct {
	searcher Searcher
	delay    time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	closed bool
}

// NewCoalescer creates a coalescer around a searcher.
func NewCoalescer(searcher Searcher, delay time.Duration) *Coalescer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Coalescer{searcher: searcher, delay: delay}
}

// Submit schedules a search. deliver is called with the outcome unless
// a newer Submit arrives first.
func (c *Coalescer) Submit(ctx context.Context, query string, opts Options, deliver func(*Response, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.seq++
	seq := c.seq

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.delay, func() {
		if !c.isLatest(seq) {
			return
		}

		resp, err := c.searcher.Search(ctx, query, opts)

		// The query may have been superseded while running.
		if !c.isLatest(seq) {
			return
		}
		deliver(resp, err)
	})
}

// Cancel drops any pending query without running it.
func (c *Coalescer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Close cancels pending work and rejects further submits.
func (c *Coalescer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Coalescer) isLatest(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && seq == c.seq
}
