package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(path string, op Operation) FileEvent {
	return FileEvent{Path: path, Operation: op, Timestamp: time.Now()}
}

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced batch")
		return nil
	}
}

func TestDebouncerCoalescesBurst(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/a.txt", OpCreate))
	d.Add(event("/drop/a.txt", OpModify))
	d.Add(event("/drop/a.txt", OpModify))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/drop/a.txt", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation, "create followed by writes is still a create")
}

func TestDebouncerCreateThenDeleteCancelsOut(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/gone.txt", OpCreate))
	d.Add(event("/drop/gone.txt", OpDelete))
	d.Add(event("/drop/kept.txt", OpCreate))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "/drop/kept.txt", batch[0].Path)
}

func TestDebouncerModifyThenDeleteIsDelete(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/a.txt", OpModify))
	d.Add(event("/drop/a.txt", OpDelete))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestDebouncerDeleteThenCreateIsModify(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/a.txt", OpDelete))
	d.Add(event("/drop/a.txt", OpCreate))

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation, "replaced file should reindex, not reinsert")
}

func TestDebouncerSeparatePathsStaySeparate(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/a.txt", OpCreate))
	d.Add(event("/drop/b.txt", OpCreate))

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerWindowResetsOnActivity(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	d.Add(event("/drop/a.txt", OpCreate))
	time.Sleep(40 * time.Millisecond)
	d.Add(event("/drop/a.txt", OpModify))

	// The first window would have expired here without the reset.
	select {
	case <-d.Output():
		t.Fatal("batch emitted before the extended window elapsed")
	case <-time.After(60 * time.Millisecond):
	}

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()
	d.Stop()

	// Adds after stop are dropped, not panics.
	d.Add(event("/drop/a.txt", OpCreate))

	_, ok := <-d.Output()
	assert.False(t, ok, "output channel should be closed")
}
