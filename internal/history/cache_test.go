package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeLister lets tests control what a poll returns.
type fakeLister struct {
	mu      sync.Mutex
	records []Record
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeLister) GetAll(ctx context.Context) ([]Record, error) {
	f.mu.Lock()
	f.calls++
	records, err, block := f.records, f.err, f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

func (f *fakeLister) set(records []Record, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records, f.err = records, err
}

func (f *fakeLister) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rec(id string) Record { return Record{ID: id} }

func TestRefreshOverwritesSnapshot(t *testing.T) {
	lister := &fakeLister{}
	cache := NewCache(lister, time.Hour)
	ctx := context.Background()

	lister.set([]Record{rec("a"), rec("b")}, nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A shrunken store result replaces the snapshot wholesale, it is not
	// merged into it.
	lister.set([]Record{rec("c")}, nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	items := cache.Items()
	if len(items) != 1 || items[0].ID != "c" {
		t.Fatalf("snapshot not overwritten: %+v", items)
	}
}

func TestOptimisticAddRevertedByPoll(t *testing.T) {
	lister := &fakeLister{}
	cache := NewCache(lister, time.Hour)
	ctx := context.Background()

	lister.set([]Record{rec("a")}, nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// A poll that does not yet know about the optimistic add wins; the
	// cache mirrors storage, it does not merge.
	cache.Add(rec("local"))
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	items := cache.Items()
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("expected the polled list verbatim, got %+v", items)
	}
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	lister := &fakeLister{}
	cache := NewCache(lister, time.Hour)
	ctx := context.Background()

	lister.set([]Record{rec("a")}, nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	lister.set(nil, errors.New("db locked"))
	if err := cache.Refresh(ctx); err == nil {
		t.Fatal("expected poll error")
	}

	items := cache.Items()
	if len(items) != 1 || items[0].ID != "a" {
		t.Fatalf("failed poll clobbered snapshot: %+v", items)
	}
	if cache.LastErr() == nil {
		t.Fatal("poll error not recorded")
	}
}

func TestRefreshInFlightIsNoOp(t *testing.T) {
	block := make(chan struct{})
	lister := &fakeLister{block: block}
	lister.set([]Record{rec("a")}, nil)
	cache := NewCache(lister, time.Hour)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- cache.Refresh(ctx) }()

	// Wait for the first poll to be in flight.
	for lister.callCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	// A second refresh while the first is pending must return without
	// touching the store.
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("overlapping Refresh: %v", err)
	}
	if got := lister.callCount(); got != 1 {
		t.Fatalf("overlapping refresh hit the store: %d calls", got)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]Record{rec("a")}, nil)
	cache := NewCache(lister, time.Hour)
	defer cache.Destroy()
	ctx := context.Background()

	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	calls := lister.callCount()

	// Second mount must not trigger another load or a second loop.
	if err := cache.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if got := lister.callCount(); got != calls {
		t.Fatalf("re-initialize polled again: %d vs %d", got, calls)
	}
}

func TestPollingLoopRefreshes(t *testing.T) {
	lister := &fakeLister{}
	lister.set([]Record{rec("a")}, nil)
	cache := NewCache(lister, 10*time.Millisecond)
	defer cache.Destroy()

	if err := cache.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	lister.set([]Record{rec("a"), rec("b")}, nil)

	deadline := time.After(2 * time.Second)
	for {
		if len(cache.Items()) == 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("poll never picked up the new record: %+v", cache.Items())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestOptimisticMutations(t *testing.T) {
	lister := &fakeLister{}
	cache := NewCache(lister, time.Hour)
	ctx := context.Background()

	lister.set([]Record{rec("a"), rec("b")}, nil)
	if err := cache.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	cache.Add(rec("new"))
	if items := cache.Items(); items[0].ID != "new" {
		t.Fatalf("Add must prepend: %+v", items)
	}

	if !cache.UpdateItem("a", func(r *Record) { r.Title = "renamed" }) {
		t.Fatal("UpdateItem missed existing record")
	}
	if got, _ := cache.Get("a"); got.Title != "renamed" {
		t.Fatalf("update lost: %+v", got)
	}

	cache.Remove("b")
	if _, ok := cache.Get("b"); ok {
		t.Fatal("Remove left the record behind")
	}

	// Adding an existing id updates in place instead of duplicating.
	cache.Add(Record{ID: "a", Title: "again"})
	count := 0
	for _, it := range cache.Items() {
		if it.ID == "a" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("Add duplicated record: %d copies", count)
	}

	cache.Replace([]Record{rec("only")})
	if items := cache.Items(); len(items) != 1 || items[0].ID != "only" {
		t.Fatalf("Replace did not overwrite: %+v", items)
	}
}
