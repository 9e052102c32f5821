package history

import (
	"context"
	"log"
	"sync"
	"time"
)

// Lister is the read side of the store the cache polls.
type Lister interface {
	GetAll(ctx context.Context) ([]Record, error)
}

// Cache keeps an in-memory copy of the history list, refreshed on a
// fixed interval. A successful poll replaces the whole snapshot; a
// failed poll leaves the previous snapshot in place. Local mutations
// (rename, favorite, delete) are applied optimistically and confirmed
// by the next poll.
type Cache struct {
	store    Lister
	interval time.Duration

	mu       sync.Mutex
	items    []Record
	started  bool
	polling  bool
	lastErr  error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCache creates a cache polling store every interval.
func NewCache(store Lister, interval time.Duration) *Cache {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Cache{store: store, interval: interval}
}

// Initialize loads the first snapshot and starts the polling loop. Extra
// calls are no-ops, so every view can call it on mount.
func (c *Cache) Initialize(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.Refresh(ctx); err != nil {
		log.Printf("⚠️ initial history load failed: %v", err)
	}

	c.wg.Add(1)
	go c.loop(loopCtx)
	return nil
}

func (c *Cache) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				log.Printf("⚠️ history poll failed: %v", err)
			}
		}
	}
}

// Refresh polls the store once. If a poll is already in flight the call
// returns immediately; ticks never stack up behind a slow store. On
// failure the cached snapshot is left untouched.
func (c *Cache) Refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.polling {
		c.mu.Unlock()
		return nil
	}
	c.polling = true
	c.mu.Unlock()

	records, err := c.store.GetAll(ctx)

	c.mu.Lock()
	c.polling = false
	c.lastErr = err
	if err == nil {
		c.items = records
	}
	c.mu.Unlock()

	return err
}

// Items returns the current snapshot, newest first.
func (c *Cache) Items() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Record, len(c.items))
	copy(out, c.items)
	return out
}

// Get returns the cached record with the given id.
func (c *Cache) Get(id string) (Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rec := range c.items {
		if rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// Add prepends a record optimistically.
func (c *Cache) Add(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.items {
		if existing.ID == rec.ID {
			c.items[i] = rec
			return
		}
	}
	c.items = append([]Record{rec}, c.items...)
}

// UpdateItem applies fn to the cached record with the given id.
func (c *Cache) UpdateItem(id string, fn func(*Record)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			fn(&c.items[i])
			return true
		}
	}
	return false
}

// Remove drops a record from the snapshot optimistically.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, rec := range c.items {
		if rec.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return
		}
	}
}

// Replace swaps the whole snapshot.
func (c *Cache) Replace(records []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = records
}

// LastErr returns the error from the most recent poll, nil on success.
func (c *Cache) LastErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Destroy stops the polling loop. The snapshot stays readable.
func (c *Cache) Destroy() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}
