// Package cache memoizes external generation calls behind a
// content-addressed key so retries and re-renders are cheap and idempotent.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// snapshotVersion guards the durable format. Bump on incompatible changes;
// older snapshots are discarded on load.
const snapshotVersion = 1

// Value is one memoized generation result: opaque bytes plus the metadata
// the call produced alongside them.
type Value struct {
	Data     []byte         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ComputeFunc produces a value when the cache misses. A failing compute is
// never cached.
type ComputeFunc func(ctx context.Context) (Value, error)

// Options configures a Cache.
type Options struct {
	// MaxSize caps the number of in-memory entries; least-recently-used
	// entries are evicted first.
	MaxSize int
	// Dir enables durable snapshots when non-empty. Each named cache owns
	// one file so a corrupt store for one result kind never affects another.
	Dir  string
	Name string
}

type entry struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

type snapshot struct {
	Version int     `json:"version"`
	Entries []entry `json:"entries"`
}

// Cache is a strict-LRU memoizing cache with an optional whole-snapshot
// durable mirror. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	file    string

	order *list.List // front = least recently used
	items map[string]*list.Element
}

// New constructs a Cache and, when a durable store is configured, loads it.
// A corrupt or unreadable snapshot yields an empty cache, not an error.
func New(opts Options) (*Cache, error) {
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("cache: max size must be positive")
	}
	c := &Cache{
		maxSize: opts.MaxSize,
		order:   list.New(),
		items:   make(map[string]*list.Element),
	}
	if opts.Dir != "" {
		if opts.Name == "" {
			return nil, fmt.Errorf("cache: name is required for a durable cache")
		}
		c.file = filepath.Join(opts.Dir, opts.Name+".json")
		c.loadSnapshot()
	}
	return c, nil
}

// GetOrCompute returns the cached value for the operation and arguments,
// computing and storing it on a miss. When refresh is true the cached value
// is ignored and the freshly computed one overwrites it. The refresh flag
// never participates in the key.
func (c *Cache) GetOrCompute(ctx context.Context, operation string, args *Args, compute ComputeFunc, refresh bool) (Value, error) {
	key := Key(operation, args)

	if !refresh {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
	}

	v, err := compute(ctx)
	if err != nil {
		return Value{}, err
	}
	c.Set(key, v)
	return v, nil
}

// Get returns the value for key and marks it most recently used.
func (c *Cache) Get(key string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return Value{}, false
	}
	c.order.MoveToBack(el)
	return el.Value.(entry).Value, true
}

// Set stores a value, evicting the least-recently-used entry at capacity,
// then flushes the durable snapshot when one is configured.
func (c *Cache) Set(key string, v Value) {
	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		el.Value = entry{Key: key, Value: v}
		c.order.MoveToBack(el)
	} else {
		if c.order.Len() >= c.maxSize {
			oldest := c.order.Front()
			if oldest != nil {
				delete(c.items, oldest.Value.(entry).Key)
				c.order.Remove(oldest)
			}
		}
		c.items[key] = c.order.PushBack(entry{Key: key, Value: v})
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.saveSnapshot(snap)
}

// Len returns the number of in-memory entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Contains reports whether a key is cached, without touching recency.
func (c *Cache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// Clear empties the cache and removes its durable snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
	file := c.file
	c.mu.Unlock()

	if file != "" {
		_ = os.Remove(file)
	}
}

// snapshotLocked captures entries least-recent-first. Callers hold c.mu.
func (c *Cache) snapshotLocked() *snapshot {
	if c.file == "" {
		return nil
	}
	snap := &snapshot{Version: snapshotVersion, Entries: make([]entry, 0, c.order.Len())}
	for el := c.order.Front(); el != nil; el = el.Next() {
		snap.Entries = append(snap.Entries, el.Value.(entry))
	}
	return snap
}

// saveSnapshot writes the full snapshot. Durable writes are best-effort:
// losing cache content only costs a future recompute.
func (c *Cache) saveSnapshot(snap *snapshot) {
	if snap == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.file), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(c.file, data, 0o644)
}

// loadSnapshot restores the most recently used maxSize entries,
// most-recent-last so recency order survives the round trip.
func (c *Cache) loadSnapshot() {
	data, err := os.ReadFile(c.file)
	if err != nil {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil || snap.Version != snapshotVersion {
		return
	}
	entries := snap.Entries
	if len(entries) > c.maxSize {
		entries = entries[len(entries)-c.maxSize:]
	}
	for _, e := range entries {
		c.items[e.Key] = c.order.PushBack(e)
	}
}
