// Package cache provides a local disk cache tier for chunk objects.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mosaicolabs/mosaico/internal/storage"
)

// Metrics holds cache statistics for observability.
type Metrics struct {
	Hits      atomic.Int64
	Misses    atomic.Int64
	Evictions atomic.Int64
	Entries   atomic.Int64
	SizeBytes atomic.Int64
}

// ChunkCache is a read-through disk cache in front of a remote object
// store. Chunks are immutable, so a cached copy never goes stale; the
// only invalidation path is Delete. Reads fill the cache, writes go
// through to the remote and fill on the way.
type ChunkCache struct {
	remote   storage.ObjectStorage
	dir      string
	maxBytes int64
	metrics  Metrics

	mu    sync.Mutex
	index map[string]*entry
	clock int64
}

type entry struct {
	localPath  string
	sizeBytes  int64
	lastAccess int64
}

// NewChunkCache creates a disk cache under dir, bounded to maxBytes.
func NewChunkCache(remote storage.ObjectStorage, dir string, maxBytes int64) (*ChunkCache, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	c := &ChunkCache{
		remote:   remote,
		dir:      dir,
		maxBytes: maxBytes,
		index:    make(map[string]*entry),
	}
	if err := c.scanExisting(); err != nil {
		return nil, fmt.Errorf("failed to scan cache dir: %w", err)
	}
	return c, nil
}

// scanExisting rebuilds the index from files left by a previous run.
func (c *ChunkCache) scanExisting() error {
	return filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		c.index[key] = &entry{localPath: path, sizeBytes: info.Size()}
		c.metrics.Entries.Add(1)
		c.metrics.SizeBytes.Add(info.Size())
		return nil
	})
}

// Get returns the object, from disk when cached.
func (c *ChunkCache) Get(ctx context.Context, objectPath string) ([]byte, error) {
	c.mu.Lock()
	e, ok := c.index[objectPath]
	if ok {
		c.clock++
		e.lastAccess = c.clock
	}
	c.mu.Unlock()

	if ok {
		data, err := os.ReadFile(e.localPath)
		if err == nil {
			c.metrics.Hits.Add(1)
			return data, nil
		}
		// Lost the file under us; drop the entry and fall through.
		c.drop(objectPath)
	}

	c.metrics.Misses.Add(1)
	data, err := c.remote.Get(ctx, objectPath)
	if err != nil {
		return nil, err
	}
	c.fill(objectPath, data)
	return data, nil
}

// Put writes through to the remote store and fills the cache.
func (c *ChunkCache) Put(ctx context.Context, objectPath string, data []byte) error {
	if err := c.remote.Put(ctx, objectPath, data); err != nil {
		return err
	}
	c.fill(objectPath, data)
	return nil
}

// Delete removes the object remotely and drops the cached copy.
func (c *ChunkCache) Delete(ctx context.Context, objectPath string) error {
	if err := c.remote.Delete(ctx, objectPath); err != nil {
		return err
	}
	c.drop(objectPath)
	return nil
}

// Exists checks the cache before asking the remote store.
func (c *ChunkCache) Exists(ctx context.Context, objectPath string) (bool, error) {
	c.mu.Lock()
	_, ok := c.index[objectPath]
	c.mu.Unlock()
	if ok {
		return true, nil
	}
	return c.remote.Exists(ctx, objectPath)
}

// List always asks the remote store; the cache holds a subset.
func (c *ChunkCache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.remote.List(ctx, prefix)
}

// Stats returns the current cache metrics.
func (c *ChunkCache) Stats() (hits, misses, evictions, entries, size int64) {
	return c.metrics.Hits.Load(), c.metrics.Misses.Load(),
		c.metrics.Evictions.Load(), c.metrics.Entries.Load(),
		c.metrics.SizeBytes.Load()
}

// fill stores a local copy and evicts the least recently used entries
// when over budget. Objects larger than the whole budget are not cached.
func (c *ChunkCache) fill(objectPath string, data []byte) {
	if int64(len(data)) > c.maxBytes {
		return
	}
	local := filepath.Join(c.dir, filepath.FromSlash(objectPath))
	if !strings.HasPrefix(local, filepath.Clean(c.dir)+string(os.PathSeparator)) {
		return
	}
	if err := os.MkdirAll(filepath.Dir(local), 0755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(local), ".fill-*")
	if err != nil {
		return
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return
	}
	tmp.Close()
	if err := os.Rename(tmp.Name(), local); err != nil {
		os.Remove(tmp.Name())
		return
	}

	c.mu.Lock()
	if old, ok := c.index[objectPath]; ok {
		c.metrics.SizeBytes.Add(-old.sizeBytes)
		c.metrics.Entries.Add(-1)
	}
	c.clock++
	c.index[objectPath] = &entry{localPath: local, sizeBytes: int64(len(data)), lastAccess: c.clock}
	c.metrics.Entries.Add(1)
	c.metrics.SizeBytes.Add(int64(len(data)))
	c.evictLocked()
	c.mu.Unlock()
}

// evictLocked removes least recently used entries until under budget.
// Caller holds c.mu.
func (c *ChunkCache) evictLocked() {
	if c.metrics.SizeBytes.Load() <= c.maxBytes {
		return
	}

	type victim struct {
		key string
		e   *entry
	}
	victims := make([]victim, 0, len(c.index))
	for k, e := range c.index {
		victims = append(victims, victim{k, e})
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].e.lastAccess < victims[j].e.lastAccess
	})

	for _, v := range victims {
		if c.metrics.SizeBytes.Load() <= c.maxBytes {
			return
		}
		os.Remove(v.e.localPath)
		delete(c.index, v.key)
		c.metrics.SizeBytes.Add(-v.e.sizeBytes)
		c.metrics.Entries.Add(-1)
		c.metrics.Evictions.Add(1)
	}
}

func (c *ChunkCache) drop(objectPath string) {
	c.mu.Lock()
	if e, ok := c.index[objectPath]; ok {
		os.Remove(e.localPath)
		delete(c.index, objectPath)
		c.metrics.SizeBytes.Add(-e.sizeBytes)
		c.metrics.Entries.Add(-1)
	}
	c.mu.Unlock()
}
