package raster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"k8s.io/klog/v2"
)

// ErrResourceExhausted is reported when a scan could never be admitted: its
// decoded size alone exceeds the cache's memory ceiling. Loads that merely
// have to wait for room block instead of failing.
var ErrResourceExhausted = errors.New("scan exceeds raster memory ceiling")

// Cache provides thread-safe caching of decoded rasters so repeated renders
// of the same scan avoid redundant disk reads and decodes.
//
// Decoded scans can run to tens of megabytes each, so the cache enforces a
// byte ceiling. Admission is decided before any pixel data is read: Load
// reserves the scan's decoded size (taken from the file header) against the
// ceiling, and when the cache is full it waits for an eviction to free room
// rather than decoding speculatively. Only a scan too large for an empty
// cache fails, with ErrResourceExhausted.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	mu       sync.Mutex
	rasters  map[string]*Raster
	inflight map[string]chan struct{}
	freed    chan struct{}
	bytes    int64
	ceiling  int64
}

// NewCache creates an empty cache with the given memory ceiling in bytes.
// A ceiling of 0 or less means unlimited.
func NewCache(ceilingBytes int64) *Cache {
	return &Cache{
		rasters:  make(map[string]*Raster),
		inflight: make(map[string]chan struct{}),
		freed:    make(chan struct{}),
		ceiling:  ceilingBytes,
	}
}

// Load retrieves a raster from the cache, decoding it from disk if absent.
//
// The raster is cached under the exact path string provided. Concurrent
// Loads of the same path share one decode. When the cache is full, Load
// blocks until another raster is evicted or ctx is done; ctx cancellation
// returns ctx.Err(). Decode failures are returned unwrapped from Decode
// (ErrUnsupportedFormat / ErrCorruptFile).
func (c *Cache) Load(ctx context.Context, path string) (*Raster, error) {
	c.mu.Lock()
	for {
		if r, ok := c.rasters[path]; ok {
			c.mu.Unlock()
			return r, nil
		}
		ch, busy := c.inflight[path]
		if !busy {
			break
		}
		// Another goroutine is decoding this path; wait and re-check.
		c.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
		c.mu.Lock()
	}
	done := make(chan struct{})
	c.inflight[path] = done
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, path)
		close(done)
		c.mu.Unlock()
	}()

	need, err := DecodedSize(path)
	if err != nil {
		return nil, err
	}
	if err := c.reserve(ctx, path, need); err != nil {
		return nil, err
	}

	r, err := Decode(path)
	if err != nil {
		c.release(need)
		return nil, err
	}

	c.mu.Lock()
	// The header and the decode agree on dimensions; stay exact if not.
	c.bytes += r.Bytes() - need
	c.rasters[path] = r
	c.mu.Unlock()
	return r, nil
}

// reserve claims need bytes under the ceiling, blocking while the cache is
// full. A need larger than the whole ceiling fails immediately.
func (c *Cache) reserve(ctx context.Context, path string, need int64) error {
	c.mu.Lock()
	for c.ceiling > 0 && c.bytes+need > c.ceiling {
		if need > c.ceiling {
			c.mu.Unlock()
			return fmt.Errorf("%w: %s needs %d bytes, ceiling is %d",
				ErrResourceExhausted, path, need, c.ceiling)
		}
		freed := c.freed
		c.mu.Unlock()
		klog.V(1).Infof("cache full, %s waiting for %d bytes", path, need)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-freed:
		}
		c.mu.Lock()
	}
	c.bytes += need
	c.mu.Unlock()
	return nil
}

// release returns reserved bytes after a failed decode and wakes waiters.
func (c *Cache) release(n int64) {
	c.mu.Lock()
	c.bytes -= n
	c.notifyLocked()
	c.mu.Unlock()
}

// notifyLocked wakes every Load blocked on a full cache. Callers hold mu.
func (c *Cache) notifyLocked() {
	close(c.freed)
	c.freed = make(chan struct{})
}

// Evict removes a raster from the cache by its path, freeing its share of
// the ceiling and waking blocked Loads. Unknown paths are ignored.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	if r, ok := c.rasters[path]; ok {
		c.bytes -= r.Bytes()
		delete(c.rasters, path)
		c.notifyLocked()
	}
	c.mu.Unlock()
}

// Clear removes all cached rasters. Reservations held by in-flight Loads
// are untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	for _, r := range c.rasters {
		c.bytes -= r.Bytes()
	}
	c.rasters = make(map[string]*Raster)
	c.notifyLocked()
	c.mu.Unlock()
}

// Bytes returns the bytes currently admitted against the ceiling, cached
// rasters plus in-flight reservations.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}
