package sample

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// preloadLimit caps the number of concurrent decodes during Preload
const preloadLimit = 4

// Cache decodes sounds on first use and keeps them for the lifetime of the
// process. Entries are never evicted.
type Cache struct {
	lib     Library
	decoder Decoder

	mu      sync.RWMutex
	entries map[string]*Sample

	loads singleflight.Group
}

// NewCache creates an empty cache over lib
func NewCache(lib Library, decoder Decoder) *Cache {
	return &Cache{
		lib:     lib,
		decoder: decoder,
		entries: make(map[string]*Sample),
	}
}

// Library returns the library the cache loads from
func (c *Cache) Library() Library {
	return c.lib
}

// Get returns the decoded sample for ref, loading it if needed. Concurrent
// calls for the same ref share a single decode. Failures are not cached.
func (c *Cache) Get(ctx context.Context, ref string) (*Sample, error) {
	if s, ok := c.Lookup(ref); ok {
		return s, nil
	}

	v, err, shared := c.loads.Do(ref, func() (interface{}, error) {
		// Another caller may have finished between Lookup and Do
		if s, ok := c.Lookup(ref); ok {
			return s, nil
		}

		// Joined callers wait on this load, so one caller giving up must not fail it
		data, err := c.lib.Resolve(context.WithoutCancel(ctx), ref)
		if err != nil {
			return nil, err
		}

		s, err := c.decoder.Decode(ref, data)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[ref] = s
		c.mu.Unlock()

		slog.Debug("Sound decoded", "sound", ref, "frames", s.Frames(), "duration", s.Duration())
		return s, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load sound %s: %w", ref, err)
	}
	if shared {
		slog.Debug("Shared in-flight sound load", "sound", ref)
	}
	return v.(*Sample), nil
}

// Lookup returns a cached sample without ever loading
func (c *Cache) Lookup(ref string) (*Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[ref]
	return s, ok
}

// Len returns the number of cached samples
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Preload loads refs concurrently. Failures are logged and skipped; the
// number of samples loaded is returned. Only context cancellation is an error.
func (c *Cache) Preload(ctx context.Context, refs []string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadLimit)

	var mu sync.Mutex
	loaded := 0

	for _, ref := range refs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if _, err := c.Get(gctx, ref); err != nil {
				slog.Warn("Preload skipped sound", "sound", ref, "error", err)
				return nil
			}
			mu.Lock()
			loaded++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return loaded, fmt.Errorf("preload interrupted: %w", err)
	}
	return loaded, nil
}
