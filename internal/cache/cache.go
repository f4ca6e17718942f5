// Package cache provides a file-backed key/value cache used to avoid
// repeated expensive upstream calls. One JSON file per key, grouped by
// namespace subdirectory. Staleness is caller-managed: entries live
// until explicitly refreshed, deleted, or cleared.
package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Cache stores one serialized value per key under baseDir/namespace.
type Cache struct {
	dir string
	mu  sync.Mutex
	// per-key locks so concurrent writers to different keys never block
	// each other while same-key access stays serialized.
	locks map[string]*sync.Mutex
}

// New creates a cache namespace rooted at baseDir/namespace, creating
// the directory if needed.
func New(baseDir, namespace string) (*Cache, error) {
	dir := filepath.Join(baseDir, namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "cache: create dir %s", dir)
	}
	return &Cache{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

// Dir returns the namespace directory.
func (c *Cache) Dir() string { return c.dir }

func (c *Cache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[key]
	if !ok {
		l = &sync.Mutex{}
		c.locks[key] = l
	}
	return l
}

// sanitizeKey maps a logical key to a safe file name. Keys stay
// human-readable so operators can inspect and delete entries by hand.
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_", "..", "_")
	return r.Replace(key)
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, sanitizeKey(key)+".json")
}

// Exists reports whether an entry is stored for key.
func (c *Cache) Exists(key string) bool {
	_, err := os.Stat(c.path(key))
	return err == nil
}

// Delete removes the entry for key. Missing entries are not an error.
func (c *Cache) Delete(key string) error {
	err := os.Remove(c.path(key))
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrapf(err, "cache: delete %s", key)
	}
	return nil
}

// Clear removes every entry in the namespace.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return eris.Wrapf(err, "cache: read dir %s", c.dir)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, e.Name())); err != nil {
			return eris.Wrapf(err, "cache: remove %s", e.Name())
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() int {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			n++
		}
	}
	return n
}

// LoadOrFetch returns the stored value for key, or invokes compute,
// stores its result, and returns it. With forceRefresh the stored entry
// is ignored and overwritten. A load fault falls through to compute; a
// save fault is logged and swallowed; the freshly computed value is
// still returned, cache failures never fail the enrichment pipeline.
func LoadOrFetch[T any](ctx context.Context, c *Cache, key string, forceRefresh bool, compute func(ctx context.Context) (T, error)) (T, error) {
	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	var zero T
	path := c.path(key)

	if !forceRefresh {
		data, err := os.ReadFile(path)
		if err == nil {
			var val T
			if err := json.Unmarshal(data, &val); err == nil {
				return val, nil
			}
			// Corrupt entry: treat as a miss.
			zap.L().Warn("cache: unreadable entry, recomputing",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	val, err := compute(ctx)
	if err != nil {
		return zero, err
	}

	if data, err := json.Marshal(val); err != nil {
		zap.L().Warn("cache: marshal failed, result not cached",
			zap.String("key", key),
			zap.Error(err),
		)
	} else if err := os.WriteFile(path, data, 0o644); err != nil {
		zap.L().Warn("cache: save failed, result not cached",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	return val, nil
}
