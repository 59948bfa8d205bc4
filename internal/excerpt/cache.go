package excerpt

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

type cacheEntry struct {
	snippet *pack.Snippet
	modTime time.Time
	size    int64
}

// Cache memoizes excerpts per (path, range). Concurrent misses for the same range
// share one read. Entries are checked against the file's mtime and size unless a
// watcher is running, in which case change events evict them.
type Cache struct {
	inner  pack.Excerpter
	root   string
	logger pack.Logger

	group singleflight.Group

	mu       sync.Mutex
	entries  map[string]map[string]cacheEntry // path -> range key -> entry
	watcher  *fsnotify.Watcher
	watched  map[string]bool
	watching bool
}

// NewCache wraps inner. root must be the canonical source root inner reads from.
func NewCache(inner pack.Excerpter, root string, logger pack.Logger) *Cache {
	if logger == nil {
		logger = pack.NewNopLogger()
	}
	return &Cache{
		inner:   inner,
		root:    root,
		logger:  logger,
		entries: make(map[string]map[string]cacheEntry),
		watched: make(map[string]bool),
	}
}

// ReadLines returns a cached snippet or reads it through the wrapped excerpter.
// Errors are never cached.
func (c *Cache) ReadLines(ctx context.Context, relPath string, lineStart, lineEnd int) (*pack.Snippet, error) {
	key := fmt.Sprintf("%d-%d", lineStart, lineEnd)
	if snippet, ok := c.lookup(relPath, key); ok {
		return snippet, nil
	}

	// The shared read outlives any one caller; each caller still honors its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(relPath+":"+key, func() (any, error) {
		info, statErr := os.Stat(c.abs(relPath))
		snippet, err := c.inner.ReadLines(shared, relPath, lineStart, lineEnd)
		if err != nil {
			return nil, err
		}
		if statErr == nil {
			c.store(relPath, key, cacheEntry{snippet: snippet, modTime: info.ModTime(), size: info.Size()})
		}
		return snippet, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copySnippet(res.Val.(*pack.Snippet)), nil
	}
}

func (c *Cache) lookup(relPath, key string) (*pack.Snippet, bool) {
	c.mu.Lock()
	entry, ok := c.entries[relPath][key]
	watching := c.watching
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	if !watching {
		info, err := os.Stat(c.abs(relPath))
		if err != nil || !info.ModTime().Equal(entry.modTime) || info.Size() != entry.size {
			c.Invalidate(relPath)
			return nil, false
		}
	}
	return copySnippet(entry.snippet), true
}

func (c *Cache) store(relPath, key string, entry cacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byRange, ok := c.entries[relPath]
	if !ok {
		byRange = make(map[string]cacheEntry)
		c.entries[relPath] = byRange
	}
	byRange[key] = entry
	if c.watcher != nil {
		c.watchDirLocked(filepath.Dir(c.abs(relPath)))
	}
}

// Invalidate drops every cached range of relPath and of anything below it.
func (c *Cache) Invalidate(relPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, relPath)
	prefix := relPath + "/"
	for p := range c.entries {
		if strings.HasPrefix(p, prefix) {
			delete(c.entries, p)
		}
	}
}

// Len returns the number of cached ranges.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byRange := range c.entries {
		n += len(byRange)
	}
	return n
}

// Watch evicts entries on filesystem change events until ctx is done.
func (c *Cache) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create source watcher: %w", err)
	}
	defer w.Close()

	c.mu.Lock()
	c.watcher = w
	for p := range c.entries {
		c.watchDirLocked(filepath.Dir(c.abs(p)))
	}
	c.watching = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.watcher = nil
		c.watching = false
		c.watched = make(map[string]bool)
		c.mu.Unlock()
	}()

	const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&changeOps == 0 {
				continue
			}
			rel, err := filepath.Rel(c.root, ev.Name)
			if err != nil {
				continue
			}
			rel = path.Clean(filepath.ToSlash(rel))
			c.Invalidate(rel)
			c.logger.Debug("source changed", "path", rel, "op", ev.Op.String())
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("source watcher error", "error", err)
		}
	}
}

func (c *Cache) watchDirLocked(dir string) {
	if c.watched[dir] {
		return
	}
	if err := c.watcher.Add(dir); err != nil {
		c.logger.Warn("failed to watch source directory", "dir", dir, "error", err)
		return
	}
	c.watched[dir] = true
}

func (c *Cache) abs(relPath string) string {
	return filepath.Join(c.root, filepath.FromSlash(relPath))
}

func copySnippet(s *pack.Snippet) *pack.Snippet {
	out := *s
	return &out
}

// Compile-time check that Cache implements pack.Excerpter interface
var _ pack.Excerpter = (*Cache)(nil)
