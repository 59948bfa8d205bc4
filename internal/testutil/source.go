package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// MemoryExcerpter serves ref excerpts from an in-memory source tree. Missing
// files and out of range lines are stale, like the filesystem excerpter.
type MemoryExcerpter struct {
	mu    sync.RWMutex
	files map[string][]string
	reads int
}

// NewMemoryExcerpter creates an empty source tree.
func NewMemoryExcerpter() *MemoryExcerpter {
	return &MemoryExcerpter{files: make(map[string][]string)}
}

// AddFile adds or replaces a file. content is split on newlines.
func (m *MemoryExcerpter) AddFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = strings.Split(strings.TrimSuffix(content, "\n"), "\n")
}

// AddLines adds a file with n generated lines "line 1" .. "line n".
func (m *MemoryExcerpter) AddLines(path string, n int) {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i+1)
	}
	m.AddFile(path, strings.Join(lines, "\n"))
}

// Remove deletes a file.
func (m *MemoryExcerpter) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

// Reads returns how many ReadLines calls were made.
func (m *MemoryExcerpter) Reads() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads
}

func (m *MemoryExcerpter) ReadLines(ctx context.Context, path string, lineStart, lineEnd int) (*pack.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.reads++
	lines, ok := m.files[path]
	m.mu.Unlock()
	if !ok {
		return nil, pack.StaleRef("file not found: %s", path)
	}
	if lineStart < 1 || lineEnd < lineStart || lineEnd > len(lines) {
		return nil, pack.StaleRef("line range %d-%d is outside %s (%d lines)", lineStart, lineEnd, path, len(lines))
	}

	var b strings.Builder
	for i := lineStart; i <= lineEnd; i++ {
		if i > lineStart {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s", i, lines[i-1])
	}
	return &pack.Snippet{
		Path:       path,
		LineStart:  lineStart,
		LineEnd:    lineEnd,
		Body:       b.String(),
		TotalLines: len(lines),
	}, nil
}

// Compile-time check that MemoryExcerpter implements pack.Excerpter interface
var _ pack.Excerpter = (*MemoryExcerpter)(nil)
