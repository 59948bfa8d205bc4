package pack

import (
	"context"
	"fmt"
	"strings"
	"time"
)

var baseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// mapExcerpter serves files from memory. Missing files and out of range lines are stale.
type mapExcerpter map[string][]string

func (m mapExcerpter) ReadLines(_ context.Context, path string, start, end int) (*Snippet, error) {
	lines, ok := m[path]
	if !ok {
		return nil, StaleRef("file not found: %s", path)
	}
	if end > len(lines) {
		return nil, StaleRef("line range %d-%d is outside %s (%d lines)", start, end, path, len(lines))
	}
	var b strings.Builder
	for i := start; i <= end; i++ {
		if i > start {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%4d: %s", i, lines[i-1])
	}
	return &Snippet{Path: path, LineStart: start, LineEnd: end, Body: b.String(), TotalLines: len(lines)}, nil
}

type failingExcerpter struct{ err error }

func (f failingExcerpter) ReadLines(context.Context, string, int, int) (*Snippet, error) {
	return nil, f.err
}

func newTestPack(id string) *Pack {
	return NewPack(id, "demo pack", baseTime, 24*time.Hour)
}

func intPtr(v int) *int { return &v }
