package testutil

import (
	"strings"
	"sync"
	"time"

	"github.com/AmirTlinov/context-pack/internal/pack"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to 2024-01-15 10:30:00 UTC.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator hands out queued ids first, then sequential pack ids:
// "pk_aaaaaaab", "pk_aaaaaaac", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	queued  []string
	counter int
}

// NewStubIDGenerator creates a generator that returns queued before counting.
func NewStubIDGenerator(queued ...string) *StubIDGenerator {
	return &StubIDGenerator{queued: queued}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.queued) > 0 {
		id := g.queued[0]
		g.queued = g.queued[1:]
		return id
	}
	g.counter++
	return pack.IDPrefix + encodeCounter(g.counter)
}

func encodeCounter(n int) string {
	digits := []byte(strings.Repeat("a", pack.IDLength))
	base := len(pack.IDAlphabet)
	for i := pack.IDLength - 1; i >= 0 && n > 0; i-- {
		digits[i] = pack.IDAlphabet[n%base]
		n /= base
	}
	return string(digits)
}
