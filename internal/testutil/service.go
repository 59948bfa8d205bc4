package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/AmirTlinov/context-pack/internal/archive"
	"github.com/AmirTlinov/context-pack/internal/journal"
	"github.com/AmirTlinov/context-pack/internal/pack"
	"github.com/AmirTlinov/context-pack/internal/store"
)

// Harness wires a pack.Service to in-memory adapters and a stub clock.
type Harness struct {
	Service *pack.Service
	Store   *store.MemoryStore
	Source  *MemoryExcerpter
	Journal *journal.SQLiteJournal
	Archive *archive.MemoryArchive
	Clock   *StubClock
	IDs     *StubIDGenerator
}

// NewHarness builds a service with default freshness policy. queuedIDs are
// handed out before the generator starts counting.
func NewHarness(t *testing.T, queuedIDs ...string) *Harness {
	t.Helper()
	h := &Harness{
		Store:   store.NewMemoryStore(0),
		Source:  NewMemoryExcerpter(),
		Journal: NewTestJournal(t),
		Archive: NewTestArchive(),
		Clock:   FixedClock(),
		IDs:     NewStubIDGenerator(queuedIDs...),
	}
	h.UseStore(h.Store)
	return h
}

// UseStore rebuilds the service on top of s, keeping the other adapters.
func (h *Harness) UseStore(s pack.Store) {
	h.Service = pack.NewService(s, h.Source, h.Journal, h.Archive, nil, nil,
		h.Clock, h.IDs, pack.DefaultFreshnessPolicy())
}

// Input sends args (marshaled to JSON) to the input tool.
func (h *Harness) Input(t *testing.T, args map[string]any) (*pack.Result, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return h.Service.Input(context.Background(), raw)
}

// MustInput is Input that fails the test on error.
func (h *Harness) MustInput(t *testing.T, args map[string]any) *pack.Result {
	t.Helper()
	res, err := h.Input(t, args)
	if err != nil {
		t.Fatalf("Input(%v) error = %v", args["action"], err)
	}
	return res
}

// Output sends args to the output tool.
func (h *Harness) Output(t *testing.T, args map[string]any) (string, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return h.Service.Output(context.Background(), raw)
}

// MustOutput is Output that fails the test on error.
func (h *Harness) MustOutput(t *testing.T, args map[string]any) string {
	t.Helper()
	out, err := h.Output(t, args)
	if err != nil {
		t.Fatalf("Output(%v) error = %v", args["action"], err)
	}
	return out
}

// CreatePack creates a pack with a 60 minute TTL and returns its view.
func (h *Harness) CreatePack(t *testing.T, name string) *pack.PackView {
	t.Helper()
	res := h.MustInput(t, map[string]any{"action": "create", "name": name, "ttl_minutes": 60})
	view, ok := res.Payload.(*pack.PackView)
	if !ok {
		t.Fatalf("create payload = %T, want *pack.PackView", res.Payload)
	}
	return view
}
