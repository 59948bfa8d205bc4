package pack_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/AmirTlinov/context-pack/internal/pack"
	"github.com/AmirTlinov/context-pack/internal/store"
	"github.com/AmirTlinov/context-pack/internal/testutil"
)

var nextTokenPattern = regexp.MustCompile(`(?m)^- next: (\S+)$`)

func nextToken(t *testing.T, text string) string {
	t.Helper()
	m := nextTokenPattern.FindStringSubmatch(text)
	if m == nil {
		t.Fatalf("no next line in output:\n%s", text)
	}
	return m[1]
}

func viewOf(t *testing.T, res *pack.Result) *pack.PackView {
	t.Helper()
	v, ok := res.Payload.(*pack.PackView)
	if !ok {
		t.Fatalf("payload = %T, want *pack.PackView", res.Payload)
	}
	return v
}

func wantKind(t *testing.T, err error, kind pack.Kind, code string) *pack.Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s/%s error, got nil", kind, code)
	}
	var pe *pack.Error
	if !errors.As(err, &pe) {
		t.Fatalf("error %v is %T, want *pack.Error", err, err)
	}
	if pe.Kind != kind || (code != "" && pe.Code != code) {
		t.Fatalf("error = %s/%s (%s), want %s/%s", pe.Kind, pe.Code, pe.Message, kind, code)
	}
	return pe
}

// finalizablePack builds scope, findings with one ref, and qa with a verdict.
func finalizablePack(t *testing.T, h *testutil.Harness, name string) *pack.PackView {
	t.Helper()
	h.Source.AddLines("internal/app/app.go", 40)
	v := h.CreatePack(t, name)
	steps := []map[string]any{
		{"action": "upsert_section", "section_key": "scope", "section_title": "Scope", "section_description": "request routing"},
		{"action": "upsert_section", "section_key": "findings", "section_title": "Findings"},
		{"action": "upsert_ref", "section_key": "findings", "ref_key": "entry", "path": "internal/app/app.go",
			"line_start": 3, "line_end": 5, "ref_title": "Entry point", "ref_why": "wires the service"},
		{"action": "upsert_section", "section_key": "qa", "section_title": "QA", "section_verdict": "pass"},
	}
	for _, step := range steps {
		step["id"] = v.ID
		step["expected_revision"] = v.Revision
		v = viewOf(t, h.MustInput(t, step))
	}
	return v
}

func TestService_CreateGet(t *testing.T) {
	h := testutil.NewHarness(t)

	created := h.CreatePack(t, "  Auth Flow ")
	if created.ID != "pk_aaaaaaab" {
		t.Errorf("ID = %q, want first stub id", created.ID)
	}
	if created.Name != "Auth Flow" || created.Revision != 1 || created.Status != pack.StatusDraft {
		t.Errorf("created = %+v", created.Pack)
	}
	if created.FreshnessState != pack.FreshnessFresh {
		t.Errorf("FreshnessState = %s, want fresh", created.FreshnessState)
	}
	if !created.ExpiresAt.Equal(h.Clock.Now().Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", created.ExpiresAt)
	}

	byName := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "name": "Auth Flow "}))
	if byName.ID != created.ID || byName.SelectedBy != pack.SelectedByUniqueName {
		t.Errorf("get by name = %s selected_by %s", byName.ID, byName.SelectedBy)
	}
	byID := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "id": created.ID}))
	if byID.SelectedBy != pack.SelectedByExactID {
		t.Errorf("selected_by = %s, want exact id", byID.SelectedBy)
	}

	_, err := h.Input(t, map[string]any{"action": "get", "id": "pk_zzzzzzzz"})
	wantKind(t, err, pack.KindNotFound, "")
	_, err = h.Input(t, map[string]any{"action": "get", "id": "not-an-id"})
	wantKind(t, err, pack.KindValidation, "")
}

func TestService_CreateValidation(t *testing.T) {
	h := testutil.NewHarness(t)

	tests := []struct {
		name string
		args map[string]any
		kind pack.Kind
		code string
	}{
		{"missing ttl", map[string]any{"action": "create", "name": "xyz"}, pack.KindValidation, pack.CodeTTLRequired},
		{"ttl too large", map[string]any{"action": "create", "ttl_minutes": pack.MaxTTLMinutes + 1}, pack.KindValidation, ""},
		{"legacy ttl", map[string]any{"action": "create", "ttl": 30}, pack.KindValidation, pack.CodeLegacyField},
		{"unknown field", map[string]any{"action": "create", "ttl_minutes": 30, "colour": "red"}, pack.KindValidation, pack.CodeUnknownField},
		{"wrong type", map[string]any{"action": "create", "ttl_minutes": "thirty"}, pack.KindValidation, ""},
		{"unknown action", map[string]any{"action": "explode"}, pack.KindValidation, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.Input(t, tt.args)
			wantKind(t, err, tt.kind, tt.code)
		})
	}

	t.Run("legacy field details", func(t *testing.T) {
		_, err := h.Input(t, map[string]any{"action": "create", "ttl": 30})
		pe := wantKind(t, err, pack.KindValidation, pack.CodeLegacyField)
		d, ok := pe.Details.(pack.FieldDetails)
		if !ok || d.Field != "ttl" || d.Canonical != "ttl_minutes" {
			t.Errorf("details = %#v", pe.Details)
		}
	})
}

func TestService_NameConflict(t *testing.T) {
	h := testutil.NewHarness(t)
	first := h.CreatePack(t, "shared")

	_, err := h.Input(t, map[string]any{"action": "create", "name": " shared ", "ttl_minutes": 30})
	pe := wantKind(t, err, pack.KindConflict, pack.CodeNameConflict)
	if d, ok := pe.Details.(pack.NameConflictDetails); !ok || d.ExistingID != first.ID {
		t.Errorf("details = %#v", pe.Details)
	}

	// Unnamed packs never conflict.
	h.MustInput(t, map[string]any{"action": "create", "ttl_minutes": 30})
	h.MustInput(t, map[string]any{"action": "create", "ttl_minutes": 30})
}

func TestService_IDCollisionRegenerates(t *testing.T) {
	h := testutil.NewHarness(t, "pk_dupdupdu", "pk_dupdupdu")
	first := h.CreatePack(t, "one")
	second := h.CreatePack(t, "two")
	if first.ID != "pk_dupdupdu" {
		t.Fatalf("first ID = %s", first.ID)
	}
	if second.ID == first.ID || !pack.IsPackID(second.ID) {
		t.Errorf("second ID = %s, want a fresh id", second.ID)
	}
}

func TestService_RevisionConflict(t *testing.T) {
	h := testutil.NewHarness(t)
	v := h.CreatePack(t, "race")
	h.MustInput(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": 1,
		"section_key": "notes", "section_title": "Notes"})

	_, err := h.Input(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": 1,
		"section_key": "plan", "section_title": "Plan"})
	pe := wantKind(t, err, pack.KindConflict, pack.CodeRevisionConflict)
	d, ok := pe.Details.(pack.ConflictDetails)
	if !ok {
		t.Fatalf("details = %T", pe.Details)
	}
	if d.ExpectedRevision != 1 || d.CurrentRevision != 2 {
		t.Errorf("details = %+v", d)
	}
	if strings.Join(d.ChangedSectionKeys, ",") != "plan" {
		t.Errorf("changed_section_keys = %v, want plan", d.ChangedSectionKeys)
	}

	// A stale revision wins over an invalid mutation.
	_, err = h.Input(t, map[string]any{"action": "delete_section", "id": v.ID, "expected_revision": 1,
		"section_key": "missing"})
	wantKind(t, err, pack.KindConflict, pack.CodeRevisionConflict)
}

func TestService_SectionsRefsDiagrams(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Source.AddFile("cmd/main.go", "package main\n\nfunc main() {\n\trun()\n}\n")
	v := h.CreatePack(t, "docs")

	step := func(args map[string]any) *pack.PackView {
		args["id"] = v.ID
		args["expected_revision"] = v.Revision
		v = viewOf(t, h.MustInput(t, args))
		return v
	}
	step(map[string]any{"action": "upsert_section", "section_key": "arch", "section_title": "Architecture", "section_order": 1})
	step(map[string]any{"action": "upsert_ref", "section_key": "arch", "ref_key": "main", "path": "./cmd/main.go",
		"line_start": 3, "line_end": 5, "ref_group": "entry"})
	step(map[string]any{"action": "upsert_diagram", "section_key": "arch", "diagram_key": "flow", "title": "Flow",
		"mermaid": "graph TD; A-->B", "diagram_why": "overview"})
	if v.Revision != 4 {
		t.Fatalf("Revision = %d, want 4", v.Revision)
	}
	s, ok := v.Section("arch")
	if !ok || len(s.Refs) != 1 || len(s.Diagrams) != 1 {
		t.Fatalf("section = %+v", s)
	}
	if s.Refs[0].Path != "cmd/main.go" || s.Refs[0].Group != "entry" {
		t.Errorf("ref = %+v", s.Refs[0])
	}

	out := h.MustOutput(t, map[string]any{"id": v.ID, "profile": "reviewer"})
	for _, want := range []string{"[LEGEND]", "[CONTENT]", "   4: \trun()", "```mermaid", "### group: entry"} {
		if !strings.Contains(out, want) {
			t.Errorf("reviewer output missing %q:\n%s", want, out)
		}
	}

	_, err := h.Input(t, map[string]any{"action": "upsert_ref", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "nope", "ref_key": "rx", "path": "a.go", "line_start": 1, "line_end": 1})
	wantKind(t, err, pack.KindNotFound, "")

	_, err = h.Input(t, map[string]any{"action": "upsert_ref", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "arch", "ref_key": "rx", "path": "../etc/passwd", "line_start": 1, "line_end": 1})
	wantKind(t, err, pack.KindValidation, "")

	_, err = h.Input(t, map[string]any{"action": "upsert_ref", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "arch", "ref_key": "rx", "path": "a.go", "line_start": 5, "line_end": 2})
	wantKind(t, err, pack.KindValidation, "")

	_, err = h.Input(t, map[string]any{"action": "upsert_ref", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "arch", "ref_key": "rx", "path": "a.go", "line_start": 1, "line_end": 1, "group": "legacy"})
	wantKind(t, err, pack.KindValidation, pack.CodeLegacyField)

	step(map[string]any{"action": "delete_ref", "section_key": "arch", "ref_key": "main"})
	_, err = h.Input(t, map[string]any{"action": "delete_ref", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "arch", "ref_key": "main"})
	wantKind(t, err, pack.KindNotFound, "")

	step(map[string]any{"action": "delete_section", "section_key": "arch"})
	if len(v.Sections) != 0 {
		t.Errorf("sections after delete = %d", len(v.Sections))
	}
}

func TestService_SetMetaNoOp(t *testing.T) {
	h := testutil.NewHarness(t)
	v := h.CreatePack(t, "meta")

	v = viewOf(t, h.MustInput(t, map[string]any{"action": "set_meta", "id": v.ID, "expected_revision": 1,
		"title": "Payments", "tags": []string{"a", " b", "a", ""}}))
	if v.Revision != 2 || v.Title != "Payments" {
		t.Fatalf("after set_meta = %+v", v.Pack)
	}
	if strings.Join(v.Tags, ",") != "a,b" {
		t.Errorf("tags = %v, want a,b", v.Tags)
	}

	same := viewOf(t, h.MustInput(t, map[string]any{"action": "set_meta", "id": v.ID, "expected_revision": 2,
		"title": " Payments ", "tags": []string{"a", "b"}}))
	if same.Revision != 2 {
		t.Errorf("no-op set_meta bumped revision to %d", same.Revision)
	}

	_, err := h.Input(t, map[string]any{"action": "set_meta", "id": v.ID, "expected_revision": 2})
	wantKind(t, err, pack.KindValidation, "")
}

func TestService_Finalize(t *testing.T) {
	t.Run("missing sections", func(t *testing.T) {
		h := testutil.NewHarness(t)
		v := h.CreatePack(t, "incomplete")
		_, err := h.Input(t, map[string]any{"action": "set_status", "id": v.ID, "expected_revision": 1, "status": "finalized"})
		pe := wantKind(t, err, pack.KindInvalidState, pack.CodeFinalizeValidation)
		d := pe.Details.(pack.FinalizeDetails)
		if strings.Join(d.MissingSections, ",") != "scope,findings,qa" {
			t.Errorf("missing sections = %v", d.MissingSections)
		}
	})

	t.Run("stale ref only", func(t *testing.T) {
		h := testutil.NewHarness(t)
		v := finalizablePack(t, h, "stale")
		h.Source.Remove("internal/app/app.go")
		_, err := h.Input(t, map[string]any{"action": "set_status", "id": v.ID, "expected_revision": v.Revision, "status": "finalized"})
		pe := wantKind(t, err, pack.KindStaleRef, pack.CodeFinalizeValidation)
		d := pe.Details.(pack.FinalizeDetails)
		if len(d.InvalidRefs) != 1 || d.InvalidRefs[0].RefKey != "entry" {
			t.Errorf("invalid refs = %+v", d.InvalidRefs)
		}
	})

	t.Run("finalize freeze and reopen", func(t *testing.T) {
		h := testutil.NewHarness(t)
		v := finalizablePack(t, h, "done")
		v = viewOf(t, h.MustInput(t, map[string]any{"action": "set_status", "id": v.ID, "expected_revision": v.Revision, "status": "finalized"}))
		if v.Status != pack.StatusFinalized {
			t.Fatalf("status = %s", v.Status)
		}

		_, err := h.Input(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": v.Revision,
			"section_key": "extra", "section_title": "Extra"})
		wantKind(t, err, pack.KindInvalidState, "")

		again := viewOf(t, h.MustInput(t, map[string]any{"action": "set_status", "id": v.ID, "expected_revision": v.Revision, "status": "finalized"}))
		if again.Revision != v.Revision {
			t.Errorf("same-status set_status bumped revision")
		}

		// TTL stays adjustable on finalized packs.
		v = viewOf(t, h.MustInput(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": v.Revision, "extend_minutes": 30}))

		v = viewOf(t, h.MustInput(t, map[string]any{"action": "set_status", "id": v.ID, "expected_revision": v.Revision, "status": "draft"}))
		if v.Status != pack.StatusDraft {
			t.Errorf("status after reopen = %s", v.Status)
		}
	})
}

func TestService_FreshnessLifecycle(t *testing.T) {
	h := testutil.NewHarness(t)
	res := h.MustInput(t, map[string]any{"action": "create", "name": "short", "ttl_minutes": 20})
	v := viewOf(t, res)

	listNames := func(args map[string]any) []string {
		args["action"] = "list"
		out := h.MustInput(t, args).Payload.(*pack.ListResult)
		var names []string
		for _, s := range out.Packs {
			names = append(names, s.Name)
		}
		return names
	}

	h.Clock.Advance(6 * time.Minute)
	got := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "id": v.ID}))
	if got.FreshnessState != pack.FreshnessExpiringSoon {
		t.Errorf("after 6m state = %s, want expiring_soon", got.FreshnessState)
	}
	if names := listNames(map[string]any{}); len(names) != 1 {
		t.Errorf("default list = %v, want expiring pack visible", names)
	}

	h.Clock.Advance(15 * time.Minute)
	got = viewOf(t, h.MustInput(t, map[string]any{"action": "get", "name": "short"}))
	if got.FreshnessState != pack.FreshnessExpired {
		t.Errorf("after 21m state = %s, want expired", got.FreshnessState)
	}
	if names := listNames(map[string]any{}); len(names) != 0 {
		t.Errorf("default list = %v, expired packs must be hidden", names)
	}
	if names := listNames(map[string]any{"freshness": "expired"}); len(names) != 1 {
		t.Errorf("expired list = %v, want 1", names)
	}
	out := h.MustOutput(t, map[string]any{"id": v.ID})
	if !strings.Contains(out, "- warning: expired - treat as stale evidence") {
		t.Errorf("expired read missing warning:\n%s", out)
	}

	h.Clock.Advance(15 * time.Minute)
	_, err := h.Input(t, map[string]any{"action": "get", "id": v.ID})
	wantKind(t, err, pack.KindNotFound, "")

	var archived bytes.Buffer
	if err := h.Archive.Get(context.Background(), pack.ArchiveKey(v.ID, 1), &archived); err != nil {
		t.Fatalf("purged pack not archived: %v", err)
	}
	entries, err := h.Journal.List(context.Background(), v.ID, 10)
	if err != nil {
		t.Fatalf("Journal.List() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Action != pack.ActionPurge {
		t.Errorf("journal = %+v, want create then purge", entries)
	}

	// The name is free again.
	h.CreatePack(t, "short")
}

func TestService_TouchTTL(t *testing.T) {
	h := testutil.NewHarness(t)
	v := h.CreatePack(t, "ttl")
	start := h.Clock.Now()

	_, err := h.Input(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": 1})
	wantKind(t, err, pack.KindValidation, pack.CodeTTLRequired)
	_, err = h.Input(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": 1, "ttl_minutes": 5, "extend_minutes": 5})
	wantKind(t, err, pack.KindValidation, "")

	v = viewOf(t, h.MustInput(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": 1, "extend_minutes": 30}))
	if !v.ExpiresAt.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("extend from future expiry = %v", v.ExpiresAt)
	}

	h.Clock.Advance(100 * time.Minute)
	v = viewOf(t, h.MustInput(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": 2, "extend_minutes": 10}))
	if !v.ExpiresAt.Equal(h.Clock.Now().Add(10 * time.Minute)) {
		t.Errorf("extend after expiry = %v, want now+10m", v.ExpiresAt)
	}
	if v.FreshnessState != pack.FreshnessExpiringSoon {
		t.Errorf("state = %s", v.FreshnessState)
	}

	v = viewOf(t, h.MustInput(t, map[string]any{"action": "touch_ttl", "id": v.ID, "expected_revision": 3, "ttl_minutes": 120}))
	if !v.ExpiresAt.Equal(h.Clock.Now().Add(2 * time.Hour)) {
		t.Errorf("set ttl = %v", v.ExpiresAt)
	}
}

func TestService_DeletePack(t *testing.T) {
	h := testutil.NewHarness(t)
	v := h.CreatePack(t, "gone")

	_, err := h.Input(t, map[string]any{"action": "delete_pack", "name": "gone", "expected_revision": 7})
	wantKind(t, err, pack.KindConflict, pack.CodeRevisionConflict)

	ctx := pack.WithRequestID(context.Background(), "req-42")
	raw, _ := json.Marshal(map[string]any{"action": "delete_pack", "name": "gone", "expected_revision": 1})
	res, err := h.Service.Input(ctx, raw)
	if err != nil {
		t.Fatalf("delete_pack error = %v", err)
	}
	if d, ok := res.Payload.(*pack.DeleteResult); !ok || !d.Deleted || d.ID != v.ID {
		t.Errorf("payload = %#v", res.Payload)
	}

	_, err = h.Input(t, map[string]any{"action": "get", "id": v.ID})
	wantKind(t, err, pack.KindNotFound, "")

	keys, err := h.Archive.List(context.Background(), v.ID+"/")
	if err != nil || len(keys) != 1 {
		t.Errorf("archive keys = %v, %v", keys, err)
	}
	entries, _ := h.Journal.List(context.Background(), v.ID, 1)
	if len(entries) != 1 || entries[0].Action != pack.ActionDeletePack || entries[0].RequestID != "req-42" {
		t.Errorf("journal head = %+v", entries)
	}
}

// interleavingStore runs beforeDelete once, just before the next Delete takes the lock.
type interleavingStore struct {
	*store.MemoryStore
	beforeDelete func()
}

func (s *interleavingStore) Delete(ctx context.Context, id string, check func(*pack.Pack) error) (bool, error) {
	if f := s.beforeDelete; f != nil {
		s.beforeDelete = nil
		f()
	}
	return s.MemoryStore.Delete(ctx, id, check)
}

func TestService_DeletePackRechecksRevisionUnderLock(t *testing.T) {
	h := testutil.NewHarness(t)
	wrapped := &interleavingStore{MemoryStore: h.Store}
	h.UseStore(wrapped)
	v := h.CreatePack(t, "contested")

	wrapped.beforeDelete = func() {
		h.MustInput(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": 1,
			"section_key": "scope", "section_title": "Scope"})
	}
	_, err := h.Input(t, map[string]any{"action": "delete_pack", "id": v.ID, "expected_revision": 1})
	pe := wantKind(t, err, pack.KindConflict, pack.CodeRevisionConflict)
	if d, ok := pe.Details.(pack.ConflictDetails); !ok || d.CurrentRevision != 2 {
		t.Errorf("details = %#v, want current_revision 2", pe.Details)
	}

	got := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "id": v.ID}))
	if got.Revision != 2 {
		t.Errorf("revision after refused delete = %d, want 2", got.Revision)
	}
	if keys, _ := h.Archive.List(context.Background(), v.ID+"/"); len(keys) != 0 {
		t.Errorf("archive keys = %v, want none", keys)
	}
	entries, _ := h.Journal.List(context.Background(), v.ID, 1)
	if len(entries) != 1 || entries[0].Action != pack.ActionUpsertSection {
		t.Errorf("journal head = %+v", entries)
	}
}

func TestService_PurgeSkipsRenewedPack(t *testing.T) {
	h := testutil.NewHarness(t)
	wrapped := &interleavingStore{MemoryStore: h.Store}
	h.UseStore(wrapped)
	res := h.MustInput(t, map[string]any{"action": "create", "name": "revived", "ttl_minutes": 20})
	v := viewOf(t, res)
	h.Clock.Advance(36 * time.Minute)

	ctx := context.Background()
	wrapped.beforeDelete = func() {
		p, err := h.Store.Load(ctx, v.ID)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		renewed := p.Clone()
		renewed.Revision++
		renewed.ExpiresAt = h.Clock.Now().Add(time.Hour)
		if err := h.Store.Save(ctx, renewed, p.Revision); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	out := h.MustInput(t, map[string]any{"action": "list"}).Payload.(*pack.ListResult)
	if out.Count != 0 {
		t.Errorf("first list count = %d, want 0", out.Count)
	}
	if _, err := h.Store.Load(ctx, v.ID); err != nil {
		t.Fatalf("renewed pack was purged: Load() error = %v", err)
	}
	if keys, _ := h.Archive.List(ctx, v.ID+"/"); len(keys) != 0 {
		t.Errorf("archive keys = %v, want none", keys)
	}
	entries, _ := h.Journal.List(ctx, v.ID, 10)
	for _, e := range entries {
		if e.Action == pack.ActionPurge {
			t.Errorf("journal recorded a purge: %+v", e)
		}
	}

	out = h.MustInput(t, map[string]any{"action": "list"}).Payload.(*pack.ListResult)
	if out.Count != 1 || out.Packs[0].Name != "revived" {
		t.Errorf("list after renewal = %+v", out.Packs)
	}
}

func TestService_OversizeMutationLeavesPackUnchanged(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Store = store.NewMemoryStore(4096)
	h.UseStore(h.Store)
	v := h.CreatePack(t, "bounded")

	_, err := h.Input(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": 1,
		"section_key": "scope", "section_title": "Scope", "section_description": strings.Repeat("x", 10000)})
	pe := wantKind(t, err, pack.KindValidation, pack.CodeOversize)
	if d, ok := pe.Details.(pack.OversizeDetails); !ok || d.MaxBytes != 4096 || d.SizeBytes <= 4096 {
		t.Errorf("details = %#v", pe.Details)
	}

	got := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "id": v.ID}))
	if got.Revision != 1 {
		t.Errorf("revision = %d, want 1", got.Revision)
	}
	if _, ok := got.Section("scope"); ok {
		t.Error("oversize section was stored")
	}
}

func TestService_List(t *testing.T) {
	h := testutil.NewHarness(t)
	for _, name := range []string{"alpha", "beta", "gamma"} {
		h.CreatePack(t, name)
		h.Clock.Advance(time.Minute)
	}
	beta := viewOf(t, h.MustInput(t, map[string]any{"action": "get", "name": "beta"}))
	h.MustInput(t, map[string]any{"action": "set_meta", "id": beta.ID, "expected_revision": 1, "brief": "payment retries"})

	res := h.MustInput(t, map[string]any{}).Payload.(*pack.ListResult)
	if res.Count != 3 || res.Packs[0].Name != "beta" || res.Packs[1].Name != "gamma" {
		t.Errorf("list order = %+v", res.Packs)
	}

	res = h.MustInput(t, map[string]any{"action": "list", "query": "RETRIES"}).Payload.(*pack.ListResult)
	if res.Count != 1 || res.Packs[0].Name != "beta" {
		t.Errorf("query result = %+v", res.Packs)
	}

	res = h.MustInput(t, map[string]any{"action": "list", "offset": 1, "limit": 1}).Payload.(*pack.ListResult)
	if res.Count != 1 || res.Packs[0].Name != "gamma" {
		t.Errorf("paged result = %+v", res.Packs)
	}

	_, err := h.Input(t, map[string]any{"action": "list", "status": "archived"})
	wantKind(t, err, pack.KindValidation, "")

	out := h.MustOutput(t, map[string]any{})
	if !strings.HasPrefix(out, "# Context packs") || !strings.Contains(out, "`"+beta.ID+"`") {
		t.Errorf("output list =\n%s", out)
	}
}

func TestService_OutputPaging(t *testing.T) {
	h := testutil.NewHarness(t)
	h.Source.AddLines("lib/util.go", 100)
	v := h.CreatePack(t, "paged")
	v = viewOf(t, h.MustInput(t, map[string]any{"action": "upsert_section", "id": v.ID, "expected_revision": v.Revision,
		"section_key": "refs", "section_title": "Refs"}))
	for i := 1; i <= 8; i++ {
		v = viewOf(t, h.MustInput(t, map[string]any{"action": "upsert_ref", "id": v.ID, "expected_revision": v.Revision,
			"section_key": "refs", "ref_key": "r" + string(rune('0'+i)), "path": "lib/util.go",
			"line_start": i * 10, "line_end": i*10 + 2}))
	}

	first := h.MustOutput(t, map[string]any{"id": v.ID})
	if !strings.Contains(first, "- has_more: true") || !strings.Contains(first, "- chunks_returned: 6") {
		t.Fatalf("first page:\n%s", first)
	}
	if !strings.Contains(first, "## Handoff summary [handoff]") {
		t.Error("orchestrator page missing handoff summary")
	}
	token := nextToken(t, first)

	second := h.MustOutput(t, map[string]any{"id": v.ID, "page_token": token})
	if !strings.Contains(second, "- has_more: false") || !strings.Contains(second, "- next: null") {
		t.Errorf("second page:\n%s", second)
	}

	_, err := h.Output(t, map[string]any{"id": v.ID, "page_token": token, "offset": 2})
	wantKind(t, err, pack.KindValidation, pack.CodeInvalidCursor)

	// Any mutation invalidates outstanding tokens.
	h.MustInput(t, map[string]any{"action": "set_meta", "id": v.ID, "expected_revision": v.Revision, "title": "changed"})
	_, err = h.Output(t, map[string]any{"id": v.ID, "page_token": token})
	wantKind(t, err, pack.KindValidation, pack.CodeInvalidCursor)

	_, err = h.Output(t, map[string]any{"id": v.ID, "format": "json"})
	wantKind(t, err, pack.KindValidation, "")

	_, err = h.Output(t, map[string]any{"id": v.ID, "cursor": token})
	wantKind(t, err, pack.KindValidation, pack.CodeLegacyField)
}
