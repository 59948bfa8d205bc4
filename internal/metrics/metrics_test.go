package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.MutationAccepted("create")
	r.MutationAccepted("create")
	r.MutationAccepted("upsert_ref")
	r.Conflict("revision_conflict")
	r.Purged(3)
	r.LenientDrop()

	if got := testutil.ToFloat64(r.mutations.WithLabelValues("create")); got != 2 {
		t.Errorf("mutations{create} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.mutations.WithLabelValues("upsert_ref")); got != 1 {
		t.Errorf("mutations{upsert_ref} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.conflicts.WithLabelValues("revision_conflict")); got != 1 {
		t.Errorf("conflicts{revision_conflict} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.purged); got != 3 {
		t.Errorf("purged = %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.lenientDrops); got != 1 {
		t.Errorf("lenient drops = %v, want 1", got)
	}
}

func TestRecorder_Requests(t *testing.T) {
	r := NewRecorder()
	r.ObserveRequest("input", "ok", 5*time.Millisecond)
	r.ObserveRequest("input", "conflict", time.Millisecond)
	r.ChunksRendered(6)

	if got := testutil.ToFloat64(r.requests.WithLabelValues("input", "ok")); got != 1 {
		t.Errorf("requests{input,ok} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(r.requestSeconds); n != 1 {
		t.Errorf("request duration series = %d, want 1", n)
	}
	if n := testutil.CollectAndCount(r.chunksRendered); n != 1 {
		t.Errorf("chunks histogram series = %d, want 1", n)
	}
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.MutationAccepted("set_status")

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics error = %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), `ctxpack_mutations_total{action="set_status"} 1`) {
		t.Errorf("metrics output missing mutation counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("metrics output missing Go runtime collector")
	}
}
