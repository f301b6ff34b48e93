package cache

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractRestoreRoundTrip(t *testing.T) {
	doc := mustParseQuery(t, `{ user { __typename id name pets { nick } } }`)
	c := New()
	ctx := context.Background()
	data := map[string]any{
		"user": map[string]any{
			"__typename": "User", "id": "1", "name": "Ada",
			"pets": []any{map[string]any{"nick": "Rex"}},
		},
	}

	if _, err := c.WriteQuery(ctx, doc, "", nil, data); err != nil {
		t.Fatal(err)
	}
	snapshot := c.Store().Extract()

	restored := NewStore()
	if err := restored.Restore(snapshot); err != nil {
		t.Fatal(err)
	}
	c2 := New(WithStore(restored))
	got, err := c2.ReadQuery(ctx, doc, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, got.Data); diff != "" {
		t.Fatalf("restored read mismatch (-want +got):\n%s", diff)
	}

	// The snapshot itself round-trips byte for byte.
	if diff := cmp.Diff(snapshot, restored.Extract()); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractIsACopy(t *testing.T) {
	c := New()
	ctx := context.Background()
	if _, err := c.WriteQuery(ctx, mustParseQuery(t, `{ config }`), "", nil, map[string]any{
		"config": map[string]any{"theme": "dark"},
	}); err != nil {
		t.Fatal(err)
	}

	snapshot := c.Store().Extract()
	snapshot["ROOT_QUERY"]["config"].(map[string]any)["theme"] = "light"

	rec, _ := c.Store().Get(RootQueryID)
	v, _ := rec.Get("config")
	if v.(map[string]any)["theme"] != "dark" {
		t.Fatal("snapshot aliases store data")
	}
}

func TestRestoreRejectsBadReference(t *testing.T) {
	s := NewStore()
	err := s.Restore(Snapshot{
		"ROOT_QUERY": {"user": map[string]any{"__ref": float64(1)}},
	})
	if err == nil {
		t.Fatal("expected restore error for non-string ref")
	}
}

func TestEvict(t *testing.T) {
	c := New()
	ctx := context.Background()
	if _, err := c.WriteQuery(ctx, mustParseQuery(t, `{ user { __typename id name } }`), "", nil, map[string]any{
		"user": map[string]any{"__typename": "User", "id": "1", "name": "Ada"},
	}); err != nil {
		t.Fatal(err)
	}

	if !c.Store().Evict("User:1") {
		t.Fatal("evict reported not found")
	}
	if c.Store().Evict("User:1") {
		t.Fatal("double evict reported found")
	}
	if _, ok := c.Store().Get("User:1"); ok {
		t.Fatal("record survived eviction")
	}

	if !c.Store().EvictField(RootQueryID, "user") {
		t.Fatal("evict field reported not found")
	}
	if c.Store().EvictField(RootQueryID, "user") {
		t.Fatal("double field evict reported found")
	}
	if c.Store().EvictField("NoSuch", "user") {
		t.Fatal("field evict on absent record reported found")
	}
}

func TestGC(t *testing.T) {
	c := New()
	ctx := context.Background()
	if _, err := c.WriteQuery(ctx, mustParseQuery(t, `{ user { __typename id friend { __typename id } } }`), "", nil, map[string]any{
		"user": map[string]any{
			"__typename": "User", "id": "1",
			"friend": map[string]any{"__typename": "User", "id": "2"},
		},
	}); err != nil {
		t.Fatal(err)
	}

	// Drop the link to User:1; both users become unreachable.
	c.Store().EvictField(RootQueryID, "user")

	evicted := c.Store().GC(RootQueryID)
	want := []EntityID{"User:1", "User:2"}
	if diff := cmp.Diff(want, evicted); diff != "" {
		t.Fatalf("evicted mismatch (-want +got):\n%s", diff)
	}
	if c.Store().Len() != 1 {
		t.Fatalf("store has %d records, want only the root", c.Store().Len())
	}
}

// Cyclic references do not hang the GC walk and stay alive while reachable.
func TestGCCycles(t *testing.T) {
	s := NewStore()
	if err := s.Restore(Snapshot{
		"ROOT_QUERY": {"a": map[string]any{"__ref": "A:1"}},
		"A:1":        {"peer": map[string]any{"__ref": "B:1"}},
		"B:1":        {"peer": map[string]any{"__ref": "A:1"}},
		"C:1":        {"peer": map[string]any{"__ref": "C:1"}}, // orphaned self-cycle
	}); err != nil {
		t.Fatal(err)
	}

	evicted := s.GC(RootQueryID)
	if diff := cmp.Diff([]EntityID{"C:1"}, evicted); diff != "" {
		t.Fatalf("evicted mismatch (-want +got):\n%s", diff)
	}
	if _, ok := s.Get("A:1"); !ok {
		t.Fatal("reachable cycle member evicted")
	}
	if _, ok := s.Get("B:1"); !ok {
		t.Fatal("reachable cycle member evicted")
	}
}

// Reads over a cyclic store terminate because recursion is bounded by the
// selection depth.
func TestReadCyclicStore(t *testing.T) {
	s := NewStore()
	if err := s.Restore(Snapshot{
		"ROOT_QUERY": {"a": map[string]any{"__ref": "A:1"}},
		"A:1":        {"id": "1", "peer": map[string]any{"__ref": "B:1"}},
		"B:1":        {"id": "1", "peer": map[string]any{"__ref": "A:1"}},
	}); err != nil {
		t.Fatal(err)
	}
	c := New(WithStore(s))

	doc := mustParseQuery(t, `{ a { id peer { id peer { id } } } }`)
	got, err := c.ReadQuery(context.Background(), doc, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"a": map[string]any{
			"id": "1",
			"peer": map[string]any{
				"id":   "1",
				"peer": map[string]any{"id": "1"},
			},
		},
	}
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Fatalf("cyclic read mismatch (-want +got):\n%s", diff)
	}
}
