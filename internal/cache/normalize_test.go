package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteNormalizesNestedObjects(t *testing.T) {
	doc := mustParseQuery(t, `{ foo { a b1: b { c } } }`)
	c := New()

	result, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"foo": map[string]any{
			"a":  float64(1),
			"b1": map[string]any{"c": "x"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := Snapshot{
		"ROOT_QUERY": {
			"foo": map[string]any{"__ref": "$ROOT_QUERY.foo", "__generated": true},
		},
		"$ROOT_QUERY.foo": {
			"a": float64(1),
			"b": map[string]any{"__ref": "$ROOT_QUERY.foo.b", "__generated": true},
		},
		"$ROOT_QUERY.foo.b": {
			"c": "x",
		},
	}
	if diff := cmp.Diff(want, c.Store().Extract()); diff != "" {
		t.Fatalf("store mismatch (-want +got):\n%s", diff)
	}

	if id, ok := result.EntityAt(""); !ok || id != RootQueryID {
		t.Fatalf("root id = %q, %v", id, ok)
	}
	if id, ok := result.EntityAt("foo"); !ok || id != "$ROOT_QUERY.foo" {
		t.Fatalf("foo id = %q, %v", id, ok)
	}
	if id, ok := result.EntityAt("foo.b1"); !ok || id != "$ROOT_QUERY.foo.b" {
		t.Fatalf("foo.b1 id = %q, %v", id, ok)
	}
}

func TestWriteUsesEntityIdentity(t *testing.T) {
	doc := mustParseQuery(t, `{ user { __typename id name } }`)
	c := New()

	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"user": map[string]any{"__typename": "User", "id": "1", "name": "Ada"},
	})
	if err != nil {
		t.Fatal(err)
	}

	want := Snapshot{
		"ROOT_QUERY": {
			"user": map[string]any{"__ref": "User:1"},
		},
		"User:1": {
			"__typename": "User",
			"id":         "1",
			"name":       "Ada",
		},
	}
	if diff := cmp.Diff(want, c.Store().Extract()); diff != "" {
		t.Fatalf("store mismatch (-want +got):\n%s", diff)
	}
}

// Two writes reaching the same entity through different paths merge into a
// single record, last write winning per store key.
func TestWriteMergesByEntity(t *testing.T) {
	c := New()
	ctx := context.Background()

	_, err := c.WriteQuery(ctx, mustParseQuery(t, `{ user { __typename id name email } }`), "", nil, map[string]any{
		"user": map[string]any{"__typename": "User", "id": "1", "name": "Ada", "email": "ada@old.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.WriteQuery(ctx, mustParseQuery(t, `{ author { __typename id email } }`), "", nil, map[string]any{
		"author": map[string]any{"__typename": "User", "id": "1", "email": "ada@new.example"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, ok := c.Store().Get("User:1")
	if !ok {
		t.Fatal("no merged record")
	}
	if name, _ := rec.Get("name"); name != "Ada" {
		t.Fatalf("name = %v", name)
	}
	if email, _ := rec.Get("email"); email != "ada@new.example" {
		t.Fatalf("email = %v", email)
	}
}

func TestWriteArgumentsKeyFields(t *testing.T) {
	c := New()
	ctx := context.Background()
	doc := mustParseQuery(t, `query($id: ID!) { user(id: $id) { __typename id name } }`)

	for id, name := range map[string]string{"1": "Ada", "2": "Grace"} {
		_, err := c.WriteQuery(ctx, doc, "", map[string]any{"id": id}, map[string]any{
			"user": map[string]any{"__typename": "User", "id": id, "name": name},
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	root, _ := c.Store().Get(RootQueryID)
	if root.Len() != 2 {
		t.Fatalf("expected 2 root fields, got %v", root.Keys())
	}
	if _, ok := root.Get(`user({"id":"1"})`); !ok {
		t.Fatalf("missing keyed field, have %v", root.Keys())
	}
	if _, ok := root.Get(`user({"id":"2"})`); !ok {
		t.Fatalf("missing keyed field, have %v", root.Keys())
	}
}

func TestWriteLists(t *testing.T) {
	doc := mustParseQuery(t, `{ items { n } }`)
	c := New()

	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"items": []any{
			map[string]any{"__typename": "Item", "id": "a", "n": float64(1)},
			nil,
			map[string]any{"n": float64(3)}, // no identity: synthesized id
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	root, _ := c.Store().Get(RootQueryID)
	stored, _ := root.Get("items")
	want := []any{
		Reference{ID: "Item:a"},
		nil,
		Reference{ID: "$ROOT_QUERY.items[2]", Generated: true},
	}
	if diff := cmp.Diff(want, stored); diff != "" {
		t.Fatalf("stored list mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteMissingDirectFieldFails(t *testing.T) {
	doc := mustParseQuery(t, `{ foo { a b } }`)
	c := New()

	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"foo": map[string]any{"a": float64(1)},
	})
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Field != "b" || missing.Path.String() != "foo.b" {
		t.Fatalf("error = %+v", missing)
	}

	// A failed write must not leave partial records behind.
	if c.Store().Len() != 0 {
		t.Fatalf("store has %d records after failed write", c.Store().Len())
	}
}

func TestWriteFragmentFieldsOptional(t *testing.T) {
	doc := mustParseQuery(t, `{ foo { a b ...F } }
	fragment F on Foo { c }
	`)
	c := New()

	result, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"foo": map[string]any{"a": float64(1), "b": float64(2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"foo": map[string]any{"a": float64(1), "b": float64(2)}}
	if diff := cmp.Diff(want, result.Data); diff != "" {
		t.Fatalf("consumed data mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteNullVersusAbsent(t *testing.T) {
	doc := mustParseQuery(t, `{ foo { a } }`)
	c := New()

	// Explicit null is stored as a null link.
	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{"foo": nil})
	if err != nil {
		t.Fatal(err)
	}
	root, _ := c.Store().Get(RootQueryID)
	v, ok := root.Get("foo")
	if !ok || v != nil {
		t.Fatalf("foo = %v, %v; want stored null", v, ok)
	}

	// Absence of a directly selected field is an error.
	_, err = c.WriteQuery(context.Background(), doc, "", nil, map[string]any{})
	var missing *MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
}

// A composite value under a selection-less field stays an opaque blob.
func TestWriteEmbeddedJSON(t *testing.T) {
	doc := mustParseQuery(t, `{ config }`)
	c := New()

	blob := map[string]any{"theme": "dark", "flags": []any{"a", "b"}}
	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{"config": blob})
	if err != nil {
		t.Fatal(err)
	}

	root, _ := c.Store().Get(RootQueryID)
	stored, _ := root.Get("config")
	if diff := cmp.Diff(blob, stored); diff != "" {
		t.Fatalf("blob mismatch (-want +got):\n%s", diff)
	}
	// The store holds a copy, not the caller's map.
	blob["theme"] = "light"
	stored, _ = root.Get("config")
	if stored.(map[string]any)["theme"] != "dark" {
		t.Fatal("store aliases caller data")
	}
}

func TestWriteIdempotent(t *testing.T) {
	doc := mustParseQuery(t, `{ user { __typename id friends { __typename id } } }`)
	c := New()
	data := map[string]any{
		"user": map[string]any{
			"__typename": "User", "id": "1",
			"friends": []any{map[string]any{"__typename": "User", "id": "2"}},
		},
	}

	if _, err := c.WriteQuery(context.Background(), doc, "", nil, data); err != nil {
		t.Fatal(err)
	}
	first := c.Store().Extract()
	if _, err := c.WriteQuery(context.Background(), doc, "", nil, data); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, c.Store().Extract()); diff != "" {
		t.Fatalf("second identical write changed the store (-want +got):\n%s", diff)
	}
}

func TestWriteMutationRoot(t *testing.T) {
	doc := mustParseQuery(t, `mutation { rename { __typename id name } }`)
	c := New()

	_, err := c.WriteQuery(context.Background(), doc, "", nil, map[string]any{
		"rename": map[string]any{"__typename": "User", "id": "1", "name": "Ada"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Store().Get(RootMutationID); !ok {
		t.Fatal("mutation result not written under ROOT_MUTATION")
	}
	if _, ok := c.Store().Get(RootQueryID); ok {
		t.Fatal("mutation write leaked into ROOT_QUERY")
	}
}
