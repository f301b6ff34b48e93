package cache

import (
	"testing"

	language "github.com/hanpama/graphcache/internal/language"
)

// mustParseQuery parses a GraphQL query and fails the test on error.
func mustParseQuery(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}

// mustLoadSchema parses an SDL document and fails the test on error.
func mustLoadSchema(t *testing.T, sdl string) *language.Schema {
	t.Helper()
	s, err := language.LoadSchema("test.graphql", sdl)
	if err != nil {
		t.Fatalf("schema error: %v", err)
	}
	return s
}
