package cache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// IdentityResolver derives a stable entity id from an object's contents.
// Implementations must be pure. Returning ok=false means the object has no
// stable identity and a path-based id is synthesized for it.
type IdentityResolver interface {
	IdentityOf(object map[string]any) (EntityID, bool)
}

// IdentityResolverFunc adapts a function to the IdentityResolver interface.
type IdentityResolverFunc func(object map[string]any) (EntityID, bool)

func (f IdentityResolverFunc) IdentityOf(object map[string]any) (EntityID, bool) {
	return f(object)
}

// TypenameID is the default identity resolver: objects with an "id" field
// get "<__typename>:<id>" when a typename is present, else the raw id. The
// typename namespace keeps different types with colliding numeric ids apart.
type TypenameID struct{}

func (TypenameID) IdentityOf(object map[string]any) (EntityID, bool) {
	raw, ok := object["id"]
	if !ok {
		return "", false
	}
	var id string
	switch v := raw.(type) {
	case string:
		id = v
	case float64:
		id = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		id = strconv.Itoa(v)
	default:
		return "", false
	}
	if id == "" {
		return "", false
	}
	if tn, ok := object["__typename"].(string); ok && tn != "" {
		return EntityID(tn + ":" + id), true
	}
	return EntityID(id), true
}

// fieldStoreKey derives the per-field key inside a record. Fields without
// arguments keep their name; fields with arguments append a canonical JSON
// rendition so two logically identical argument sets always collide into the
// same key. encoding/json sorts map keys, which provides the canonical order.
func fieldStoreKey(fieldName string, args map[string]any) (string, error) {
	if len(args) == 0 {
		return fieldName, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("serialize arguments of %q: %w", fieldName, err)
	}
	return fieldName + "(" + string(b) + ")", nil
}

// childPathID synthesizes the id for an unidentified object stored under
// parent's storeKey. The "$" prefix keeps synthesized ids unambiguous
// against caller-supplied ones; the same path written twice merges.
func childPathID(parent EntityID, storeKey string) EntityID {
	if strings.HasPrefix(string(parent), "$") {
		return parent + EntityID("."+storeKey)
	}
	return EntityID("$" + string(parent) + "." + storeKey)
}

// indexedPathID extends a synthesized id with a list index.
func indexedPathID(base EntityID, index int) EntityID {
	return base + EntityID("["+strconv.Itoa(index)+"]")
}
