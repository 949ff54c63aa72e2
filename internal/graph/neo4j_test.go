package graph

import (
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func edgeRecord(label, fromID, toID, props any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"label", "from_id", "to_id", "props"},
		Values: []any{label, fromID, toID, props},
	}
}

func TestEdgeFromRecord(t *testing.T) {
	e, err := edgeFromRecord(edgeRecord("CONTAINS", "a", "b", map[string]any{"id": "e1"}))
	if err != nil {
		t.Fatalf("well-formed record: %v", err)
	}
	if e.ID != "e1" || e.Label != "CONTAINS" || e.FromID != "a" || e.ToID != "b" {
		t.Fatalf("unexpected edge: %+v", e)
	}
}

func TestEdgeFromRecord_MalformedShapes(t *testing.T) {
	cases := []struct {
		name string
		rec  *neo4j.Record
	}{
		{"non-string label", edgeRecord(int64(7), "a", "b", map[string]any{})},
		{"non-string from_id", edgeRecord("CONTAINS", int64(1), "b", map[string]any{})},
		{"non-string to_id", edgeRecord("CONTAINS", "a", nil, map[string]any{})},
		{"non-map props", edgeRecord("CONTAINS", "a", "b", "nope")},
	}
	for _, tc := range cases {
		if _, err := edgeFromRecord(tc.rec); err == nil {
			t.Fatalf("%s: expected a decode error, got none", tc.name)
		}
	}
}

func TestVertexFromRecord_MalformedProps(t *testing.T) {
	rec := &neo4j.Record{
		Keys:   []string{"label", "props"},
		Values: []any{"Asset", int64(1)},
	}
	if _, err := vertexFromRecord(rec); err == nil {
		t.Fatal("expected a decode error for non-map props")
	}
}
