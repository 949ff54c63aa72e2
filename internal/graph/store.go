package graph

import (
	"context"

	"github.com/civicworks/assetgraph-backend/internal/types"
)

// EdgeQuery narrows GetEdges. Zero-valued fields are wildcards.
type EdgeQuery struct {
	FromID string
	ToID   string
	Label  string
}

// Store is the minimal contract this subsystem needs from a graph database.
// It is a logical contract layered over whatever query language the store
// natively speaks; the Neo4j implementation translates to Cypher and the
// memory implementation backs tests and graph-less deployments.
//
// GetVertex returns (nil, nil) when the vertex does not exist; absence is a
// normal answer during sync, not an error. DeleteVertex cascades the
// vertex's edges.
type Store interface {
	AddVertex(ctx context.Context, label string, props map[string]any) (string, error)
	GetVertex(ctx context.Context, id string) (*types.Vertex, error)
	GetVerticesByLabel(ctx context.Context, label string, filter map[string]any) ([]*types.Vertex, error)
	AddEdge(ctx context.Context, label, fromID, toID string, props map[string]any) (string, error)
	GetEdges(ctx context.Context, q EdgeQuery) ([]*types.Edge, error)
	DeleteVertex(ctx context.Context, id string) error
	DeleteEdge(ctx context.Context, id string) error
}
