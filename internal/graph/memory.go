package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

// MemoryStore is an in-process Store used by tests and by deployments that
// run without a Neo4j instance. Query results are ordered by id so repeated
// reads are deterministic.
type MemoryStore struct {
	mu       sync.RWMutex
	vertices map[string]*types.Vertex
	edges    map[string]*types.Edge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vertices: make(map[string]*types.Vertex),
		edges:    make(map[string]*types.Edge),
	}
}

func (s *MemoryStore) AddVertex(_ context.Context, label string, props map[string]any) (string, error) {
	if label == "" {
		return "", fmt.Errorf("vertex label required: %w", apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, _ := props["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	copied := copyProps(props)
	copied["id"] = id
	s.vertices[id] = &types.Vertex{ID: id, Label: label, Properties: copied}
	return id, nil
}

func (s *MemoryStore) GetVertex(_ context.Context, id string) (*types.Vertex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.vertices[id]
	if !ok {
		return nil, nil
	}
	return cloneVertex(v), nil
}

func (s *MemoryStore) GetVerticesByLabel(_ context.Context, label string, filter map[string]any) ([]*types.Vertex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Vertex
	for _, v := range s.vertices {
		if v.Label != label {
			continue
		}
		if !matchProps(v.Properties, filter) {
			continue
		}
		out = append(out, cloneVertex(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) AddEdge(_ context.Context, label, fromID, toID string, props map[string]any) (string, error) {
	if label == "" {
		return "", fmt.Errorf("edge label required: %w", apperrors.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[fromID]; !ok {
		return "", fmt.Errorf("edge endpoint %s: %w", fromID, apperrors.ErrNotFound)
	}
	if _, ok := s.vertices[toID]; !ok {
		return "", fmt.Errorf("edge endpoint %s: %w", toID, apperrors.ErrNotFound)
	}

	id := uuid.NewString()
	copied := copyProps(props)
	copied["id"] = id
	s.edges[id] = &types.Edge{ID: id, Label: label, FromID: fromID, ToID: toID, Properties: copied}
	return id, nil
}

func (s *MemoryStore) GetEdges(_ context.Context, q EdgeQuery) ([]*types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Edge
	for _, e := range s.edges {
		if q.FromID != "" && e.FromID != q.FromID {
			continue
		}
		if q.ToID != "" && e.ToID != q.ToID {
			continue
		}
		if q.Label != "" && e.Label != q.Label {
			continue
		}
		out = append(out, cloneEdge(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DeleteVertex(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vertices[id]; !ok {
		return fmt.Errorf("vertex %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.vertices, id)
	for eid, e := range s.edges {
		if e.FromID == id || e.ToID == id {
			delete(s.edges, eid)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteEdge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.edges[id]; !ok {
		return fmt.Errorf("edge %s: %w", id, apperrors.ErrNotFound)
	}
	delete(s.edges, id)
	return nil
}

func matchProps(props, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := props[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

func copyProps(props map[string]any) map[string]any {
	out := make(map[string]any, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	return out
}

func cloneVertex(v *types.Vertex) *types.Vertex {
	return &types.Vertex{ID: v.ID, Label: v.Label, Properties: copyProps(v.Properties)}
}

func cloneEdge(e *types.Edge) *types.Edge {
	return &types.Edge{ID: e.ID, Label: e.Label, FromID: e.FromID, ToID: e.ToID, Properties: copyProps(e.Properties)}
}
