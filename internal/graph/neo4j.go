package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/platform/neo4jdb"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

// Neo4jStore implements Store over a Neo4j database. Vertex identity is the
// `id` property, not Neo4j's internal element id, so ids survive
// export/import and always line up with relational keys.
type Neo4jStore struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewNeo4jStore(client *neo4jdb.Client, baseLog *logger.Logger) *Neo4jStore {
	return &Neo4jStore{client: client, log: baseLog.With("store", "Neo4jGraph")}
}

func (s *Neo4jStore) AddVertex(ctx context.Context, label string, props map[string]any) (string, error) {
	if err := validateLabel(label); err != nil {
		return "", err
	}

	id, _ := props["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	merged := make(map[string]any, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged["id"] = id

	query := fmt.Sprintf(`MERGE (v:%s {id: $id}) SET v = $props`, label)
	err := s.write(ctx, query, map[string]any{"id": id, "props": merged})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Neo4jStore) GetVertex(ctx context.Context, id string) (*types.Vertex, error) {
	records, err := s.read(ctx, `
MATCH (v {id: $id})
RETURN labels(v)[0] AS label, properties(v) AS props
LIMIT 1`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return vertexFromRecord(records[0])
}

func (s *Neo4jStore) GetVerticesByLabel(ctx context.Context, label string, filter map[string]any) ([]*types.Vertex, error) {
	if err := validateLabel(label); err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (v:%s)", label)
	params := map[string]any{}
	i := 0
	for k, v := range filter {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		if err := validateLabel(k); err != nil {
			return nil, err
		}
		p := fmt.Sprintf("f%d", i)
		fmt.Fprintf(&b, "v.%s = $%s", k, p)
		params[p] = v
		i++
	}
	b.WriteString(`
RETURN labels(v)[0] AS label, properties(v) AS props
ORDER BY v.id ASC`)

	records, err := s.read(ctx, b.String(), params)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Vertex, 0, len(records))
	for _, rec := range records {
		v, err := vertexFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Neo4jStore) AddEdge(ctx context.Context, label, fromID, toID string, props map[string]any) (string, error) {
	if err := validateLabel(label); err != nil {
		return "", err
	}

	id := uuid.NewString()
	merged := make(map[string]any, len(props)+1)
	for k, v := range props {
		merged[k] = v
	}
	merged["id"] = id

	query := fmt.Sprintf(`
MATCH (a {id: $from_id})
MATCH (b {id: $to_id})
CREATE (a)-[e:%s]->(b)
SET e = $props
RETURN e.id AS id`, label)

	records, err := s.read(ctx, query, map[string]any{
		"from_id": fromID,
		"to_id":   toID,
		"props":   merged,
	})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", fmt.Errorf("edge %s -> %s: endpoint vertex missing: %w", fromID, toID, apperrors.ErrNotFound)
	}
	return id, nil
}

func (s *Neo4jStore) GetEdges(ctx context.Context, q EdgeQuery) ([]*types.Edge, error) {
	rel := "[e]"
	if q.Label != "" {
		if err := validateLabel(q.Label); err != nil {
			return nil, err
		}
		rel = fmt.Sprintf("[e:%s]", q.Label)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (a)-%s->(b)", rel)
	params := map[string]any{}
	var conds []string
	if q.FromID != "" {
		conds = append(conds, "a.id = $from_id")
		params["from_id"] = q.FromID
	}
	if q.ToID != "" {
		conds = append(conds, "b.id = $to_id")
		params["to_id"] = q.ToID
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	b.WriteString(`
RETURN type(e) AS label, a.id AS from_id, b.id AS to_id, properties(e) AS props
ORDER BY e.id ASC`)

	records, err := s.read(ctx, b.String(), params)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Edge, 0, len(records))
	for _, rec := range records {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Neo4jStore) DeleteVertex(ctx context.Context, id string) error {
	return s.write(ctx, `MATCH (v {id: $id}) DETACH DELETE v`, map[string]any{"id": id})
}

func (s *Neo4jStore) DeleteEdge(ctx context.Context, id string) error {
	return s.write(ctx, `MATCH ()-[e {id: $id}]->() DELETE e`, map[string]any{"id": id})
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4j write: %w: %w", apperrors.ErrTransientStore, err)
	}
	return nil
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite, // AddEdge reads back through this path
		DatabaseName: s.client.Database,
	})
	defer session.Close(ctx)

	records, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j read: %w: %w", apperrors.ErrTransientStore, err)
	}
	recs, _ := records.([]*neo4j.Record)
	return recs, nil
}

func vertexFromRecord(rec *neo4j.Record) (*types.Vertex, error) {
	label, _ := rec.Get("label")
	props, _ := rec.Get("props")
	pm, ok := props.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("neo4j vertex record: unexpected props shape")
	}
	id, _ := pm["id"].(string)
	ls, _ := label.(string)
	return &types.Vertex{ID: id, Label: ls, Properties: pm}, nil
}

func edgeFromRecord(rec *neo4j.Record) (*types.Edge, error) {
	label, _ := rec.Get("label")
	fromID, _ := rec.Get("from_id")
	toID, _ := rec.Get("to_id")
	props, _ := rec.Get("props")
	pm, ok := props.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("neo4j edge record: unexpected props shape")
	}
	ls, ok := label.(string)
	if !ok {
		return nil, fmt.Errorf("neo4j edge record: unexpected label shape")
	}
	fs, ok := fromID.(string)
	if !ok {
		return nil, fmt.Errorf("neo4j edge record: unexpected from_id shape")
	}
	ts, ok := toID.(string)
	if !ok {
		return nil, fmt.Errorf("neo4j edge record: unexpected to_id shape")
	}
	id, _ := pm["id"].(string)
	return &types.Edge{
		ID:         id,
		Label:      ls,
		FromID:     fs,
		ToID:       ts,
		Properties: pm,
	}, nil
}

// Labels and property keys are interpolated into Cypher, so they must stay
// strictly alphanumeric.
func validateLabel(s string) error {
	if s == "" {
		return fmt.Errorf("empty label: %w", apperrors.ErrInvalidArgument)
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("label %q: %w", s, apperrors.ErrInvalidArgument)
		}
	}
	return nil
}
