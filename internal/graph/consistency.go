package graph

import (
	"context"
	"fmt"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

// DanglingEdge is an edge whose endpoint vertex no longer exists. It is
// reported, never deleted; cleanup needs explicit operator intent.
type DanglingEdge struct {
	Edge      *types.Edge `json:"edge"`
	MissingID string      `json:"missing_vertex_id"`
	Side      string      `json:"side"` // from|to
}

type ConsistencyReport struct {
	EdgesChecked  int            `json:"edges_checked"`
	DanglingEdges []DanglingEdge `json:"dangling_edges,omitempty"`
}

func (r *ConsistencyReport) Clean() bool { return len(r.DanglingEdges) == 0 }

// Err folds a dirty report into a sentinel-tagged error for callers that want
// control flow instead of a report.
func (r *ConsistencyReport) Err() error {
	if r.Clean() {
		return nil
	}
	return fmt.Errorf("%d dangling edges: %w", len(r.DanglingEdges), apperrors.ErrDanglingEdge)
}

// CheckConsistency walks every edge and verifies both endpoints resolve.
func CheckConsistency(ctx context.Context, store Store) (*ConsistencyReport, error) {
	edges, err := store.GetEdges(ctx, EdgeQuery{})
	if err != nil {
		return nil, fmt.Errorf("consistency check: list edges: %w", err)
	}

	report := &ConsistencyReport{EdgesChecked: len(edges)}
	seen := make(map[string]bool)

	exists := func(id string) (bool, error) {
		if ok, cached := seen[id]; cached {
			return ok, nil
		}
		v, err := store.GetVertex(ctx, id)
		if err != nil {
			return false, err
		}
		seen[id] = v != nil
		return v != nil, nil
	}

	for _, e := range edges {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := exists(e.FromID)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.DanglingEdges = append(report.DanglingEdges, DanglingEdge{Edge: e, MissingID: e.FromID, Side: "from"})
		}
		ok, err = exists(e.ToID)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.DanglingEdges = append(report.DanglingEdges, DanglingEdge{Edge: e, MissingID: e.ToID, Side: "to"})
		}
	}
	return report, nil
}
