package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/civicworks/assetgraph-backend/internal/graph"
	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

func roadModel(id string, value float64) *types.AssetModel {
	return &types.AssetModel{
		ID:             id,
		Name:           "Road " + id,
		AssetType:      "ROAD",
		OrganisationID: "org-1",
		CurrentValue:   value,
		Criticality:    3,
	}
}

func TestRebuild_FunctionAggregation(t *testing.T) {
	ctx := context.Background()
	svc := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))

	// Three roads, no explicit purpose: all land on the Transportation
	// function under the Transportation category.
	for i, value := range []float64{100, 200, 300} {
		if err := svc.RegisterAssetModel(ctx, roadModel(fmt.Sprintf("asset-%d", i), value)); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	catNode, err := svc.GetNode("fn-cat-transportation")
	if err != nil {
		t.Fatalf("get category node: %v", err)
	}
	if catNode.AssetCount != 3 {
		t.Fatalf("expected assetCount 3, got %d", catNode.AssetCount)
	}
	if catNode.ValueContribution != 600 {
		t.Fatalf("expected valueContribution 600, got %v", catNode.ValueContribution)
	}
	if !catNode.IsActive {
		t.Fatal("category with assets should be active")
	}

	// Recompute must be idempotent: same inputs, same aggregates.
	if err := svc.RebuildAll(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	again, err := svc.GetNode("fn-cat-transportation")
	if err != nil {
		t.Fatalf("get category node: %v", err)
	}
	if again.AssetCount != 3 || again.ValueContribution != 600 {
		t.Fatalf("aggregates drifted on rebuild: %+v", again)
	}
}

func TestRebuild_NonLeafEqualsSumOfChildren(t *testing.T) {
	ctx := context.Background()
	svc := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))

	models := []*types.AssetModel{
		roadModel("a1", 10),
		{ID: "a2", Name: "Depot", AssetType: "DEPOT", OrganisationID: "org-1", CurrentValue: 20},
		{ID: "a3", Name: "Main", AssetType: "PIPELINE", OrganisationID: "org-1", CurrentValue: 30},
	}
	for _, m := range models {
		if err := svc.RegisterAssetModel(ctx, m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	forest := svc.CurrentForest()
	for _, rootID := range forest.Roots(types.ViewTypeFunction) {
		root := forest.Node(rootID)
		sumCount := 0
		sumValue := 0.0
		for _, childID := range root.ChildrenIDs {
			child := forest.Node(childID)
			sumCount += child.AssetCount
			sumValue += child.ValueContribution
		}
		if root.AssetCount != sumCount || root.ValueContribution != sumValue {
			t.Fatalf("node %s: aggregates %d/%v != children sums %d/%v",
				root.ID, root.AssetCount, root.ValueContribution, sumCount, sumValue)
		}
	}
}

func TestUnregister_RemovesFromAggregates(t *testing.T) {
	ctx := context.Background()
	svc := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))

	if err := svc.RegisterAssetModel(ctx, roadModel("a1", 100)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.RegisterAssetModel(ctx, roadModel("a2", 200)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.UnregisterAssetModel(ctx, "a1"); err != nil {
		t.Fatalf("unregister: %v", err)
	}

	catNode, err := svc.GetNode("fn-cat-transportation")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if catNode.AssetCount != 1 || catNode.ValueContribution != 200 {
		t.Fatalf("unregistered asset still aggregated: %+v", catNode)
	}

	if err := svc.UnregisterAssetModel(ctx, "a1"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("double unregister should be NotFound, got %v", err)
	}
}

func TestRebuild_GeographicFromGraph(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()

	// Region -> Area -> Site chain plus one asset at the leaf.
	for _, v := range []struct{ id, name, level string }{
		{"loc-nsw", "NSW", "region"},
		{"loc-newtown", "Newtown", "area"},
		{"loc-king-st", "1 King St", "site"},
	} {
		if _, err := store.AddVertex(ctx, types.LabelLocation, map[string]any{
			"id": v.id, "name": v.name, "level": v.level, "organisation_id": "org-1",
		}); err != nil {
			t.Fatalf("add location: %v", err)
		}
	}
	if _, err := store.AddEdge(ctx, types.EdgeContains, "loc-nsw", "loc-newtown", nil); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if _, err := store.AddEdge(ctx, types.EdgeContains, "loc-newtown", "loc-king-st", nil); err != nil {
		t.Fatalf("add edge: %v", err)
	}
	if _, err := store.AddVertex(ctx, types.LabelAsset, map[string]any{"id": "a1"}); err != nil {
		t.Fatalf("add asset vertex: %v", err)
	}
	if _, err := store.AddEdge(ctx, types.EdgeLocatedAt, "a1", "loc-king-st", nil); err != nil {
		t.Fatalf("add located_at: %v", err)
	}

	svc := NewHierarchyService(store, nil, testLogger(t))
	if err := svc.RegisterAssetModel(ctx, roadModel("a1", 500)); err != nil {
		t.Fatalf("register: %v", err)
	}

	region, err := svc.GetNode("geo-loc-nsw")
	if err != nil {
		t.Fatalf("get region: %v", err)
	}
	if region.Level != 0 || region.AssetCount != 1 || region.ValueContribution != 500 {
		t.Fatalf("region aggregation wrong: %+v", region)
	}
	site, err := svc.GetNode("geo-loc-king-st")
	if err != nil {
		t.Fatalf("get site: %v", err)
	}
	if site.Level != 2 || site.ParentID != "geo-loc-newtown" {
		t.Fatalf("chain structure wrong: %+v", site)
	}
}

func TestRebuild_OrganisationalFromTagsOnly(t *testing.T) {
	ctx := context.Background()
	svc := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))

	tagged := roadModel("a1", 100)
	tagged.Tags = []string{"org:Works"}
	untagged := roadModel("a2", 200)
	for _, m := range []*types.AssetModel{tagged, untagged} {
		if err := svc.RegisterAssetModel(ctx, m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	dep, err := svc.GetNode("org-dep-works")
	if err != nil {
		t.Fatalf("get department: %v", err)
	}
	if dep.AssetCount != 1 {
		t.Fatalf("only the tagged asset belongs to the department, got %d", dep.AssetCount)
	}
	div, err := svc.GetNode("org-div-operations-division")
	if err != nil {
		t.Fatalf("get division: %v", err)
	}
	if div.AssetCount != 1 || dep.ParentID != div.ID {
		t.Fatalf("division structure wrong: %+v", div)
	}
}

// A reader racing rebuilds must always see a forest whose aggregates are
// internally consistent, never nodes from two generations.
func TestRebuild_AtomicSwap(t *testing.T) {
	ctx := context.Background()
	svc := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			if err := svc.RegisterAssetModel(ctx, roadModel(fmt.Sprintf("asset-%03d", i), 10)); err != nil {
				t.Errorf("register: %v", err)
				return
			}
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				forest := svc.CurrentForest()
				for _, rootID := range forest.Roots(types.ViewTypeFunction) {
					root := forest.Node(rootID)
					sum := 0
					for _, childID := range root.ChildrenIDs {
						if child := forest.Node(childID); child != nil {
							sum += child.AssetCount
						}
					}
					if root.AssetCount != sum {
						t.Errorf("torn forest read: root %s count %d, children sum %d", root.ID, root.AssetCount, sum)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
