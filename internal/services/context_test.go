package services

import (
	"context"
	"errors"
	"testing"

	"github.com/civicworks/assetgraph-backend/internal/graph"
	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

func TestGetAssetHierarchyContext(t *testing.T) {
	ctx := context.Background()
	hierarchy := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))
	svc := NewContextService(hierarchy, testLogger(t))

	m := roadModel("a1", 100)
	m.Tags = []string{"org:Works", "funding:maintenance"}
	if err := hierarchy.RegisterAssetModel(ctx, m); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.GetAssetHierarchyContext(ctx, "a1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if got.PrimaryHierarchy != types.ViewTypeFunction {
		t.Fatalf("function hierarchy is primary, got %q", got.PrimaryHierarchy)
	}

	fn := got.Hierarchies[types.ViewTypeFunction]
	if len(fn) != 2 {
		t.Fatalf("expected category and function in the path, got %d nodes", len(fn))
	}
	// Root-first ordering.
	if fn[0].Type != "category" || fn[1].Type != "function" {
		t.Fatalf("path should run root to leaf: %s then %s", fn[0].Type, fn[1].Type)
	}

	org := got.Hierarchies[types.ViewTypeOrganisational]
	if len(org) != 2 || org[1].Name != "Works" {
		t.Fatalf("organisational path wrong: %+v", org)
	}
	funding := got.Hierarchies[types.ViewTypeFunding]
	if len(funding) != 1 || funding[0].Name != FundingMaintenance {
		t.Fatalf("funding path wrong: %+v", funding)
	}
	// No location vertex was ever synced for this asset.
	if _, ok := got.Hierarchies[types.ViewTypeGeographic]; ok {
		t.Fatal("unexpected geographic membership")
	}

	rels := map[string]bool{}
	for _, r := range got.Relationships {
		rels[r.Name] = true
	}
	if !rels[types.RelResponsibilityMapping] || !rels[types.RelValueAllocation] {
		t.Fatalf("expected responsibility and value relationships, got %v", rels)
	}
	if rels[types.RelSpatialDistribution] {
		t.Fatal("spatial relationship requires a geographic path")
	}
}

func TestGetAssetHierarchyContext_UntaggedAsset(t *testing.T) {
	ctx := context.Background()
	hierarchy := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))
	svc := NewContextService(hierarchy, testLogger(t))

	if err := hierarchy.RegisterAssetModel(ctx, roadModel("a1", 100)); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := svc.GetAssetHierarchyContext(ctx, "a1")
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	// Function and funding membership fall out of the asset type alone; the
	// organisational view needs an org tag.
	if _, ok := got.Hierarchies[types.ViewTypeOrganisational]; ok {
		t.Fatal("untagged asset should have no organisational membership")
	}
	if len(got.Hierarchies[types.ViewTypeFunding]) != 1 {
		t.Fatalf("funding membership missing: %+v", got.Hierarchies)
	}
}

func TestGetAssetHierarchyContext_UnknownAsset(t *testing.T) {
	ctx := context.Background()
	hierarchy := NewHierarchyService(graph.NewMemoryStore(), nil, testLogger(t))
	svc := NewContextService(hierarchy, testLogger(t))

	if _, err := svc.GetAssetHierarchyContext(ctx, "ghost"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
