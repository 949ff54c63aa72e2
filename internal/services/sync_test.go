package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/civicworks/assetgraph-backend/internal/graph"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type fakeAssetRepo struct {
	mu      sync.Mutex
	assets  []*types.Asset
	pageErr error
}

func (f *fakeAssetRepo) Create(_ context.Context, _ *gorm.DB, assets []*types.Asset) ([]*types.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = append(f.assets, assets...)
	return assets, nil
}

func (f *fakeAssetRepo) GetByID(_ context.Context, _ *gorm.DB, assetID uuid.UUID) (*types.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assets {
		if a.ID == assetID {
			return a, nil
		}
	}
	return nil, fmt.Errorf("asset %s not found", assetID)
}

func (f *fakeAssetRepo) Find(_ context.Context, _ *gorm.DB, _ types.AssetFilter, page types.Pagination) ([]*types.Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	if page.Offset >= len(f.assets) {
		return nil, nil
	}
	end := page.Offset + page.Limit
	if page.Limit <= 0 || end > len(f.assets) {
		end = len(f.assets)
	}
	return f.assets[page.Offset:end], nil
}

func (f *fakeAssetRepo) ListIDs(_ context.Context, _ *gorm.DB, _ string) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(f.assets))
	for _, a := range f.assets {
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (f *fakeAssetRepo) UpdateTags(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ []string) error {
	return nil
}

func (f *fakeAssetRepo) Delete(_ context.Context, _ *gorm.DB, assetID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, a := range f.assets {
		if a.ID == assetID {
			f.assets = append(f.assets[:i], f.assets[i+1:]...)
			return nil
		}
	}
	return nil
}

func testLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("init logger: %v", err)
	}
	return log
}

func roadAsset(name string, value float64) *types.Asset {
	return &types.Asset{
		ID:             uuid.New(),
		Name:           name,
		AssetType:      "ROAD",
		OrganisationID: "org-1",
		CurrentValue:   value,
		Criticality:    3,
		Condition:      "good",
		State:          "NSW",
		Suburb:         "Newtown",
		Address:        name,
	}
}

func TestSyncAssets_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	repo := &fakeAssetRepo{assets: []*types.Asset{
		roadAsset("1 King St", 100),
		roadAsset("2 King St", 200),
		roadAsset("3 King St", 300),
	}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 2)

	result, err := svc.SyncAssets(ctx, types.SyncOptions{})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !result.Success || result.RecordsProcessed != 3 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	for _, a := range repo.assets {
		v, err := store.GetVertex(ctx, a.ID.String())
		if err != nil {
			t.Fatalf("get vertex: %v", err)
		}
		if v == nil {
			t.Fatalf("vertex missing for asset %s", a.ID)
		}
		if v.PropString("service_purpose") != "Transportation" {
			t.Fatalf("expected mapped purpose Transportation, got %q", v.PropString("service_purpose"))
		}
		if v.PropString("condition") != "good" {
			t.Fatalf("condition not projected: %+v", v.Properties)
		}
		if got := v.Properties["criticality"]; got != int64(3) {
			t.Fatalf("criticality not projected, got %v", got)
		}
	}

	// All three assets map to the one ServiceFunction; the dedup rule must
	// not create three.
	fns, err := store.GetVerticesByLabel(ctx, types.LabelServiceFunction, map[string]any{"name": "Transportation"})
	if err != nil {
		t.Fatalf("get service functions: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("expected exactly 1 Transportation function vertex, got %d", len(fns))
	}

	for _, a := range repo.assets {
		edges, err := store.GetEdges(ctx, graph.EdgeQuery{FromID: a.ID.String(), Label: types.EdgeServesPurpose})
		if err != nil {
			t.Fatalf("get edges: %v", err)
		}
		if len(edges) != 1 || edges[0].ToID != fns[0].ID {
			t.Fatalf("asset %s not linked to function vertex: %+v", a.ID, edges)
		}
	}
}

func TestSyncAssets_BuildsLocationChain(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	repo := &fakeAssetRepo{assets: []*types.Asset{roadAsset("1 King St", 100)}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 1)

	if _, err := svc.SyncAssets(ctx, types.SyncOptions{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	locations, err := store.GetVerticesByLabel(ctx, types.LabelLocation, nil)
	if err != nil {
		t.Fatalf("get locations: %v", err)
	}
	if len(locations) != 3 {
		t.Fatalf("expected region/area/site chain, got %d locations", len(locations))
	}

	contains, err := store.GetEdges(ctx, graph.EdgeQuery{Label: types.EdgeContains})
	if err != nil {
		t.Fatalf("get contains edges: %v", err)
	}
	if len(contains) != 2 {
		t.Fatalf("expected 2 CONTAINS edges in the chain, got %d", len(contains))
	}

	assetID := repo.assets[0].ID.String()
	located, err := store.GetEdges(ctx, graph.EdgeQuery{FromID: assetID, Label: types.EdgeLocatedAt})
	if err != nil {
		t.Fatalf("get located_at: %v", err)
	}
	if len(located) != 1 {
		t.Fatalf("asset should link to exactly one leaf location, got %d", len(located))
	}
	leaf, err := store.GetVertex(ctx, located[0].ToID)
	if err != nil {
		t.Fatalf("get leaf: %v", err)
	}
	if leaf.PropString("level") != "site" {
		t.Fatalf("asset should relink at the deepest chain link, got %q", leaf.PropString("level"))
	}
}

func TestSyncAssets_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	repo := &fakeAssetRepo{assets: []*types.Asset{roadAsset("1 King St", 100), roadAsset("2 King St", 200)}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 2)

	if _, err := svc.SyncAssets(ctx, types.SyncOptions{}); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	firstFns, _ := store.GetVerticesByLabel(ctx, types.LabelServiceFunction, nil)
	firstEdges, _ := store.GetEdges(ctx, graph.EdgeQuery{})

	if _, err := svc.SyncAssets(ctx, types.SyncOptions{}); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	secondFns, _ := store.GetVerticesByLabel(ctx, types.LabelServiceFunction, nil)
	secondEdges, _ := store.GetEdges(ctx, graph.EdgeQuery{})

	if len(firstFns) != len(secondFns) {
		t.Fatalf("re-sync duplicated anchors: %d -> %d", len(firstFns), len(secondFns))
	}
	if len(firstEdges) != len(secondEdges) {
		t.Fatalf("re-sync duplicated edges: %d -> %d", len(firstEdges), len(secondEdges))
	}
}

// countingStore tallies reads and writes passing through to the wrapped
// store.
type countingStore struct {
	graph.Store
	mu      sync.Mutex
	lookups int
	writes  int
}

func (c *countingStore) GetVerticesByLabel(ctx context.Context, label string, filter map[string]any) ([]*types.Vertex, error) {
	c.mu.Lock()
	c.lookups++
	c.mu.Unlock()
	return c.Store.GetVerticesByLabel(ctx, label, filter)
}

func (c *countingStore) AddVertex(ctx context.Context, label string, props map[string]any) (string, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.AddVertex(ctx, label, props)
}

func (c *countingStore) AddEdge(ctx context.Context, label, fromID, toID string, props map[string]any) (string, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Store.AddEdge(ctx, label, fromID, toID, props)
}

func TestSyncAssets_DryRunReadsButWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: graph.NewMemoryStore()}
	repo := &fakeAssetRepo{assets: []*types.Asset{roadAsset("1 King St", 100)}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 1)

	result, err := svc.SyncAssets(ctx, types.SyncOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !result.Success || len(result.Warnings) == 0 {
		t.Fatalf("dry run should report intended actions: %+v", result)
	}

	// Anchor resolution still happens so store failures surface, but no
	// vertex or edge is ever created.
	if store.lookups == 0 {
		t.Fatal("dry run should perform the live run's anchor lookups")
	}
	if store.writes != 0 {
		t.Fatalf("dry run must not write, got %d writes", store.writes)
	}
	v, err := store.GetVertex(ctx, repo.assets[0].ID.String())
	if err != nil {
		t.Fatalf("get vertex: %v", err)
	}
	if v != nil {
		t.Fatal("dry run must not write vertices")
	}
}

func TestEnsureEdge_ConcurrentWritersCreateOne(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	for _, id := range []string{"loc-a", "loc-b"} {
		if _, err := store.AddVertex(ctx, types.LabelLocation, map[string]any{"id": id}); err != nil {
			t.Fatalf("add vertex: %v", err)
		}
	}
	svc := NewSyncService(&fakeAssetRepo{}, store, nil, testLogger(t), 8).(*syncService)

	for i := 0; i < 50; i++ {
		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				if err := svc.ensureEdge(ctx, types.EdgeContains, "loc-a", "loc-b"); err != nil {
					t.Errorf("ensure edge: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		edges, err := store.GetEdges(ctx, graph.EdgeQuery{FromID: "loc-a", ToID: "loc-b", Label: types.EdgeContains})
		if err != nil {
			t.Fatalf("get edges: %v", err)
		}
		if len(edges) != 1 {
			t.Fatalf("iteration %d: expected exactly 1 CONTAINS edge between the pair, got %d", i, len(edges))
		}
	}
}

func TestEnsureEdge_RepairsExistingDuplicates(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	for _, id := range []string{"loc-a", "loc-b"} {
		if _, err := store.AddVertex(ctx, types.LabelLocation, map[string]any{"id": id}); err != nil {
			t.Fatalf("add vertex: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := store.AddEdge(ctx, types.EdgeContains, "loc-a", "loc-b", nil); err != nil {
			t.Fatalf("add edge: %v", err)
		}
	}

	svc := NewSyncService(&fakeAssetRepo{}, store, nil, testLogger(t), 1).(*syncService)
	if err := svc.ensureEdge(ctx, types.EdgeContains, "loc-a", "loc-b"); err != nil {
		t.Fatalf("ensure edge: %v", err)
	}

	edges, err := store.GetEdges(ctx, graph.EdgeQuery{FromID: "loc-a", ToID: "loc-b", Label: types.EdgeContains})
	if err != nil {
		t.Fatalf("get edges: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("expected duplicates collapsed to 1 edge, got %d", len(edges))
	}
}

func TestSyncAssets_PageFailureIsStructural(t *testing.T) {
	ctx := context.Background()
	repo := &fakeAssetRepo{pageErr: fmt.Errorf("connection reset")}
	svc := NewSyncService(repo, graph.NewMemoryStore(), nil, testLogger(t), 1)

	result, err := svc.SyncAssets(ctx, types.SyncOptions{})
	if err == nil {
		t.Fatal("expected structural error")
	}
	if result.Success {
		t.Fatal("structural failure must flip Success to false")
	}
}

func TestCleanupOrphans_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	orphaned := roadAsset("9 Gone St", 50)
	repo := &fakeAssetRepo{assets: []*types.Asset{roadAsset("1 King St", 100), orphaned}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 1)

	if _, err := svc.SyncAssets(ctx, types.SyncOptions{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// Relational delete leaves the vertex behind until cleanup runs.
	if err := repo.Delete(ctx, nil, orphaned.ID); err != nil {
		t.Fatalf("delete asset: %v", err)
	}

	first, err := svc.CleanupOrphans(ctx, "org-1")
	if err != nil {
		t.Fatalf("first cleanup: %v", err)
	}
	if first.RecordsProcessed != 1 {
		t.Fatalf("expected 1 orphan deleted, got %d", first.RecordsProcessed)
	}
	if v, _ := store.GetVertex(ctx, orphaned.ID.String()); v != nil {
		t.Fatal("orphan vertex should be gone")
	}
	if edges, _ := store.GetEdges(ctx, graph.EdgeQuery{FromID: orphaned.ID.String()}); len(edges) != 0 {
		t.Fatal("orphan's edges should cascade")
	}

	second, err := svc.CleanupOrphans(ctx, "org-1")
	if err != nil {
		t.Fatalf("second cleanup: %v", err)
	}
	if second.RecordsProcessed != 0 {
		t.Fatalf("second cleanup should find nothing, got %d", second.RecordsProcessed)
	}
}

func TestSyncAssets_ForceUpdateRebuildsVertex(t *testing.T) {
	ctx := context.Background()
	store := graph.NewMemoryStore()
	a := roadAsset("1 King St", 100)
	repo := &fakeAssetRepo{assets: []*types.Asset{a}}
	svc := NewSyncService(repo, store, nil, testLogger(t), 1)

	if _, err := svc.SyncAssets(ctx, types.SyncOptions{}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	a.CurrentValue = 999
	a.Condition = "poor"
	result, err := svc.SyncAssets(ctx, types.SyncOptions{ForceUpdate: true})
	if err != nil || !result.Success {
		t.Fatalf("force sync: %v %+v", err, result)
	}

	v, err := store.GetVertex(ctx, a.ID.String())
	if err != nil || v == nil {
		t.Fatalf("get vertex: %v", err)
	}
	if v.Properties["current_value"] != 999.0 || v.PropString("condition") != "poor" {
		t.Fatalf("force update did not refresh properties: %+v", v.Properties)
	}
}
