package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	redisclient "github.com/civicworks/assetgraph-backend/internal/clients/redis"
	"github.com/civicworks/assetgraph-backend/internal/graph"
	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

// Forest is one immutable rebuild generation. Readers hold a pointer to a
// complete forest and never observe nodes from two generations at once.
type Forest struct {
	Generation uint64
	nodes      map[string]*types.HierarchyNode // node id -> node, all views
	roots      map[string][]string             // view type -> root node ids
	byView     map[string][]string             // view type -> all node ids
	membership map[string]map[string][]string  // view type -> asset id -> node path (leaf..root)
}

func (f *Forest) Node(id string) *types.HierarchyNode {
	if f == nil {
		return nil
	}
	return f.nodes[id]
}

func (f *Forest) Roots(viewType string) []string {
	if f == nil {
		return nil
	}
	return f.roots[viewType]
}

// MembershipPath returns the asset's position leaf-to-root in one view.
func (f *Forest) MembershipPath(viewType, assetID string) []*types.HierarchyNode {
	if f == nil {
		return nil
	}
	byAsset := f.membership[viewType]
	if byAsset == nil {
		return nil
	}
	var out []*types.HierarchyNode
	for _, id := range byAsset[assetID] {
		if n := f.nodes[id]; n != nil {
			out = append(out, n)
		}
	}
	return out
}

type HierarchyService interface {
	RegisterAssetModel(ctx context.Context, model *types.AssetModel) error
	UnregisterAssetModel(ctx context.Context, assetID string) error
	RebuildAll(ctx context.Context) error
	CurrentForest() *Forest
	GetNode(nodeID string) (*types.HierarchyNode, error)
}

type hierarchyService struct {
	graph graph.Store
	bus   redisclient.ChangeBus
	log   *logger.Logger

	registryMu sync.RWMutex
	registry   map[string]*types.AssetModel

	rebuildMu  sync.Mutex // single writer across rebuilds
	generation atomic.Uint64
	forest     atomic.Pointer[Forest]
}

func NewHierarchyService(store graph.Store, bus redisclient.ChangeBus, baseLog *logger.Logger) HierarchyService {
	s := &hierarchyService{
		graph:    store,
		bus:      bus,
		log:      baseLog.With("service", "HierarchyService"),
		registry: make(map[string]*types.AssetModel),
	}
	s.forest.Store(emptyForest())
	return s
}

func emptyForest() *Forest {
	return &Forest{
		nodes:      map[string]*types.HierarchyNode{},
		roots:      map[string][]string{},
		byView:     map[string][]string{},
		membership: map[string]map[string][]string{},
	}
}

func (s *hierarchyService) RegisterAssetModel(ctx context.Context, model *types.AssetModel) error {
	if model == nil || model.ID == "" {
		return fmt.Errorf("asset model with id required: %w", apperrors.ErrInvalidArgument)
	}
	s.registryMu.Lock()
	s.registry[model.ID] = model
	s.registryMu.Unlock()
	return s.RebuildAll(ctx)
}

func (s *hierarchyService) UnregisterAssetModel(ctx context.Context, assetID string) error {
	s.registryMu.Lock()
	_, ok := s.registry[assetID]
	delete(s.registry, assetID)
	s.registryMu.Unlock()
	if !ok {
		return fmt.Errorf("asset model %s: %w", assetID, apperrors.ErrNotFound)
	}
	return s.RebuildAll(ctx)
}

func (s *hierarchyService) CurrentForest() *Forest {
	return s.forest.Load()
}

func (s *hierarchyService) GetNode(nodeID string) (*types.HierarchyNode, error) {
	n := s.forest.Load().Node(nodeID)
	if n == nil {
		return nil, fmt.Errorf("hierarchy node %s: %w", nodeID, apperrors.ErrNotFound)
	}
	return n, nil
}

// RebuildAll recomputes every view into a fresh forest and swaps it in only
// once complete. Any construction error leaves the live forest untouched.
func (s *hierarchyService) RebuildAll(ctx context.Context) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()

	s.registryMu.RLock()
	models := make([]*types.AssetModel, 0, len(s.registry))
	for _, m := range s.registry {
		models = append(models, m)
	}
	s.registryMu.RUnlock()
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	next := emptyForest()
	next.Generation = s.generation.Load() + 1

	b := &forestBuilder{forest: next}
	b.buildFunctionView(models)
	b.buildOrganisationalView(models)
	b.buildFundingView(models)
	if err := b.buildGeographicView(ctx, s.graph, models); err != nil {
		s.log.Error("Hierarchy rebuild aborted, previous forest stays live", "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrRebuildFailed, err)
	}

	for _, viewType := range []string{types.ViewTypeFunction, types.ViewTypeGeographic, types.ViewTypeOrganisational, types.ViewTypeFunding} {
		b.aggregate(viewType)
	}

	s.generation.Store(next.Generation)
	s.forest.Store(next)
	s.log.Info("Hierarchy forest rebuilt", "generation", next.Generation, "assets", len(models), "nodes", len(next.nodes))

	if s.bus != nil {
		if err := s.bus.Publish(ctx, redisclient.ChangeEvent{
			Type:       redisclient.EventHierarchyRebuilt,
			Generation: next.Generation,
		}); err != nil {
			s.log.Warn("Failed to publish rebuild event", "error", err)
		}
	}
	return nil
}

// forestBuilder accumulates nodes for one generation. Direct asset matches
// land on leaves; aggregate() then rolls counts and value bottom-up.
type forestBuilder struct {
	forest *Forest
	direct map[string][]*types.AssetModel // node id -> directly matched assets
}

func (b *forestBuilder) addNode(viewType string, n *types.HierarchyNode) *types.HierarchyNode {
	if existing, ok := b.forest.nodes[n.ID]; ok {
		return existing
	}
	b.forest.nodes[n.ID] = n
	b.forest.byView[viewType] = append(b.forest.byView[viewType], n.ID)
	if n.ParentID == "" {
		b.forest.roots[viewType] = append(b.forest.roots[viewType], n.ID)
	} else if parent := b.forest.nodes[n.ParentID]; parent != nil {
		parent.ChildrenIDs = append(parent.ChildrenIDs, n.ID)
	}
	return n
}

func (b *forestBuilder) attach(viewType, nodeID string, m *types.AssetModel) {
	if b.direct == nil {
		b.direct = map[string][]*types.AssetModel{}
	}
	b.direct[nodeID] = append(b.direct[nodeID], m)

	byAsset := b.forest.membership[viewType]
	if byAsset == nil {
		byAsset = map[string][]string{}
		b.forest.membership[viewType] = byAsset
	}
	path := []string{nodeID}
	for cur := b.forest.nodes[nodeID]; cur != nil && cur.ParentID != ""; cur = b.forest.nodes[cur.ParentID] {
		path = append(path, cur.ParentID)
	}
	byAsset[m.ID] = path
}

func slug(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, "-"))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		default:
			return '-'
		}
	}, joined)
}

func (b *forestBuilder) buildFunctionView(models []*types.AssetModel) {
	for _, cat := range FunctionCategories() {
		b.addNode(types.ViewTypeFunction, &types.HierarchyNode{
			ID:    slug("fn", "cat", cat),
			Name:  cat,
			Type:  "category",
			Level: 0,
		})
	}
	for _, m := range models {
		purpose, category := MapPurpose(m)
		catID := slug("fn", "cat", category)
		fn := b.addNode(types.ViewTypeFunction, &types.HierarchyNode{
			ID:       slug("fn", category, purpose),
			Name:     purpose,
			Type:     "function",
			Level:    1,
			ParentID: catID,
			Metadata: map[string]string{"category": category},
		})
		b.bumpPriority(fn, m.Criticality)
		b.attach(types.ViewTypeFunction, fn.ID, m)
	}
}

// The one hierarchy without a backing graph structure: membership comes from
// the org:<department> tag convention alone.
func (b *forestBuilder) buildOrganisationalView(models []*types.AssetModel) {
	divisionFor := func(department string) string {
		switch strings.ToLower(department) {
		case "finance", "assets", "governance":
			return "Corporate Division"
		default:
			return "Operations Division"
		}
	}

	for _, m := range models {
		department := types.TagValue(m.Tags, "org")
		if department == "" {
			continue
		}
		division := divisionFor(department)
		divNode := b.addNode(types.ViewTypeOrganisational, &types.HierarchyNode{
			ID:    slug("org", "div", division),
			Name:  division,
			Type:  "division",
			Level: 0,
		})
		dep := b.addNode(types.ViewTypeOrganisational, &types.HierarchyNode{
			ID:       slug("org", "dep", department),
			Name:     department,
			Type:     "department",
			Level:    1,
			ParentID: divNode.ID,
		})
		b.attach(types.ViewTypeOrganisational, dep.ID, m)
	}
}

func (b *forestBuilder) buildFundingView(models []*types.AssetModel) {
	for _, cat := range FundingCategories() {
		b.addNode(types.ViewTypeFunding, &types.HierarchyNode{
			ID:    slug("fund", cat),
			Name:  cat,
			Type:  "funding_category",
			Level: 0,
		})
	}
	for _, m := range models {
		cat := MapFundingCategory(m)
		b.attach(types.ViewTypeFunding, slug("fund", cat), m)
	}
}

// buildGeographicView derives structure from the graph: Location vertices,
// CONTAINS edges for parent/child, LOCATED_AT for asset membership.
func (b *forestBuilder) buildGeographicView(ctx context.Context, store graph.Store, models []*types.AssetModel) error {
	locations, err := store.GetVerticesByLabel(ctx, types.LabelLocation, nil)
	if err != nil {
		return fmt.Errorf("list locations: %w", err)
	}
	contains, err := store.GetEdges(ctx, graph.EdgeQuery{Label: types.EdgeContains})
	if err != nil {
		return fmt.Errorf("list contains edges: %w", err)
	}
	locatedAt, err := store.GetEdges(ctx, graph.EdgeQuery{Label: types.EdgeLocatedAt})
	if err != nil {
		return fmt.Errorf("list located_at edges: %w", err)
	}

	known := make(map[string]*types.Vertex, len(locations))
	for _, v := range locations {
		known[v.ID] = v
	}
	parentOf := map[string]string{}
	for _, e := range contains {
		if known[e.FromID] == nil || known[e.ToID] == nil {
			continue
		}
		parentOf[e.ToID] = e.FromID
	}

	// Level from chain length; a visited set guards against an accidental
	// CONTAINS cycle in the store.
	level := func(id string) int {
		depth := 0
		visited := map[string]bool{id: true}
		for cur, ok := parentOf[id]; ok; cur, ok = parentOf[cur] {
			if visited[cur] {
				break
			}
			visited[cur] = true
			depth++
		}
		return depth
	}

	// Parents first so addNode can wire ChildrenIDs in one pass.
	ordered := make([]*types.Vertex, len(locations))
	copy(ordered, locations)
	sort.Slice(ordered, func(i, j int) bool {
		li, lj := level(ordered[i].ID), level(ordered[j].ID)
		if li != lj {
			return li < lj
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, v := range ordered {
		parentID := ""
		if p, ok := parentOf[v.ID]; ok {
			parentID = "geo-" + p
		}
		nodeType := v.PropString("level")
		if nodeType == "" {
			nodeType = "location"
		}
		b.addNode(types.ViewTypeGeographic, &types.HierarchyNode{
			ID:       "geo-" + v.ID,
			Name:     v.PropString("name"),
			Type:     nodeType,
			Level:    level(v.ID),
			ParentID: parentID,
		})
	}

	registered := make(map[string]*types.AssetModel, len(models))
	for _, m := range models {
		registered[m.ID] = m
	}
	for _, e := range locatedAt {
		m, ok := registered[e.FromID]
		if !ok || known[e.ToID] == nil {
			continue
		}
		b.attach(types.ViewTypeGeographic, "geo-"+e.ToID, m)
	}
	return nil
}

func (b *forestBuilder) bumpPriority(n *types.HierarchyNode, criticality int) {
	if n.Metadata == nil {
		n.Metadata = map[string]string{}
	}
	cur, _ := strconv.Atoi(n.Metadata["priority"])
	if criticality > cur {
		n.Metadata["priority"] = strconv.Itoa(criticality)
	}
}

// aggregate computes AssetCount and ValueContribution in a single bottom-up
// pass. Recompute-from-scratch keeps the operation idempotent: the same
// inputs always yield the same aggregates.
func (b *forestBuilder) aggregate(viewType string) {
	var walk func(id string) (int, float64)
	walk = func(id string) (int, float64) {
		n := b.forest.nodes[id]
		if n == nil {
			return 0, 0
		}
		count := 0
		value := 0.0
		for _, m := range b.direct[id] {
			count++
			value += m.CurrentValue
		}
		for _, childID := range n.ChildrenIDs {
			c, v := walk(childID)
			count += c
			value += v
		}
		n.AssetCount = count
		n.ValueContribution = value
		n.IsActive = count > 0
		return count, value
	}
	for _, rootID := range b.forest.roots[viewType] {
		walk(rootID)
	}
}
