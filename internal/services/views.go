package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/repos"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type ViewService interface {
	CreateView(ctx context.Context, view *types.HierarchyView) (*types.HierarchyView, error)
	UpdateView(ctx context.Context, viewID uuid.UUID, patch types.ViewPatch) (*types.HierarchyView, error)
	GetView(ctx context.Context, viewID uuid.UUID) (*types.HierarchyView, error)
	GetHierarchyForView(ctx context.Context, viewID uuid.UUID) ([]*types.HierarchyNode, error)
	GetHierarchyStatistics(ctx context.Context, viewID uuid.UUID) (*types.HierarchyStatistics, error)
	EnsureDefaultViews(ctx context.Context) error
}

type viewService struct {
	views     repos.HierarchyViewRepo
	hierarchy HierarchyService
	log       *logger.Logger

	cacheMu sync.RWMutex
	cache   map[uuid.UUID]*types.HierarchyView
}

func NewViewService(views repos.HierarchyViewRepo, hierarchy HierarchyService, baseLog *logger.Logger) ViewService {
	return &viewService{
		views:     views,
		hierarchy: hierarchy,
		log:       baseLog.With("service", "ViewService"),
		cache:     make(map[uuid.UUID]*types.HierarchyView),
	}
}

// Creating or updating a view never rebuilds the forest: views are pure
// traversal configuration over whatever forest is currently live.
func (s *viewService) CreateView(ctx context.Context, view *types.HierarchyView) (*types.HierarchyView, error) {
	if view.SortingStrategy == "" {
		view.SortingStrategy = types.SortAlphabetical
	}
	if err := validateView(view); err != nil {
		return nil, err
	}

	created, err := s.views.Create(ctx, nil, view)
	if err != nil {
		return nil, fmt.Errorf("create view: %w", err)
	}
	s.cacheMu.Lock()
	s.cache[created.ID] = created
	s.cacheMu.Unlock()
	return created, nil
}

func (s *viewService) UpdateView(ctx context.Context, viewID uuid.UUID, patch types.ViewPatch) (*types.HierarchyView, error) {
	view, err := s.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}

	updated := *view
	if patch.Name != nil {
		updated.Name = *patch.Name
	}
	if patch.MaxDepth != nil {
		updated.MaxDepth = *patch.MaxDepth
	}
	if patch.SortingStrategy != nil {
		updated.SortingStrategy = *patch.SortingStrategy
	}
	if patch.RootNodeIDs != nil {
		if len(*patch.RootNodeIDs) == 0 {
			updated.RootNodeIDs = nil
		} else {
			raw, err := json.Marshal(*patch.RootNodeIDs)
			if err != nil {
				return nil, err
			}
			updated.RootNodeIDs = datatypes.JSON(raw)
		}
	}
	if patch.ClearFilters {
		updated.Filters = nil
	} else if patch.Filters != nil {
		raw, err := json.Marshal(patch.Filters)
		if err != nil {
			return nil, err
		}
		updated.Filters = datatypes.JSON(raw)
	}
	if err := validateView(&updated); err != nil {
		return nil, err
	}

	if err := s.views.Update(ctx, nil, &updated); err != nil {
		return nil, fmt.Errorf("update view: %w", err)
	}
	s.cacheMu.Lock()
	s.cache[viewID] = &updated
	s.cacheMu.Unlock()
	return &updated, nil
}

func (s *viewService) GetView(ctx context.Context, viewID uuid.UUID) (*types.HierarchyView, error) {
	s.cacheMu.RLock()
	cached, ok := s.cache[viewID]
	s.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	view, err := s.views.GetByID(ctx, nil, viewID)
	if err != nil {
		return nil, err
	}
	s.cacheMu.Lock()
	s.cache[viewID] = view
	s.cacheMu.Unlock()
	return view, nil
}

func validateView(v *types.HierarchyView) error {
	if v.Name == "" {
		return fmt.Errorf("view name required: %w", apperrors.ErrInvalidArgument)
	}
	if !types.KnownViewType(v.ViewType) {
		return fmt.Errorf("unknown view type %q: %w", v.ViewType, apperrors.ErrInvalidArgument)
	}
	if v.MaxDepth <= 0 {
		return fmt.Errorf("max_depth must be positive, got %d: %w", v.MaxDepth, apperrors.ErrInvalidArgument)
	}
	if !types.KnownSortingStrategy(v.SortingStrategy) {
		return fmt.Errorf("unknown sorting strategy %q: %w", v.SortingStrategy, apperrors.ErrInvalidArgument)
	}
	return nil
}

func decodeRootIDs(v *types.HierarchyView) []string {
	if len(v.RootNodeIDs) == 0 {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(v.RootNodeIDs, &ids); err != nil {
		return nil
	}
	return ids
}

func decodeFilters(v *types.HierarchyView) types.ViewFilters {
	// Absent filters mean "show everything"; that default is the one truly
	// optional piece of view configuration.
	filters := types.ViewFilters{IncludeInactive: true}
	if len(v.Filters) == 0 {
		return filters
	}
	_ = json.Unmarshal(v.Filters, &filters)
	return filters
}

// traversalNode pairs a node with its depth relative to the traversal roots.
type traversalNode struct {
	node  *types.HierarchyNode
	depth int
}

// collectView walks the live forest the way the view prescribes: DFS from the
// view's roots (or the view type's forest roots), hard depth stop, then the
// view's filters. The explicit visited set keeps traversal from hanging if an
// edge import ever introduces a cycle.
func collectView(view *types.HierarchyView, forest *Forest) []traversalNode {
	rootIDs := decodeRootIDs(view)
	if len(rootIDs) == 0 {
		rootIDs = forest.Roots(view.ViewType)
	}

	type frame struct {
		id    string
		depth int
	}
	visited := make(map[string]bool)
	var collected []traversalNode
	stack := make([]frame, 0, len(rootIDs))
	for i := len(rootIDs) - 1; i >= 0; i-- {
		stack = append(stack, frame{id: rootIDs[i], depth: 0})
	}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[top.id] || top.depth > view.MaxDepth {
			continue
		}
		visited[top.id] = true
		node := forest.Node(top.id)
		if node == nil {
			continue
		}
		collected = append(collected, traversalNode{node: node, depth: top.depth})
		for i := len(node.ChildrenIDs) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: node.ChildrenIDs[i], depth: top.depth + 1})
		}
	}

	filters := decodeFilters(view)
	filtered := collected[:0:0]
	for _, tn := range collected {
		if !filters.IncludeInactive && !tn.node.IsActive {
			continue
		}
		if filters.MinValue > 0 && tn.node.ValueContribution < filters.MinValue {
			continue
		}
		filtered = append(filtered, tn)
	}
	return filtered
}

func (s *viewService) GetHierarchyForView(ctx context.Context, viewID uuid.UUID) ([]*types.HierarchyNode, error) {
	view, err := s.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}

	collected := collectView(view, s.hierarchy.CurrentForest())
	nodes := make([]*types.HierarchyNode, 0, len(collected))
	for _, tn := range collected {
		nodes = append(nodes, tn.node)
	}
	sortNodes(nodes, view.SortingStrategy)
	return nodes, nil
}

// sortNodes orders per strategy with ties broken by ascending node id, so
// identical inputs always produce identical orderings.
func sortNodes(nodes []*types.HierarchyNode, strategy string) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		switch strategy {
		case types.SortValue:
			if a.ValueContribution != b.ValueContribution {
				return a.ValueContribution > b.ValueContribution
			}
		case types.SortPriority:
			pa, pb := nodePriority(a), nodePriority(b)
			if pa != pb {
				return pa > pb
			}
		default: // ALPHABETICAL
			if a.Name != b.Name {
				return a.Name < b.Name
			}
		}
		return a.ID < b.ID
	})
}

func nodePriority(n *types.HierarchyNode) int {
	if n.Metadata == nil {
		return 0
	}
	p, _ := strconv.Atoi(n.Metadata["priority"])
	return p
}

func (s *viewService) GetHierarchyStatistics(ctx context.Context, viewID uuid.UUID) (*types.HierarchyStatistics, error) {
	view, err := s.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}

	forest := s.hierarchy.CurrentForest()
	stats := &types.HierarchyStatistics{
		ViewID:          view.ID.String(),
		ViewType:        view.ViewType,
		NodesByType:     map[string]int{},
		AssetsByPurpose: map[string]int{},
		ValueByPurpose:  map[string]float64{},
	}

	// Statistics cover exactly the nodes GetHierarchyForView would return,
	// so a view scoped to one subtree reports that subtree, not the forest.
	collected := collectView(view, forest)
	depthSum := 0
	for _, tn := range collected {
		stats.TotalNodes++
		stats.NodesByType[tn.node.Type]++
		depthSum += tn.depth
		if tn.depth > stats.MaxDepth {
			stats.MaxDepth = tn.depth
		}
		if tn.depth == 0 {
			stats.TotalAssets += tn.node.AssetCount
			stats.TotalValue += tn.node.ValueContribution
		}
	}
	if stats.TotalNodes > 0 {
		stats.AverageDepth = float64(depthSum) / float64(stats.TotalNodes)
	}

	// Purpose distribution reads the purpose-anchored function hierarchy.
	// For a function view it stays within the traversal scope; for other
	// view types the whole function view describes the same asset set.
	if view.ViewType == types.ViewTypeFunction {
		for _, tn := range collected {
			if tn.node.Type != "function" {
				continue
			}
			stats.AssetsByPurpose[tn.node.Name] += tn.node.AssetCount
			stats.ValueByPurpose[tn.node.Name] += tn.node.ValueContribution
		}
	} else {
		for _, id := range forest.byView[types.ViewTypeFunction] {
			n := forest.nodes[id]
			if n.Type != "function" {
				continue
			}
			stats.AssetsByPurpose[n.Name] += n.AssetCount
			stats.ValueByPurpose[n.Name] += n.ValueContribution
		}
	}
	return stats, nil
}

// EnsureDefaultViews seeds one view per view type when the registry is empty
// of that type. Runs at startup; safe to call repeatedly.
func (s *viewService) EnsureDefaultViews(ctx context.Context) error {
	existing, err := s.views.List(ctx, nil)
	if err != nil {
		return fmt.Errorf("list views: %w", err)
	}
	present := map[string]bool{}
	for _, v := range existing {
		present[v.ViewType] = true
		s.cacheMu.Lock()
		s.cache[v.ID] = v
		s.cacheMu.Unlock()
	}

	defaults := map[string]string{
		types.ViewTypeFunction:       "Service Function Hierarchy",
		types.ViewTypeGeographic:     "Geographic Hierarchy",
		types.ViewTypeOrganisational: "Organisational Hierarchy",
		types.ViewTypeFunding:        "Funding Hierarchy",
	}
	for viewType, name := range defaults {
		if present[viewType] {
			continue
		}
		if _, err := s.CreateView(ctx, &types.HierarchyView{
			Name:            name,
			ViewType:        viewType,
			MaxDepth:        5,
			SortingStrategy: types.SortAlphabetical,
		}); err != nil {
			return fmt.Errorf("seed default %s view: %w", viewType, err)
		}
	}
	return nil
}
