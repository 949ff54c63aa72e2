package services

import (
	"context"
	"fmt"

	apperrors "github.com/civicworks/assetgraph-backend/internal/pkg/errors"
	"github.com/civicworks/assetgraph-backend/internal/platform/logger"
	"github.com/civicworks/assetgraph-backend/internal/types"
)

type ContextService interface {
	GetAssetHierarchyContext(ctx context.Context, assetID string) (*types.AssetHierarchyContext, error)
}

type contextService struct {
	hierarchy HierarchyService
	log       *logger.Logger
}

func NewContextService(hierarchy HierarchyService, baseLog *logger.Logger) ContextService {
	return &contextService{
		hierarchy: hierarchy,
		log:       baseLog.With("service", "ContextService"),
	}
}

// GetAssetHierarchyContext resolves the asset's position in all four
// hierarchies at once. Assets are purpose-anchored first, so the function
// hierarchy is designated primary by policy.
func (s *contextService) GetAssetHierarchyContext(_ context.Context, assetID string) (*types.AssetHierarchyContext, error) {
	forest := s.hierarchy.CurrentForest()

	result := &types.AssetHierarchyContext{
		AssetID:          assetID,
		Hierarchies:      map[string][]*types.HierarchyNode{},
		PrimaryHierarchy: types.ViewTypeFunction,
	}

	found := false
	for _, viewType := range []string{
		types.ViewTypeFunction,
		types.ViewTypeGeographic,
		types.ViewTypeOrganisational,
		types.ViewTypeFunding,
	} {
		path := forest.MembershipPath(viewType, assetID)
		if len(path) == 0 {
			continue
		}
		found = true
		// Leaf-to-root from the index; consumers want root-first.
		reversed := make([]*types.HierarchyNode, len(path))
		for i, n := range path {
			reversed[len(path)-1-i] = n
		}
		result.Hierarchies[viewType] = reversed
	}
	if !found {
		return nil, fmt.Errorf("asset %s has no hierarchy membership: %w", assetID, apperrors.ErrNotFound)
	}

	// Fixed, named relationships between hierarchy pairs. Informational
	// metadata for consumers, not a computed traversal.
	addRel := func(name, from, to, description string) {
		if len(result.Hierarchies[from]) == 0 || len(result.Hierarchies[to]) == 0 {
			return
		}
		result.Relationships = append(result.Relationships, types.CrossHierarchyRelationship{
			Name:          name,
			FromHierarchy: from,
			ToHierarchy:   to,
			Description:   description,
		})
	}
	addRel(types.RelSpatialDistribution, types.ViewTypeFunction, types.ViewTypeGeographic,
		"the function hierarchy implies a spatial distribution over the geographic hierarchy")
	addRel(types.RelResponsibilityMapping, types.ViewTypeFunction, types.ViewTypeOrganisational,
		"service functions map to the organisational units responsible for them")
	addRel(types.RelValueAllocation, types.ViewTypeFunction, types.ViewTypeFunding,
		"service functions allocate asset value across funding categories")

	return result, nil
}
