package types

// HierarchyNode is derived, in-memory state. It is rebuilt wholesale and
// never persisted as ground truth; aggregates are recomputed each rebuild,
// never patched incrementally.
type HierarchyNode struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Type              string            `json:"type"` // category|function|region|area|site|division|department|funding_category
	Level             int               `json:"level"`
	ParentID          string            `json:"parent_id,omitempty"`
	ChildrenIDs       []string          `json:"children_ids,omitempty"`
	AssetCount        int               `json:"asset_count"`
	ValueContribution float64           `json:"value_contribution"`
	IsActive          bool              `json:"is_active"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// AssetModel is the hierarchy engine's registered projection of an asset.
// Registration and unregistration are the only operations that trigger an
// automatic forest rebuild.
type AssetModel struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	AssetType      string   `json:"asset_type"`
	OrganisationID string   `json:"organisation_id"`
	CurrentValue   float64  `json:"current_value"`
	Criticality    int      `json:"criticality"`
	Condition      string   `json:"condition,omitempty"`
	ServicePurpose string   `json:"service_purpose,omitempty"`
	State          string   `json:"state,omitempty"`
	Suburb         string   `json:"suburb,omitempty"`
	Address        string   `json:"address,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// AssetModelFromAsset projects a relational record for registration.
func AssetModelFromAsset(a *Asset) *AssetModel {
	return &AssetModel{
		ID:             a.ID.String(),
		Name:           a.Name,
		AssetType:      a.AssetType,
		OrganisationID: a.OrganisationID,
		CurrentValue:   a.CurrentValue,
		Criticality:    a.Criticality,
		Condition:      a.Condition,
		ServicePurpose: a.ServicePurpose,
		State:          a.State,
		Suburb:         a.Suburb,
		Address:        a.Address,
		Tags:           a.TagList(),
	}
}

type HierarchyStatistics struct {
	ViewID            string             `json:"view_id"`
	ViewType          string             `json:"view_type"`
	TotalNodes        int                `json:"total_nodes"`
	TotalAssets       int                `json:"total_assets"`
	TotalValue        float64            `json:"total_value"`
	MaxDepth          int                `json:"max_depth"`
	AverageDepth      float64            `json:"average_depth"`
	NodesByType       map[string]int     `json:"nodes_by_type"`
	AssetsByPurpose   map[string]int     `json:"assets_by_purpose"`
	ValueByPurpose    map[string]float64 `json:"value_by_purpose"`
}

const (
	RelSpatialDistribution   = "spatial_distribution"
	RelResponsibilityMapping = "responsibility_mapping"
	RelValueAllocation       = "value_allocation"
)

// CrossHierarchyRelationship is informational metadata for consumers, not a
// computed traversal.
type CrossHierarchyRelationship struct {
	Name          string `json:"name"`
	FromHierarchy string `json:"from_hierarchy"`
	ToHierarchy   string `json:"to_hierarchy"`
	Description   string `json:"description"`
}

type AssetHierarchyContext struct {
	AssetID          string                       `json:"asset_id"`
	Hierarchies      map[string][]*HierarchyNode  `json:"hierarchies"`
	PrimaryHierarchy string                       `json:"primary_hierarchy"`
	Relationships    []CrossHierarchyRelationship `json:"cross_hierarchy_relationships"`
}
