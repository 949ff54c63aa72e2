package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ViewTypeFunction       = "function"
	ViewTypeGeographic     = "geographic"
	ViewTypeOrganisational = "organisational"
	ViewTypeFunding        = "funding"
)

const (
	SortAlphabetical = "ALPHABETICAL"
	SortValue        = "VALUE"
	SortPriority     = "PRIORITY"
)

func KnownViewType(vt string) bool {
	switch vt {
	case ViewTypeFunction, ViewTypeGeographic, ViewTypeOrganisational, ViewTypeFunding:
		return true
	}
	return false
}

func KnownSortingStrategy(s string) bool {
	switch s {
	case SortAlphabetical, SortValue, SortPriority:
		return true
	}
	return false
}

// HierarchyView is pure traversal configuration. It owns no nodes and
// changing it never rebuilds the forest.
type HierarchyView struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name             string         `gorm:"column:name;not null" json:"name"`
	ViewType         string         `gorm:"column:view_type;not null;index" json:"view_type"`
	RootNodeIDs      datatypes.JSON `gorm:"column:root_node_ids;type:jsonb" json:"root_node_ids,omitempty"`
	MaxDepth         int            `gorm:"column:max_depth;not null;default:5" json:"max_depth"`
	GroupingStrategy string         `gorm:"column:grouping_strategy" json:"grouping_strategy,omitempty"`
	SortingStrategy  string         `gorm:"column:sorting_strategy;not null;default:ALPHABETICAL" json:"sorting_strategy"`
	Filters          datatypes.JSON `gorm:"column:filters;type:jsonb" json:"filters,omitempty"`
	CreatedAt        time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (HierarchyView) TableName() string { return "hierarchy_view" }

// ViewFilters is the decoded shape of HierarchyView.Filters.
type ViewFilters struct {
	IncludeInactive bool    `json:"include_inactive"`
	MinValue        float64 `json:"min_value"`
}

// ViewPatch carries the mutable fields of UpdateView. Nil means "leave as
// is"; a pointer to an empty slice clears the custom roots, and ClearFilters
// drops the filters back to defaults.
type ViewPatch struct {
	Name            *string      `json:"name,omitempty"`
	RootNodeIDs     *[]string    `json:"root_node_ids,omitempty"`
	MaxDepth        *int         `json:"max_depth,omitempty"`
	SortingStrategy *string      `json:"sorting_strategy,omitempty"`
	Filters         *ViewFilters `json:"filters,omitempty"`
	ClearFilters    bool         `json:"clear_filters,omitempty"`
}
