package types

// Vertex labels understood by the synchronization engine.
const (
	LabelAsset           = "Asset"
	LabelServiceFunction = "ServiceFunction"
	LabelLocation        = "Location"
	LabelOrgUnit         = "OrgUnit"
	LabelFundingCategory = "FundingCategory"
)

// Edge labels. Within a single label the structure must stay acyclic;
// labels may freely cross each other.
const (
	EdgeServesPurpose = "SERVES_PURPOSE"
	EdgeLocatedAt     = "LOCATED_AT"
	EdgeContains      = "CONTAINS"
	EdgeOwnedBy       = "OWNED_BY"
)

// Vertex is the graph store's record shape. An Asset vertex carries the
// relational asset id as its ID; that equality is the join key between the
// two stores and must never diverge.
type Vertex struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Edge is a directed, labeled relationship between two vertices.
type Edge struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	FromID     string         `json:"from_id"`
	ToID       string         `json:"to_id"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (v *Vertex) PropString(key string) string {
	if v == nil || v.Properties == nil {
		return ""
	}
	s, _ := v.Properties[key].(string)
	return s
}
