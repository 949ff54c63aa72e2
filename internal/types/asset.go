package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Asset is the authoritative relational record. The graph store only ever
// holds a projection of it; the relational row wins on any disagreement.
type Asset struct {
	ID             uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Name           string    `gorm:"column:name;not null" json:"name"`
	AssetType      string    `gorm:"column:asset_type;not null;index" json:"asset_type"` // ROAD|BRIDGE|BUILDING|PIPELINE|...
	OrganisationID string    `gorm:"column:organisation_id;not null;index" json:"organisation_id"`
	CurrentValue   float64   `gorm:"column:current_value;not null;default:0" json:"current_value"`
	Criticality    int       `gorm:"column:criticality;not null;default:3" json:"criticality"` // 1 (low) .. 5 (critical)
	Condition      string    `gorm:"column:condition" json:"condition,omitempty"`
	// ServicePurpose is the explicit assignment; empty means "derive from
	// asset type" during sync.
	ServicePurpose string `gorm:"column:service_purpose" json:"service_purpose,omitempty"`
	State          string `gorm:"column:state" json:"state,omitempty"`
	Suburb         string `gorm:"column:suburb" json:"suburb,omitempty"`
	Address        string `gorm:"column:address" json:"address,omitempty"`
	// Tags is a JSON list of strings. Conventions: "org:<department>" binds
	// the asset into the organisational hierarchy, "funding:<category>" into
	// the funding hierarchy.
	Tags      datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Asset) TableName() string { return "asset" }

func (a *Asset) TagList() []string {
	if len(a.Tags) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(a.Tags, &tags); err != nil {
		return nil
	}
	return tags
}

// TagValue returns the value of the first "<prefix>:<value>" tag, or "".
func TagValue(tags []string, prefix string) string {
	for _, t := range tags {
		if rest, ok := strings.CutPrefix(t, prefix+":"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

type AssetFilter struct {
	OrganisationID string
	AssetType      string
}

type Pagination struct {
	Offset int
	Limit  int
}
