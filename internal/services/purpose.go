package services

import "github.com/civicworks/assetgraph-backend/internal/types"

// Top-level function hierarchy categories. Static by design; ServiceFunction
// vertices group underneath them.
const (
	CategoryTransportation = "Transportation"
	CategoryInfrastructure = "Infrastructure"
	CategoryUtilities      = "Utilities"
	CategoryEmergency      = "Emergency"
	CategoryRecreation     = "Recreation"
)

func FunctionCategories() []string {
	return []string{
		CategoryTransportation,
		CategoryInfrastructure,
		CategoryUtilities,
		CategoryEmergency,
		CategoryRecreation,
	}
}

var typeCategory = map[string]string{
	"ROAD":      CategoryTransportation,
	"BRIDGE":    CategoryTransportation,
	"STATION":   CategoryTransportation,
	"CARPARK":   CategoryTransportation,
	"BUILDING":  CategoryInfrastructure,
	"DEPOT":     CategoryInfrastructure,
	"PIPELINE":  CategoryUtilities,
	"WATER":     CategoryUtilities,
	"POWER":     CategoryUtilities,
	"DRAINAGE":  CategoryUtilities,
	"FIRE":      CategoryEmergency,
	"AMBULANCE": CategoryEmergency,
	"PARK":      CategoryRecreation,
	"POOL":      CategoryRecreation,
	"OVAL":      CategoryRecreation,
}

// MapPurpose derives the service purpose and its category for an asset. An
// explicit assignment names the ServiceFunction; the category always comes
// from the asset type so explicit purposes still group predictably.
func MapPurpose(m *types.AssetModel) (purpose, category string) {
	category, ok := typeCategory[m.AssetType]
	if !ok {
		category = CategoryInfrastructure
	}
	if m.ServicePurpose != "" {
		return m.ServicePurpose, category
	}
	return category, category
}

// Funding categories; resolved from a funding:<name> tag first, then the
// asset type.
const (
	FundingCapitalWorks = "Capital Works"
	FundingMaintenance  = "Maintenance"
	FundingOperations   = "Operations"
	FundingDisposal     = "Disposal"
)

func FundingCategories() []string {
	return []string{FundingCapitalWorks, FundingMaintenance, FundingOperations, FundingDisposal}
}

var fundingTagCategory = map[string]string{
	"capital":     FundingCapitalWorks,
	"maintenance": FundingMaintenance,
	"operations":  FundingOperations,
	"disposal":    FundingDisposal,
}

func MapFundingCategory(m *types.AssetModel) string {
	if tag := types.TagValue(m.Tags, "funding"); tag != "" {
		if cat, ok := fundingTagCategory[tag]; ok {
			return cat
		}
	}
	category, ok := typeCategory[m.AssetType]
	if !ok {
		category = CategoryInfrastructure
	}
	switch category {
	case CategoryTransportation, CategoryInfrastructure:
		return FundingCapitalWorks
	case CategoryUtilities:
		return FundingMaintenance
	default:
		return FundingOperations
	}
}
