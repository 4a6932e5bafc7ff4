package service

import (
	"github.com/civic-kit/grievance-service/internal/domain"
	"github.com/civic-kit/grievance-service/internal/keywords"
)

// Keyword group names; the lists themselves live in the catalog.
const (
	groupFire                  = "fire"
	groupMedical               = "medical"
	groupAccident              = "accident"
	groupGasLeak               = "gas_leak"
	groupStructural            = "structural"
	groupPolice                = "police"
	groupInProgress            = "in_progress"
	groupElectricalHazard      = "electrical_hazard"
	groupElectricity           = "electricity"
	groupGarbage               = "garbage"
	groupWaterSupply           = "water_supply"
	groupWaterContamination    = "water_contamination"
	groupRoads                 = "roads"
	groupDrainage              = "drainage"
	groupStreetLight           = "street_light"
	groupTransportBus          = "transport_bus"
	groupRailway               = "railway"
	groupEducation             = "education"
	groupHealthService         = "health_service"
	groupEnvironment           = "environment"
	groupPostal                = "postal"
	groupTelecom               = "telecom"
	groupHealthRisk            = "health_risk"
	groupInfrastructureFailure = "infrastructure_failure"
	groupCosmetic              = "cosmetic"
	groupAnger                 = "anger"
	groupFrustration           = "frustration"
	groupUrgencyLanguage       = "urgency_language"
	groupPoliteness            = "politeness"
)

// Department families outside the domain package's city-resolved set.
const (
	familyElectricity = "electricity"
	familyTransport   = "transport"
	familyRailways    = "railways"
	familyEducation   = "education"
	familyEnvironment = "environment"
	familyPost        = "post"
	familyTelecom     = "telecom"
	familyPWD         = "pwd"
)

// routingRule fixes department family and category when its keywords appear.
type routingRule struct {
	name     string
	match    func(keywords.Hits) bool
	family   string
	category domain.Category
}

func anyOf(groups ...string) func(keywords.Hits) bool {
	return func(h keywords.Hits) bool { return h.Has(groups...) }
}

// emergencyRules are checked in order; the first match fixes urgency to urgent.
var emergencyRules = []routingRule{
	{name: "fire", match: anyOf(groupFire), family: domain.FamilyFire, category: domain.CategorySafety},
	{name: "medical", match: anyOf(groupMedical), family: domain.FamilyHealth, category: domain.CategoryHealth},
	{name: "accident", match: anyOf(groupAccident), family: domain.FamilyPolice, category: domain.CategorySafety},
	{name: "gas_leak", match: anyOf(groupGasLeak), family: domain.FamilyFire, category: domain.CategorySafety},
	{name: "structural_collapse", match: anyOf(groupStructural), family: domain.FamilyFire, category: domain.CategorySafety},
	{name: "crime_in_progress", match: func(h keywords.Hits) bool {
		return h[groupPolice] && h[groupInProgress]
	}, family: domain.FamilyPolice, category: domain.CategorySafety},
	{name: "electrical_hazard", match: anyOf(groupElectricalHazard), family: familyElectricity, category: domain.CategorySafety},
}

// departmentRules route non-emergency complaints; urgency is left to the model
// except for police matters, which are floored at high.
var departmentRules = []routingRule{
	{name: "police", match: anyOf(groupPolice), family: domain.FamilyPolice, category: domain.CategorySafety},
	{name: "electricity", match: anyOf(groupElectricity), family: familyElectricity, category: domain.CategoryUtilities},
	{name: "garbage", match: anyOf(groupGarbage), family: domain.FamilyMunicipal, category: domain.CategorySanitation},
	{name: "water_supply", match: anyOf(groupWaterSupply, groupWaterContamination), family: domain.FamilyMunicipal, category: domain.CategoryUtilities},
	{name: "roads", match: anyOf(groupRoads), family: domain.FamilyMunicipal, category: domain.CategoryInfrastructure},
	{name: "drainage", match: anyOf(groupDrainage), family: domain.FamilyMunicipal, category: domain.CategoryInfrastructure},
	{name: "street_light", match: anyOf(groupStreetLight), family: domain.FamilyMunicipal, category: domain.CategoryInfrastructure},
	{name: "bus", match: anyOf(groupTransportBus), family: familyTransport, category: domain.CategoryTransport},
	{name: "railway", match: anyOf(groupRailway), family: familyRailways, category: domain.CategoryTransport},
	{name: "education", match: anyOf(groupEducation), family: familyEducation, category: domain.CategoryEducation},
	{name: "health_service", match: anyOf(groupHealthService), family: domain.FamilyHealth, category: domain.CategoryHealth},
	{name: "environment", match: anyOf(groupEnvironment), family: familyEnvironment, category: domain.CategoryEnvironment},
	{name: "postal", match: anyOf(groupPostal), family: familyPost, category: domain.CategoryGovernance},
	{name: "telecom", match: anyOf(groupTelecom), family: familyTelecom, category: domain.CategoryUtilities},
}

func firstRule(rules []routingRule, hits keywords.Hits) (routingRule, bool) {
	for _, rule := range rules {
		if rule.match(hits) {
			return rule, true
		}
	}
	return routingRule{}, false
}
