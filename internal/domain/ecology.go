package domain

// SystemHealth is the qualitative classification of collective activity.
type SystemHealth string

const (
	HealthThriving  SystemHealth = "thriving"
	HealthGrowing   SystemHealth = "growing"
	HealthStable    SystemHealth = "stable"
	HealthDeclining SystemHealth = "declining"
)

// Description returns the operator-facing summary of a health level.
func (h SystemHealth) Description() string {
	switch h {
	case HealthThriving:
		return "Excellent growth and engagement"
	case HealthGrowing:
		return "Positive growth trajectory"
	case HealthStable:
		return "Steady state operation"
	case HealthDeclining:
		return "Needs attention and optimization"
	}
	return "System status unknown"
}

// Score maps health to an ordinal used by gauges: declining=0 .. thriving=3.
func (h SystemHealth) Score() float64 {
	switch h {
	case HealthThriving:
		return 3
	case HealthGrowing:
		return 2
	case HealthStable:
		return 1
	}
	return 0
}

// NutrientFlows counts weekly activity.
type NutrientFlows struct {
	Contributions int `json:"contributions"`
	Attestations  int `json:"attestations"`
	Payouts       int `json:"payouts"`
}

// GrowthSignals holds week-over-week indicators, percentages rounded to integers.
type GrowthSignals struct {
	NewResearchers     int `json:"newResearchers"`
	ContributionGrowth int `json:"contributionGrowth"`
	EngagementRate     int `json:"engagementRate"`
}

// EcologicalSystem is a fully derived snapshot; it has no identity of its own.
type EcologicalSystem struct {
	NutrientFlows NutrientFlows `json:"nutrientFlows"`
	GrowthSignals GrowthSignals `json:"growthSignals"`
	SystemHealth  SystemHealth  `json:"systemHealth"`
}

// ChainDistribution counts completed payouts per settlement network.
type ChainDistribution map[Chain]int

// DashboardMetrics aggregates totals across both stores.
type DashboardMetrics struct {
	TotalContributions  int               `json:"totalContributions"`
	TotalPayouts        string            `json:"totalPayouts"`
	TotalValueFlow      string            `json:"totalValueFlow"`
	ActiveResearchers   int               `json:"activeResearchers"`
	WeeklyContributions int               `json:"weeklyContributions"`
	WeeklyPayouts       string            `json:"weeklyPayouts"`
	WeeklyValueFlow     string            `json:"weeklyValueFlow"`
	TargetProgress      float64           `json:"targetProgress"`
	PendingAttestations int               `json:"pendingAttestations"`
	ChainDistribution   ChainDistribution `json:"chainDistribution"`
}
