package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"CollectiveLedger/internal/clock"
	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/observability"
	"CollectiveLedger/internal/ports"
)

var (
	// DefaultUSDRate converts native currency to USD for value-flow reporting.
	DefaultUSDRate = decimal.NewFromInt(2500)
	// DefaultWeeklyTargetUSD is the weekly value-flow goal.
	DefaultWeeklyTargetUSD = decimal.NewFromInt(150)
)

// Rates carries the constants used to convert payouts into value flow.
type Rates struct {
	USDPerUnit      decimal.Decimal
	WeeklyTargetUSD decimal.Decimal
}

// DefaultRates returns the built-in conversion constants.
func DefaultRates() Rates {
	return Rates{USDPerUnit: DefaultUSDRate, WeeklyTargetUSD: DefaultWeeklyTargetUSD}
}

// Ecology derives the weekly ecological snapshot. It is a pure function.
func Ecology(contributions []domain.Contribution, payouts []domain.Payout, now time.Time) domain.EcologicalSystem {
	week := clock.CurrentWeek(now)
	prior := clock.PriorWeek(now)

	var (
		weekly, attested, previous int
		researchers                = map[int64]struct{}{}
	)
	for _, c := range contributions {
		switch {
		case week.Contains(c.Timestamp):
			weekly++
			researchers[c.ResearcherID] = struct{}{}
			if c.Attested() {
				attested++
			}
		case prior.Contains(c.Timestamp):
			previous++
		}
	}

	completed := 0
	for _, p := range payouts {
		if p.Status == domain.PayoutCompleted && week.Contains(p.Timestamp) {
			completed++
		}
	}

	growth := contributionGrowth(previous, weekly)
	engagement := engagementRate(attested, weekly)

	return domain.EcologicalSystem{
		NutrientFlows: domain.NutrientFlows{
			Contributions: weekly,
			Attestations:  attested,
			Payouts:       completed,
		},
		GrowthSignals: domain.GrowthSignals{
			NewResearchers:     len(researchers),
			ContributionGrowth: roundPercent(growth),
			EngagementRate:     roundPercent(engagement),
		},
		SystemHealth: ClassifyHealth(growth, engagement),
	}
}

// ContributionGrowth is the rounded week-over-week change in percent.
func ContributionGrowth(prior, current int) int {
	return roundPercent(contributionGrowth(prior, current))
}

func contributionGrowth(prior, current int) float64 {
	if prior > 0 {
		return float64(current-prior) / float64(prior) * 100
	}
	if current > 0 {
		return 100
	}
	return 0
}

// EngagementRate is the rounded share of attested contributions in percent.
func EngagementRate(attested, total int) int {
	return roundPercent(engagementRate(attested, total))
}

func engagementRate(attested, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(attested) / float64(total) * 100
}

// ClassifyHealth applies the rules in priority order: thriving, growing,
// declining, then stable.
func ClassifyHealth(growth, engagement float64) domain.SystemHealth {
	switch {
	case growth > 20 && engagement > 80:
		return domain.HealthThriving
	case growth > 0 && engagement > 60:
		return domain.HealthGrowing
	case growth < -20 || engagement < 40:
		return domain.HealthDeclining
	default:
		return domain.HealthStable
	}
}

// roundPercent rounds half up, so -2.5 becomes -2.
func roundPercent(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Dashboard derives the aggregate counters shown to operators.
func Dashboard(contributions []domain.Contribution, payouts []domain.Payout, now time.Time, rates Rates) domain.DashboardMetrics {
	week := clock.CurrentWeek(now)

	metrics := domain.DashboardMetrics{
		TotalContributions: len(contributions),
		ChainDistribution:  domain.ChainDistribution{},
	}
	for _, chain := range domain.SupportedChains {
		metrics.ChainDistribution[chain] = 0
	}

	active := map[int64]struct{}{}
	for _, c := range contributions {
		if week.Contains(c.Timestamp) {
			metrics.WeeklyContributions++
			active[c.ResearcherID] = struct{}{}
		}
		if c.Status == domain.ContributionPending || !c.Attested() {
			metrics.PendingAttestations++
		}
	}
	metrics.ActiveResearchers = len(active)

	for _, p := range payouts {
		if p.Status == domain.PayoutCompleted {
			metrics.ChainDistribution[p.Chain]++
		}
	}

	totalPaid := SumCompleted(payouts, nil)
	weeklyPaid := SumCompleted(payouts, func(p domain.Payout) bool { return week.Contains(p.Timestamp) })

	metrics.TotalPayouts = totalPaid.StringFixed(AmountPlaces)
	metrics.WeeklyPayouts = weeklyPaid.StringFixed(AmountPlaces)
	metrics.TotalValueFlow = ValueFlow(totalPaid, rates).StringFixed(USDPlaces)
	weeklyTVF := ValueFlow(weeklyPaid, rates)
	metrics.WeeklyValueFlow = weeklyTVF.StringFixed(USDPlaces)
	metrics.TargetProgress = TargetProgress(weeklyTVF, rates)
	return metrics
}

// ValueFlow converts a native amount into USD.
func ValueFlow(amount decimal.Decimal, rates Rates) decimal.Decimal {
	return amount.Mul(rates.USDPerUnit)
}

// TargetProgress is min(weeklyTVF / target, 100%) expressed in percent.
func TargetProgress(weeklyTVF decimal.Decimal, rates Rates) float64 {
	if !rates.WeeklyTargetUSD.IsPositive() {
		return 0
	}
	hundred := decimal.NewFromInt(100)
	progress := weeklyTVF.Div(rates.WeeklyTargetUSD).Mul(hundred)
	if progress.GreaterThan(hundred) {
		progress = hundred
	}
	return progress.Round(USDPlaces).InexactFloat64()
}

// Snapshot bundles both derived views computed from one consistent read.
type Snapshot struct {
	At        time.Time               `json:"at"`
	Dashboard domain.DashboardMetrics `json:"dashboard"`
	Ecology   domain.EcologicalSystem `json:"ecology"`
}

// MetricsService reads repository snapshots and derives dashboards. It holds
// no state of its own and may run alongside writers.
type MetricsService struct {
	contributions ports.ContributionRepository
	payouts       ports.PayoutRepository
	clock         clock.Clock
	rates         Rates
	metrics       *observability.LedgerMetrics
}

// NewMetricsService builds the read-only metrics engine.
func NewMetricsService(contributions ports.ContributionRepository, payouts ports.PayoutRepository, c clock.Clock, rates Rates, metrics *observability.LedgerMetrics) *MetricsService {
	if c == nil {
		c = clock.System{}
	}
	if rates.USDPerUnit.IsZero() {
		rates.USDPerUnit = DefaultUSDRate
	}
	if rates.WeeklyTargetUSD.IsZero() {
		rates.WeeklyTargetUSD = DefaultWeeklyTargetUSD
	}
	return &MetricsService{
		contributions: contributions,
		payouts:       payouts,
		clock:         c,
		rates:         rates,
		metrics:       metrics,
	}
}

// Snapshot computes the dashboard and the ecological system at the current instant.
func (m *MetricsService) Snapshot(ctx context.Context) (Snapshot, error) {
	contributions, err := m.contributions.ListContributions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list contributions: %w", err)
	}
	payouts, err := m.payouts.ListPayouts(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("list payouts: %w", err)
	}
	if err := checkAmounts(payouts); err != nil {
		return Snapshot{}, err
	}
	now := m.clock.Now()
	snap := Snapshot{
		At:        now.UTC(),
		Dashboard: Dashboard(contributions, payouts, now, m.rates),
		Ecology:   Ecology(contributions, payouts, now),
	}
	m.metrics.RecordEcology(snap.Ecology.SystemHealth.Score(), snap.Ecology.GrowthSignals.EngagementRate)
	return snap, nil
}

// Ecology returns only the ecological view.
func (m *MetricsService) Ecology(ctx context.Context) (domain.EcologicalSystem, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return domain.EcologicalSystem{}, err
	}
	return snap.Ecology, nil
}

// Dashboard returns only the dashboard view.
func (m *MetricsService) Dashboard(ctx context.Context) (domain.DashboardMetrics, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return domain.DashboardMetrics{}, err
	}
	return snap.Dashboard, nil
}

// Rates exposes the conversion constants in use.
func (m *MetricsService) Rates() Rates {
	return m.rates
}

// Now returns the instant snapshots are computed against.
func (m *MetricsService) Now() time.Time {
	return m.clock.Now()
}
