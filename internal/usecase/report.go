package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CollectiveLedger/internal/domain"
	"CollectiveLedger/internal/ports"
)

// ReportService publishes the weekly ecological digest.
type ReportService struct {
	metrics  *MetricsService
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewReportService wires the metrics engine with an optional notifier.
func NewReportService(metrics *MetricsService, notifier ports.Notifier, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ReportService{metrics: metrics, notifier: notifier, logger: logger}
}

// Publish computes the current snapshot and pushes it to the notifier.
func (r *ReportService) Publish(ctx context.Context, trigger time.Time) error {
	if r.metrics == nil {
		return nil
	}

	snap, err := r.metrics.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("compute snapshot: %w", err)
	}

	r.logger.Info("weekly report",
		"trigger", trigger.Format(time.RFC3339),
		"health", snap.Ecology.SystemHealth,
		"growth", snap.Ecology.GrowthSignals.ContributionGrowth,
		"engagement", snap.Ecology.GrowthSignals.EngagementRate,
		"weekly_payouts", snap.Dashboard.WeeklyPayouts)

	if r.notifier == nil {
		return nil
	}
	if err := r.notifier.PublishDigest(ctx, BuildDigest(snap)); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}

// BuildDigest renders the snapshot as a Markdown message.
func BuildDigest(snap Snapshot) string {
	eco := snap.Ecology
	dash := snap.Dashboard

	var b strings.Builder
	fmt.Fprintf(&b, "*Collective weekly report* (%s)\n", snap.At.Format("2006-01-02"))
	fmt.Fprintf(&b, "Health: %s (%s)\n", eco.SystemHealth, eco.SystemHealth.Description())
	fmt.Fprintf(&b, "Contributions: %d, attested: %d, payouts: %d\n",
		eco.NutrientFlows.Contributions, eco.NutrientFlows.Attestations, eco.NutrientFlows.Payouts)
	fmt.Fprintf(&b, "Growth: %d%%, engagement: %d%%, researchers: %d\n",
		eco.GrowthSignals.ContributionGrowth, eco.GrowthSignals.EngagementRate, eco.GrowthSignals.NewResearchers)
	fmt.Fprintf(&b, "Paid this week: %s ($%s, %.0f%% of target)\n",
		dash.WeeklyPayouts, dash.WeeklyValueFlow, dash.TargetProgress)
	fmt.Fprintf(&b, "Pending attestations: %d\n", dash.PendingAttestations)
	for _, chain := range domain.SupportedChains {
		fmt.Fprintf(&b, "- %s: %d\n", chain, dash.ChainDistribution[chain])
	}
	return b.String()
}
