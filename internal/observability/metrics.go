package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// LedgerMetrics wraps collectors tracking the contribution and payout lifecycle.
type LedgerMetrics struct {
	submissions   *prometheus.CounterVec
	attestations  *prometheus.CounterVec
	payoutStatus  *prometheus.CounterVec
	payoutLatency *prometheus.HistogramVec
	systemHealth  prometheus.Gauge
	engagement    prometheus.Gauge
}

// Ledger exposes the lazily registered metrics for the ledger service.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collective",
				Subsystem: "ledger",
				Name:      "submissions_total",
				Help:      "Contribution submissions segmented by outcome.",
			}, []string{"outcome"}),
			attestations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collective",
				Subsystem: "ledger",
				Name:      "attestations_total",
				Help:      "Attestation attempts segmented by outcome.",
			}, []string{"outcome"}),
			payoutStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "collective",
				Subsystem: "ledger",
				Name:      "payout_transitions_total",
				Help:      "Payout state transitions segmented by chain and target status.",
			}, []string{"chain", "status"}),
			payoutLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "collective",
				Subsystem: "ledger",
				Name:      "payout_latency_seconds",
				Help:      "Latency distribution of payment service calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"chain", "outcome"}),
			systemHealth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "collective",
				Subsystem: "ecology",
				Name:      "system_health",
				Help:      "Last computed health: 0 declining, 1 stable, 2 growing, 3 thriving.",
			}),
			engagement: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "collective",
				Subsystem: "ecology",
				Name:      "engagement_rate_percent",
				Help:      "Share of weekly contributions carrying an attestation.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.submissions,
			ledgerRegistry.attestations,
			ledgerRegistry.payoutStatus,
			ledgerRegistry.payoutLatency,
			ledgerRegistry.systemHealth,
			ledgerRegistry.engagement,
		)
	})
	return ledgerRegistry
}

// RecordSubmission counts a submission outcome (accepted, rejected).
func (m *LedgerMetrics) RecordSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(label(outcome)).Inc()
}

// RecordAttestation counts an attestation outcome (verified, failed, skipped).
func (m *LedgerMetrics) RecordAttestation(outcome string) {
	if m == nil {
		return
	}
	m.attestations.WithLabelValues(label(outcome)).Inc()
}

// RecordPayoutTransition counts a payout entering status on chain.
func (m *LedgerMetrics) RecordPayoutTransition(chain, status string) {
	if m == nil {
		return
	}
	m.payoutStatus.WithLabelValues(label(chain), label(status)).Inc()
}

// ObservePayment records how long the payment service took.
func (m *LedgerMetrics) ObservePayment(chain, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.payoutLatency.WithLabelValues(label(chain), label(outcome)).Observe(d.Seconds())
}

// RecordEcology publishes the last computed health score and engagement rate.
func (m *LedgerMetrics) RecordEcology(healthScore float64, engagementRate int) {
	if m == nil {
		return
	}
	m.systemHealth.Set(healthScore)
	m.engagement.Set(float64(engagementRate))
}

func label(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "unspecified"
	}
	return value
}
