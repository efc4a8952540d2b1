package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics counts money movements and anomalies across the ledger.
type LedgerMetrics struct {
	settlements   *prometheus.CounterVec
	payouts       *prometheus.CounterVec
	conflicts     *prometheus.CounterVec
	discrepancies *prometheus.CounterVec
	reviewItems   *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger counters on reg. A nil registerer
// yields a no-op recorder.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "settlements_total",
			Help:      "Order settlements processed, by result (recorded, duplicate, rejected).",
		}, []string{"result"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "payouts_total",
			Help:      "Payout transitions, by resulting status.",
		}, []string{"status"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "balance_conflicts_total",
			Help:      "Optimistic lock conflicts on vendor balances, by operation.",
		}, []string{"operation"}),
		discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "reconciliation_discrepancies_total",
			Help:      "Discrepancies found by ledger reconciliation, by check.",
		}, []string{"check"}),
		reviewItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "review_items_total",
			Help:      "Items queued for operator review, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.settlements, m.payouts, m.conflicts, m.discrepancies, m.reviewItems)
	return m
}

func (m *LedgerMetrics) IncSettlement(result string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *LedgerMetrics) IncPayout(status string) {
	if m == nil || m.payouts == nil {
		return
	}
	m.payouts.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *LedgerMetrics) IncConflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) IncDiscrepancy(check string) {
	if m == nil || m.discrepancies == nil {
		return
	}
	m.discrepancies.WithLabelValues(normalizeLabel(check)).Inc()
}

func (m *LedgerMetrics) IncReviewItem(kind string) {
	if m == nil || m.reviewItems == nil {
		return
	}
	m.reviewItems.WithLabelValues(normalizeLabel(kind)).Inc()
}
