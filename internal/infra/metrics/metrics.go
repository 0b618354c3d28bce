// Package metrics provides Prometheus metrics for GridMesh — gauges and
// counters for the task registry, result delivery, sessions, trust, and
// payments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Task Registry ──────────────────────────────────────────────────────────

// KnownTasks tracks headers currently held in the registry.
var KnownTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmesh",
	Name:      "known_tasks",
	Help:      "Task advertisements currently known to this node.",
})

// SupportedTasks tracks headers this node could compute.
var SupportedTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmesh",
	Name:      "supported_tasks",
	Help:      "Known tasks matching this node's capabilities.",
})

// TasksExpired tracks headers removed by TTL expiry.
var TasksExpired = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "tasks_expired_total",
	Help:      "Total task headers removed after TTL expiry.",
})

// ─── Result Delivery ────────────────────────────────────────────────────────

// ResultsPending tracks computed results awaiting delivery.
var ResultsPending = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmesh",
	Name:      "results_pending",
	Help:      "Computed results waiting to be delivered to their owner.",
})

// ResultsDelivered tracks acknowledged result deliveries.
var ResultsDelivered = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "results_delivered_total",
	Help:      "Total results delivered and acknowledged.",
})

// ResultRetries tracks failed delivery attempts that were re-queued.
var ResultRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "result_retries_total",
	Help:      "Total result delivery attempts that failed and backed off.",
})

// ─── Sessions ───────────────────────────────────────────────────────────────

// SessionFailures tracks outbound connection failures by request kind.
var SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "session_failures_total",
	Help:      "Total outbound session failures by kind.",
}, []string{"kind"})

// ─── Trust ──────────────────────────────────────────────────────────────────

// TrustAdjustments tracks trust deltas forwarded to the reputation sink.
var TrustAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "trust_adjustments_total",
	Help:      "Total trust adjustments by role and direction.",
}, []string{"role", "direction"})

// ─── Payments ───────────────────────────────────────────────────────────────

// PaymentsSettled tracks settled ledger transactions by type.
var PaymentsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridmesh",
	Name:      "payments_settled_total",
	Help:      "Total settled payment transactions by type.",
}, []string{"type"})

// PaymentBalance tracks the current node balance.
var PaymentBalance = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "gridmesh",
	Name:      "payment_balance_current",
	Help:      "Current node payment balance.",
})
