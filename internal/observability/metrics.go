// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	CyclesSkipped *prometheus.CounterVec

	// Evaluation metrics
	Evaluations      *prometheus.CounterVec
	FailedThresholds *prometheus.CounterVec

	// Execution metrics
	Fills             *prometheus.CounterVec
	ExecutionFailures *prometheus.CounterVec
	VenueLatency      *prometheus.HistogramVec

	// Position metrics
	Exits         *prometheus.CounterVec
	OpenPositions *prometheus.GaugeVec
	StalePrices   prometheus.Counter

	// Ledger metrics
	AvailableBalance *prometheus.GaugeVec
	RealizedPnL      *prometheus.CounterVec
	LedgerErrors     *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "solana_trade_agent"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycles_total",
			Help:      "Trading cycles by final status",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycle_duration_seconds",
			Help:      "Trading cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		CyclesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loop",
			Name:      "cycles_skipped_total",
			Help:      "Cycles skipped before starting, by reason",
		}, []string{"reason"}),

		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "evaluations_total",
			Help:      "Token evaluations by outcome",
		}, []string{"outcome"}),
		FailedThresholds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "failed_thresholds_total",
			Help:      "Threshold failures by threshold name",
		}, []string{"threshold"}),

		Fills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "fills_total",
			Help:      "Recorded fills by side and mode",
		}, []string{"side", "mode"}),
		ExecutionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "failures_total",
			Help:      "Execution failures by side and kind",
		}, []string{"side", "kind"}),
		VenueLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "fill_latency_seconds",
			Help:      "Time to obtain a fill in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),

		Exits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "exits_total",
			Help:      "Fired exits by reason and result",
		}, []string{"reason", "result"}),
		OpenPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "open_positions",
			Help:      "Open positions by mode",
		}, []string{"mode"}),
		StalePrices: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "stale_prices_total",
			Help:      "Positions carried forward without a fresh price",
		}),

		AvailableBalance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "available_balance",
			Help:      "Available capital by mode",
		}, []string{"mode"}),
		RealizedPnL: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "realized_pnl_abs_total",
			Help:      "Absolute realized P&L by mode and sign",
		}, []string{"mode", "sign"}),
		LedgerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "errors_total",
			Help:      "Ledger failures by operation",
		}, []string{"op"}),

		LastSuccessfulCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last completed cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordCycle records a finished cycle.
func RecordCycle(status string, seconds float64, finishedUnix int64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(status).Inc()
	DefaultMetrics.CycleDuration.Observe(seconds)
	if status == "completed" {
		DefaultMetrics.LastSuccessfulCycle.Set(float64(finishedUnix))
	}
}

// RecordCycleSkipped records a cycle that never started.
func RecordCycleSkipped(reason string) {
	DefaultMetrics.CyclesSkipped.WithLabelValues(reason).Inc()
}

// RecordEvaluation records one evaluation and its failing thresholds.
func RecordEvaluation(accepted bool, failing []string) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	DefaultMetrics.Evaluations.WithLabelValues(outcome).Inc()
	for _, name := range failing {
		DefaultMetrics.FailedThresholds.WithLabelValues(name).Inc()
	}
}

// RecordFill records a committed fill.
func RecordFill(side, mode string, latencySeconds float64) {
	DefaultMetrics.Fills.WithLabelValues(side, mode).Inc()
	DefaultMetrics.VenueLatency.WithLabelValues(mode).Observe(latencySeconds)
}

// RecordExecutionFailure records a failed buy or sell.
func RecordExecutionFailure(side, kind string) {
	DefaultMetrics.ExecutionFailures.WithLabelValues(side, kind).Inc()
}

// RecordExit records a fired exit and whether its sell succeeded.
func RecordExit(reason string, ok bool) {
	result := "filled"
	if !ok {
		result = "failed"
	}
	DefaultMetrics.Exits.WithLabelValues(reason, result).Inc()
}

// RecordStalePrice records a position carried forward for lack of a price.
func RecordStalePrice() {
	DefaultMetrics.StalePrices.Inc()
}

// UpdateOpenPositions sets the open position gauge of mode.
func UpdateOpenPositions(mode string, n int) {
	DefaultMetrics.OpenPositions.WithLabelValues(mode).Set(float64(n))
}

// UpdateBalance sets the available balance gauge of mode.
func UpdateBalance(mode string, available float64) {
	DefaultMetrics.AvailableBalance.WithLabelValues(mode).Set(available)
}

// RecordRealizedPnL adds a realized gain or loss.
func RecordRealizedPnL(mode string, pnl float64) {
	if pnl >= 0 {
		DefaultMetrics.RealizedPnL.WithLabelValues(mode, "gain").Add(pnl)
		return
	}
	DefaultMetrics.RealizedPnL.WithLabelValues(mode, "loss").Add(-pnl)
}

// RecordLedgerError records a ledger failure.
func RecordLedgerError(op string) {
	DefaultMetrics.LedgerErrors.WithLabelValues(op).Inc()
}
