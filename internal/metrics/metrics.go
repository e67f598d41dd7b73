// Package metrics exposes the master's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MMLFragmentsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "master_mml_fragments_open",
		Help: "Number of MML fragments opened by writers created in this process.",
	})

	MMLWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "master_mml_writes_total",
		Help: "Total MML entries written, by kind (state, removal).",
	}, []string{"kind"})

	MMLWriteDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "master_mml_write_duration_seconds",
		Help: "Latency of a single MML append-and-flush.",
	})

	OperationsLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "master_operations_live",
		Help: "Number of live operations in the dependency graph.",
	})

	OperationsBlocked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "master_operations_blocked",
		Help: "Number of live operations currently blocked.",
	})

	OperationExecDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "master_operation_execute_duration_seconds",
		Help: "Duration of a single execute() call, by operation type.",
	}, []string{"type"})

	OperationsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "master_operations_completed_total",
		Help: "Total operations completed, by type and outcome.",
	}, []string{"type", "outcome"})

	ResponseManagerSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "master_response_manager_size",
		Help: "Number of completed operations retained by the response manager.",
	})

	RegistryConnectedServers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "master_registry_connected_servers",
		Help: "Number of currently connected range servers.",
	})

	RangeServerRPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "master_rangeserver_rpc_duration_seconds",
		Help: "Latency of outbound range-server RPCs, by method.",
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(
		MMLFragmentsOpen,
		MMLWritesTotal,
		MMLWriteDuration,
		OperationsLive,
		OperationsBlocked,
		OperationExecDuration,
		OperationsCompletedTotal,
		ResponseManagerSize,
		RegistryConnectedServers,
		RangeServerRPCDuration,
	)
}

// Handler returns the HTTP handler serving the prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall time and records it against a histogram on
// ObserveDuration.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

func (t *Timer) ObserveDuration(h prometheus.Histogram) {
	h.Observe(t.Duration().Seconds())
}

func (t *Timer) ObserveDurationVec(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(t.Duration().Seconds())
}
