// Package metrics provides Prometheus metrics for vaultnode.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the Prometheus registry for all vaultnode metrics.
var Registry = prometheus.NewRegistry()

func init() {
	// Register standard Go metrics
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// VaultMetrics holds all Prometheus metrics for a vaultnode process.
// A nil *VaultMetrics is valid and records nothing.
type VaultMetrics struct {
	// Placement
	Votes     *prometheus.CounterVec   // vaultnode_votes_total{operation,signal}
	VoteValue *prometheus.HistogramVec // vaultnode_vote_value{operation}

	// Admission
	AdmissionRejections *prometheus.CounterVec // vaultnode_admission_rejections_total{reason}

	// Tier copies
	CopyBytes  *prometheus.CounterVec // vaultnode_copy_bytes_total{direction}
	CopyErrors *prometheus.CounterVec // vaultnode_copy_errors_total{kind}

	MkdirErrors prometheus.Counter // vaultnode_mkdir_errors_total

	// Vault usage, refreshed by the Collector
	VaultBytes *prometheus.GaugeVec // vaultnode_vault_bytes{resource,kind}
}

// New registers all metrics with reg. Passing nil uses Registry.
func New(reg prometheus.Registerer) *VaultMetrics {
	if reg == nil {
		reg = Registry
	}

	return &VaultMetrics{
		Votes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vaultnode_votes_total",
			Help: "Placement votes by operation and signal",
		}, []string{"operation", "signal"}),

		VoteValue: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vaultnode_vote_value",
			Help:    "Distribution of vote values by operation",
			Buckets: []float64{0, 0.25, 0.5, 1.0},
		}, []string{"operation"}),

		AdmissionRejections: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vaultnode_admission_rejections_total",
			Help: "Writes refused by the capacity policy",
		}, []string{"reason"}),

		CopyBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vaultnode_copy_bytes_total",
			Help: "Bytes copied between cache and archive tiers",
		}, []string{"direction"}),

		CopyErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "vaultnode_copy_errors_total",
			Help: "Failed tier copies by error kind",
		}, []string{"kind"}),

		MkdirErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "vaultnode_mkdir_errors_total",
			Help: "Directory provisioning failures",
		}),

		VaultBytes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "vaultnode_vault_bytes",
			Help: "Filesystem usage of each vault (kind=total|free|used)",
		}, []string{"resource", "kind"}),
	}
}

// ObserveVote records one placement decision.
func (m *VaultMetrics) ObserveVote(operation, signal string, vote float64) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues(operation, signal).Inc()
	m.VoteValue.WithLabelValues(operation).Observe(vote)
}

// AdmissionRejected counts a capacity rejection.
func (m *VaultMetrics) AdmissionRejected(reason string) {
	if m == nil {
		return
	}
	m.AdmissionRejections.WithLabelValues(reason).Inc()
}

// CopyDone records a finished tier copy. kind is empty on success.
func (m *VaultMetrics) CopyDone(direction string, n int64, kind string) {
	if m == nil {
		return
	}
	if n > 0 {
		m.CopyBytes.WithLabelValues(direction).Add(float64(n))
	}
	if kind != "" {
		m.CopyErrors.WithLabelValues(kind).Inc()
	}
}

// MkdirFailed counts a directory provisioning failure.
func (m *VaultMetrics) MkdirFailed() {
	if m == nil {
		return
	}
	m.MkdirErrors.Inc()
}

// SetVaultUsage updates the usage gauges for a resource.
func (m *VaultMetrics) SetVaultUsage(resource string, total, free int64) {
	if m == nil {
		return
	}
	m.VaultBytes.WithLabelValues(resource, "total").Set(float64(total))
	m.VaultBytes.WithLabelValues(resource, "free").Set(float64(free))
	m.VaultBytes.WithLabelValues(resource, "used").Set(float64(total - free))
}
