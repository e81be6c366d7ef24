package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/vaultnode/vaultnode/internal/capacity"
	"github.com/vaultnode/vaultnode/internal/resource"
)

// UsageSource reports filesystem usage for a vault path.
type UsageSource interface {
	FreeBytes(storageRoot string) (capacity.Usage, error)
}

// Collector periodically refreshes vault usage gauges.
type Collector struct {
	metrics *VaultMetrics
	usage   UsageSource
	nodes   func() []resource.Node
	logger  zerolog.Logger
}

// NewCollector creates a new metrics collector. nodes is called on every
// collection so that a reloaded configuration is picked up.
func NewCollector(m *VaultMetrics, usage UsageSource, nodes func() []resource.Node, logger zerolog.Logger) *Collector {
	return &Collector{
		metrics: m,
		usage:   usage,
		nodes:   nodes,
		logger:  logger.With().Str("component", "metrics").Logger(),
	}
}

// Collect updates all metrics from the current state.
func (c *Collector) Collect() {
	for _, node := range c.nodes() {
		usage, err := c.usage.FreeBytes(node.VaultPath)
		if err != nil {
			c.logger.Warn().Err(err).Str("resource", node.Name).Msg("vault usage unavailable")
			continue
		}
		c.metrics.SetVaultUsage(node.Name, usage.Total, usage.Free)
	}
}

// DefaultCollectInterval is used when Run is given a non-positive interval.
const DefaultCollectInterval = 15 * time.Second

// Run collects metrics at the given interval until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Collect immediately on start
	c.Collect()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// WriteTextfile writes every metric in g to path in the Prometheus text format,
// for pickup by a node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if g == nil {
		g = Registry
	}
	return prometheus.WriteToTextfile(path, g)
}
