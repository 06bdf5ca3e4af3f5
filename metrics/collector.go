package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/relayz"
)

// RegistryCollector reports the metricz counters of a relayz.Registry at
// scrape time.
type RegistryCollector struct {
	registry *relayz.Registry
	lookups  *prometheus.Desc
	misses   *prometheus.Desc
	failures *prometheus.Desc
	entries  *prometheus.Desc
}

// NewRegistryCollector creates a collector for registry. The name becomes the
// "registry" label on every series.
func NewRegistryCollector(name string, registry *relayz.Registry) *RegistryCollector {
	labels := prometheus.Labels{"registry": name}
	return &RegistryCollector{
		registry: registry,
		lookups: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "lookups_total"),
			"Total number of stage lookups", nil, labels,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "misses_total"),
			"Total number of lookups for unknown stages", nil, labels,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "factory_errors_total"),
			"Total number of stage factories that failed", nil, labels,
		),
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "registry", "entries"),
			"Number of registered stages", nil, labels,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RegistryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lookups
	ch <- c.misses
	ch <- c.failures
	ch <- c.entries
}

// Collect implements prometheus.Collector.
func (c *RegistryCollector) Collect(ch chan<- prometheus.Metric) {
	m := c.registry.Metrics()
	ch <- prometheus.MustNewConstMetric(c.lookups, prometheus.CounterValue, m.Counter(relayz.RegistryLookupsTotal).Value())
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, m.Counter(relayz.RegistryMissesTotal).Value())
	ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, m.Counter(relayz.RegistryFactoryErrorsTotal).Value())
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, m.Gauge(relayz.RegistryEntries).Value())
}
