// Package metrics exports relayz pipeline and registry activity to Prometheus.
//
// Pipelines publish events through hooks; Registry.Observe subscribes to them
// and turns each event into Prometheus counters and histograms labeled by
// pipeline and stage. Stage registries keep their own metricz counters, which
// RegistryCollector reports at scrape time.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//	_ = m.Observe(pipeline)
//	reg.MustRegister(metrics.NewRegistryCollector("stages", stages))
package metrics
