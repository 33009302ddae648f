// Package prometheus exports walset.Set metrics to Prometheus.
//
//	reg := prometheus.NewRegistry()
//	set := walset.New(walset.WithMetricsCollector(walsetprom.NewCollector(reg)))
package prometheus
