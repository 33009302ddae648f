package prometheus

import (
	"github.com/hupe1980/walset"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

// Collector is the Prometheus implementation of walset.MetricsCollector.
type Collector struct {
	addTotal    *prometheus.CounterVec
	deleteTotal *prometheus.CounterVec
	resets      prometheus.Counter
	tracked     prometheus.Gauge
}

var _ walset.MetricsCollector = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
// A nil reg leaves the metrics unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		addTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walset_add_wal_total",
				Help: "Total number of WAL additions applied to the set by status",
			},
			[]string{"status"},
		),
		deleteTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "walset_delete_wal_total",
				Help: "Total number of WAL deletions applied to the set by status",
			},
			[]string{"status"},
		),
		resets: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "walset_resets_total",
				Help: "Total number of times the set was cleared",
			},
		),
		tracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "walset_tracked_wals",
				Help: "Number of WALs currently tracked by the set",
			},
		),
	}
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

// RecordAddWal counts an AddWal call.
func (c *Collector) RecordAddWal(err error) {
	c.addTotal.WithLabelValues(status(err)).Inc()
}

// RecordDeleteWal counts a DeleteWal call.
func (c *Collector) RecordDeleteWal(err error) {
	c.deleteTotal.WithLabelValues(status(err)).Inc()
}

// RecordReset counts a Reset call.
func (c *Collector) RecordReset() {
	c.resets.Inc()
}

// RecordTracked sets the number of tracked WALs.
func (c *Collector) RecordTracked(n int) {
	c.tracked.Set(float64(n))
}
