package walset

import "sync/atomic"

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus
// (see package metrics/prometheus).
type MetricsCollector interface {
	// RecordAddWal is called after each AddWal. err is nil if it was applied.
	RecordAddWal(err error)

	// RecordDeleteWal is called after each DeleteWal.
	RecordDeleteWal(err error)

	// RecordReset is called after each Reset.
	RecordReset()

	// RecordTracked reports the number of tracked WALs after a change.
	RecordTracked(n int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAddWal(error)    {}
func (NoopMetricsCollector) RecordDeleteWal(error) {}
func (NoopMetricsCollector) RecordReset()          {}
func (NoopMetricsCollector) RecordTracked(int)     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and tests without external dependencies.
type BasicMetricsCollector struct {
	AddCount     atomic.Int64
	AddErrors    atomic.Int64
	DeleteCount  atomic.Int64
	DeleteErrors atomic.Int64
	ResetCount   atomic.Int64
	Tracked      atomic.Int64
}

// RecordAddWal implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAddWal(err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordDeleteWal implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDeleteWal(err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordReset implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReset() {
	b.ResetCount.Add(1)
}

// RecordTracked implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTracked(n int) {
	b.Tracked.Store(int64(n))
}
