package locate

import "time"

// MetricsCollector receives locator events. The metrics package provides a
// Prometheus implementation.
type MetricsCollector interface {
	// RecordLocate is called once per located point, found or not
	RecordLocate(source Source, found bool, tested int, duration time.Duration)

	// RecordIndexQuery is called when a lookup falls through to the spatial
	// index, with the number of leaf candidates it produced
	RecordIndexQuery(candidates int)

	// RecordInversionFailure is called when a candidate's inverse mapping diverges
	RecordInversionFailure()

	// RecordRebuild is called after each Rebuild
	RecordRebuild(entries int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all events
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLocate(Source, bool, int, time.Duration) {}
func (NoopMetricsCollector) RecordIndexQuery(int)                          {}
func (NoopMetricsCollector) RecordInversionFailure()                       {}
func (NoopMetricsCollector) RecordRebuild(int, time.Duration, error)       {}
