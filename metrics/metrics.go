package metrics

import (
	"net/http"
	"time"

	"github.com/notargets/DGLocate/locate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a locate.MetricsCollector backed by Prometheus collectors
type Metrics struct {
	LocateTotal       *prometheus.CounterVec
	LocateDurationUs  prometheus.Histogram
	CellsTested       prometheus.Histogram
	IndexQueriesTotal prometheus.Counter
	IndexCandidates   prometheus.Histogram
	InversionFailures prometheus.Counter
	RebuildsTotal     *prometheus.CounterVec
	RebuildDurationMs prometheus.Histogram
	IndexEntries      prometheus.Gauge
}

var _ locate.MetricsCollector = (*Metrics)(nil)

// NewMetrics creates the locator collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LocateTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshlocate_locate_total",
			Help: "Total point lookups by the phase that resolved them",
		}, []string{"source", "found"}),
		LocateDurationUs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshlocate_locate_duration_us",
			Help:    "Point lookup duration in microseconds",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000},
		}),
		CellsTested: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshlocate_cells_tested",
			Help:    "Cells whose mapping was inverted per lookup",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		IndexQueriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshlocate_index_queries_total",
			Help: "Total lookups that fell through to the spatial index",
		}),
		IndexCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshlocate_index_candidates",
			Help:    "Leaf candidates returned per index query",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
		}),
		InversionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meshlocate_inversion_failures_total",
			Help: "Total inverse mappings that failed to converge",
		}),
		RebuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshlocate_rebuilds_total",
			Help: "Total index rebuilds by status",
		}, []string{"status"}),
		RebuildDurationMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "meshlocate_rebuild_duration_ms",
			Help:    "Index rebuild duration in milliseconds",
			Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 5000},
		}),
		IndexEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meshlocate_index_entries",
			Help: "Entries in the published spatial index",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.LocateTotal,
			m.LocateDurationUs,
			m.CellsTested,
			m.IndexQueriesTotal,
			m.IndexCandidates,
			m.InversionFailures,
			m.RebuildsTotal,
			m.RebuildDurationMs,
			m.IndexEntries,
		)
	}
	return m
}

func (m *Metrics) RecordLocate(source locate.Source, found bool, tested int, duration time.Duration) {
	status := "false"
	if found {
		status = "true"
	}
	m.LocateTotal.WithLabelValues(source.String(), status).Inc()
	m.LocateDurationUs.Observe(float64(duration.Microseconds()))
	m.CellsTested.Observe(float64(tested))
}

func (m *Metrics) RecordIndexQuery(candidates int) {
	m.IndexQueriesTotal.Inc()
	m.IndexCandidates.Observe(float64(candidates))
}

func (m *Metrics) RecordInversionFailure() {
	m.InversionFailures.Inc()
}

func (m *Metrics) RecordRebuild(entries int, duration time.Duration, err error) {
	if err != nil {
		m.RebuildsTotal.WithLabelValues("error").Inc()
		return
	}
	m.RebuildsTotal.WithLabelValues("ok").Inc()
	m.RebuildDurationMs.Observe(float64(duration.Milliseconds()))
	m.IndexEntries.Set(float64(entries))
}

// Handler exposes the metrics registered with the default registry
func Handler() http.Handler { return promhttp.Handler() }
