package locate

import (
	"log/slog"
	"runtime"

	"github.com/notargets/DGLocate/element"
	"github.com/notargets/DGLocate/spatial"
)

type options struct {
	tolerance      float64
	newton         element.NewtonConfig
	nodeSize       int
	indexAncestors bool
	parallelism    int
	logger         *slog.Logger
	metrics        MetricsCollector
}

func defaultOptions() options {
	return options{
		tolerance:   1e-10,
		newton:      element.DefaultNewton,
		nodeSize:    spatial.DefaultNodeSize,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      slog.New(slog.DiscardHandler),
		metrics:     NoopMetricsCollector{},
	}
}

// Option configures a Locator
type Option func(*options)

// WithTolerance sets the containment tolerance in reference coordinates.
// A point is inside a cell when every reference coordinate lies in
// [-tol, 1+tol]. Index queries grow boxes by tol times the largest cell
// diameter.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

// WithMaxNewtonIterations bounds the inverse mapping solve for non-affine cells
func WithMaxNewtonIterations(n int) Option {
	return func(o *options) {
		o.newton.MaxIterations = n
	}
}

// WithNewtonTolerance sets the inverse mapping residual tolerance relative to the cell diameter
func WithNewtonTolerance(tol float64) Option {
	return func(o *options) {
		o.newton.Tolerance = tol
	}
}

// WithNodeSize sets the fan-out of the packed spatial index
func WithNodeSize(n int) Option {
	return func(o *options) {
		o.nodeSize = n
	}
}

// WithIndexAncestors also indexes refined cells. Their entries are discarded
// at query time, so results are unchanged; this exists to exercise the
// parent/child overlap handling.
func WithIndexAncestors(enabled bool) Option {
	return func(o *options) {
		o.indexAncestors = enabled
	}
}

// WithParallelism bounds the workers used by Rebuild and LocateBatch.
// Values below 1 select GOMAXPROCS.
func WithParallelism(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = runtime.GOMAXPROCS(0)
		}
		o.parallelism = n
	}
}

// WithLogger sets the logger, nil restores the discarding default
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l == nil {
			l = slog.New(slog.DiscardHandler)
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector, nil restores the no-op collector
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}
