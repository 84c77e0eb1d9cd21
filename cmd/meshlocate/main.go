// Command meshlocate builds a generated mesh, indexes it and locates a cloud
// of random points, reporting how each lookup was resolved.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/notargets/DGLocate/export"
	"github.com/notargets/DGLocate/geometry"
	"github.com/notargets/DGLocate/locate"
	"github.com/notargets/DGLocate/mesh"
	"github.com/notargets/DGLocate/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := loadConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "meshlocate: %v\n", err)
		os.Exit(2)
	}
	logger := newLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, prometheus.DefaultRegisterer, os.Stdout); err != nil {
		logger.Error("meshlocate failed", "error", err)
		os.Exit(1)
	}
}

func buildForest(cfg config) (*mesh.Forest, error) {
	var (
		f   *mesh.Forest
		err error
	)
	switch cfg.Generator {
	case "ball":
		f, err = mesh.HyperBall(make(geometry.Point, cfg.Dim), 1, cfg.Order)
	default:
		f, err = mesh.HyperCube(cfg.Dim, 0, 1)
	}
	if err != nil {
		return nil, err
	}
	if err := f.RefineGlobal(cfg.Levels); err != nil {
		return nil, err
	}
	return f, nil
}

func run(ctx context.Context, cfg config, logger *slog.Logger, reg prometheus.Registerer, out io.Writer) error {
	f, err := buildForest(cfg)
	if err != nil {
		return fmt.Errorf("building mesh: %w", err)
	}
	fmt.Fprintln(out, f)

	m := metrics.NewMetrics(reg)
	l, err := locate.New(f,
		locate.WithTolerance(cfg.Tolerance),
		locate.WithLogger(logger),
		locate.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	if err := l.Rebuild(ctx); err != nil {
		return err
	}

	boxes := l.BoundingBoxes()
	bounds := boxes[0].Clone()
	for _, b := range boxes[1:] {
		bounds = geometry.Merge(bounds, b)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	points := make([]geometry.Point, cfg.Points)
	for i := range points {
		p := make(geometry.Point, cfg.Dim)
		for j := range p {
			p[j] = bounds.Min[j] + rng.Float64()*(bounds.Max[j]-bounds.Min[j])
		}
		points[i] = p
	}

	start := time.Now()
	results, err := l.LocateBatch(ctx, points)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	bySource := make(map[locate.Source]int)
	tested := 0
	for _, r := range results {
		bySource[r.Source]++
		tested += r.Tested
	}
	fmt.Fprintf(out, "Located %d points in %v\n", len(points), elapsed)
	for _, s := range []locate.Source{locate.SourceHint, locate.SourceIndex, locate.SourceFallback, locate.SourceNone} {
		fmt.Fprintf(out, "  %-9s %d\n", s, bySource[s])
	}
	if len(results) > 0 {
		fmt.Fprintf(out, "  cells tested per point: %.2f\n", float64(tested)/float64(len(results)))
	}

	if cfg.BoxesPath != "" {
		if err := writeBoxes(cfg.BoxesPath, f, l); err != nil {
			return fmt.Errorf("writing boxes: %w", err)
		}
		logger.Info("bounding boxes written", "path", cfg.BoxesPath, "boxes", len(boxes))
	}

	if cfg.MetricsAddr != "" {
		return serveMetrics(ctx, cfg.MetricsAddr, logger)
	}
	return nil
}

// writeBoxes exports every active cell box tagged with its refinement level
func writeBoxes(path string, f *mesh.Forest, l *locate.Locator) error {
	var out export.BoundingBoxDataOut
	if err := out.BuildPatches(l.BoundingBoxes()); err != nil {
		return err
	}
	active := l.ActiveCells()
	levels := make([][]float64, len(active))
	for i, h := range active {
		levels[i] = []float64{float64(f.Cell(h).Level)}
	}
	if err := out.AddDatasets(levels, []string{"level"}); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := out.WriteGnuplot(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
