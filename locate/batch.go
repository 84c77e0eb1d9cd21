package locate

import (
	"context"
	"fmt"

	"github.com/notargets/DGLocate/geometry"
	"github.com/notargets/DGLocate/mesh"
	"github.com/notargets/DGLocate/partitions"
	"github.com/notargets/DGLocate/spatial"
	"golang.org/x/sync/errgroup"
)

const minBatchRun = 64

// LocateBatch locates many points, returning results in input order. Points
// are ordered along a Hilbert curve and split into runs, one worker per run,
// and each lookup is hinted with the cell found for the previous point of
// its run.
func (l *Locator) LocateBatch(ctx context.Context, points []geometry.Point) ([]Result, error) {
	for i, p := range points {
		if err := l.validate(p); err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
	}
	snap, err := l.current()
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return []Result{}, nil
	}

	keys := make([]uint64, len(points))
	for i, p := range points {
		keys[i] = spatial.HilbertKey(p, snap.bounds)
	}
	// Runs shorter than minBatchRun lose more to goroutine start-up than
	// they gain from parallelism
	runSize := max(minBatchRun, (len(points)+l.opts.parallelism-1)/l.opts.parallelism)
	layout, err := (&partitions.PartitionBuilder{
		NumItems:            len(points),
		TargetPartitionSize: runSize,
		Strategy:            partitions.SpaceFillingCurve,
		Keys:                keys,
	}).BuildPartitions()
	if err != nil {
		return nil, err
	}
	stats := layout.PartitionStatistics()

	results := make([]Result, len(points))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.parallelism)
	for _, part := range layout.Partitions {
		g.Go(func() error {
			hint := mesh.NoHandle
			for _, i := range part.Items {
				if err := gctx.Err(); err != nil {
					return err
				}
				res, err := l.LocateWithHint(points[i], hint)
				if err != nil {
					return fmt.Errorf("point %d: %w", i, err)
				}
				if res.Found {
					hint = res.Cell
				}
				results[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	found := 0
	for _, r := range results {
		if r.Found {
			found++
		}
	}
	l.opts.logger.DebugContext(ctx, "batch located",
		"points", len(points),
		"found", found,
		"partitions", stats.NumPartitions,
		"imbalance", stats.Imbalance,
	)
	return results, nil
}
