package locate

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/notargets/DGLocate/element"
	"github.com/notargets/DGLocate/geometry"
	"github.com/notargets/DGLocate/mesh"
	"github.com/notargets/DGLocate/partitions"
	"github.com/notargets/DGLocate/spatial"
	"golang.org/x/sync/errgroup"
)

// Source records which search phase produced a result
type Source uint8

const (
	SourceNone     Source = iota // Not found
	SourceHint                   // Hinted cell or one of its neighbors
	SourceIndex                  // Spatial index candidate
	SourceFallback               // Hierarchical walk from the roots
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceHint:
		return "hint"
	case SourceIndex:
		return "index"
	case SourceFallback:
		return "fallback"
	}
	return fmt.Sprintf("Source(%d)", uint8(s))
}

// Result is the outcome of locating one point. When Found is false the point
// lies outside every cell within tolerance and Distance is the smallest
// distance from the point to any cell examined.
type Result struct {
	Found     bool
	Cell      mesh.Handle
	Reference geometry.Point // Clamped to the closed reference cell
	Source    Source
	Distance  float64
	Tested    int // Cells whose mapping was inverted
}

// snapshot is everything a query needs, published atomically by Rebuild
type snapshot struct {
	forest     *mesh.Forest
	generation uint64
	index      *spatial.Index // Nil for a walk-only snapshot
	leaves     *roaring.Bitmap
	active     []mesh.Handle
	boxes      []geometry.BoundingBox // Per handle, the cell's own box
	treeBoxes  []geometry.BoundingBox // Per handle, merged over the leaves below the cell
	bounds     geometry.BoundingBox
	boxEps     float64
}

// Locator finds the active cell of a forest containing a point. Queries are
// safe for concurrent use and may run while Rebuild publishes a new snapshot.
// The forest must not be refined while a Rebuild or query is running, and
// queries after refinement need a Rebuild first. Before the first Rebuild
// queries fall back to walking the forest.
type Locator struct {
	forest *mesh.Forest
	opts   options
	snap   atomic.Pointer[snapshot]
	bare   atomic.Pointer[snapshot] // Walk-only snapshot used before the first Rebuild
}

// New creates a locator for the forest. No index is built until Rebuild.
func New(forest *mesh.Forest, opts ...Option) (*Locator, error) {
	if forest == nil {
		return nil, fmt.Errorf("%w: nil forest", ErrInvalidInput)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if !(o.tolerance >= 0) || math.IsInf(o.tolerance, 1) {
		return nil, fmt.Errorf("%w: tolerance %g", ErrInvalidInput, o.tolerance)
	}
	if o.newton.MaxIterations < 1 || !(o.newton.Tolerance > 0) {
		return nil, fmt.Errorf("%w: newton iterations %d tolerance %g",
			ErrInvalidInput, o.newton.MaxIterations, o.newton.Tolerance)
	}
	if o.nodeSize < 2 {
		return nil, fmt.Errorf("%w: node size %d", ErrInvalidInput, o.nodeSize)
	}
	return &Locator{forest: forest, opts: o}, nil
}

// Rebuild computes every cell box in parallel, packs a new spatial index and
// publishes it. Concurrent queries see either the old or the new snapshot.
func (l *Locator) Rebuild(ctx context.Context) error {
	start := time.Now()
	snap, err := l.build(ctx, true)
	entries := 0
	if snap != nil {
		entries = snap.index.Len()
	}
	l.opts.metrics.RecordRebuild(entries, time.Since(start), err)
	if err != nil {
		l.opts.logger.ErrorContext(ctx, "rebuild failed", "error", err)
		return err
	}
	l.snap.Store(snap)
	l.bare.Store(nil)
	l.opts.logger.InfoContext(ctx, "rebuild completed",
		"cells", l.forest.Len(),
		"active", len(snap.active),
		"entries", entries,
		"generation", snap.generation,
		"duration", time.Since(start),
	)
	return nil
}

// build computes the boxes of every cell and, when withIndex is set, packs
// the spatial index over them
func (l *Locator) build(ctx context.Context, withIndex bool) (*snapshot, error) {
	f := l.forest
	n := f.Len()
	// Curved cells cost more than affine ones and cluster in handle order,
	// so they are dealt out cyclically
	layout, err := (&partitions.PartitionBuilder{
		NumItems:      n,
		NumPartitions: l.opts.parallelism,
		Strategy:      partitions.RoundRobin,
	}).BuildPartitions()
	if err != nil {
		return nil, err
	}

	boxes := make([]geometry.BoundingBox, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.parallelism)
	for _, part := range layout.Partitions {
		g.Go(func() error {
			for _, i := range part.Items {
				if err := gctx.Err(); err != nil {
					return err
				}
				c := f.Cell(mesh.Handle(i))
				box := c.Mapping.BoundingBox()
				if !box.Valid() || !box.Min.IsFinite() || !box.Max.IsFinite() {
					return fmt.Errorf("cell %d has invalid bounding box %s", i, box)
				}
				boxes[i] = box
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("computing cell boxes: %w", err)
	}

	// Children always follow their parent in the arena, and a refined cell
	// is covered by its children
	treeBoxes := make([]geometry.BoundingBox, n)
	for i := n - 1; i >= 0; i-- {
		children := f.Cell(mesh.Handle(i)).Children
		if len(children) == 0 {
			treeBoxes[i] = boxes[i]
			continue
		}
		treeBoxes[i] = treeBoxes[children[0]].Clone()
		for _, ch := range children[1:] {
			treeBoxes[i] = geometry.Merge(treeBoxes[i], treeBoxes[ch])
		}
	}

	snap := &snapshot{
		forest:     f,
		generation: f.Generation(),
		leaves:     roaring.New(),
		active:     f.ActiveCells(),
		boxes:      boxes,
		treeBoxes:  treeBoxes,
	}
	var hmax float64
	entries := make([]spatial.Entry, 0, n)
	for i := 0; i < n; i++ {
		h := mesh.Handle(i)
		c := f.Cell(h)
		if c.Active() {
			snap.leaves.Add(uint32(h))
			hmax = math.Max(hmax, c.Mapping.Diameter())
			entries = append(entries, spatial.Entry{Box: boxes[i], Handle: i})
		} else if l.opts.indexAncestors {
			entries = append(entries, spatial.Entry{Box: treeBoxes[i], Handle: i})
		}
	}
	snap.boxEps = l.opts.tolerance * hmax
	for i, r := range f.Roots() {
		if i == 0 {
			snap.bounds = treeBoxes[r].Clone()
		} else {
			snap.bounds = geometry.Merge(snap.bounds, treeBoxes[r])
		}
	}

	if !withIndex {
		return snap, nil
	}
	snap.index, err = spatial.Build(entries, spatial.WithNodeSize(l.opts.nodeSize))
	if err != nil {
		return nil, fmt.Errorf("building spatial index: %w", err)
	}
	return snap, nil
}

// current returns the published snapshot. Before the first Rebuild it
// returns a walk-only snapshot of the forest, rebuilt whenever the forest
// generation moves.
func (l *Locator) current() (*snapshot, error) {
	if snap := l.snap.Load(); snap != nil {
		if len(snap.active) == 0 {
			return nil, ErrEmptyIndex
		}
		return snap, nil
	}
	if l.forest.NumActive() == 0 {
		return nil, ErrEmptyIndex
	}
	if bare := l.bare.Load(); bare != nil && bare.generation == l.forest.Generation() {
		return bare, nil
	}
	bare, err := l.build(context.Background(), false)
	if err != nil {
		return nil, err
	}
	l.bare.Store(bare)
	l.opts.logger.Warn("locating without a spatial index until Rebuild",
		"active", len(bare.active),
		"generation", bare.generation,
	)
	return bare, nil
}

// Stale reports whether the forest changed since the published snapshot was
// built. Locate does not check this.
func (l *Locator) Stale() bool {
	snap := l.snap.Load()
	return snap == nil || snap.generation != l.forest.Generation()
}

// BoundingBoxes returns the boxes of the active cells of the published
// snapshot in ascending handle order, nil before the first Rebuild
func (l *Locator) BoundingBoxes() []geometry.BoundingBox {
	snap := l.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]geometry.BoundingBox, len(snap.active))
	for i, h := range snap.active {
		out[i] = snap.boxes[h].Clone()
	}
	return out
}

// ActiveCells returns the active handles of the published snapshot, in the
// order used by BoundingBoxes
func (l *Locator) ActiveCells() []mesh.Handle {
	snap := l.snap.Load()
	if snap == nil {
		return nil
	}
	return slices.Clone(snap.active)
}

// Locate finds the active cell containing p
func (l *Locator) Locate(p geometry.Point) (Result, error) {
	return l.LocateWithHint(p, mesh.NoHandle)
}

// LocateWithHint finds the active cell containing p, testing the hinted cell
// and its neighbors before querying the index. Hints that are not active
// cells are ignored.
func (l *Locator) LocateWithHint(p geometry.Point, hint mesh.Handle) (Result, error) {
	start := time.Now()
	if err := l.validate(p); err != nil {
		return Result{Cell: mesh.NoHandle}, err
	}
	snap, err := l.current()
	if err != nil {
		return Result{Cell: mesh.NoHandle}, err
	}

	q := &query{
		snap:    snap,
		opts:    &l.opts,
		p:       p,
		tested:  roaring.New(),
		nearest: math.Inf(1),
	}
	res := q.run(hint)
	l.opts.metrics.RecordLocate(res.Source, res.Found, res.Tested, time.Since(start))
	if res.Source == SourceFallback {
		l.opts.logger.Debug("point located by fallback walk", "point", p, "cell", res.Cell)
	}
	return res, nil
}

func (l *Locator) validate(p geometry.Point) error {
	if len(p) != l.forest.Dim() {
		return fmt.Errorf("%w: point %v has dimension %d, forest is %dD",
			ErrInvalidInput, p, len(p), l.forest.Dim())
	}
	if !p.IsFinite() {
		return fmt.Errorf("%w: point %v is not finite", ErrInvalidInput, p)
	}
	return nil
}

// query carries the state of a single lookup
type query struct {
	snap    *snapshot
	opts    *options
	p       geometry.Point
	tested  *roaring.Bitmap
	count   int
	nearest float64
}

func (q *query) run(hint mesh.Handle) Result {
	if hint != mesh.NoHandle && hint >= 0 && q.snap.leaves.Contains(uint32(hint)) {
		candidates := append([]mesh.Handle{hint}, q.snap.forest.Cell(hint).Neighbors...)
		for _, h := range candidates {
			if ref, ok := q.test(h); ok {
				return q.found(h, ref, SourceHint)
			}
		}
	}

	if q.snap.index != nil {
		if h, ref, ok := q.searchIndex(); ok {
			return q.found(h, ref, SourceIndex)
		}
	}

	if h, ref, ok := q.walk(); ok {
		return q.found(h, ref, SourceFallback)
	}

	return Result{
		Cell:     mesh.NoHandle,
		Source:   SourceNone,
		Distance: q.nearest,
		Tested:   q.count,
	}
}

func (q *query) found(h mesh.Handle, ref geometry.Point, src Source) Result {
	return Result{
		Found:     true,
		Cell:      h,
		Reference: element.ClampToReference(ref),
		Source:    src,
		Tested:    q.count,
	}
}

// searchIndex verifies leaf candidates from the index, smallest box first
func (q *query) searchIndex() (mesh.Handle, geometry.Point, bool) {
	type candidate struct {
		h   mesh.Handle
		vol float64
	}
	var cands []candidate
	for e := range q.snap.index.Query(q.p, q.snap.boxEps) {
		h := mesh.Handle(e.Handle)
		if !q.snap.leaves.Contains(uint32(h)) || q.tested.Contains(uint32(h)) {
			continue
		}
		cands = append(cands, candidate{h: h, vol: e.Box.Volume()})
	}
	q.opts.metrics.RecordIndexQuery(len(cands))

	slices.SortFunc(cands, func(a, b candidate) int {
		switch {
		case a.vol < b.vol:
			return -1
		case a.vol > b.vol:
			return 1
		}
		return int(a.h - b.h)
	})
	for _, c := range cands {
		if ref, ok := q.test(c.h); ok {
			return c.h, ref, true
		}
	}
	return mesh.NoHandle, nil, false
}

// test inverts the mapping of leaf h at p once per query
func (q *query) test(h mesh.Handle) (geometry.Point, bool) {
	// Neighbors of a stale snapshot may name cells it does not know
	if h < 0 || int(h) >= len(q.snap.boxes) || !q.snap.leaves.Contains(uint32(h)) {
		return nil, false
	}
	if !q.tested.CheckedAdd(uint32(h)) {
		return nil, false
	}
	box := q.snap.boxes[h]
	if !box.Contains(q.p, q.snap.boxEps) {
		q.note(box.Distance(q.p))
		return nil, false
	}

	q.count++
	m := q.snap.forest.Cell(h).Mapping
	ref, err := m.Inverse(q.p, q.opts.newton)
	if err != nil {
		q.opts.metrics.RecordInversionFailure()
		// Without a finite iterate the distance to this cell is unknown
		if ref != nil {
			q.note(q.p.Distance(m.Forward(element.ClampToReference(ref))))
		}
		return nil, false
	}
	if element.InsideReference(ref, q.opts.tolerance) {
		q.note(0)
		return ref, true
	}
	q.note(q.p.Distance(m.Forward(element.ClampToReference(ref))))
	return nil, false
}

func (q *query) note(d float64) {
	q.nearest = math.Min(q.nearest, d)
}
