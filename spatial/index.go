package spatial

import (
	"errors"
	"fmt"
	"iter"
	"sort"

	"github.com/notargets/DGLocate/geometry"
)

var (
	// ErrDimensionMismatch is returned when entries do not share one dimension
	ErrDimensionMismatch = errors.New("entry dimension mismatch")

	// ErrInvalidBox is returned for boxes with Min > Max or non-finite corners
	ErrInvalidBox = errors.New("invalid bounding box")
)

// DefaultNodeSize is the fan-out of packed nodes
const DefaultNodeSize = 16

// Entry pairs a box with the caller's handle for the object it bounds
type Entry struct {
	Box    geometry.BoundingBox
	Handle int
}

// Index is an immutable R-tree packed bottom-up along a Hilbert curve. Items
// occupy the first Len() slots, followed by node levels up to the root. It
// is read-only after Build and safe for concurrent queries.
type Index struct {
	dim      int
	nodeSize int
	numItems int

	boxes       []geometry.BoundingBox
	refs        []int // Items: caller handle. Nodes: slot of the first child
	levelBounds []int // Exclusive end slot of each level, leaves first
}

type config struct {
	nodeSize int
}

// Option configures Build
type Option func(*config)

// WithNodeSize sets the number of children per packed node, minimum 2
func WithNodeSize(n int) Option {
	return func(c *config) {
		c.nodeSize = max(n, 2)
	}
}

// Build packs the entries into a new index. Entries are ordered by the
// Hilbert key of their box centers, ties broken by handle, then grouped into
// nodes of NodeSize level by level.
func Build(entries []Entry, opts ...Option) (*Index, error) {
	cfg := config{nodeSize: DefaultNodeSize}
	for _, o := range opts {
		o(&cfg)
	}

	idx := &Index{nodeSize: cfg.nodeSize, numItems: len(entries)}
	if len(entries) == 0 {
		return idx, nil
	}

	idx.dim = entries[0].Box.Dim()
	bounds := entries[0].Box.Clone()
	for i, e := range entries {
		if len(e.Box.Min) != idx.dim || len(e.Box.Max) != idx.dim {
			return nil, fmt.Errorf("%w: entry %d (handle %d) is %dD, index is %dD",
				ErrDimensionMismatch, i, e.Handle, len(e.Box.Min), idx.dim)
		}
		if !e.Box.Valid() || !e.Box.Min.IsFinite() || !e.Box.Max.IsFinite() {
			return nil, fmt.Errorf("%w: entry %d (handle %d) %s", ErrInvalidBox, i, e.Handle, e.Box)
		}
		bounds = geometry.Merge(bounds, e.Box)
	}

	keys := make([]uint64, len(entries))
	order := make([]int, len(entries))
	for i, e := range entries {
		keys[i] = HilbertKey(e.Box.Center(), bounds)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if keys[ia] != keys[ib] {
			return keys[ia] < keys[ib]
		}
		return entries[ia].Handle < entries[ib].Handle
	})

	n := len(entries)
	numNodes := n
	for m := n; m > 1; {
		m = (m + idx.nodeSize - 1) / idx.nodeSize
		numNodes += m
	}
	idx.boxes = make([]geometry.BoundingBox, 0, numNodes)
	idx.refs = make([]int, 0, numNodes)
	for _, i := range order {
		idx.boxes = append(idx.boxes, entries[i].Box.Clone())
		idx.refs = append(idx.refs, entries[i].Handle)
	}
	idx.levelBounds = append(idx.levelBounds, n)

	// Pack each level into parents until a single root remains
	for start, end := 0, n; end-start > 1; {
		for pos := start; pos < end; pos += idx.nodeSize {
			last := min(pos+idx.nodeSize, end)
			box := idx.boxes[pos].Clone()
			for c := pos + 1; c < last; c++ {
				box = geometry.Merge(box, idx.boxes[c])
			}
			idx.boxes = append(idx.boxes, box)
			idx.refs = append(idx.refs, pos)
		}
		start, end = end, len(idx.boxes)
		idx.levelBounds = append(idx.levelBounds, end)
	}
	return idx, nil
}

// Len returns the number of entries
func (idx *Index) Len() int { return idx.numItems }

// Dim returns the spatial dimension, zero for an empty index
func (idx *Index) Dim() int { return idx.dim }

// NodeSize returns the packing fan-out
func (idx *Index) NodeSize() int { return idx.nodeSize }

// Bounds returns the box of all entries, the zero box when empty
func (idx *Index) Bounds() geometry.BoundingBox {
	if idx.numItems == 0 {
		return geometry.BoundingBox{}
	}
	return idx.boxes[len(idx.boxes)-1].Clone()
}

// Entries returns all entries in tree order
func (idx *Index) Entries() []Entry {
	out := make([]Entry, idx.numItems)
	for i := range out {
		out[i] = Entry{Box: idx.boxes[i].Clone(), Handle: idx.refs[i]}
	}
	return out
}

// Query yields the entries whose box contains p grown by eps. Entries come in
// tree order, which is stable for a given entry set.
func (idx *Index) Query(p geometry.Point, eps float64) iter.Seq[Entry] {
	return idx.search(func(b geometry.BoundingBox) bool {
		return b.Contains(p, eps)
	}, len(p))
}

// QueryBox yields the entries whose box intersects b, in tree order
func (idx *Index) QueryBox(b geometry.BoundingBox) iter.Seq[Entry] {
	return idx.search(func(nb geometry.BoundingBox) bool {
		return geometry.Intersects(nb, b)
	}, b.Dim())
}

// search walks the tree depth first with children in packing order
func (idx *Index) search(match func(geometry.BoundingBox) bool, dim int) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		if idx.numItems == 0 || dim != idx.dim {
			return
		}
		root := len(idx.boxes) - 1
		if !match(idx.boxes[root]) {
			return
		}
		stack := []int{root}
		for len(stack) > 0 {
			node := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if node < idx.numItems {
				if !yield(Entry{Box: idx.boxes[node].Clone(), Handle: idx.refs[node]}) {
					return
				}
				continue
			}

			first := idx.refs[node]
			end := min(first+idx.nodeSize, idx.levelEnd(first))
			// Push in reverse so children pop in order
			for c := end - 1; c >= first; c-- {
				if match(idx.boxes[c]) {
					stack = append(stack, c)
				}
			}
		}
	}
}

// levelEnd returns the exclusive end of the level holding slot pos
func (idx *Index) levelEnd(pos int) int {
	for _, end := range idx.levelBounds {
		if pos < end {
			return end
		}
	}
	return len(idx.boxes)
}

func (idx *Index) String() string {
	return fmt.Sprintf("spatial.Index{entries: %d, dim: %d, nodeSize: %d, levels: %d}",
		idx.numItems, idx.dim, idx.nodeSize, len(idx.levelBounds))
}
