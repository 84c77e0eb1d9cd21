package mesh

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/notargets/DGLocate/element"
	"github.com/notargets/DGLocate/geometry"
)

// Handle addresses a cell in the forest arena
type Handle int

// NoHandle marks a missing relation, e.g. the parent of a root
const NoHandle Handle = -1

// ErrInvalidHandle is returned for handles outside the arena
var ErrInvalidHandle = errors.New("invalid cell handle")

// Chart maps the reference coordinates of a root cell onto its exact
// geometry. Refinement samples the chart so curved children follow the
// true boundary rather than the parent's polynomial.
type Chart func(ref geometry.Point) geometry.Point

// Cell is one node of a refinement tree. Only active cells, those without
// children, are valid point location results.
type Cell struct {
	Handle    Handle
	Level     int
	Parent    Handle
	Root      Handle
	Children  []Handle // 2^d children numbered like reference vertices, or empty
	Neighbors []Handle // Active cells whose boxes touch this one, ascending; empty unless active
	Mapping   *element.Mapping

	// Position of the cell inside its root's reference cube: origin + 2^-Level * ref
	rootOrigin geometry.Point
}

// Active reports whether the cell is a leaf
func (c *Cell) Active() bool { return len(c.Children) == 0 }

// Vertices returns the 2^d physical corners in reference vertex order
func (c *Cell) Vertices() []geometry.Point { return c.Mapping.Vertices() }

// Forest is a flat arena of cells forming one refinement tree per coarse cell.
// Relations are stored as handles. The forest is not safe for concurrent
// mutation; readers may share it once refinement is finished.
type Forest struct {
	dim        int
	order      int
	cells      []Cell
	geom       element.ElementGeometry
	roots      []Handle
	charts     []Chart // Indexed by root position, nil entries refine by restriction
	generation uint64
}

// NewForest samples one root cell per chart at the order-p support nodes
func NewForest(dim, order int, charts []Chart) (*Forest, error) {
	geom, err := element.HypercubeOf(dim)
	if err != nil {
		return nil, err
	}
	if len(charts) == 0 {
		return nil, fmt.Errorf("forest needs at least one root cell")
	}
	f := &Forest{dim: dim, order: order, geom: geom}
	origin := make(geometry.Point, dim)
	for i, chart := range charts {
		if chart == nil {
			return nil, fmt.Errorf("root %d has no chart", i)
		}
		m, err := sampleChart(dim, order, chart, origin, 1)
		if err != nil {
			return nil, fmt.Errorf("root %d: %w", i, err)
		}
		f.addRoot(m, chart)
	}
	if err := f.structureChanged(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewForestFromMappings builds a forest whose roots are the given mappings.
// Children are obtained by restricting the parent mapping.
func NewForestFromMappings(roots []*element.Mapping) (*Forest, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("forest needs at least one root cell")
	}
	if roots[0] == nil {
		return nil, fmt.Errorf("root 0 has no mapping")
	}
	geom, err := element.HypercubeOf(roots[0].Dim())
	if err != nil {
		return nil, err
	}
	f := &Forest{dim: roots[0].Dim(), order: roots[0].Order(), geom: geom}
	for i, m := range roots {
		if m == nil {
			return nil, fmt.Errorf("root %d has no mapping", i)
		}
		if m.Dim() != f.dim || m.Order() != f.order {
			return nil, fmt.Errorf("root %d is %dD order %d, forest is %dD order %d",
				i, m.Dim(), m.Order(), f.dim, f.order)
		}
		f.addRoot(m, nil)
	}
	if err := f.structureChanged(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Forest) addRoot(m *element.Mapping, chart Chart) {
	h := Handle(len(f.cells))
	f.cells = append(f.cells, Cell{
		Handle:     h,
		Parent:     NoHandle,
		Root:       h,
		Mapping:    m,
		rootOrigin: make(geometry.Point, f.dim),
	})
	f.roots = append(f.roots, h)
	f.charts = append(f.charts, chart)
}

func (f *Forest) Dim() int { return f.dim }

func (f *Forest) Order() int { return f.order }

// Len returns the number of cells in the arena, active or not
func (f *Forest) Len() int { return len(f.cells) }

// Generation increments on every structural change
func (f *Forest) Generation() uint64 { return f.generation }

// Roots returns the coarse cell handles in ascending order
func (f *Forest) Roots() []Handle { return slices.Clone(f.roots) }

// Cell returns the cell for h, nil when h is out of range
func (f *Forest) Cell(h Handle) *Cell {
	if h < 0 || int(h) >= len(f.cells) {
		return nil
	}
	return &f.cells[h]
}

// IsActive reports whether h names a leaf cell
func (f *Forest) IsActive(h Handle) bool {
	c := f.Cell(h)
	return c != nil && c.Active()
}

// ActiveCells returns the leaf handles in ascending order
func (f *Forest) ActiveCells() []Handle {
	out := make([]Handle, 0, len(f.cells))
	for i := range f.cells {
		if f.cells[i].Active() {
			out = append(out, Handle(i))
		}
	}
	return out
}

// NumActive returns the number of leaf cells
func (f *Forest) NumActive() int {
	n := 0
	for i := range f.cells {
		if f.cells[i].Active() {
			n++
		}
	}
	return n
}

// MaxLevel returns the deepest refinement level present
func (f *Forest) MaxLevel() int {
	lvl := 0
	for i := range f.cells {
		lvl = max(lvl, f.cells[i].Level)
	}
	return lvl
}

// RefineGlobal refines every active cell the given number of times
func (f *Forest) RefineGlobal(times int) error {
	for i := 0; i < times; i++ {
		if err := f.refine(f.ActiveCells()); err != nil {
			return err
		}
		if err := f.structureChanged(); err != nil {
			return err
		}
	}
	return nil
}

// Refine splits each listed active cell into 2^d children. Neighbouring
// cells are left alone, so refinement levels may differ across faces.
func (f *Forest) Refine(handles ...Handle) error {
	hs := slices.Clone(handles)
	slices.Sort(hs)
	hs = slices.Compact(hs)
	for _, h := range hs {
		c := f.Cell(h)
		if c == nil {
			return fmt.Errorf("%w: %d", ErrInvalidHandle, h)
		}
		if !c.Active() {
			return fmt.Errorf("cell %d is already refined", h)
		}
	}
	if len(hs) == 0 {
		return nil
	}
	if err := f.refine(hs); err != nil {
		return err
	}
	return f.structureChanged()
}

func (f *Forest) refine(hs []Handle) error {
	nc := f.geom.NChildren()
	for _, h := range hs {
		parent := f.cells[h]
		scale := 1 / float64(int(1)<<parent.Level)
		children := make([]Handle, nc)
		for c := 0; c < nc; c++ {
			origin := parent.rootOrigin.Add(element.ChildOrigin(f.dim, c).Scale(scale))
			var (
				m   *element.Mapping
				err error
			)
			if chart := f.charts[f.rootIndex(parent.Root)]; chart != nil {
				m, err = sampleChart(f.dim, f.order, chart, origin, scale/2)
			} else {
				m, err = parent.Mapping.ChildMapping(c)
			}
			if err != nil {
				return fmt.Errorf("refining cell %d child %d: %w", h, c, err)
			}
			child := Handle(len(f.cells))
			f.cells = append(f.cells, Cell{
				Handle:     child,
				Level:      parent.Level + 1,
				Parent:     h,
				Root:       parent.Root,
				Mapping:    m,
				rootOrigin: origin,
			})
			children[c] = child
		}
		f.cells[h].Children = children
		f.cells[h].Neighbors = nil
	}
	return nil
}

func (f *Forest) rootIndex(root Handle) int {
	i, _ := slices.BinarySearch(f.roots, root)
	return i
}

func (f *Forest) structureChanged() error {
	f.generation++
	return f.connect()
}

// sampleChart evaluates chart at the support nodes of the sub-cube origin + scale*[0,1]^d
func sampleChart(dim, order int, chart Chart, origin geometry.Point, scale float64) (*element.Mapping, error) {
	nodes, err := element.ReferenceNodes(order)
	if err != nil {
		return nil, err
	}
	n := order + 1
	np := 1
	for i := 0; i < dim; i++ {
		np *= n
	}
	support := make([]geometry.Point, np)
	for I := 0; I < np; I++ {
		ref := make(geometry.Point, dim)
		J := I
		for a := 0; a < dim; a++ {
			ref[a] = origin[a] + scale*nodes[J%n]
			J /= n
		}
		support[I] = chart(ref)
	}
	return element.NewMapping(dim, order, support)
}

// String returns a summary of the forest structure
func (f *Forest) String() string {
	var sb strings.Builder
	sb.WriteString("=== Forest Summary ===\n")
	sb.WriteString(fmt.Sprintf("  Dimensions: %d (%s cells)\n", f.dim, f.geom))
	sb.WriteString(fmt.Sprintf("  Mapping order: %d\n", f.order))
	sb.WriteString(fmt.Sprintf("  Root cells: %d\n", len(f.roots)))
	sb.WriteString(fmt.Sprintf("  Total cells: %d\n", len(f.cells)))
	sb.WriteString(fmt.Sprintf("  Active cells: %d\n", f.NumActive()))
	sb.WriteString(fmt.Sprintf("  Max level: %d\n", f.MaxLevel()))
	sb.WriteString(fmt.Sprintf("  Generation: %d\n", f.generation))

	kinds := map[element.MappingKind]int{}
	var box geometry.BoundingBox
	for i, h := range f.ActiveCells() {
		m := f.cells[h].Mapping
		kinds[m.Kind]++
		if i == 0 {
			box = m.BoundingBox()
		} else {
			box = geometry.Merge(box, m.BoundingBox())
		}
	}
	sb.WriteString("\n--- Active Cell Mappings ---\n")
	for _, k := range []element.MappingKind{element.Affine, element.Multilinear, element.Curved} {
		if kinds[k] > 0 {
			sb.WriteString(fmt.Sprintf("  %s: %d\n", k, kinds[k]))
		}
	}
	sb.WriteString(fmt.Sprintf("  Bounds: %s\n", box))
	return sb.String()
}
