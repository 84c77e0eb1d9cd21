package mesh

import (
	"fmt"
	"math"
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/notargets/DGLocate/geometry"
)

// cellRect is the rtree entry for one active cell
type cellRect struct {
	handle Handle
	rect   rtreego.Rect
}

func (c *cellRect) Bounds() rtreego.Rect { return c.rect }

// connect recomputes the neighbor lists of all active cells. Two active cells
// are neighbors when their conservative boxes touch, which covers face and
// vertex sharing as well as hanging-node adjacency across refinement levels.
func (f *Forest) connect() error {
	active := f.ActiveCells()
	tol := f.adjacencyTolerance(active)

	objs := make([]rtreego.Spatial, len(active))
	for i, h := range active {
		r, err := toRect(f.cells[h].Mapping.BoundingBox().Extend(tol))
		if err != nil {
			return fmt.Errorf("indexing cell %d: %w", h, err)
		}
		objs[i] = &cellRect{handle: h, rect: r}
	}
	tree := rtreego.NewTree(f.dim, 8, 32, objs...)

	for i, h := range active {
		hits := tree.SearchIntersect(objs[i].Bounds())
		nb := make([]Handle, 0, len(hits))
		for _, s := range hits {
			if o := s.(*cellRect); o.handle != h {
				nb = append(nb, o.handle)
			}
		}
		slices.Sort(nb)
		f.cells[h].Neighbors = nb
	}
	return nil
}

// adjacencyTolerance is a small fraction of the smallest active cell
func (f *Forest) adjacencyTolerance(active []Handle) float64 {
	hmin := math.Inf(1)
	for _, h := range active {
		hmin = math.Min(hmin, f.cells[h].Mapping.Diameter())
	}
	return 1e-8 * hmin
}

func toRect(b geometry.BoundingBox) (rtreego.Rect, error) {
	lengths := make([]float64, b.Dim())
	for i := range lengths {
		lengths[i] = b.Max[i] - b.Min[i]
	}
	return rtreego.NewRect(rtreego.Point(b.Min.Clone()), lengths)
}
