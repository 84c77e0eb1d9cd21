package locate

import (
	"github.com/notargets/DGLocate/geometry"
	"github.com/notargets/DGLocate/mesh"
)

// walk descends from each root, in ascending handle order, into every child
// whose subtree box contains the point, and tests the leaves it reaches.
// Leaves already tested by earlier phases are skipped.
func (q *query) walk() (mesh.Handle, geometry.Point, bool) {
	f := q.snap.forest
	stack := make([]mesh.Handle, 0, 64)
	roots := f.Roots()
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, roots[i])
	}

	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if int(h) >= len(q.snap.treeBoxes) {
			continue
		}

		box := q.snap.treeBoxes[h]
		if !box.Contains(q.p, q.snap.boxEps) {
			q.note(box.Distance(q.p))
			continue
		}
		if q.snap.leaves.Contains(uint32(h)) {
			if ref, ok := q.test(h); ok {
				return h, ref, true
			}
			continue
		}
		children := f.Cell(h).Children
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return mesh.NoHandle, nil, false
}
