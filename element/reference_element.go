package element

import (
	"math"

	"github.com/notargets/DGLocate/geometry"
)

// The reference cell is the unit hypercube [0,1]^d. Vertex v sits at the
// corner whose coordinate i is 1 iff bit i of v is set.

// ReferenceVertex returns vertex v of the d-dimensional reference cell
func ReferenceVertex(dim, v int) geometry.Point {
	p := make(geometry.Point, dim)
	for i := range p {
		if v&(1<<i) != 0 {
			p[i] = 1
		}
	}
	return p
}

// ReferenceCenter returns (1/2,...,1/2)
func ReferenceCenter(dim int) geometry.Point {
	p := make(geometry.Point, dim)
	for i := range p {
		p[i] = 0.5
	}
	return p
}

// InsideReference reports whether every coordinate lies in [-eps, 1+eps]
func InsideReference(ref geometry.Point, eps float64) bool {
	for _, x := range ref {
		if !(x >= -eps && x <= 1+eps) {
			return false
		}
	}
	return true
}

// ClampToReference projects ref onto the closed reference cell
func ClampToReference(ref geometry.Point) geometry.Point {
	c := ref.Clone()
	for i, x := range c {
		c[i] = math.Max(0, math.Min(1, x))
	}
	return c
}

// ChildOrigin returns the reference coordinates of vertex 0 of child c after
// isotropic refinement. Children have half the parent's extent and are
// numbered like vertices.
func ChildOrigin(dim, child int) geometry.Point {
	return ReferenceVertex(dim, child).Scale(0.5)
}

// ChildToParent maps child c reference coordinates into the parent frame
func ChildToParent(dim, child int, ref geometry.Point) geometry.Point {
	return ref.Scale(0.5).Add(ChildOrigin(dim, child))
}
