package geometry

import (
	"fmt"
	"math"
)

// BoundingBox is an axis-aligned box with Min[i] <= Max[i] on every axis
type BoundingBox struct {
	Min, Max Point
}

// NewBoundingBox creates a box from two opposite corners, ordering each axis
func NewBoundingBox(a, b Point) BoundingBox {
	mustMatch(len(a), len(b))
	bb := BoundingBox{Min: make(Point, len(a)), Max: make(Point, len(a))}
	for i := range a {
		bb.Min[i] = math.Min(a[i], b[i])
		bb.Max[i] = math.Max(a[i], b[i])
	}
	return bb
}

// BoxOf returns the smallest box enclosing all points
func BoxOf(pts ...Point) BoundingBox {
	if len(pts) == 0 {
		panic("BoxOf requires at least one point")
	}
	bb := BoundingBox{Min: pts[0].Clone(), Max: pts[0].Clone()}
	for _, p := range pts[1:] {
		bb.Include(p)
	}
	return bb
}

// Dim returns the spatial dimension of the box
func (b BoundingBox) Dim() int { return len(b.Min) }

// Valid reports whether the box has matching dimensions and Min <= Max on every axis
func (b BoundingBox) Valid() bool {
	if len(b.Min) != len(b.Max) || len(b.Min) == 0 {
		return false
	}
	for i := range b.Min {
		if !(b.Min[i] <= b.Max[i]) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of b
func (b BoundingBox) Clone() BoundingBox {
	return BoundingBox{Min: b.Min.Clone(), Max: b.Max.Clone()}
}

// Include grows b in place so that it contains p
func (b *BoundingBox) Include(p Point) {
	mustMatch(len(b.Min), len(p))
	for i, x := range p {
		if x < b.Min[i] {
			b.Min[i] = x
		}
		if x > b.Max[i] {
			b.Max[i] = x
		}
	}
}

// Merge returns the union of a and b
func Merge(a, b BoundingBox) BoundingBox {
	mustMatch(a.Dim(), b.Dim())
	bb := a.Clone()
	for i := range bb.Min {
		bb.Min[i] = math.Min(bb.Min[i], b.Min[i])
		bb.Max[i] = math.Max(bb.Max[i], b.Max[i])
	}
	return bb
}

// Contains reports whether p lies inside b grown by eps on every side
func (b BoundingBox) Contains(p Point, eps float64) bool {
	mustMatch(b.Dim(), len(p))
	for i, x := range p {
		if x < b.Min[i]-eps || x > b.Max[i]+eps {
			return false
		}
	}
	return true
}

// Intersects reports whether a and b share at least one point (touching counts)
func Intersects(a, b BoundingBox) bool {
	mustMatch(a.Dim(), b.Dim())
	for i := range a.Min {
		if a.Max[i] < b.Min[i] || b.Max[i] < a.Min[i] {
			return false
		}
	}
	return true
}

// Extend returns b grown by eps on every side
func (b BoundingBox) Extend(eps float64) BoundingBox {
	bb := b.Clone()
	for i := range bb.Min {
		bb.Min[i] -= eps
		bb.Max[i] += eps
	}
	return bb
}

// Volume returns the d-dimensional measure of the box
func (b BoundingBox) Volume() float64 {
	v := 1.0
	for i := range b.Min {
		v *= b.Max[i] - b.Min[i]
	}
	return v
}

// Diameter returns the length of the box diagonal
func (b BoundingBox) Diameter() float64 {
	return b.Max.Distance(b.Min)
}

// Center returns the midpoint of the box
func (b BoundingBox) Center() Point {
	c := make(Point, b.Dim())
	for i := range c {
		c[i] = 0.5 * (b.Min[i] + b.Max[i])
	}
	return c
}

// Distance returns the Euclidean distance from p to the box, zero when p is inside
func (b BoundingBox) Distance(p Point) float64 {
	mustMatch(b.Dim(), len(p))
	var sum float64
	for i, x := range p {
		var d float64
		switch {
		case x < b.Min[i]:
			d = b.Min[i] - x
		case x > b.Max[i]:
			d = x - b.Max[i]
		}
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Vertex returns corner v of the box. Coordinate i is taken from Max when bit
// i of v is set, so vertices are numbered lexicographically with x fastest.
func (b BoundingBox) Vertex(v int) Point {
	p := make(Point, b.Dim())
	for i := range p {
		if v&(1<<i) != 0 {
			p[i] = b.Max[i]
		} else {
			p[i] = b.Min[i]
		}
	}
	return p
}

// Vertices returns all 2^d corners of the box
func (b BoundingBox) Vertices() []Point {
	n := 1 << b.Dim()
	verts := make([]Point, n)
	for v := 0; v < n; v++ {
		verts[v] = b.Vertex(v)
	}
	return verts
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%v - %v]", b.Min, b.Max)
}
