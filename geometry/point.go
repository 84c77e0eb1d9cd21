package geometry

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// Point is a coordinate vector in physical or reference space. Its length is
// the spatial dimension.
type Point []float64

// NewPoint copies the coordinates into a new Point
func NewPoint(coords ...float64) Point {
	p := make(Point, len(coords))
	copy(p, coords)
	return p
}

// Dim returns the number of coordinates
func (p Point) Dim() int { return len(p) }

// Clone returns an independent copy of p
func (p Point) Clone() Point {
	return NewPoint(p...)
}

// IsFinite reports whether no coordinate is NaN or infinite
func (p Point) IsFinite() bool {
	for _, x := range p {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Distance returns the Euclidean distance between p and q
func (p Point) Distance(q Point) float64 {
	mustMatch(len(p), len(q))
	return floats.Distance(p, q, 2)
}

// Add returns p+q
func (p Point) Add(q Point) Point {
	mustMatch(len(p), len(q))
	r := p.Clone()
	floats.Add(r, q)
	return r
}

// Sub returns p-q
func (p Point) Sub(q Point) Point {
	mustMatch(len(p), len(q))
	r := p.Clone()
	floats.Sub(r, q)
	return r
}

// Scale returns s*p
func (p Point) Scale(s float64) Point {
	r := p.Clone()
	floats.Scale(s, r)
	return r
}

// Norm returns the Euclidean length of p
func (p Point) Norm() float64 {
	return floats.Norm(p, 2)
}

// Equal reports whether p and q agree within tol in every coordinate
func (p Point) Equal(q Point, tol float64) bool {
	if len(p) != len(q) {
		return false
	}
	return floats.EqualApprox(p, q, tol)
}

func (p Point) String() string {
	var sb strings.Builder
	sb.WriteString("(")
	for i, x := range p {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%g", x))
	}
	sb.WriteString(")")
	return sb.String()
}

func mustMatch(a, b int) {
	if a != b {
		panic(fmt.Sprintf("dimension mismatch: %d != %d", a, b))
	}
}
