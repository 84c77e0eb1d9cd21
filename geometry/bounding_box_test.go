package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoundingBoxMergeAndContains(t *testing.T) {
	a := NewBoundingBox(NewPoint(0, 0), NewPoint(1, 1))
	b := NewBoundingBox(NewPoint(2, -1), NewPoint(0.5, 0.5))

	assert.Equal(t, NewPoint(0.5, -1), b.Min)
	assert.Equal(t, NewPoint(2, 0.5), b.Max)

	u := Merge(a, b)
	assert.Equal(t, NewPoint(0, -1), u.Min)
	assert.Equal(t, NewPoint(2, 1), u.Max)
	assert.True(t, u.Valid())

	// Merge must not alias its inputs
	u.Min[0] = -10
	assert.Equal(t, 0.0, a.Min[0])

	assert.True(t, a.Contains(NewPoint(0.5, 0.5), 0))
	assert.True(t, a.Contains(NewPoint(1, 1), 0), "closed box contains its corner")
	assert.False(t, a.Contains(NewPoint(1+1e-9, 0.5), 0))
	assert.True(t, a.Contains(NewPoint(1+1e-9, 0.5), 1e-8))
}

func TestBoundingBoxIntersects(t *testing.T) {
	a := NewBoundingBox(NewPoint(0, 0, 0), NewPoint(1, 1, 1))
	touching := NewBoundingBox(NewPoint(1, 0, 0), NewPoint(2, 1, 1))
	apart := NewBoundingBox(NewPoint(1.5, 0, 0), NewPoint(2, 1, 1))

	assert.True(t, Intersects(a, touching))
	assert.True(t, Intersects(touching, a))
	assert.False(t, Intersects(a, apart))
	assert.True(t, Intersects(a, a.Extend(-0.25)))
}

func TestBoundingBoxMeasures(t *testing.T) {
	tol := 1e-14
	b := NewBoundingBox(NewPoint(0, 0), NewPoint(3, 4))

	assert.InDelta(t, 12.0, b.Volume(), tol)
	assert.InDelta(t, 5.0, b.Diameter(), tol)
	assert.Equal(t, NewPoint(1.5, 2), b.Center())

	assert.Equal(t, 0.0, b.Distance(NewPoint(1, 1)))
	assert.InDelta(t, 1.0, b.Distance(NewPoint(-1, 2)), tol)
	assert.InDelta(t, math.Sqrt2, b.Distance(NewPoint(4, 5)), tol)
}

func TestBoundingBoxVertices(t *testing.T) {
	b := NewBoundingBox(NewPoint(0, 0), NewPoint(2, 1))
	verts := b.Vertices()
	expected := []Point{
		NewPoint(0, 0),
		NewPoint(2, 0),
		NewPoint(0, 1),
		NewPoint(2, 1),
	}
	assert.Equal(t, expected, verts)

	b3 := NewBoundingBox(NewPoint(0, 0, 0), NewPoint(1, 1, 1))
	assert.Len(t, b3.Vertices(), 8)
	assert.Equal(t, NewPoint(1, 0, 1), b3.Vertex(5))
}

func TestBoxOf(t *testing.T) {
	b := BoxOf(NewPoint(1, 5), NewPoint(-1, 2), NewPoint(0, 7))
	assert.Equal(t, NewPoint(-1, 2), b.Min)
	assert.Equal(t, NewPoint(1, 7), b.Max)
}

func TestDimensionMismatchPanics(t *testing.T) {
	b := NewBoundingBox(NewPoint(0, 0), NewPoint(1, 1))
	assert.Panics(t, func() { b.Contains(NewPoint(0, 0, 0), 0) })
	assert.Panics(t, func() { NewPoint(1).Distance(NewPoint(1, 2)) })
}

func TestPointHelpers(t *testing.T) {
	p := NewPoint(1, 2)
	q := NewPoint(4, 6)
	assert.InDelta(t, 5.0, p.Distance(q), 1e-14)
	assert.Equal(t, NewPoint(5, 8), p.Add(q))
	assert.Equal(t, NewPoint(3, 4), q.Sub(p))
	assert.Equal(t, NewPoint(2, 4), p.Scale(2))
	assert.True(t, p.IsFinite())
	assert.False(t, NewPoint(math.NaN(), 0).IsFinite())
	assert.False(t, NewPoint(0, math.Inf(-1)).IsFinite())
	assert.True(t, p.Equal(NewPoint(1+1e-12, 2), 1e-10))
}
