package spatial

import (
	"sort"
	"testing"

	"github.com/notargets/DGLocate/geometry"
	"github.com/stretchr/testify/assert"
)

func TestHilbertKeyQuadrantOrder(t *testing.T) {
	bounds := geometry.NewBoundingBox(geometry.NewPoint(0, 0), geometry.NewPoint(1, 1))
	path := []geometry.Point{
		geometry.NewPoint(0.25, 0.25),
		geometry.NewPoint(0.25, 0.75),
		geometry.NewPoint(0.75, 0.75),
		geometry.NewPoint(0.75, 0.25),
	}
	for i := 1; i < len(path); i++ {
		assert.Less(t, HilbertKey(path[i-1], bounds), HilbertKey(path[i], bounds))
	}
}

// Consecutive cells along the curve are face neighbors
func TestHilbertKeyLocality(t *testing.T) {
	for _, dim := range []int{2, 3} {
		n := 8
		lo := make(geometry.Point, dim)
		hi := make(geometry.Point, dim)
		for i := range hi {
			hi[i] = float64(n)
		}
		bounds := geometry.NewBoundingBox(lo, hi)

		total := 1
		for i := 0; i < dim; i++ {
			total *= n
		}
		cells := make([][]int, total)
		keys := make([]uint64, total)
		for k := range cells {
			idx := make([]int, dim)
			c := make(geometry.Point, dim)
			J := k
			for a := 0; a < dim; a++ {
				idx[a] = J % n
				c[a] = float64(idx[a]) + 0.5
				J /= n
			}
			cells[k] = idx
			keys[k] = HilbertKey(c, bounds)
		}
		order := make([]int, total)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })

		for i := 1; i < total; i++ {
			a, b := cells[order[i-1]], cells[order[i]]
			dist := 0
			for ax := range a {
				d := a[ax] - b[ax]
				if d < 0 {
					d = -d
				}
				dist += d
			}
			assert.Equal(t, 1, dist, "%dD cells %v and %v are consecutive on the curve", dim, a, b)
		}
	}
}

func TestHilbertKeyClampsAndDegenerateBounds(t *testing.T) {
	bounds := geometry.NewBoundingBox(geometry.NewPoint(0, 0), geometry.NewPoint(1, 1))
	assert.Equal(t, HilbertKey(geometry.NewPoint(0, 0), bounds), HilbertKey(geometry.NewPoint(-5, -5), bounds))

	flat := geometry.NewBoundingBox(geometry.NewPoint(0, 2), geometry.NewPoint(1, 2))
	assert.NotPanics(t, func() { HilbertKey(geometry.NewPoint(0.5, 2), flat) })

	line := geometry.NewBoundingBox(geometry.NewPoint(0), geometry.NewPoint(4))
	assert.Less(t, HilbertKey(geometry.NewPoint(1), line), HilbertKey(geometry.NewPoint(3), line))
}
