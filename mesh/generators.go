package mesh

import (
	"fmt"
	"math"

	"github.com/notargets/DGLocate/geometry"
)

// HyperCube builds a single affine cell covering [lo,hi]^dim
func HyperCube(dim int, lo, hi float64) (*Forest, error) {
	p1 := make(geometry.Point, dim)
	p2 := make(geometry.Point, dim)
	reps := make([]int, dim)
	for i := 0; i < dim; i++ {
		p1[i], p2[i], reps[i] = lo, hi, 1
	}
	return SubdividedHyperRectangle(reps, p1, p2)
}

// SubdividedHyperRectangle builds reps[i] affine cells along axis i between the
// corners p1 and p2. Root handles run lexicographically with axis 0 fastest.
func SubdividedHyperRectangle(reps []int, p1, p2 geometry.Point) (*Forest, error) {
	dim := len(reps)
	if len(p1) != dim || len(p2) != dim {
		return nil, fmt.Errorf("corners have dimensions %d and %d, expected %d", len(p1), len(p2), dim)
	}
	box := geometry.NewBoundingBox(p1, p2)
	n := 1
	for i, r := range reps {
		if r < 1 {
			return nil, fmt.Errorf("repetitions along axis %d must be positive, got %d", i, r)
		}
		if !(box.Max[i] > box.Min[i]) {
			return nil, fmt.Errorf("empty extent along axis %d", i)
		}
		n *= r
	}

	charts := make([]Chart, 0, n)
	for k := 0; k < n; k++ {
		lo := make(geometry.Point, dim)
		h := make(geometry.Point, dim)
		J := k
		for i, r := range reps {
			h[i] = (box.Max[i] - box.Min[i]) / float64(r)
			lo[i] = box.Min[i] + float64(J%r)*h[i]
			J /= r
		}
		charts = append(charts, func(ref geometry.Point) geometry.Point {
			x := make(geometry.Point, dim)
			for i := range x {
				x[i] = lo[i] + h[i]*ref[i]
			}
			return x
		})
	}
	return NewForest(dim, 1, charts)
}

// HyperBall builds a ball of the given radius from a central cube surrounded
// by 2*dim curved cells whose outer faces lie on the sphere. Support points
// are sampled at the given mapping order, and refinement resamples the
// sphere so children stay on the boundary.
func HyperBall(center geometry.Point, radius float64, order int) (*Forest, error) {
	dim := len(center)
	if dim < 2 || dim > 3 {
		return nil, fmt.Errorf("hyper ball needs dimension 2 or 3, got %d", dim)
	}
	if !(radius > 0) || math.IsInf(radius, 1) {
		return nil, fmt.Errorf("hyper ball radius must be positive and finite, got %g", radius)
	}
	if !center.IsFinite() {
		return nil, fmt.Errorf("hyper ball center is not finite: %v", center)
	}
	// Inner cube corners sit at half the radius
	a := radius / (2 * math.Sqrt(float64(dim)))

	charts := []Chart{func(ref geometry.Point) geometry.Point {
		x := center.Clone()
		for i := range x {
			x[i] += a * (2*ref[i] - 1)
		}
		return x
	}}
	for axis := 0; axis < dim; axis++ {
		for _, side := range []float64{-1, 1} {
			charts = append(charts, shellChart(center, radius, a, axis, side))
		}
	}
	return NewForest(dim, order, charts)
}

// shellChart maps reference axis 0 radially from the inner cube face
// {x_axis = side*a} to the sphere; the remaining reference axes run along
// the other physical axes in increasing order.
func shellChart(center geometry.Point, radius, a float64, axis int, side float64) Chart {
	dim := len(center)
	return func(ref geometry.Point) geometry.Point {
		q := make(geometry.Point, dim)
		q[axis] = side * a
		k := 1
		for i := 0; i < dim; i++ {
			if i == axis {
				continue
			}
			q[i] = a * (2*ref[k] - 1)
			k++
		}
		s := (1 - ref[0]) + ref[0]*radius/q.Norm()
		return center.Add(q.Scale(s))
	}
}
