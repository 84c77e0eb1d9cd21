package spatial

import (
	"math"

	"github.com/notargets/DGLocate/geometry"
)

// hilbertBits returns the per-axis resolution so that dim*bits fits in 64 bits
func hilbertBits(dim int) int {
	return min(32, 64/max(dim, 1))
}

// HilbertKey returns the position of p along a Hilbert curve filling bounds.
// Points outside bounds are clamped onto it. Keys of nearby points tend to be
// close, which is what the bulk packing and batch ordering rely on.
func HilbertKey(p geometry.Point, bounds geometry.BoundingBox) uint64 {
	dim := len(p)
	bits := hilbertBits(dim)
	top := float64(uint64(1)<<bits - 1)

	x := make([]uint64, dim)
	for i := range x {
		ext := bounds.Max[i] - bounds.Min[i]
		if !(ext > 0) {
			continue
		}
		t := (p[i] - bounds.Min[i]) / ext
		t = math.Max(0, math.Min(1, t))
		x[i] = uint64(t * top)
	}
	if dim == 1 {
		return x[0]
	}
	axesToTranspose(x, bits)

	var key uint64
	for b := bits - 1; b >= 0; b-- {
		for i := 0; i < dim; i++ {
			key = key<<1 | (x[i]>>b)&1
		}
	}
	return key
}

// axesToTranspose converts grid coordinates in place into the transposed
// Hilbert index (J. Skilling, "Programming the Hilbert curve", 2004)
func axesToTranspose(x []uint64, bits int) {
	n := len(x)
	M := uint64(1) << (bits - 1)

	// Inverse undo
	for Q := M; Q > 1; Q >>= 1 {
		P := Q - 1
		for i := 0; i < n; i++ {
			if x[i]&Q != 0 {
				x[0] ^= P
			} else {
				t := (x[0] ^ x[i]) & P
				x[0] ^= t
				x[i] ^= t
			}
		}
	}

	// Gray encode
	for i := 1; i < n; i++ {
		x[i] ^= x[i-1]
	}
	var t uint64
	for Q := M; Q > 1; Q >>= 1 {
		if x[n-1]&Q != 0 {
			t ^= Q - 1
		}
	}
	for i := 0; i < n; i++ {
		x[i] ^= t
	}
}
