package gonudg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Lagrange1D is the nodal Lagrange basis over a fixed set of distinct 1D nodes,
// evaluated with the barycentric formula
type Lagrange1D struct {
	Nodes   []float64
	weights []float64 // Barycentric weights 1/prod_{j!=i}(x_i-x_j)
}

// NewLagrange1D builds the basis, failing when two nodes coincide
func NewLagrange1D(nodes []float64) (*Lagrange1D, error) {
	n := len(nodes)
	if n == 0 {
		return nil, fmt.Errorf("lagrange basis needs at least one node")
	}
	w := make([]float64, n)
	for i := 0; i < n; i++ {
		w[i] = 1
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			d := nodes[i] - nodes[j]
			if d == 0 {
				return nil, fmt.Errorf("duplicate lagrange node %g at %d and %d", nodes[i], i, j)
			}
			w[i] /= d
		}
	}
	nn := make([]float64, n)
	copy(nn, nodes)
	return &Lagrange1D{Nodes: nn, weights: w}, nil
}

// Order returns the polynomial degree of the basis
func (l *Lagrange1D) Order() int { return len(l.Nodes) - 1 }

// Eval fills phi[i] with the i-th basis function at x and dphi[i] with its derivative.
// dphi may be nil when derivatives are not needed.
func (l *Lagrange1D) Eval(x float64, phi, dphi []float64) {
	n := len(l.Nodes)
	// Product form, finite when x coincides with a node
	for i := 0; i < n; i++ {
		p := l.weights[i]
		for j := 0; j < n; j++ {
			if j != i {
				p *= x - l.Nodes[j]
			}
		}
		phi[i] = p
	}
	if dphi == nil {
		return
	}
	for i := 0; i < n; i++ {
		var sum float64
		for k := 0; k < n; k++ {
			if k == i {
				continue
			}
			p := l.weights[i]
			for j := 0; j < n; j++ {
				if j != i && j != k {
					p *= x - l.Nodes[j]
				}
			}
			sum += p
		}
		dphi[i] = sum
	}
}

// Bernstein evaluates the degree-n Bernstein polynomial B_k^n at x in [0,1]
func Bernstein(n, k int, x float64) float64 {
	return binomial(n, k) * math.Pow(x, float64(k)) * math.Pow(1-x, float64(n-k))
}

// LagrangeToBernstein returns the matrix T with c = T*u, converting nodal
// values u at the given nodes in [0,1] into Bernstein control coefficients c
// of the same polynomial. The convex hull of the control coefficients
// encloses the polynomial on [0,1].
func LagrangeToBernstein(nodes []float64) (*mat.Dense, error) {
	n := len(nodes)
	// B[i][k] = B_k(node_i) maps Bernstein coefficients to nodal values
	B := mat.NewDense(n, n, nil)
	for i, x := range nodes {
		for k := 0; k < n; k++ {
			B.Set(i, k, Bernstein(n-1, k, x))
		}
	}
	var T mat.Dense
	if err := T.Inverse(B); err != nil {
		return nil, fmt.Errorf("bernstein conversion for %d nodes: %w", n, err)
	}
	return &T, nil
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}
