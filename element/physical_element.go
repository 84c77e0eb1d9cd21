package element

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/notargets/DGLocate/element/library/gonudg"
	"github.com/notargets/DGLocate/geometry"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrInversionDivergence is returned when the inverse mapping solve fails
	// to converge within the iteration budget for a single cell
	ErrInversionDivergence = errors.New("inverse mapping did not converge")

	// ErrDegenerateCell is returned when a cell's mapping has a singular Jacobian
	ErrDegenerateCell = errors.New("degenerate cell mapping")
)

// MappingKind tags how a cell maps reference to physical space. The set is
// closed; the kind is chosen once when the mapping is built.
type MappingKind uint8

const (
	Affine      MappingKind = iota // Parallelepiped, constant Jacobian
	Multilinear                    // Q1 with non-parallel edges
	Curved                         // Tensor Lagrange of order >= 2
)

func (k MappingKind) String() string {
	switch k {
	case Affine:
		return "Affine"
	case Multilinear:
		return "Multilinear"
	case Curved:
		return "Curved"
	}
	return fmt.Sprintf("MappingKind(%d)", uint8(k))
}

// NewtonConfig bounds the iterative inversion of non-affine mappings
type NewtonConfig struct {
	MaxIterations int     // Newton steps before giving up
	Tolerance     float64 // Residual tolerance relative to cell diameter
}

// DefaultNewton is used when a zero NewtonConfig is passed
var DefaultNewton = NewtonConfig{MaxIterations: 20, Tolerance: 1e-12}

// Mapping is the geometric transform from the reference hypercube [0,1]^d to a
// physical cell. It is defined by (p+1)^d support points placed at the tensor
// Gauss-Lobatto nodes, numbered lexicographically with the first axis fastest.
// For p=1 the support points are the cell vertices.
type Mapping struct {
	Kind MappingKind

	dim     int
	order   int
	support []geometry.Point
	tables  *basisTables

	// Affine data: x = origin + jac*ref
	origin geometry.Point
	jac    *mat.Dense
	jacInv *mat.Dense

	box      geometry.BoundingBox
	diameter float64
}

// NewMapping builds a mapping of the given polynomial order from its support points
func NewMapping(dim, order int, support []geometry.Point) (*Mapping, error) {
	if _, err := HypercubeOf(dim); err != nil {
		return nil, err
	}
	if order < 1 {
		return nil, fmt.Errorf("mapping order %d must be >= 1", order)
	}
	np := ipow(order+1, dim)
	if len(support) != np {
		return nil, fmt.Errorf("order %d mapping in %dD needs %d support points, got %d",
			order, dim, np, len(support))
	}
	for i, p := range support {
		if len(p) != dim {
			return nil, fmt.Errorf("support point %d has dimension %d, expected %d", i, len(p), dim)
		}
		if !p.IsFinite() {
			return nil, fmt.Errorf("support point %d is not finite: %v", i, p)
		}
	}

	tables, err := tablesFor(order)
	if err != nil {
		return nil, err
	}

	m := &Mapping{
		dim:     dim,
		order:   order,
		support: make([]geometry.Point, np),
		tables:  tables,
	}
	for i, p := range support {
		m.support[i] = p.Clone()
	}

	verts := m.Vertices()
	for i := range verts {
		for j := i + 1; j < len(verts); j++ {
			m.diameter = math.Max(m.diameter, verts[i].Distance(verts[j]))
		}
	}
	if m.diameter == 0 {
		return nil, fmt.Errorf("%w: all vertices coincide", ErrDegenerateCell)
	}

	// Affine candidate from vertex 0 and the vertices along each reference axis
	m.origin = verts[0].Clone()
	m.jac = mat.NewDense(dim, dim, nil)
	for j := 0; j < dim; j++ {
		edge := verts[1<<j].Sub(verts[0])
		for i := 0; i < dim; i++ {
			m.jac.Set(i, j, edge[i])
		}
	}

	m.Kind = m.classify()
	if m.Kind == Affine {
		var inv mat.Dense
		if err := inv.Inverse(m.jac); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDegenerateCell, err)
		}
		m.jacInv = &inv
		m.box = geometry.BoxOf(verts...)
	} else {
		// Reject inverted or collapsed cells up front
		if math.Abs(mat.Det(m.Jacobian(ReferenceCenter(dim)))) < 1e-14*math.Pow(m.diameter, float64(dim)) {
			return nil, fmt.Errorf("%w: singular jacobian at cell center", ErrDegenerateCell)
		}
		m.box = m.controlNetBox()
	}

	return m, nil
}

// NewQ1Mapping builds a first order mapping from the 2^d cell vertices
func NewQ1Mapping(vertices []geometry.Point) (*Mapping, error) {
	if len(vertices) == 0 {
		return nil, fmt.Errorf("no vertices")
	}
	return NewMapping(len(vertices[0]), 1, vertices)
}

// classify checks every support point against the affine map through the corners
func (m *Mapping) classify() MappingKind {
	tol := 1e-12 * m.diameter
	ref := make(geometry.Point, m.dim)
	for I, p := range m.support {
		m.nodeRef(I, ref)
		if !m.affineForward(ref).Equal(p, tol) {
			if m.order == 1 {
				return Multilinear
			}
			return Curved
		}
	}
	return Affine
}

func (m *Mapping) Dim() int { return m.dim }

func (m *Mapping) Order() int { return m.order }

// SupportPoints returns a copy of the support points
func (m *Mapping) SupportPoints() []geometry.Point {
	out := make([]geometry.Point, len(m.support))
	for i, p := range m.support {
		out[i] = p.Clone()
	}
	return out
}

// Vertices returns the 2^d physical cell corners in reference vertex order
func (m *Mapping) Vertices() []geometry.Point {
	nv := 1 << m.dim
	verts := make([]geometry.Point, nv)
	for v := 0; v < nv; v++ {
		I, stride := 0, 1
		for a := 0; a < m.dim; a++ {
			if v&(1<<a) != 0 {
				I += m.order * stride
			}
			stride *= m.order + 1
		}
		verts[v] = m.support[I].Clone()
	}
	return verts
}

// BoundingBox returns a box that encloses the whole cell image
func (m *Mapping) BoundingBox() geometry.BoundingBox { return m.box.Clone() }

// Diameter returns the largest distance between two vertices
func (m *Mapping) Diameter() float64 { return m.diameter }

// Center returns the image of the reference cell center
func (m *Mapping) Center() geometry.Point {
	return m.Forward(ReferenceCenter(m.dim))
}

// Forward maps reference coordinates to physical space
func (m *Mapping) Forward(ref geometry.Point) geometry.Point {
	if len(ref) != m.dim {
		panic(fmt.Sprintf("reference point dimension %d != %d", len(ref), m.dim))
	}
	if m.Kind == Affine {
		return m.affineForward(ref)
	}
	x, _ := m.evaluate(ref, false)
	return x
}

// Jacobian returns dx_i/dref_j at ref
func (m *Mapping) Jacobian(ref geometry.Point) *mat.Dense {
	if m.Kind == Affine {
		return mat.DenseCopyOf(m.jac)
	}
	_, J := m.evaluate(ref, true)
	return J
}

// Inverse returns the reference coordinates of the physical point p. Affine
// cells are solved directly; other kinds use Newton iteration and return
// ErrInversionDivergence when the budget in cfg is exhausted. An exhausted
// budget also returns the last iterate when it is finite.
func (m *Mapping) Inverse(p geometry.Point, cfg NewtonConfig) (geometry.Point, error) {
	if len(p) != m.dim {
		panic(fmt.Sprintf("physical point dimension %d != %d", len(p), m.dim))
	}
	if m.Kind == Affine {
		rhs := mat.NewVecDense(m.dim, p.Sub(m.origin))
		var ref mat.VecDense
		ref.MulVec(m.jacInv, rhs)
		return geometry.Point(ref.RawVector().Data), nil
	}
	return m.newton(p, cfg)
}

func (m *Mapping) newton(p geometry.Point, cfg NewtonConfig) (geometry.Point, error) {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultNewton.MaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultNewton.Tolerance
	}
	tol := cfg.Tolerance * m.diameter

	// Initial guess from the linearisation about the cell center
	ref := ReferenceCenter(m.dim)
	x, J := m.evaluate(ref, true)
	step, err := solve(J, p.Sub(x))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInversionDivergence, err)
	}
	ref = ref.Add(step)

	x, J = m.evaluate(ref, true)
	res := x.Sub(p)
	norm := res.Norm()
	for it := 0; it < cfg.MaxIterations && norm > tol; it++ {
		delta, err := solve(J, res)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInversionDivergence, err)
		}

		// Halve the step while the residual grows
		alpha := 1.0
		var trial, trialRes geometry.Point
		for h := 0; h < 6; h++ {
			trial = ref.Sub(delta.Scale(alpha))
			trialRes = m.forwardNonAffine(trial).Sub(p)
			if trialRes.Norm() < norm {
				break
			}
			alpha *= 0.5
		}
		ref, res = trial, trialRes
		norm = res.Norm()
		if !ref.IsFinite() {
			break
		}
		_, J = m.evaluate(ref, true)
	}
	// NaN residuals fail this test as well
	if norm <= tol {
		return ref, nil
	}
	err = fmt.Errorf("%w: residual %.3e after %d iterations", ErrInversionDivergence, norm, cfg.MaxIterations)
	if !ref.IsFinite() {
		return nil, err
	}
	return ref, err
}

func solve(J *mat.Dense, rhs geometry.Point) (geometry.Point, error) {
	var x mat.VecDense
	if err := x.SolveVec(J, mat.NewVecDense(len(rhs), rhs.Clone())); err != nil {
		return nil, err
	}
	out := make(geometry.Point, len(rhs))
	copy(out, x.RawVector().Data)
	if !out.IsFinite() {
		return nil, errors.New("non-finite newton step")
	}
	return out, nil
}

// ChildMapping returns the mapping of child c after isotropic refinement. The
// child's support points are images of its Gauss-Lobatto nodes under this
// mapping, so children tile the parent exactly.
func (m *Mapping) ChildMapping(child int) (*Mapping, error) {
	if child < 0 || child >= 1<<m.dim {
		return nil, fmt.Errorf("child %d out of range for %dD cell", child, m.dim)
	}
	support := make([]geometry.Point, len(m.support))
	ref := make(geometry.Point, m.dim)
	for I := range m.support {
		m.nodeRef(I, ref)
		support[I] = m.Forward(ChildToParent(m.dim, child, ref))
	}
	return NewMapping(m.dim, m.order, support)
}

func (m *Mapping) affineForward(ref geometry.Point) geometry.Point {
	x := m.origin.Clone()
	for i := 0; i < m.dim; i++ {
		for j := 0; j < m.dim; j++ {
			x[i] += m.jac.At(i, j) * ref[j]
		}
	}
	return x
}

func (m *Mapping) forwardNonAffine(ref geometry.Point) geometry.Point {
	x, _ := m.evaluate(ref, false)
	return x
}

// evaluate computes the tensor Lagrange interpolant of the support points and
// optionally its Jacobian
func (m *Mapping) evaluate(ref geometry.Point, withJac bool) (geometry.Point, *mat.Dense) {
	n := m.order + 1
	phi := make([][]float64, m.dim)
	dphi := make([][]float64, m.dim)
	for a := 0; a < m.dim; a++ {
		phi[a] = make([]float64, n)
		if withJac {
			dphi[a] = make([]float64, n)
		}
		m.tables.basis.Eval(ref[a], phi[a], dphi[a])
	}

	x := make(geometry.Point, m.dim)
	var J *mat.Dense
	if withJac {
		J = mat.NewDense(m.dim, m.dim, nil)
	}
	idx := make([]int, m.dim)
	grad := make([]float64, m.dim)
	for I, sp := range m.support {
		tensorIndex(I, n, idx)
		w := 1.0
		for a := 0; a < m.dim; a++ {
			w *= phi[a][idx[a]]
		}
		for i := range x {
			x[i] += w * sp[i]
		}
		if !withJac {
			continue
		}
		for j := 0; j < m.dim; j++ {
			g := 1.0
			for a := 0; a < m.dim; a++ {
				if a == j {
					g *= dphi[a][idx[a]]
				} else {
					g *= phi[a][idx[a]]
				}
			}
			grad[j] = g
		}
		for i := 0; i < m.dim; i++ {
			for j := 0; j < m.dim; j++ {
				J.Set(i, j, J.At(i, j)+grad[j]*sp[i])
			}
		}
	}
	return x, J
}

// controlNetBox converts each coordinate of the support points to tensor
// Bernstein form and returns the box of the control net
func (m *Mapping) controlNetBox() geometry.BoundingBox {
	n := m.order + 1
	T := m.tables.toBernstein
	np := len(m.support)
	ctrl := make([]geometry.Point, np)
	for I := range ctrl {
		ctrl[I] = m.support[I].Clone()
	}

	line := mat.NewVecDense(n, nil)
	var out mat.VecDense
	stride := 1
	for a := 0; a < m.dim; a++ {
		for I := 0; I < np; I++ {
			// Visit each line along axis a once, from its first node
			if (I/stride)%n != 0 {
				continue
			}
			for c := 0; c < m.dim; c++ {
				for k := 0; k < n; k++ {
					line.SetVec(k, ctrl[I+k*stride][c])
				}
				out.MulVec(T, line)
				for k := 0; k < n; k++ {
					ctrl[I+k*stride][c] = out.AtVec(k)
				}
			}
		}
		stride *= n
	}
	return geometry.BoxOf(ctrl...)
}

// nodeRef writes the reference coordinates of support point I into ref
func (m *Mapping) nodeRef(I int, ref geometry.Point) {
	n := m.order + 1
	for a := 0; a < m.dim; a++ {
		ref[a] = m.tables.nodes[I%n]
		I /= n
	}
}

func tensorIndex(I, n int, idx []int) {
	for a := range idx {
		idx[a] = I % n
		I /= n
	}
}

func ipow(b, e int) int {
	r := 1
	for i := 0; i < e; i++ {
		r *= b
	}
	return r
}

// basisTables holds the 1D data shared by all mappings of one order
type basisTables struct {
	nodes       []float64
	basis       *gonudg.Lagrange1D
	toBernstein *mat.Dense
}

var (
	tablesMu    sync.Mutex
	tablesCache = map[int]*basisTables{}
)

func tablesFor(order int) (*basisTables, error) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if t, ok := tablesCache[order]; ok {
		return t, nil
	}
	nodes := gonudg.GaussLobatto01(order)
	basis, err := gonudg.NewLagrange1D(nodes)
	if err != nil {
		return nil, err
	}
	T, err := gonudg.LagrangeToBernstein(nodes)
	if err != nil {
		return nil, err
	}
	t := &basisTables{nodes: nodes, basis: basis, toBernstein: T}
	tablesCache[order] = t
	return t, nil
}

// ReferenceNodes returns the 1D support node positions in [0,1] for the given order
func ReferenceNodes(order int) ([]float64, error) {
	t, err := tablesFor(order)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.nodes))
	copy(out, t.nodes)
	return out, nil
}
