package mesh

import (
	"math"
	"testing"

	"github.com/notargets/DGLocate/element"
	"github.com/notargets/DGLocate/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHyperCubeRefineGlobal(t *testing.T) {
	f, err := HyperCube(2, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, f.NumActive())
	g0 := f.Generation()

	require.NoError(t, f.RefineGlobal(2))
	assert.Equal(t, 16, f.NumActive())
	assert.Equal(t, 1+4+16, f.Len())
	assert.Equal(t, 2, f.MaxLevel())
	assert.Equal(t, g0+2, f.Generation())
	assert.Equal(t, []Handle{0}, f.Roots())

	var area float64
	for _, h := range f.ActiveCells() {
		c := f.Cell(h)
		assert.True(t, c.Active())
		assert.Equal(t, 2, c.Level)
		assert.Equal(t, Handle(0), c.Root)
		assert.Equal(t, element.Affine, c.Mapping.Kind)
		area += c.Mapping.BoundingBox().Volume()
	}
	assert.InDelta(t, 1, area, 1e-14)

	// Children tile their parent and are numbered like reference vertices
	root := f.Cell(0)
	require.Len(t, root.Children, 4)
	c3 := f.Cell(root.Children[3])
	assert.True(t, c3.Vertices()[0].Equal(geometry.NewPoint(0.5, 0.5), 1e-15))
	assert.True(t, c3.Vertices()[3].Equal(geometry.NewPoint(1, 1), 1e-15))
	assert.Equal(t, Handle(0), c3.Parent)
	assert.Equal(t, NoHandle, root.Parent)
	assert.Empty(t, root.Neighbors)
}

func TestNeighborsOnUniformGrid(t *testing.T) {
	f, err := SubdividedHyperRectangle([]int{4, 4}, geometry.NewPoint(0, 0), geometry.NewPoint(1, 1))
	require.NoError(t, err)
	require.Equal(t, 16, f.NumActive())

	// Roots are lexicographic with x fastest: handle = i + 4*j
	corner := f.Cell(0)
	assert.Equal(t, []Handle{1, 4, 5}, corner.Neighbors)
	interior := f.Cell(5)
	assert.Equal(t, []Handle{0, 1, 2, 4, 6, 8, 9, 10}, interior.Neighbors)

	for _, h := range f.ActiveCells() {
		for _, nb := range f.Cell(h).Neighbors {
			assert.Contains(t, f.Cell(nb).Neighbors, h, "adjacency of %d and %d is not symmetric", h, nb)
		}
	}
}

func TestAdaptiveRefinementHangingNeighbors(t *testing.T) {
	f, err := SubdividedHyperRectangle([]int{2, 1}, geometry.NewPoint(0, 0), geometry.NewPoint(2, 1))
	require.NoError(t, err)
	g := f.Generation()

	require.NoError(t, f.Refine(0, 0))
	assert.Equal(t, g+1, f.Generation())
	assert.Equal(t, 5, f.NumActive())
	assert.False(t, f.IsActive(0))

	// The coarse cell sees the two fine cells along the shared face, and they see it
	coarse := f.Cell(1)
	kids := f.Cell(0).Children
	assert.Equal(t, []Handle{kids[1], kids[3]}, coarse.Neighbors)
	assert.Contains(t, f.Cell(kids[1]).Neighbors, Handle(1))
	assert.NotContains(t, f.Cell(kids[0]).Neighbors, Handle(1))

	assert.ErrorIs(t, f.Refine(42), ErrInvalidHandle)
	assert.Error(t, f.Refine(0))
	assert.NoError(t, f.Refine())
	assert.Equal(t, g+1, f.Generation())
	assert.Nil(t, f.Cell(-1))
}

func TestForestFromMappingsRefinesByRestriction(t *testing.T) {
	m, err := element.NewQ1Mapping([]geometry.Point{
		geometry.NewPoint(0, 0), geometry.NewPoint(2, 0),
		geometry.NewPoint(0.5, 1), geometry.NewPoint(1.2, 1.4),
	})
	require.NoError(t, err)
	f, err := NewForestFromMappings([]*element.Mapping{m})
	require.NoError(t, err)
	require.NoError(t, f.RefineGlobal(1))

	for c, h := range f.Cell(0).Children {
		child := f.Cell(h)
		assert.Equal(t, element.Multilinear, child.Mapping.Kind)
		expected := m.Forward(element.ChildToParent(2, c, geometry.NewPoint(0.25, 0.75)))
		assert.True(t, child.Mapping.Forward(geometry.NewPoint(0.25, 0.75)).Equal(expected, 1e-14))
	}

	_, err = NewForestFromMappings(nil)
	assert.Error(t, err)
}

func TestGeneratorErrors(t *testing.T) {
	_, err := HyperCube(4, 0, 1)
	assert.Error(t, err)
	_, err = HyperCube(2, 1, 1)
	assert.Error(t, err)
	_, err = SubdividedHyperRectangle([]int{2, 0}, geometry.NewPoint(0, 0), geometry.NewPoint(1, 1))
	assert.Error(t, err)
	_, err = SubdividedHyperRectangle([]int{2}, geometry.NewPoint(0, 0), geometry.NewPoint(1, 1))
	assert.Error(t, err)
	_, err = HyperBall(geometry.NewPoint(0), 1, 2)
	assert.Error(t, err)
	_, err = HyperBall(geometry.NewPoint(0, 0), -1, 2)
	assert.Error(t, err)
	_, err = NewForest(2, 1, nil)
	assert.Error(t, err)
}

func TestHyperBall(t *testing.T) {
	center := geometry.NewPoint(0.5, -1)
	f, err := HyperBall(center, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, f.NumActive())
	assert.Equal(t, element.Affine, f.Cell(0).Mapping.Kind)
	for _, h := range f.Roots()[1:] {
		assert.Equal(t, element.Curved, f.Cell(h).Mapping.Kind)
	}

	require.NoError(t, f.RefineGlobal(2))
	assert.Equal(t, 80, f.NumActive())

	// Refined boundary cells stay on the sphere
	for _, h := range f.ActiveCells() {
		m := f.Cell(h).Mapping
		for _, v := range m.Vertices() {
			assert.LessOrEqual(t, v.Distance(center), 2+1e-12)
		}
		for _, s := range []float64{0.1, 0.5, 0.9} {
			x := m.Forward(geometry.NewPoint(1, s))
			if math.Abs(x.Distance(center)-2) < 0.1 {
				assert.InDelta(t, 2, x.Distance(center), 1e-5)
			}
		}
	}
	assert.Contains(t, f.String(), "Active cells: 80")
	assert.Contains(t, f.String(), "Curved")
	assert.Contains(t, f.String(), "Dimensions: 2 (Rectangle cells)")
}

func TestHyperBall3D(t *testing.T) {
	f, err := HyperBall(geometry.NewPoint(0, 0, 0), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, f.NumActive())
	require.NoError(t, f.RefineGlobal(1))
	assert.Equal(t, 56, f.NumActive())
	for _, h := range f.ActiveCells() {
		assert.NotEmpty(t, f.Cell(h).Neighbors)
	}
}
