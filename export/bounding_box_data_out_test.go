package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/notargets/DGLocate/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitBoxes(n int) []geometry.BoundingBox {
	boxes := make([]geometry.BoundingBox, n)
	for i := range boxes {
		x := float64(i)
		boxes[i] = geometry.NewBoundingBox(geometry.NewPoint(x, 0), geometry.NewPoint(x+1, 1))
	}
	return boxes
}

func TestBuildPatches(t *testing.T) {
	var out BoundingBoxDataOut
	require.NoError(t, out.BuildPatches(unitBoxes(3)))
	patches := out.Patches()
	require.Len(t, patches, 3)
	for i, p := range patches {
		assert.Equal(t, i, p.PatchIndex)
		assert.Equal(t, 1, p.NSubdivisions)
		require.Len(t, p.Vertices, 4)
		assert.Equal(t, geometry.NewPoint(float64(i), 0), p.Vertices[0])
		assert.Equal(t, geometry.NewPoint(float64(i)+1, 1), p.Vertices[3])
		assert.Nil(t, p.Data)
	}

	box3 := geometry.NewBoundingBox(geometry.NewPoint(0, 0, 0), geometry.NewPoint(1, 2, 3))
	require.NoError(t, out.BuildPatches([]geometry.BoundingBox{box3}))
	assert.Len(t, out.Patches()[0].Vertices, 8)

	err := out.BuildPatches([]geometry.BoundingBox{unitBoxes(1)[0], box3})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestAddDatasets(t *testing.T) {
	t.Run("replicated on vertices", func(t *testing.T) {
		var out BoundingBoxDataOut
		require.NoError(t, out.BuildPatches(unitBoxes(2)))
		require.NoError(t, out.AddDatasets([][]float64{{1, 2}, {3, 4}}, []string{"level", "owner"}))
		assert.Equal(t, []string{"level", "owner"}, out.DatasetNames())
		data := out.Patches()[1].Data
		rows, cols := data.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 4, cols)
		for k := 0; k < cols; k++ {
			assert.Equal(t, 3.0, data.At(0, k))
			assert.Equal(t, 4.0, data.At(1, k))
		}
	})

	t.Run("dataset count mismatch", func(t *testing.T) {
		var out BoundingBoxDataOut
		require.NoError(t, out.BuildPatches(unitBoxes(5)))
		datasets := [][]float64{{1}, {2}, {3}, {4}}
		err := out.AddDatasets(datasets, []string{"a"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Empty(t, out.DatasetNames())
		for _, p := range out.Patches() {
			assert.Nil(t, p.Data)
		}
	})

	t.Run("entry length mismatch", func(t *testing.T) {
		var out BoundingBoxDataOut
		require.NoError(t, out.BuildPatches(unitBoxes(2)))
		err := out.AddDatasets([][]float64{{1, 2, 3}, {1, 2}}, []string{"a", "b", "c"})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.Empty(t, out.DatasetNames())
		assert.Nil(t, out.Patches()[0].Data)
	})
}

func TestWriteGnuplot(t *testing.T) {
	var out BoundingBoxDataOut
	require.NoError(t, out.BuildPatches(unitBoxes(2)))
	require.NoError(t, out.AddDatasets([][]float64{{7}, {8}}, []string{"level"}))

	var buf bytes.Buffer
	require.NoError(t, out.WriteGnuplot(&buf))
	text := buf.String()
	assert.True(t, strings.HasPrefix(text, "# x0 x1 level\n"))
	// Two boxes with four edges each, one blank line per edge
	assert.Equal(t, 8, strings.Count(text, "\n\n"))
	assert.Contains(t, text, "0 0 7\n1 0 7\n\n")
	assert.Contains(t, text, "2 1 8\n")
}
