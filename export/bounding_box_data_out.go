package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/notargets/DGLocate/geometry"
	"gonum.org/v1/gonum/mat"
)

var ErrDimensionMismatch = errors.New("dimension mismatch")

// Patch is the drawable form of one box: its 2^d corners and, once datasets
// are attached, a names-by-vertices value matrix.
type Patch struct {
	Vertices      []geometry.Point
	PatchIndex    int
	NSubdivisions int
	Data          *mat.Dense
}

// BoundingBoxDataOut turns a list of boxes into patches for visualization
type BoundingBoxDataOut struct {
	dim          int
	patches      []Patch
	datasetNames []string
}

// BuildPatches replaces any previous patches with one patch per box and
// clears the dataset names. All boxes must share one dimension.
func (out *BoundingBoxDataOut) BuildPatches(boxes []geometry.BoundingBox) error {
	dim := 0
	if len(boxes) > 0 {
		dim = boxes[0].Dim()
	}
	patches := make([]Patch, len(boxes))
	for i, box := range boxes {
		if box.Dim() != dim || len(box.Max) != dim {
			return fmt.Errorf("%w: box %d has dimension %d, want %d", ErrDimensionMismatch, i, box.Dim(), dim)
		}
		patches[i] = Patch{
			Vertices:      box.Vertices(),
			PatchIndex:    i,
			NSubdivisions: 1,
		}
	}
	out.dim = dim
	out.patches = patches
	out.datasetNames = nil
	return nil
}

// AddDatasets attaches datasets[i] to patch i, replicating each value on all
// of the patch's vertices. There must be one dataset per patch and each must
// hold one value per name; on mismatch nothing is modified.
func (out *BoundingBoxDataOut) AddDatasets(datasets [][]float64, names []string) error {
	if len(datasets) != len(out.patches) {
		return fmt.Errorf("%w: %d datasets for %d patches", ErrDimensionMismatch, len(datasets), len(out.patches))
	}
	for i, ds := range datasets {
		if len(ds) != len(names) {
			return fmt.Errorf("%w: dataset %d has %d values for %d names", ErrDimensionMismatch, i, len(ds), len(names))
		}
	}

	nv := 1 << out.dim
	for i, ds := range datasets {
		if len(names) == 0 {
			out.patches[i].Data = nil
			continue
		}
		data := mat.NewDense(len(names), nv, nil)
		for j, v := range ds {
			for k := 0; k < nv; k++ {
				data.Set(j, k, v)
			}
		}
		out.patches[i].Data = data
	}
	out.datasetNames = append([]string(nil), names...)
	return nil
}

// Patches returns the generated patches
func (out *BoundingBoxDataOut) Patches() []Patch { return out.patches }

// DatasetNames returns the names given to the last AddDatasets call
func (out *BoundingBoxDataOut) DatasetNames() []string {
	return append([]string(nil), out.datasetNames...)
}

// WriteGnuplot writes every box edge as a two-point line segment followed by
// a blank line, one "coordinates values" row per point.
func (out *BoundingBoxDataOut) WriteGnuplot(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprint(bw, "#")
	for i := 0; i < out.dim; i++ {
		fmt.Fprintf(bw, " x%d", i)
	}
	for _, name := range out.datasetNames {
		fmt.Fprintf(bw, " %s", name)
	}
	fmt.Fprintln(bw)

	nv := 1 << out.dim
	for _, patch := range out.patches {
		// Corners joined by an edge differ in exactly one bit
		for v := 0; v < nv; v++ {
			for axis := 0; axis < out.dim; axis++ {
				u := v | 1<<axis
				if u == v {
					continue
				}
				writeRow(bw, patch, v)
				writeRow(bw, patch, u)
				fmt.Fprintln(bw)
			}
		}
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, patch Patch, v int) {
	for i, x := range patch.Vertices[v] {
		if i > 0 {
			w.WriteByte(' ')
		}
		w.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	if patch.Data != nil {
		rows, _ := patch.Data.Dims()
		for j := 0; j < rows; j++ {
			w.WriteByte(' ')
			w.WriteString(strconv.FormatFloat(patch.Data.At(j, v), 'g', -1, 64))
		}
	}
	w.WriteByte('\n')
}
