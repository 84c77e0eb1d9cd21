package element

import "fmt"

type ElementGeometry uint8

// Hypercube reference cells, one per spatial dimension
const (
	Line ElementGeometry = iota + 1
	Rectangle
	Hex
)

// HypercubeOf returns the hypercube geometry for the given spatial dimension
func HypercubeOf(dim int) (ElementGeometry, error) {
	switch dim {
	case 1:
		return Line, nil
	case 2:
		return Rectangle, nil
	case 3:
		return Hex, nil
	}
	return 0, fmt.Errorf("unsupported dimension %d, must be 1, 2 or 3", dim)
}

func (g ElementGeometry) Dimensions() int { return int(g) }

// NChildren returns the number of children produced by isotropic refinement
func (g ElementGeometry) NChildren() int { return 1 << g.Dimensions() }

func (g ElementGeometry) String() string {
	switch g {
	case Line:
		return "Line"
	case Rectangle:
		return "Rectangle"
	case Hex:
		return "Hex"
	}
	return fmt.Sprintf("ElementGeometry(%d)", uint8(g))
}
