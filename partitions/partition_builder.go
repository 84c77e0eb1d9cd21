package partitions

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrMissingKeys is returned when SpaceFillingCurve partitioning has no item keys
var ErrMissingKeys = errors.New("space filling curve partitioning needs one key per item")

// PartitionBuilder splits NumItems work items into partitions
type PartitionBuilder struct {
	NumItems int

	// Partitioning parameters
	TargetPartitionSize int // Desired items per partition, used when NumPartitions is zero
	NumPartitions       int // Fixed partition count, capped at NumItems
	Strategy            PartitionStrategy

	// Curve position of each item, required by SpaceFillingCurve
	Keys []uint64
}

// PartitionStrategy defines how items are grouped
type PartitionStrategy int

const (
	BlockPartition    PartitionStrategy = iota // Consecutive items
	RoundRobin                                 // Distribute cyclically
	SpaceFillingCurve                          // Consecutive runs along a Hilbert/Morton ordering
)

func (s PartitionStrategy) String() string {
	switch s {
	case BlockPartition:
		return "Block"
	case RoundRobin:
		return "RoundRobin"
	case SpaceFillingCurve:
		return "SpaceFillingCurve"
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// BuildPartitions creates a partition layout
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if pb.NumItems < 0 {
		return nil, fmt.Errorf("negative item count %d", pb.NumItems)
	}
	if pb.Strategy == SpaceFillingCurve && len(pb.Keys) != pb.NumItems {
		return nil, fmt.Errorf("%w: got %d keys for %d items", ErrMissingKeys, len(pb.Keys), pb.NumItems)
	}

	numPartitions := pb.calculateNumPartitions()
	order := pb.itemOrder()
	iToP := pb.partitionItems(order, numPartitions)
	partitions := pb.createPartitions(order, iToP, numPartitions)

	maxItems := 0
	for _, p := range partitions {
		maxItems = max(maxItems, p.NumItems)
	}

	layout := &PartitionLayout{
		Partitions:    partitions,
		MaxItems:      maxItems,
		TotalItems:    pb.NumItems,
		NumPartitions: numPartitions,
		IToP:          iToP,
	}

	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

// calculateNumPartitions determines the partition count
func (pb *PartitionBuilder) calculateNumPartitions() int {
	numPartitions := pb.NumPartitions
	if numPartitions <= 0 {
		size := max(pb.TargetPartitionSize, 1)
		numPartitions = int(math.Ceil(float64(pb.NumItems) / float64(size)))
	}
	// No empty partitions, but always at least one
	numPartitions = min(numPartitions, pb.NumItems)
	return max(numPartitions, 1)
}

// itemOrder is the sequence in which items are dealt out to partitions
func (pb *PartitionBuilder) itemOrder() []int {
	order := make([]int, pb.NumItems)
	for i := range order {
		order[i] = i
	}
	if pb.Strategy == SpaceFillingCurve {
		sort.SliceStable(order, func(a, b int) bool {
			return pb.Keys[order[a]] < pb.Keys[order[b]]
		})
	}
	return order
}

// partitionItems assigns items to partitions
func (pb *PartitionBuilder) partitionItems(order []int, numPartitions int) []int {
	iToP := make([]int, pb.NumItems)

	switch pb.Strategy {
	case RoundRobin:
		for pos, item := range order {
			iToP[item] = pos % numPartitions
		}

	default:
		// Block and curve partitioning both cut the ordering into even runs
		for pos, item := range order {
			iToP[item] = pos * numPartitions / max(pb.NumItems, 1)
		}
	}

	return iToP
}

// createPartitions builds partition structures from item assignments
func (pb *PartitionBuilder) createPartitions(order, iToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	for i := range partitions {
		partitions[i] = Partition{
			ID:    i,
			Items: make([]int, 0, pb.NumItems/numPartitions+1),
		}
	}

	for _, item := range order {
		part := iToP[item]
		partitions[part].Items = append(partitions[part].Items, item)
		partitions[part].NumItems++
	}

	return partitions
}
