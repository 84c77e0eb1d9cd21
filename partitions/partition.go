package partitions

import (
	"fmt"
	"math"
)

// Partition is a set of work items processed together by one worker
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Item membership, in processing order
	Items    []int // Global item indices in this partition
	NumItems int   // Number of items
}

// PartitionLayout is the complete decomposition of a work set
type PartitionLayout struct {
	// All partitions
	Partitions []Partition

	// Global sizing information
	MaxItems      int // max(NumItems) across all partitions
	TotalItems    int // Sum of all items across partitions
	NumPartitions int // Total number of partitions

	// Item to partition mapping
	IToP []int // Length TotalItems: item i belongs to partition IToP[i]
}

// GetPartition returns the partition containing item i
func (pl *PartitionLayout) GetPartition(item int) int {
	if item < 0 || item >= len(pl.IToP) {
		return -1
	}
	return pl.IToP[item]
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	actualMax, total := 0, 0
	for _, p := range pl.Partitions {
		if p.NumItems != len(p.Items) {
			return fmt.Errorf("partition %d: NumItems %d != len(Items) %d",
				p.ID, p.NumItems, len(p.Items))
		}
		actualMax = max(actualMax, p.NumItems)
		total += p.NumItems
		for _, it := range p.Items {
			if pl.GetPartition(it) != p.ID {
				return fmt.Errorf("item %d listed in partition %d but mapped to %d",
					it, p.ID, pl.GetPartition(it))
			}
		}
	}
	if actualMax != pl.MaxItems {
		return fmt.Errorf("computed MaxItems %d != stored MaxItems %d",
			actualMax, pl.MaxItems)
	}
	if total != pl.TotalItems {
		return fmt.Errorf("partitions hold %d items, layout has %d", total, pl.TotalItems)
	}
	return nil
}

// PartitionStatistics computes load balance metrics
func (pl *PartitionLayout) PartitionStatistics() PartitionStats {
	stats := PartitionStats{
		NumPartitions: pl.NumPartitions,
		MinItems:      math.MaxInt32,
		MaxItems:      0,
		AvgItems:      float64(pl.TotalItems) / float64(pl.NumPartitions),
	}

	for _, p := range pl.Partitions {
		if p.NumItems < stats.MinItems {
			stats.MinItems = p.NumItems
		}
		if p.NumItems > stats.MaxItems {
			stats.MaxItems = p.NumItems
		}
	}

	if stats.AvgItems > 0 {
		stats.Imbalance = float64(stats.MaxItems) / stats.AvgItems
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinItems      int
	MaxItems      int
	AvgItems      float64
	Imbalance     float64 // MaxItems / AvgItems
}
