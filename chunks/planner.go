// Package chunks implements the Chunk Planner: given a column's declared
// shape, element itemsize, a byte ceiling, and an optional suggested
// chunking, it produces a per-axis partition into block sizes whose product
// of itemsizes stays at or below the ceiling whenever the explicit (non-
// "auto") axes alone fit within it. Explicit block sizes are never reduced,
// so when they alone exceed the ceiling every "auto" axis gets block size 1
// and the chunk exceeds the ceiling.
package chunks

import "math"

// DefaultAreaDetectorFramesPerChunk is K in rule 2: for rank-4 shapes the
// first two axes default to min(K, extent) rather than full extent, so a
// single-frame read from a large area-detector series does not require
// materializing the whole run.
const DefaultAreaDetectorFramesPerChunk = 10

// Suggestion is the per-axis chunking hint taken from a descriptor's
// data_keys[key].chunks, or computed as a default. Each element is either
// the string "auto" or a positive explicit block size.
type Suggestion []interface{}

// Plan computes the chunk partition for shape given itemSize bytes per
// element, a byteCeiling, and an optional suggestion (pass nil to use the
// rule-driven default). The result is one partition per axis; summing a
// partition reconstructs the axis extent exactly.
func Plan(shape []int, itemSize int, byteCeiling int64, suggestion Suggestion) [][]int {
	// Rule 1: degenerate shapes collapse to a single full-shape chunk.
	if itemSize == 0 || hasZeroExtent(shape) {
		return fullShapeChunks(shape)
	}

	if suggestion == nil {
		suggestion = defaultSuggestion(shape)
	}
	if len(suggestion) != len(shape) {
		// A malformed suggestion (wrong rank) is treated as absent;
		// callers should validate before this point, but planning
		// must never panic on attacker- or writer-controlled metadata.
		suggestion = defaultSuggestion(shape)
	}

	partitions := make([][]int, len(shape))

	// First pass: honor every explicit (non-"auto") axis as-is.
	fixedBytes := int64(itemSize)
	autoAxes := []int{}
	for i, extent := range shape {
		if s, ok := suggestion[i].(int); ok && s > 0 {
			partitions[i] = partitionAxis(extent, s)
			fixedBytes *= int64(minInt(s, extent))
		} else {
			autoAxes = append(autoAxes, i)
		}
	}

	// Second pass: size "auto" axes, greedily preferring later axes, so
	// that the product of chunk extents times itemSize stays at or below
	// the ceiling (when the explicit axes leave no room, each auto axis
	// gets block size 1).
	remaining := byteCeiling / fixedBytes
	if remaining < 1 {
		remaining = 1
	}
	for i := len(autoAxes) - 1; i >= 0; i-- {
		axis := autoAxes[i]
		extent := shape[axis]
		block := extent
		if extent > 0 {
			block = int(minInt64(int64(extent), remaining))
			if block < 1 {
				block = 1
			}
		}
		partitions[axis] = partitionAxis(extent, block)
		remaining = remaining / int64(maxInt(block, 1))
		if remaining < 1 {
			remaining = 1
		}
	}

	return partitions
}

func defaultSuggestion(shape []int) Suggestion {
	// Rule 2: rank-4 area-detector special case.
	if len(shape) == 4 {
		return Suggestion{
			minInt(DefaultAreaDetectorFramesPerChunk, shape[0]),
			minInt(DefaultAreaDetectorFramesPerChunk, shape[1]),
			"auto",
			"auto",
		}
	}
	// Rule 3: otherwise every axis is "auto".
	s := make(Suggestion, len(shape))
	for i := range s {
		s[i] = "auto"
	}
	return s
}

// partitionAxis splits extent into blocks of size block, with a final
// shorter block absorbing the remainder. Sum of the partition equals extent
// exactly, satisfying the round-trip property.
func partitionAxis(extent, block int) []int {
	if extent == 0 {
		return []int{0}
	}
	if block <= 0 {
		block = extent
	}
	n := int(math.Ceil(float64(extent) / float64(block)))
	out := make([]int, 0, n)
	remaining := extent
	for remaining > 0 {
		b := block
		if b > remaining {
			b = remaining
		}
		out = append(out, b)
		remaining -= b
	}
	return out
}

func fullShapeChunks(shape []int) [][]int {
	out := make([][]int, len(shape))
	for i, extent := range shape {
		out[i] = []int{extent}
	}
	return out
}

func hasZeroExtent(shape []int) bool {
	for _, e := range shape {
		if e == 0 {
			return true
		}
	}
	return false
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
