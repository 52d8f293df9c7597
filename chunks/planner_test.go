package chunks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sum(axis []int) int {
	total := 0
	for _, v := range axis {
		total += v
	}
	return total
}

func TestPlan_ZeroExtentCollapsesToFullShape(t *testing.T) {
	out := Plan([]int{0, 5}, 8, 1024, nil)
	assert.Equal(t, [][]int{{0}, {5}}, out)
}

func TestPlan_ZeroItemSizeCollapsesToFullShape(t *testing.T) {
	out := Plan([]int{3, 4}, 0, 1024, nil)
	assert.Equal(t, [][]int{{3}, {4}}, out)
}

func TestPlan_RoundTripSumsToExtent(t *testing.T) {
	shapes := [][]int{
		{100},
		{7, 13},
		{10, 10, 10, 10},
		{2048, 2048},
	}
	for _, shape := range shapes {
		out := Plan(shape, 8, 1<<16, nil)
		for axis, extent := range shape {
			assert.Equal(t, extent, sum(out[axis]), "axis %d of shape %v", axis, shape)
		}
	}
}

func TestPlan_Rank4AreaDetectorDefault(t *testing.T) {
	// 20 frames of a 512x512 detector: the first two axes should default
	// to min(K, extent), not collapse into size-1 chunks.
	out := Plan([]int{20, 512, 512, 1}, 8, 1<<24, nil)

	assert.Equal(t, 20, sum(out[0]))
	assert.Equal(t, 512, sum(out[1]))
	assert.LessOrEqual(t, out[0][0], DefaultAreaDetectorFramesPerChunk)
}

func TestPlan_ExplicitChunksOverrideDefault(t *testing.T) {
	out := Plan([]int{100, 100}, 8, 1<<20, Suggestion{25, "auto"})
	assert.Equal(t, []int{25, 25, 25, 25}, out[0])
	assert.Equal(t, 100, sum(out[1]))
}

func TestPlan_ByteCeilingRespected(t *testing.T) {
	shape := []int{1000, 1000}
	itemSize := 8
	ceiling := int64(1 << 16) // 64KB
	out := Plan(shape, itemSize, ceiling, nil)

	for _, blockA := range out[0] {
		for _, blockB := range out[1] {
			bytes := int64(blockA) * int64(blockB) * int64(itemSize)
			assert.LessOrEqual(t, bytes, ceiling)
		}
	}
}

func TestPlan_MalformedSuggestionFallsBackToDefault(t *testing.T) {
	out := Plan([]int{10, 10}, 8, 1<<20, Suggestion{"auto"}) // wrong rank
	assert.Equal(t, 10, sum(out[0]))
	assert.Equal(t, 10, sum(out[1]))
}
