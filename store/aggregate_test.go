package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDedupeAndSortBySeqNum_LatestWins covers S2 from the test plan: two
// events share seq_num=1, the later-Time one must win.
func TestDedupeAndSortBySeqNum_LatestWins(t *testing.T) {
	rows := []EventRow{
		{SeqNum: 1, Time: 1.0, Data: map[string]interface{}{"x": 10}},
		{SeqNum: 1, Time: 2.0, Data: map[string]interface{}{"x": 11}},
		{SeqNum: 2, Time: 3.0, Data: map[string]interface{}{"x": 20}},
	}

	out := dedupeAndSortBySeqNum(rows)

	if assert.Len(t, out, 2) {
		assert.Equal(t, int64(1), out[0].SeqNum)
		assert.Equal(t, 11, out[0].Data["x"])
		assert.Equal(t, int64(2), out[1].SeqNum)
		assert.Equal(t, 20, out[1].Data["x"])
	}
}

func TestDedupeAndSortBySeqNum_SortsUnorderedInput(t *testing.T) {
	rows := []EventRow{
		{SeqNum: 3, Time: 3.0},
		{SeqNum: 1, Time: 1.0},
		{SeqNum: 2, Time: 2.0},
	}

	out := dedupeAndSortBySeqNum(rows)

	if assert.Len(t, out, 3) {
		assert.Equal(t, []int64{1, 2, 3}, []int64{out[0].SeqNum, out[1].SeqNum, out[2].SeqNum})
	}
}

func TestDedupeAndSortBySeqNum_Empty(t *testing.T) {
	assert.Empty(t, dedupeAndSortBySeqNum(nil))
}
