package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildKeysetSelector_FirstPage(t *testing.T) {
	sel := buildKeysetSelector([]SortKey{{Field: "scan_id"}, {Field: "uid"}}, nil)
	assert.Equal(t, map[string]interface{}{}, sel)
}

func TestBuildKeysetSelector_SingleKeyAscending(t *testing.T) {
	last := map[string]interface{}{"uid": "abc"}
	sel := buildKeysetSelector([]SortKey{{Field: "uid"}}, last)

	clauses, ok := sel["$or"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, clauses, 1)
	assert.Equal(t, map[string]interface{}{
		"uid": map[string]interface{}{"$gt": "abc"},
	}, clauses[0])
}

func TestBuildKeysetSelector_CompositeSortWithTiebreaker(t *testing.T) {
	last := map[string]interface{}{"scan_id": float64(5), "uid": "run-5"}
	sel := buildKeysetSelector([]SortKey{{Field: "scan_id"}, {Field: "uid"}}, last)

	clauses, ok := sel["$or"].([]interface{})
	assert.True(t, ok)
	assert.Len(t, clauses, 2)

	assert.Equal(t, map[string]interface{}{
		"scan_id": map[string]interface{}{"$gt": float64(5)},
	}, clauses[0])

	assert.Equal(t, map[string]interface{}{
		"scan_id": map[string]interface{}{"$eq": float64(5)},
		"uid":     map[string]interface{}{"$gt": "run-5"},
	}, clauses[1])
}

func TestBuildKeysetSelector_DescendingSort(t *testing.T) {
	last := map[string]interface{}{"scan_id": float64(10)}
	sel := buildKeysetSelector([]SortKey{{Field: "scan_id", Desc: true}}, last)

	clauses := sel["$or"].([]interface{})
	assert.Equal(t, map[string]interface{}{
		"scan_id": map[string]interface{}{"$lt": float64(10)},
	}, clauses[0])
}

func TestMangoSort(t *testing.T) {
	out := mangoSort([]SortKey{{Field: "time"}, {Field: "uid", Desc: true}})
	assert.Equal(t, []map[string]string{
		{"time": "asc"},
		{"uid": "desc"},
	}, out)
}
