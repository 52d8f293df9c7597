package materialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
)

func interfaceRows(rows [][]interface{}) []interface{} {
	out := make([]interface{}, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func TestValidateEventPayload_ExactMatch(t *testing.T) {
	v := interfaceRows([][]interface{}{{1, 2}, {3, 4}, {5, 6}})
	out, err := ValidateEventPayload("run", "primary", "x", []int{3, 2}, v)
	require.NoError(t, err)
	assert.Equal(t, v, out)
}

func TestValidateEventPayload_PadsShortAxisByEdgeReplication(t *testing.T) {
	row := func(n int) []interface{} { return []interface{}{n, n, n, n, n} }
	v := interfaceRows([][]interface{}{row(1), row(2), row(3), row(4)})
	out, err := ValidateEventPayload("run", "primary", "x", []int{5, 5}, v)
	require.NoError(t, err)
	resized, ok := out.([]interface{})
	require.True(t, ok)
	assert.Len(t, resized, 5)
	assert.Equal(t, row(4), resized[4])
}

func TestValidateEventPayload_TrimsLongAxis(t *testing.T) {
	v := interfaceRows([][]interface{}{{1}, {2}, {3}, {4}})
	out, err := ValidateEventPayload("run", "primary", "x", []int{3, 1}, v)
	require.NoError(t, err)
	resized, ok := out.([]interface{})
	require.True(t, ok)
	assert.Len(t, resized, 3)
	assert.Equal(t, []interface{}{1}, resized[0])
}

func TestValidateEventPayload_DeficitBeyondToleranceFails(t *testing.T) {
	v := interfaceRows([][]interface{}{{1, 1}})
	_, err := ValidateEventPayload("run", "primary", "x", []int{10, 10}, v)
	require.Error(t, err)
}

func TestValidateEventPayload_DeficitWithinToleranceOnNonLeadingAxisPads(t *testing.T) {
	v := interfaceRows([][]interface{}{{1, 1, 1}, {2, 2, 2}})
	out, err := ValidateEventPayload("run", "primary", "x", []int{2, 5}, v)
	require.NoError(t, err)
	resized, ok := out.([]interface{})
	require.True(t, ok)
	row0, ok := resized[0].([]interface{})
	require.True(t, ok)
	assert.Len(t, row0, 5)
	assert.Equal(t, 1, row0[4])
}

func TestValidateEventPayload_RankMismatchFails(t *testing.T) {
	v := []interface{}{1, 2, 3}
	_, err := ValidateEventPayload("run", "primary", "x", []int{3, 3}, v)
	require.Error(t, err)
}

func TestValidateEventPayload_ScalarDeclaredShapePassesThrough(t *testing.T) {
	out, err := ValidateEventPayload("run", "primary", "x", nil, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, out)
}

func TestItemSize_ScalarDtype(t *testing.T) {
	assert.Equal(t, 8, ItemSize(docmodel.DataKey{DtypeStr: "float64"}))
	assert.Equal(t, 4, ItemSize(docmodel.DataKey{Dtype: "float32"}))
}

func TestItemSize_StructuredDtypeSumsFields(t *testing.T) {
	key := docmodel.DataKey{
		DtypeDescr: []docmodel.DtypeField{
			{Name: "x", Type: "float64"},
			{Name: "y", Type: "float64"},
			{Name: "flag", Type: "bool"},
		},
	}
	assert.Equal(t, 17, ItemSize(key))
}
