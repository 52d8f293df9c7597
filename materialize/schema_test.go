package materialize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
)

func TestBuildSchema_ResolvesObjectFromObjectKeys(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name: "primary",
			DataKeys: map[string]docmodel.DataKey{
				"det_x": {Dtype: "number", DtypeStr: "float64", Shape: []int{}},
			},
			ObjectKeys: map[string][]string{
				"det": {"det_x"},
			},
		},
	}
	schema, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.NoError(t, err)
	col, ok := schema.Columns["det_x"]
	assert.True(t, ok)
	assert.Equal(t, "det", col.Object)
	assert.Equal(t, ElementFloat64, col.ElementKind)
	assert.Equal(t, []string{"time"}, col.Dims)
}

func TestBuildSchema_ConfigColumnsFromConfiguration(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name:       "primary",
			DataKeys:   map[string]docmodel.DataKey{},
			ObjectKeys: map[string][]string{},
			Configuration: map[string]docmodel.ObjectConfiguration{
				"det": {
					DataKeys: map[string]docmodel.DataKey{
						"exposure_time": {Dtype: "number", DtypeStr: "float64"},
					},
				},
			},
		},
	}
	schema, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.NoError(t, err)
	_, ok := schema.ConfigColumns["det_exposure_time"]
	assert.True(t, ok)
}

func TestBuildSchema_EmptyDescriptorsYieldsEmptySchema(t *testing.T) {
	schema, err := BuildSchema("run-1", "primary", nil, 1<<20)
	require.NoError(t, err)
	assert.Empty(t, schema.Columns)
	assert.Empty(t, schema.ConfigColumns)
}

func TestBuildSchema_AnonymousDimsShareCounterAcrossColumns(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name: "primary",
			DataKeys: map[string]docmodel.DataKey{
				"a": {Dtype: "array", DtypeStr: "float64", Shape: []int{3}},
				"b": {Dtype: "array", DtypeStr: "float64", Shape: []int{2}},
			},
		},
	}
	schema, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "dim_0"}, schema.Columns["a"].Dims)
	assert.Equal(t, []string{"time", "dim_1"}, schema.Columns["b"].Dims)
}

func TestBuildSchema_DeclaredDimsUsedVerbatim(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name: "primary",
			DataKeys: map[string]docmodel.DataKey{
				"frame": {Dtype: "array", DtypeStr: "float64", Shape: []int{4, 4}, Dims: []string{"row", "col"}},
			},
		},
	}
	schema, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "row", "col"}, schema.Columns["frame"].Dims)
}

func TestBuildSchema_StructuredDtypeRankGreaterThanOneFails(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name: "primary",
			DataKeys: map[string]docmodel.DataKey{
				"pt": {
					Shape:      []int{2, 2},
					DtypeDescr: []docmodel.DtypeField{{Name: "x", Type: "float64"}, {Name: "y", Type: "float64"}},
				},
			},
		},
	}
	_, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.Error(t, err)
	var derr *docmodel.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, docmodel.KindUnsupportedDtype, derr.Kind)
}

func TestBuildSchema_StringFallbackWidthUnresolvedUntilRead(t *testing.T) {
	descriptors := []docmodel.EventDescriptor{
		{
			Name: "primary",
			DataKeys: map[string]docmodel.DataKey{
				"label": {Dtype: "string"},
			},
		},
	}
	schema, err := BuildSchema("run-1", "primary", descriptors, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, ElementString, schema.Columns["label"].ElementKind)
	assert.Equal(t, 0, schema.Columns["label"].StringWidth)
}
