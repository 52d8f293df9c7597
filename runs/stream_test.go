package runs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/fill"
)

func TestStream_Config_ReadsConfigurationSnapshot(t *testing.T) {
	fs := newFixture()
	fs.descriptors["run-1/primary"][0].ObjectKeys = map[string][]string{"det": {"det"}}
	fs.descriptors["run-1/primary"][0].Configuration = map[string]docmodel.ObjectConfiguration{
		"det": {
			DataKeys: map[string]docmodel.DataKey{"exposure_time": {Dtype: "number"}},
			Data:     map[string]interface{}{"exposure_time": 0.1},
		},
	}

	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	v, err := s.Config("det_exposure_time")
	require.NoError(t, err)
	assert.Equal(t, 0.1, v)
}

func TestStream_Config_UnknownKeyFails(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	_, err = s.Config("nope")
	require.Error(t, err)
}

func TestStream_Timestamps(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	ts, err := s.Timestamps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{101, 102}, ts.Data)
	assert.Equal(t, []string{"time"}, ts.Dims)
}

func TestStream_ConfigTimestamp_ReadsConfigurationSnapshot(t *testing.T) {
	fs := newFixture()
	fs.descriptors["run-1/primary"][0].ObjectKeys = map[string][]string{"det": {"det"}}
	fs.descriptors["run-1/primary"][0].Configuration = map[string]docmodel.ObjectConfiguration{
		"det": {
			DataKeys:   map[string]docmodel.DataKey{"exposure_time": {Dtype: "number"}},
			Data:       map[string]interface{}{"exposure_time": 0.1},
			Timestamps: map[string]float64{"exposure_time": 100},
		},
	}

	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	ts, err := s.ConfigTimestamp("det_exposure_time")
	require.NoError(t, err)
	assert.Equal(t, float64(100), ts)
}

func TestStream_ConfigTimestamp_UnknownKeyFails(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	_, err = s.ConfigTimestamp("nope")
	require.Error(t, err)
}
