package docmodel

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStart_UnmarshalJSON_FoldsUnknownFieldsIntoExtra(t *testing.T) {
	raw := []byte(`{"uid":"r1","time":100.5,"scan_id":7,"sample":"quartz","operator":"alice"}`)
	var rs RunStart
	require.NoError(t, json.Unmarshal(raw, &rs))

	assert.Equal(t, "r1", rs.Uid)
	assert.Equal(t, 100.5, rs.Time)
	assert.Equal(t, int64(7), rs.ScanID)
	assert.Equal(t, "quartz", rs.Extra["sample"])
	assert.Equal(t, "alice", rs.Extra["operator"])
}

func TestRunStart_MarshalJSON_RoundTripsExtra(t *testing.T) {
	rs := RunStart{Uid: "r1", Time: 1, ScanID: 2, Extra: map[string]interface{}{"sample": "quartz"}}
	b, err := json.Marshal(rs)
	require.NoError(t, err)

	var back RunStart
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "quartz", back.Extra["sample"])
	assert.Equal(t, "r1", back.Uid)
}

func TestRunStop_UnmarshalJSON_FoldsUnknownFieldsIntoExtra(t *testing.T) {
	raw := []byte(`{"uid":"s1","run_start":"r1","time":200,"exit_status":"success","custom_field":42}`)
	var stop RunStop
	require.NoError(t, json.Unmarshal(raw, &stop))

	assert.Equal(t, ExitSuccess, stop.ExitStatus)
	assert.Equal(t, float64(42), stop.Extra["custom_field"])
}
