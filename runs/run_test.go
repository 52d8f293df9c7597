package runs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/fill"
	"github.com/bluesky/databroker/store"
)

type fakeStore struct {
	starts      map[string]*docmodel.RunStart
	stops       map[string]*docmodel.RunStop
	names       map[string][]string
	descriptors map[string][]docmodel.EventDescriptor
	rows        map[string][]store.EventRow
}

func (f *fakeStore) GetRunStart(ctx context.Context, uid string) (*docmodel.RunStart, error) {
	if s, ok := f.starts[uid]; ok {
		return s, nil
	}
	return nil, docmodel.NotFound(docmodel.KindRunNotFound, uid, "not found")
}

func (f *fakeStore) GetRunStop(ctx context.Context, runUid string) (*docmodel.RunStop, error) {
	return f.stops[runUid], nil
}

func (f *fakeStore) StreamNames(ctx context.Context, runUid string) ([]string, error) {
	return f.names[runUid], nil
}

func (f *fakeStore) Descriptors(ctx context.Context, runUid, name string) ([]docmodel.EventDescriptor, error) {
	key := runUid + "/" + name
	ds, ok := f.descriptors[key]
	if !ok {
		return nil, docmodel.NotFound(docmodel.KindDescriptorNotFound, runUid, "no descriptors")
	}
	return ds, nil
}

func (f *fakeStore) CutoffSeqNum(ctx context.Context, runUid string, descriptorUids []string) (int64, error) {
	return int64(len(f.rows[runUid]) + 1), nil
}

func (f *fakeStore) ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]store.EventRow, error) {
	var out []store.EventRow
	for _, r := range f.rows[runUid] {
		if r.SeqNum >= minSeq && r.SeqNum < maxSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error) {
	return nil, docmodel.NotFound(docmodel.KindResourceNotFound, runUid, "none")
}
func (f *fakeStore) GetDatum(ctx context.Context, runUid, datumID string) (*docmodel.Datum, error) {
	return nil, docmodel.NotFound(docmodel.KindDatumNotFound, runUid, "none")
}
func (f *fakeStore) DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error) {
	return nil, nil
}

func newFixture() *fakeStore {
	return &fakeStore{
		starts: map[string]*docmodel.RunStart{"run-1": {Uid: "run-1", Time: 100}},
		stops:  map[string]*docmodel.RunStop{},
		names:  map[string][]string{"run-1": {"primary"}},
		descriptors: map[string][]docmodel.EventDescriptor{
			"run-1/primary": {{
				Uid:      "desc-1",
				RunStart: "run-1",
				Name:     "primary",
				Time:     100,
				DataKeys: map[string]docmodel.DataKey{
					"det": {Dtype: "number", DtypeStr: "float64"},
				},
				ObjectKeys: map[string][]string{"det": {"det"}},
			}},
		},
		rows: map[string][]store.EventRow{
			"run-1": {
				{SeqNum: 1, Time: 101, Data: map[string]interface{}{"det": 1.0}},
				{SeqNum: 2, Time: 102, Data: map[string]interface{}{"det": 2.0}},
			},
		},
	}
}

func TestRun_IsLive(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)
	assert.True(t, r.IsLive())
}

func TestRun_Stream_ReadsData(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)

	s, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)

	arr, err := s.Data(context.Background(), "det")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, arr.Shape)
	assert.Equal(t, []interface{}{1.0, 2.0}, arr.Data)
}

func TestRun_Stream_CachesHandle(t *testing.T) {
	fs := newFixture()
	r, err := Open(context.Background(), fs, "run-1", fill.NewRegistry(), nil)
	require.NoError(t, err)

	s1, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)
	s2, err := r.Stream(context.Background(), "primary")
	require.NoError(t, err)
	assert.Same(t, s1, s2)
}
