package replay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/store"
)

type fakeSource struct {
	names       map[string][]string
	descriptors map[string][]docmodel.EventDescriptor
	rows        map[string][]store.EventRow
}

func (f *fakeSource) StreamNames(ctx context.Context, runUid string) ([]string, error) {
	return f.names[runUid], nil
}

func (f *fakeSource) Descriptors(ctx context.Context, runUid, name string) ([]docmodel.EventDescriptor, error) {
	return f.descriptors[runUid+"/"+name], nil
}

func (f *fakeSource) CutoffSeqNum(ctx context.Context, runUid string, descriptorUids []string) (int64, error) {
	return int64(len(f.rows[runUid]) + 1), nil
}

func (f *fakeSource) ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]store.EventRow, error) {
	var out []store.EventRow
	for _, r := range f.rows[runUid] {
		if r.SeqNum >= minSeq && r.SeqNum < maxSeq {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error) {
	return nil, docmodel.NotFound(docmodel.KindResourceNotFound, runUid, "none")
}

func (f *fakeSource) DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error) {
	return nil, nil
}

func TestReplayer_SingleDocuments_StartFirstThenTimeOrdered(t *testing.T) {
	fs := &fakeSource{
		names: map[string][]string{"run-1": {"primary"}},
		descriptors: map[string][]docmodel.EventDescriptor{
			"run-1/primary": {{Uid: "desc-1", Name: "primary", Time: 5}},
		},
		rows: map[string][]store.EventRow{
			"run-1": {
				{SeqNum: 1, Time: 6},
				{SeqNum: 2, Time: 7},
			},
		},
	}
	r := New(fs, false)
	start := &docmodel.RunStart{Uid: "run-1", Time: 1}
	stop := &docmodel.RunStop{Uid: "stop-1", Time: 10, ExitStatus: docmodel.ExitSuccess}

	docs, err := r.SingleDocuments(context.Background(), start, stop, "run-1")
	require.NoError(t, err)

	require.True(t, len(docs) >= 4)
	assert.Equal(t, KindStart, docs[0].Kind)
	assert.Equal(t, KindStop, docs[len(docs)-1].Kind)

	for i := 1; i < len(docs)-1; i++ {
		assert.LessOrEqual(t, docs[i].Time, docs[i+1].Time)
	}
}

func TestPages_SplitsOnKindChange(t *testing.T) {
	docs := []Document{
		{Kind: KindEvent, Time: 1},
		{Kind: KindEvent, Time: 2},
		{Kind: KindDatum, Time: 3},
	}
	pages := Pages(docs, 10)
	require.Len(t, pages, 2)
	assert.Equal(t, KindEvent, pages[0].Kind)
	assert.Len(t, pages[0].Items, 2)
	assert.Equal(t, KindDatum, pages[1].Kind)
}

func TestPages_SplitsOnSizeBound(t *testing.T) {
	docs := []Document{
		{Kind: KindEvent, Time: 1},
		{Kind: KindEvent, Time: 2},
		{Kind: KindEvent, Time: 3},
	}
	pages := Pages(docs, 2)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0].Items, 2)
	assert.Len(t, pages[1].Items, 1)
}
