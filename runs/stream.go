package runs

import (
	"context"
	"sync"
	"time"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/materialize"
)

// stableTTL and volatileTTL bound how long a Stream's cached cutoff
// (seq_num high-water mark) may be served without revalidation. A live
// run's stream is still being appended to, so it gets the short TTL; a
// stream belonging to a completed run never changes, so the longer TTL is
// really just a safety bound rather than something callers will ever hit.
const (
	stableTTL   = 60 * time.Second
	volatileTTL = 2 * time.Second
)

// staleness tracks when a Stream's cached event count must be revalidated
// against the store.
type staleness struct {
	mu      sync.Mutex
	ttl     time.Duration
	staleAt time.Time
	cutoff  int64
	loaded  bool
}

func newStaleness(live bool) *staleness {
	ttl := stableTTL
	if live {
		ttl = volatileTTL
	}
	return &staleness{ttl: ttl}
}

func (s *staleness) get(ctx context.Context, refresh func(context.Context) (int64, error)) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded && time.Now().Before(s.staleAt) {
		return s.cutoff, nil
	}
	cutoff, err := refresh(ctx)
	if err != nil {
		return 0, err
	}
	s.cutoff = cutoff
	s.staleAt = time.Now().Add(s.ttl)
	s.loaded = true
	return cutoff, nil
}

// Stream is the per-event-stream read handle: it exposes materialized
// column data, timestamps, and per-object configuration, revalidating its
// cached length according to whether the owning run is still live.
type Stream struct {
	run            *Run
	name           string
	descriptorUids []string
	schema         materialize.StreamSchema
	materializer   *materialize.Materializer
	staleness      *staleness
	configuration  map[string]docmodel.ObjectConfiguration
}

// Name returns the stream's name.
func (s *Stream) Name() string { return s.name }

// Schema returns the stream's resolved column schema.
func (s *Stream) Schema() materialize.StreamSchema { return s.schema }

// cutoffSeqNum returns the current effective length of the stream (1 +
// max seq_num), revalidating against the store when the cached value has
// gone stale.
func (s *Stream) cutoffSeqNum(ctx context.Context) (int64, error) {
	return s.staleness.get(ctx, func(ctx context.Context) (int64, error) {
		return s.run.store.CutoffSeqNum(ctx, s.run.Start.Uid, s.descriptorUids)
	})
}

// Data returns the fully materialized NDArray for column key across the
// whole stream as currently observed.
func (s *Stream) Data(ctx context.Context, key string) (materialize.NDArray, error) {
	col, ok := s.schema.Columns[key]
	if !ok {
		return materialize.NDArray{}, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "column "+key+" not found in stream "+s.name)
	}
	cutoff, err := s.cutoffSeqNum(ctx)
	if err != nil {
		return materialize.NDArray{}, err
	}
	return s.materializer.ReadWhole(ctx, s.run.Start.Uid, s.name, col, s.descriptorUids, 1, cutoff)
}

// DataBlock returns one chunk of column key's leading axis, identified by
// chunkIndex, without materializing the rest of the stream.
func (s *Stream) DataBlock(ctx context.Context, key string, chunkIndex int) (materialize.NDArray, error) {
	col, ok := s.schema.Columns[key]
	if !ok {
		return materialize.NDArray{}, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "column "+key+" not found in stream "+s.name)
	}
	return s.materializer.ReadBlock(ctx, s.run.Start.Uid, s.name, col, s.descriptorUids, 1, chunkIndex)
}

// Timestamps returns the per-event Time coordinate for the stream.
func (s *Stream) Timestamps(ctx context.Context) (materialize.TimeCoord, error) {
	cutoff, err := s.cutoffSeqNum(ctx)
	if err != nil {
		return materialize.TimeCoord{}, err
	}
	return s.materializer.ReadTimeCoord(ctx, s.run.Start.Uid, s.descriptorUids, 1, cutoff)
}

// Config returns the snapshotted value of one per-object configuration
// column, keyed the same way as schema.ConfigColumns ("<object>_<key>").
// Configuration is recorded once per descriptor, not per event, so no
// store round trip is needed once the owning Stream has been opened.
func (s *Stream) Config(key string) (interface{}, error) {
	col, ok := s.schema.ConfigColumns[key]
	if !ok {
		return nil, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "config column "+key+" not found in stream "+s.name)
	}
	objCfg, ok := s.configuration[col.Object]
	if !ok {
		return nil, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "configuration for object "+col.Object+" not found")
	}
	dataKey := key[len(col.Object)+1:]
	return objCfg.Data[dataKey], nil
}

// ConfigTimestamp returns the recording time of one per-object
// configuration column's value, mirroring Config(key)'s lookup against the
// same configuration snapshot's Timestamps map instead of its Data map.
func (s *Stream) ConfigTimestamp(key string) (float64, error) {
	col, ok := s.schema.ConfigColumns[key]
	if !ok {
		return 0, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "config column "+key+" not found in stream "+s.name)
	}
	objCfg, ok := s.configuration[col.Object]
	if !ok {
		return 0, docmodel.NotFound(docmodel.KindFieldNotFound, s.run.Start.Uid, "configuration for object "+col.Object+" not found")
	}
	dataKey := key[len(col.Object)+1:]
	return objCfg.Timestamps[dataKey], nil
}
