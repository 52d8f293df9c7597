// Package runs implements the Run and Stream objects: the per-run handle
// bundling start/stop metadata with lazily constructed stream accessors,
// and the per-stream handle exposing data, timestamps, and configuration
// views with staleness-aware revalidation for live runs.
package runs

import (
	"context"
	"sync"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/fill"
	"github.com/bluesky/databroker/materialize"
	"github.com/bluesky/databroker/store"
)

// Store is the slice of the Document Store Adapter a Run needs: metadata
// lookup, descriptor enumeration, event extraction, and the resource/datum
// access the Filler resolves external references through.
type Store interface {
	GetRunStart(ctx context.Context, uid string) (*docmodel.RunStart, error)
	GetRunStop(ctx context.Context, runUid string) (*docmodel.RunStop, error)
	StreamNames(ctx context.Context, runUid string) ([]string, error)
	Descriptors(ctx context.Context, runUid, name string) ([]docmodel.EventDescriptor, error)
	CutoffSeqNum(ctx context.Context, runUid string, descriptorUids []string) (int64, error)
	ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]store.EventRow, error)

	GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error)
	GetDatum(ctx context.Context, runUid, datumID string) (*docmodel.Datum, error)
	DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error)
}

// Run bundles one experiment run's metadata with lazily constructed stream
// accessors. IsLive reports whether RunStop has been observed yet; that
// observation is cached for the lifetime of the Run (a Run handle is
// expected to be short-lived relative to a run finishing, so re-checking
// isn't necessary within one handle's life — callers wanting to observe a
// live->complete transition fetch a fresh Run via Open).
type Run struct {
	Start *docmodel.RunStart
	Stop  *docmodel.RunStop // nil while live

	store       Store
	registry    *fill.Registry
	rootMap     map[string]string
	byteCeiling int64

	mu      sync.Mutex
	filler  *fill.Filler
	streams map[string]*Stream
}

// defaultByteCeiling bounds a Run's chunk planning. Aggregation page sizing
// is configured separately, on the store adapter.
const defaultByteCeiling = 10 * 1024 * 1024

// Open fetches RunStart (and RunStop, if any) for uid and returns a ready
// Run handle. registry and rootMap configure the run's Filler; either may
// be nil/empty if the run has no externally-referenced columns.
func Open(ctx context.Context, s Store, uid string, registry *fill.Registry, rootMap map[string]string) (*Run, error) {
	start, err := s.GetRunStart(ctx, uid)
	if err != nil {
		return nil, err
	}
	stop, err := s.GetRunStop(ctx, uid)
	if err != nil {
		return nil, err
	}
	return &Run{
		Start:       start,
		Stop:        stop,
		store:       s,
		registry:    registry,
		rootMap:     rootMap,
		byteCeiling: defaultByteCeiling,
		streams:     make(map[string]*Stream),
	}, nil
}

// IsLive reports whether the run has not yet been closed.
func (r *Run) IsLive() bool {
	return r.Stop == nil
}

// getFiller lazily constructs the run's single Filler instance, guarded so
// concurrent Stream accesses share one prefetch cache instead of each
// paying the resolution cost independently.
func (r *Run) getFiller() *fill.Filler {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filler == nil {
		r.filler = fill.New(r.Start.Uid, r.store, r.registry, r.rootMap)
	}
	return r.filler
}

// StreamNames lists the distinct event stream names recorded for this run.
func (r *Run) StreamNames(ctx context.Context) ([]string, error) {
	return r.store.StreamNames(ctx, r.Start.Uid)
}

// Stream returns the named Stream handle, constructing and caching it on
// first access. Descriptor metadata is fetched once per (Run, name) pair.
func (r *Run) Stream(ctx context.Context, name string) (*Stream, error) {
	r.mu.Lock()
	if s, ok := r.streams[name]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	descriptors, err := r.store.Descriptors(ctx, r.Start.Uid, name)
	if err != nil {
		return nil, err
	}

	schema, err := materialize.BuildSchema(r.Start.Uid, name, descriptors, r.byteCeiling)
	if err != nil {
		return nil, err
	}
	materializer, err := materialize.New(r.store, r.getFiller())
	if err != nil {
		return nil, err
	}

	descriptorUids := make([]string, len(descriptors))
	for i, d := range descriptors {
		descriptorUids[i] = d.Uid
	}

	s := &Stream{
		run:            r,
		name:           name,
		descriptorUids: descriptorUids,
		schema:         schema,
		materializer:   materializer,
		staleness:      newStaleness(r.IsLive()),
		configuration:  descriptors[0].Configuration,
	}

	r.mu.Lock()
	r.streams[name] = s
	r.mu.Unlock()
	return s, nil
}
