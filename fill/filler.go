package fill

import (
	"context"
	"sync"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/store"
)

// ResourceStore is the slice of the Document Store Adapter the filler
// depends on: resolving a resource by uid, fetching one datum, and
// prefetching every datum that belongs to a resource in a single query.
type ResourceStore interface {
	GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error)
	GetDatum(ctx context.Context, runUid, datumID string) (*docmodel.Datum, error)
	DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error)
}

// Filler resolves datum tokens to materialized payloads for one run. It is
// threadsafe for concurrent readers: the datum cache is append-only under
// mu, and handler instances (themselves not assumed threadsafe, per the
// original implementation's serialized-access contract) are only ever
// called while holding handlerMu.
type Filler struct {
	runUid   string
	store    ResourceStore
	registry *Registry
	rootMap  map[string]string

	mu         sync.Mutex
	datums     map[string]docmodel.Datum    // datum id -> kwargs, resource (prefetch cache)
	resources  map[string]*docmodel.Resource // resource uid -> resolved resource
	handlers   map[string]Handler            // resource uid -> constructed handler instance

	handlerMu sync.Mutex // serializes calls into handler instances, per design note
}

// New constructs a Filler for one run. Fillers are cheap to construct but
// are intended to be created once per run (see runs.Run's lazy, mutex-
// guarded initialization) and reused across all of that run's streams.
func New(runUid string, store ResourceStore, registry *Registry, rootMap map[string]string) *Filler {
	return &Filler{
		runUid:    runUid,
		store:     store,
		registry:  registry,
		rootMap:   rootMap,
		datums:    make(map[string]docmodel.Datum),
		resources: make(map[string]*docmodel.Resource),
		handlers:  make(map[string]Handler),
	}
}

// FillColumn resolves one externally-referenced column value (a datum id)
// to a materialized payload. It implements the two-attempt convergence
// algorithm: an optimistic lookup against the current cache, and — on
// miss — one resource resolution + prefetch, followed by exactly one
// re-entrant attempt. A second miss after prefetch is unresolvable.
func (f *Filler) FillColumn(ctx context.Context, streamName, datumID string) (interface{}, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if d, handler, ok := f.cached(datumID); ok {
			f.handlerMu.Lock()
			payload, err := handler.Call(d.DatumKwargs)
			f.handlerMu.Unlock()
			return payload, err
		}
		if attempt == 1 {
			break
		}
		if err := f.resolveAndPrefetch(ctx, datumID); err != nil {
			return nil, err
		}
	}
	return nil, docmodel.UnresolvableExternalReference(f.runUid, streamName, datumID)
}

// cached reports whether datumID's kwargs and a constructed handler for its
// resource are both already available.
func (f *Filler) cached(datumID string) (docmodel.Datum, Handler, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.datums[datumID]
	if !ok {
		return docmodel.Datum{}, nil, false
	}
	h, ok := f.handlers[d.Resource]
	if !ok {
		return docmodel.Datum{}, nil, false
	}
	return d, h, true
}

// resolveAndPrefetch finds the resource owning datumID (trying the
// "/"-prefix fast path first, falling back to the authoritative
// datum->resource lookup on miss), constructs its handler if not already
// cached, and prefetches every datum belonging to that resource in one
// query so subsequent columns of the same event converge without another
// round trip.
func (f *Filler) resolveAndPrefetch(ctx context.Context, datumID string) error {
	resource, err := f.resolveResource(ctx, datumID)
	if err != nil {
		return err
	}

	datums, err := f.store.DatumsForResource(ctx, f.runUid, resource.Uid)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[resource.Uid] = resource
	for _, d := range datums {
		f.datums[d.DatumID] = d
	}
	if _, ok := f.handlers[resource.Uid]; !ok {
		handler, err := f.constructHandler(resource)
		if err != nil {
			return err
		}
		f.handlers[resource.Uid] = handler
	}
	return nil
}

func (f *Filler) resolveResource(ctx context.Context, datumID string) (*docmodel.Resource, error) {
	// Fast path: the "/"-embedded resource id is opportunistic, never
	// normative, so a miss here always falls through to the
	// authoritative lookup rather than failing.
	if candidate, ok := store.ResourceUidFromDatumPrefix(datumID); ok {
		if r, err := f.store.GetResource(ctx, f.runUid, candidate); err == nil {
			return r, nil
		}
	}
	datum, err := f.store.GetDatum(ctx, f.runUid, datumID)
	if err != nil {
		return nil, err
	}
	return f.store.GetResource(ctx, f.runUid, datum.Resource)
}

func (f *Filler) constructHandler(resource *docmodel.Resource) (Handler, error) {
	ctor, ok := f.registry.lookup(resource.Spec)
	if !ok {
		return nil, &docmodel.Error{
			Kind:    docmodel.KindUnresolvableExternalRef,
			RunUid:  f.runUid,
			Key:     resource.Uid,
			Message: "no handler registered for spec " + resource.Spec,
		}
	}
	root := resource.Root
	if mapped, ok := f.rootMap[root]; ok {
		root = mapped
	}
	return ctor(resource.ResourcePath, root, resource.ResourceKwargs)
}
