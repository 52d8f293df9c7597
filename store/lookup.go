package store

import (
	"context"
	"strings"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/bluesky/databroker/docmodel"
)

// GetRunStart fetches the RunStart by uid and applies the configured
// read-time transform.
func (a *Adapter) GetRunStart(ctx context.Context, uid string) (*docmodel.RunStart, error) {
	var rs docmodel.RunStart
	if err := a.getDoc(ctx, a.runStart, uid, &rs); err != nil {
		if isNotFound(err) {
			return nil, docmodel.NotFound(docmodel.KindRunNotFound, uid, "run_start not found")
		}
		return nil, docmodel.StoreErr(uid, isTransient(err), err)
	}
	out := a.transforms.Apply(docmodel.TransformStart, &rs).(*docmodel.RunStart)
	return out, nil
}

// GetRunStop fetches the RunStop for the given run, returning (nil, nil)
// when the run is still live (no stop document exists). A one-field Mango
// query on run_start is used since RunStop documents are not keyed by the
// run's uid directly.
func (a *Adapter) GetRunStop(ctx context.Context, runUid string) (*docmodel.RunStop, error) {
	rows := a.runStop.Find(ctx, map[string]interface{}{"run_start": runUid}, kivik.Params(map[string]interface{}{
		"limit": 1,
	}))
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, docmodel.StoreErr(runUid, isTransient(err), err)
		}
		return nil, nil
	}
	var stop docmodel.RunStop
	if err := rows.ScanDoc(&stop); err != nil {
		return nil, docmodel.StoreErr(runUid, false, err)
	}
	out := a.transforms.Apply(docmodel.TransformStop, &stop).(*docmodel.RunStop)
	return out, nil
}

// StreamNames returns the distinct EventDescriptor.name values recorded
// under runUid, in first-seen order. CouchDB has no native distinct
// operator, so this scans descriptors for the run and dedupes client-side;
// the scan is cheap since a run typically has a small, bounded descriptor
// count.
func (a *Adapter) StreamNames(ctx context.Context, runUid string) ([]string, error) {
	rows := a.descriptor.Find(ctx, map[string]interface{}{"run_start": runUid}, kivik.Params(map[string]interface{}{
		"fields": []string{"name"},
	}))
	defer rows.Close()

	seen := map[string]bool{}
	var names []string
	for rows.Next() {
		var doc struct {
			Name string `json:"name"`
		}
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, docmodel.StoreErr(runUid, false, err)
		}
		if !seen[doc.Name] {
			seen[doc.Name] = true
			names = append(names, doc.Name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, docmodel.StoreErr(runUid, isTransient(err), err)
	}
	return names, nil
}

// Descriptors returns every EventDescriptor recorded for (runUid, name),
// ordered by Time ascending.
func (a *Adapter) Descriptors(ctx context.Context, runUid, name string) ([]docmodel.EventDescriptor, error) {
	rows := a.descriptor.Find(ctx, map[string]interface{}{
		"run_start": runUid,
		"name":      name,
	}, kivik.Params(map[string]interface{}{
		"sort": []map[string]string{{"time": "asc"}},
	}))
	defer rows.Close()

	var out []docmodel.EventDescriptor
	for rows.Next() {
		var d docmodel.EventDescriptor
		if err := rows.ScanDoc(&d); err != nil {
			return nil, docmodel.StoreErr(runUid, false, err)
		}
		transformed := a.transforms.Apply(docmodel.TransformDescriptor, &d).(*docmodel.EventDescriptor)
		out = append(out, *transformed)
	}
	if err := rows.Err(); err != nil {
		return nil, docmodel.StoreErr(runUid, isTransient(err), err)
	}
	if len(out) == 0 {
		return nil, docmodel.NotFound(docmodel.KindDescriptorNotFound, runUid, "stream "+name+" has no descriptors")
	}
	return out, nil
}

// GetResource fetches a Resource by uid. Legacy documents lacking a `uid`
// field are surfaced with Uid set to the CouchDB `_id`, per the invariant
// that legacy records are identified by their native primary key.
func (a *Adapter) GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error) {
	doc := a.resource.Get(ctx, uid)
	var raw map[string]interface{}
	if err := doc.ScanDoc(&raw); err != nil {
		if isNotFound(err) {
			return nil, docmodel.NotFound(docmodel.KindResourceNotFound, runUid, "resource "+uid+" not found")
		}
		return nil, docmodel.StoreErr(runUid, isTransient(err), err)
	}
	r := decodeResource(raw)
	out := a.transforms.Apply(docmodel.TransformResource, &r).(*docmodel.Resource)
	return out, nil
}

func decodeResource(raw map[string]interface{}) docmodel.Resource {
	r := docmodel.Resource{}
	if uid, ok := raw["uid"].(string); ok && uid != "" {
		r.Uid = uid
	} else if id, ok := raw["_id"].(string); ok {
		r.Uid = id
	}
	if v, ok := raw["spec"].(string); ok {
		r.Spec = v
	}
	if v, ok := raw["resource_path"].(string); ok {
		r.ResourcePath = v
	}
	if v, ok := raw["root"].(string); ok {
		r.Root = v
	}
	if v, ok := raw["resource_kwargs"].(map[string]interface{}); ok {
		r.ResourceKwargs = v
	}
	return r
}

// DatumsForResource fetches every Datum belonging to resourceUid, used by
// the filler to prefetch a resource's full datum set in one query.
func (a *Adapter) DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error) {
	rows := a.datum.Find(ctx, map[string]interface{}{"resource": resourceUid}, nil)
	defer rows.Close()

	var out []docmodel.Datum
	for rows.Next() {
		var d docmodel.Datum
		if err := rows.ScanDoc(&d); err != nil {
			return nil, docmodel.StoreErr(runUid, false, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, docmodel.StoreErr(runUid, isTransient(err), err)
	}
	return out, nil
}

// GetDatum fetches a single Datum by id, used by the filler's fallback
// lookup when the "/"-prefix fast path misses.
func (a *Adapter) GetDatum(ctx context.Context, runUid, datumID string) (*docmodel.Datum, error) {
	doc := a.datum.Get(ctx, datumID)
	var d docmodel.Datum
	if err := doc.ScanDoc(&d); err != nil {
		if isNotFound(err) {
			return nil, docmodel.NotFound(docmodel.KindDatumNotFound, runUid, "datum "+datumID+" not found")
		}
		return nil, docmodel.StoreErr(runUid, isTransient(err), err)
	}
	return &d, nil
}

// ResourceUidFromDatumPrefix applies the opportunistic "/"-split fast path:
// splitting datumID once on "/" yields a candidate resource uid. Callers
// must still fall back to the authoritative datum->resource lookup on miss.
func ResourceUidFromDatumPrefix(datumID string) (string, bool) {
	parts := strings.SplitN(datumID, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", false
	}
	return parts[0], true
}

func (a *Adapter) getDoc(ctx context.Context, db *kivik.DB, id string, out interface{}) error {
	doc := db.Get(ctx, id)
	return doc.ScanDoc(out)
}

func isNotFound(err error) bool {
	return kivik.HTTPStatus(err) == 404
}

func isTransient(err error) bool {
	status := kivik.HTTPStatus(err)
	return status == 0 || status >= 500 || status == 429
}
