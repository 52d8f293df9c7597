// Package replay implements the Document Stream Replayer: reconstructing
// the time-ordered document sequence a run was originally written as (an
// external writer's append-only log of start/descriptor/event/stop/
// resource/datum documents), either as individual documents merged across
// streams by time, or as size-bounded page batches matching how a
// document writer would have emitted them.
package replay

import (
	"context"
	"sort"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/store"
)

// Kind identifies the document type of one replayed entry.
type Kind string

const (
	KindStart      Kind = "start"
	KindDescriptor Kind = "descriptor"
	KindEvent      Kind = "event"
	KindResource   Kind = "resource"
	KindDatum      Kind = "datum"
	KindStop       Kind = "stop"
)

// Document is one replayed entry: its kind, the stream it belongs to (for
// event/descriptor kinds), and the decoded payload.
type Document struct {
	Kind    Kind
	Stream  string
	Time    float64
	Payload interface{}
}

// Source is the slice of run-level access the replayer needs: descriptor
// and event enumeration across every stream of one run, plus the
// resources/datums referenced by those events (resolved lazily, only when
// ResolveReferences is true, matching the reference engine's default of
// not paying for external-reference resolution unless asked).
type Source interface {
	StreamNames(ctx context.Context, runUid string) ([]string, error)
	Descriptors(ctx context.Context, runUid, name string) ([]docmodel.EventDescriptor, error)
	CutoffSeqNum(ctx context.Context, runUid string, descriptorUids []string) (int64, error)
	ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]store.EventRow, error)

	GetResource(ctx context.Context, runUid, uid string) (*docmodel.Resource, error)
	DatumsForResource(ctx context.Context, runUid, resourceUid string) ([]docmodel.Datum, error)
}

// EventRow is an alias of store.EventRow: the replayer reads extracted
// event rows directly from the Document Store Adapter's representation.
type EventRow = store.EventRow

// Replayer reconstructs document order for one run.
type Replayer struct {
	source            Source
	resolveReferences bool
}

// New constructs a Replayer over source. When resolveReferences is true,
// every externally-referenced resource touched by a replayed event is
// itself emitted as a resource/datum document pair the first time it's
// seen; when false (the default), external references are left as opaque
// datum ids in event payloads, matching the original writer's stream.
func New(source Source, resolveReferences bool) *Replayer {
	return &Replayer{source: source, resolveReferences: resolveReferences}
}

// SingleDocuments replays every document belonging to runUid — its start,
// every stream's descriptors and events (time-merged across streams), its
// resources/datums when resolveReferences is set, and its stop — as one
// time-ordered slice.
func (r *Replayer) SingleDocuments(ctx context.Context, start *docmodel.RunStart, stop *docmodel.RunStop, runUid string) ([]Document, error) {
	docs := []Document{{Kind: KindStart, Time: start.Time, Payload: start}}

	names, err := r.source.StreamNames(ctx, runUid)
	if err != nil {
		return nil, err
	}

	seenResources := map[string]bool{}

	for _, name := range names {
		descriptors, err := r.source.Descriptors(ctx, runUid, name)
		if err != nil {
			return nil, err
		}
		uids := make([]string, len(descriptors))
		for i, d := range descriptors {
			uids[i] = d.Uid
			docs = append(docs, Document{Kind: KindDescriptor, Stream: name, Time: d.Time, Payload: d})
		}

		cutoff, err := r.source.CutoffSeqNum(ctx, runUid, uids)
		if err != nil {
			return nil, err
		}
		rows, err := r.source.ExtractColumns(ctx, runUid, uids, 1, cutoff)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			docs = append(docs, Document{Kind: KindEvent, Stream: name, Time: row.Time, Payload: row})
			if r.resolveReferences {
				refDocs, err := r.externalReferenceDocuments(ctx, runUid, row, seenResources)
				if err != nil {
					return nil, err
				}
				docs = append(docs, refDocs...)
			}
		}
	}

	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].Kind == KindStart {
			return true
		}
		if docs[j].Kind == KindStart {
			return false
		}
		return docs[i].Time < docs[j].Time
	})

	if stop != nil {
		docs = append(docs, Document{Kind: KindStop, Time: stop.Time, Payload: stop})
	}
	return docs, nil
}

// externalReferenceDocuments emits the resource (once) and datum documents
// for any externally-referenced column value in row, resolved on first
// sight via seenResources.
func (r *Replayer) externalReferenceDocuments(ctx context.Context, runUid string, row EventRow, seenResources map[string]bool) ([]Document, error) {
	var docs []Document
	for _, v := range row.Data {
		datumID, ok := v.(string)
		if !ok {
			continue
		}
		resourceUid, ok := splitDatumPrefix(datumID)
		if !ok || seenResources[resourceUid] {
			continue
		}
		resource, err := r.source.GetResource(ctx, runUid, resourceUid)
		if err != nil {
			continue // not every string column value is a datum id
		}
		seenResources[resourceUid] = true
		docs = append(docs, Document{Kind: KindResource, Time: row.Time, Payload: resource})

		datums, err := r.source.DatumsForResource(ctx, runUid, resourceUid)
		if err != nil {
			return nil, err
		}
		for _, d := range datums {
			docs = append(docs, Document{Kind: KindDatum, Time: row.Time, Payload: d})
		}
	}
	return docs, nil
}

func splitDatumPrefix(datumID string) (string, bool) {
	for i := 0; i < len(datumID); i++ {
		if datumID[i] == '/' {
			if i == 0 {
				return "", false
			}
			return datumID[:i], true
		}
	}
	return "", false
}

// Page is one size-bounded batch of the "documents" replay mode: a run of
// same-kind documents (all events, or all descriptors) no larger than the
// configured page size, mirroring how an external writer emits
// event_page/datum_page batches rather than one document per call.
type Page struct {
	Kind  Kind
	Items []Document
}

// Pages re-batches SingleDocuments' flat sequence into same-kind,
// size-bounded pages, splitting a run of consecutive same-kind documents
// whenever it exceeds pageSize.
func Pages(docs []Document, pageSize int) []Page {
	if pageSize <= 0 {
		pageSize = 100
	}
	var pages []Page
	var cur Page
	flush := func() {
		if len(cur.Items) > 0 {
			pages = append(pages, cur)
		}
		cur = Page{}
	}
	for _, d := range docs {
		if cur.Kind != d.Kind || len(cur.Items) >= pageSize {
			flush()
			cur.Kind = d.Kind
		}
		cur.Items = append(cur.Items, d)
	}
	flush()
	return pages
}
