package store

import (
	"context"
	"encoding/json"
	"sort"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/bluesky/databroker/docmodel"
)

// EventRow is one deduplicated row of event data extracted for a half-open
// seq_num interval; ExtractColumns returns rows sorted by seq_num. It stands in for the match/project/
// sort/group-push aggregation pipeline the specification describes:
// CouchDB has no native aggregation framework, so the adapter performs the
// match and sort server-side via a Mango query and the dedupe/group-push
// steps client-side, which is equivalent for the bounded, immutable ranges
// this engine ever queries.
type EventRow struct {
	SeqNum     int64
	Time       float64
	Data       map[string]interface{}
	Timestamps map[string]float64
}

// ExtractColumns runs the extraction pipeline: match descriptor ∈ uids and
// seq_num ∈ [minSeq, maxSeq), project only data/timestamps/seq_num/time,
// sort by time, deduplicate by seq_num keeping the latest by time, then
// re-sort by seq_num. Pages are fetched by skip/limit sized to the
// configured byte ceiling; this is safe against concurrent insertion
// because events are immutable and the seq_num range is fixed up front, so
// new writes can only land beyond maxSeq, outside the scanned window.
func (a *Adapter) ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]EventRow, error) {
	selector := map[string]interface{}{
		"descriptor": map[string]interface{}{"$in": descriptorUids},
		"seq_num":    map[string]interface{}{"$gte": minSeq, "$lt": maxSeq},
	}
	fields := []string{"seq_num", "time", "data", "timestamps"}
	sortSpec := []map[string]string{{"time": "asc"}}

	pageSize, err := a.estimatePageSize(ctx, selector, fields)
	if err != nil {
		return nil, err
	}

	var all []EventRow
	for skip := 0; ; skip += pageSize {
		rows := a.event.Find(ctx, selector, kivik.Params(map[string]interface{}{
			"fields": fields,
			"sort":   sortSpec,
			"limit":  pageSize,
			"skip":   skip,
		}))

		n := 0
		for rows.Next() {
			n++
			var raw struct {
				SeqNum     int64              `json:"seq_num"`
				Time       float64            `json:"time"`
				Data       map[string]interface{} `json:"data"`
				Timestamps map[string]float64     `json:"timestamps"`
			}
			if err := rows.ScanDoc(&raw); err != nil {
				rows.Close()
				return nil, docmodel.StoreErr(runUid, false, err)
			}
			all = append(all, EventRow{
				SeqNum:     raw.SeqNum,
				Time:       raw.Time,
				Data:       raw.Data,
				Timestamps: raw.Timestamps,
			})
		}
		rerr := rows.Err()
		rows.Close()
		if rerr != nil {
			return nil, docmodel.StoreErr(runUid, isTransient(rerr), rerr)
		}
		if n < pageSize {
			break
		}
	}

	return dedupeAndSortBySeqNum(all), nil
}

// dedupeAndSortBySeqNum collapses duplicate seq_num values by taking the
// row with the greatest Time, then sorts by seq_num ascending.
func dedupeAndSortBySeqNum(rows []EventRow) []EventRow {
	latest := make(map[int64]EventRow, len(rows))
	for _, r := range rows {
		cur, ok := latest[r.SeqNum]
		if !ok || r.Time > cur.Time {
			latest[r.SeqNum] = r
		}
	}
	out := make([]EventRow, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeqNum < out[j].SeqNum })
	return out
}

// estimatePageSize fetches one sample row to estimate serialized row size,
// then returns ceil(byteCeiling / estimatedRowBytes), floored at 1.
func (a *Adapter) estimatePageSize(ctx context.Context, selector map[string]interface{}, fields []string) (int, error) {
	rows := a.event.Find(ctx, selector, kivik.Params(map[string]interface{}{
		"fields": fields,
		"limit":  1,
	}))
	defer rows.Close()

	if !rows.Next() {
		return a.batchSize, rows.Err()
	}
	var raw json.RawMessage
	if err := rows.ScanDoc(&raw); err != nil {
		return 0, err
	}
	size := len(raw)
	if size <= 0 {
		size = 1
	}
	pageSize := int((a.aggByteCeiling + int64(size) - 1) / int64(size))
	if pageSize < 1 {
		pageSize = 1
	}
	return pageSize, nil
}

// CutoffSeqNum returns 1 + max(seq_num) across descriptorUids, the current
// effective length of the stream at query time.
func (a *Adapter) CutoffSeqNum(ctx context.Context, runUid string, descriptorUids []string) (int64, error) {
	rows := a.event.Find(ctx, map[string]interface{}{
		"descriptor": map[string]interface{}{"$in": descriptorUids},
	}, kivik.Params(map[string]interface{}{
		"fields": []string{"seq_num"},
		"sort":   []map[string]string{{"seq_num": "desc"}},
		"limit":  1,
	}))
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, docmodel.StoreErr(runUid, isTransient(err), err)
		}
		return 1, nil
	}
	var doc struct {
		SeqNum int64 `json:"seq_num"`
	}
	if err := rows.ScanDoc(&doc); err != nil {
		return 0, docmodel.StoreErr(runUid, false, err)
	}
	return doc.SeqNum + 1, nil
}
