package materialize

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bluesky/databroker/common"
	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/store"
)

// EventSource is the slice of the Document Store Adapter the materializer
// reads extracted rows through; store.Adapter.ExtractColumns satisfies it.
type EventSource interface {
	ExtractColumns(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) (rows []store.EventRow, err error)
}

// EventRow is an alias of store.EventRow: the materializer reads extracted
// rows directly from the Document Store Adapter's representation rather
// than duplicating the type.
type EventRow = store.EventRow

// Filler resolves one externally-referenced column value for one event;
// fill.Filler satisfies it.
type Filler interface {
	FillColumn(ctx context.Context, streamName, datumID string) (interface{}, error)
}

// Materializer assembles dense column arrays from extracted event rows. A
// Materializer is scoped to one run and is safe for concurrent use; its
// memoization cache serializes internally.
type Materializer struct {
	source EventSource
	filler Filler

	cache *lru.Cache[string, cachedExtraction]
}

type cachedExtraction struct {
	rows []EventRow
}

// New constructs a Materializer over source, resolving external references
// (if any) through filler. Pass a nil filler for streams known to have no
// externally-referenced columns. The extraction cache holds up to 1024
// (stream, seq range) entries, matching the bound the reference
// implementation uses for its memoized read helpers.
func New(source EventSource, filler Filler) (*Materializer, error) {
	cache, err := lru.New[string, cachedExtraction](1024)
	if err != nil {
		return nil, err
	}
	return &Materializer{source: source, filler: filler, cache: cache}, nil
}

// TimeCoord is a stream's time coordinate: one timestamp per event, labeled
// with its own dimension name so it composes with a column's NDArray.Dims
// the same way any other labeled dataset does.
type TimeCoord struct {
	Dims []string
	Data []float64
}

// ReadTimeCoord returns the per-event Time coordinate over [minSeq, maxSeq).
func (m *Materializer) ReadTimeCoord(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) (TimeCoord, error) {
	rows, err := m.extract(ctx, runUid, descriptorUids, minSeq, maxSeq)
	if err != nil {
		return TimeCoord{}, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r.Time
	}
	return TimeCoord{Dims: []string{"time"}, Data: out}, nil
}

// ReadWhole materializes column key across the full [minSeq, maxSeq) range
// as one NDArray, resolving external references via the Materializer's
// filler and validating the result against schema's declared shape.
func (m *Materializer) ReadWhole(ctx context.Context, runUid, stream string, schema ColumnSchema, descriptorUids []string, minSeq, maxSeq int64) (NDArray, error) {
	rows, err := m.extract(ctx, runUid, descriptorUids, minSeq, maxSeq)
	if err != nil {
		return NDArray{}, err
	}
	return m.buildArray(ctx, runUid, stream, schema, rows)
}

// ReadBlock materializes only the rows whose seq_num falls within one
// chunk of the column's leading axis, identified by chunkIndex into
// schema.Chunks[0].
func (m *Materializer) ReadBlock(ctx context.Context, runUid, stream string, schema ColumnSchema, descriptorUids []string, minSeq int64, chunkIndex int) (NDArray, error) {
	if chunkIndex < 0 || len(schema.Chunks) == 0 || chunkIndex >= len(schema.Chunks[0]) {
		return NDArray{}, &docmodel.Error{
			Kind:    docmodel.KindFieldNotFound,
			RunUid:  runUid,
			Stream:  stream,
			Key:     schema.Key,
			Message: fmt.Sprintf("chunk index %d out of range", chunkIndex),
		}
	}
	blockStart := minSeq
	for i := 0; i < chunkIndex; i++ {
		blockStart += int64(schema.Chunks[0][i])
	}
	blockEnd := blockStart + int64(schema.Chunks[0][chunkIndex])

	rows, err := m.extract(ctx, runUid, descriptorUids, blockStart, blockEnd)
	if err != nil {
		return NDArray{}, err
	}
	return m.buildArray(ctx, runUid, stream, schema, rows)
}

// buildArray resolves external references, validates each event's payload
// shape individually against schema.Shape (padding/trimming within
// shapeTolerance by trailing-edge replication), then coerces every element
// to the column's resolved ElementKind, logging a warning and casting
// in-place on a dtype mismatch rather than failing the read.
func (m *Materializer) buildArray(ctx context.Context, runUid, stream string, schema ColumnSchema, rows []EventRow) (NDArray, error) {
	payloads := make([]interface{}, len(rows))
	for i, row := range rows {
		v, ok := row.Data[schema.Key]
		if !ok {
			continue
		}
		if schema.External {
			if datumID, ok := v.(string); ok && m.filler != nil {
				resolved, err := m.filler.FillColumn(ctx, stream, datumID)
				if err != nil {
					return NDArray{}, err
				}
				v = resolved
			}
		}
		validated, err := ValidateEventPayload(runUid, stream, schema.Key, schema.Shape, v)
		if err != nil {
			return NDArray{}, err
		}
		payloads[i] = validated
	}

	width := schema.StringWidth
	if schema.ElementKind == ElementString && width == 0 {
		width = widestString(payloads)
	}

	data := make([]interface{}, len(payloads))
	mismatches := 0
	for i, v := range payloads {
		mismatched := false
		data[i] = coerceTree(v, schema.ElementKind, width, &mismatched)
		if mismatched {
			mismatches++
		}
	}
	if mismatches > 0 {
		common.NewContextLogger(common.Logger, nil).WithFields(map[string]interface{}{
			"run_uid": runUid,
			"stream":  stream,
			"key":     schema.Key,
			"count":   mismatches,
		}).Warn("dtype mismatch between declared and actual element type; values were cast to the declared type")
	}

	shape := append([]int{len(rows)}, schema.Shape...)
	return NDArray{
		Shape:       shape,
		Data:        data,
		Dims:        schema.Dims,
		ElementKind: schema.ElementKind,
		StringWidth: width,
	}, nil
}

// coerceTree walks a (possibly nested, for multi-axis columns) payload
// value and coerces every scalar leaf to kind, recording whether any leaf
// required a cast from an incompatible type.
func coerceTree(v interface{}, kind ElementKind, width int, mismatched *bool) interface{} {
	if list, ok := v.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, e := range list {
			out[i] = coerceTree(e, kind, width, mismatched)
		}
		return out
	}
	return coerceElement(v, kind, width, mismatched)
}

// coerceElement coerces one scalar leaf to kind. encoding/json decodes every
// JSON number as float64, so float64<->int64 conversions for numeric kinds
// are treated as expected, silent coercion; only a genuinely incompatible
// type (e.g. a string landing in a declared-numeric column) sets mismatched,
// triggering the caller's dtype-mismatch warning.
func coerceElement(v interface{}, kind ElementKind, width int, mismatched *bool) interface{} {
	if v == nil {
		return v
	}
	switch kind {
	case ElementBool:
		if b, ok := v.(bool); ok {
			return b
		}
		*mismatched = true
		return false
	case ElementFloat64:
		switch t := v.(type) {
		case float64:
			return t
		case int64:
			return float64(t)
		case int:
			return float64(t)
		default:
			*mismatched = true
			return 0.0
		}
	case ElementInt64:
		switch t := v.(type) {
		case float64:
			return int64(t)
		case int64:
			return t
		case int:
			return int64(t)
		default:
			*mismatched = true
			return int64(0)
		}
	case ElementString:
		s, ok := v.(string)
		if !ok {
			*mismatched = true
			s = fmt.Sprintf("%v", v)
		}
		if width > 0 && len(s) > width {
			return s[:width]
		}
		return s
	default: // ElementUnknown, ElementStructured: no coercion target, pass through
		return v
	}
}

// widestString scans a column's payloads for the widest string leaf,
// resolving a fallback-mapped string column's width (declared width 0)
// against the real data it ends up holding.
func widestString(payloads []interface{}) int {
	width := 0
	var walk func(interface{})
	walk = func(v interface{}) {
		switch t := v.(type) {
		case []interface{}:
			for _, e := range t {
				walk(e)
			}
		case string:
			if len(t) > width {
				width = len(t)
			}
		}
	}
	for _, p := range payloads {
		walk(p)
	}
	return width
}

func (m *Materializer) extract(ctx context.Context, runUid string, descriptorUids []string, minSeq, maxSeq int64) ([]EventRow, error) {
	key := cacheKey(runUid, descriptorUids, minSeq, maxSeq)
	if cached, ok := m.cache.Get(key); ok {
		return cached.rows, nil
	}
	rows, err := m.source.ExtractColumns(ctx, runUid, descriptorUids, minSeq, maxSeq)
	if err != nil {
		return nil, err
	}
	m.cache.Add(key, cachedExtraction{rows: rows})
	return rows, nil
}

func cacheKey(runUid string, descriptorUids []string, minSeq, maxSeq int64) string {
	key := fmt.Sprintf("%s|%d|%d|", runUid, minSeq, maxSeq)
	for _, d := range descriptorUids {
		key += d + ","
	}
	return key
}
