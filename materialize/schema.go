// Package materialize builds per-stream dataset schemas from descriptor
// metadata and assembles dense column arrays from extracted event rows,
// applying the declared chunk plan, element-type resolution, and shape
// validation at read time.
package materialize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bluesky/databroker/chunks"
	"github.com/bluesky/databroker/docmodel"
)

// ElementKind is the resolved scalar element type a column's values are
// coerced to, per the dtype resolution order in buildColumnSchema:
// structured dtype_descr, explicit dtype_str, then the dtype fallback
// mapping.
type ElementKind int

const (
	ElementUnknown ElementKind = iota
	ElementBool
	ElementFloat64
	ElementInt64
	ElementString
	ElementStructured
)

// ColumnSchema is the resolved, per-column schema entry: dtype, declared
// shape (without the leading event/time axis), resolved element type,
// dimension labels (including the leading "time" axis), object name,
// units, and chunk plan.
type ColumnSchema struct {
	Key         string
	Object      string
	Dtype       string
	DtypeStr    string
	Shape       []int
	Dims        []string
	ElementKind ElementKind
	StringWidth int // 0 until resolved against real data for ElementString columns with no declared width
	Structured  []docmodel.DtypeField
	Units       string
	External    bool
	Chunks      [][]int
}

// StreamSchema is the full dataset schema for one event stream, keyed by
// column name, plus the set of config columns contributed by object
// configuration snapshots.
type StreamSchema struct {
	Columns       map[string]ColumnSchema
	ConfigColumns map[string]ColumnSchema
}

// dtypeItemSize maps a subset of numpy-style dtype strings to their
// itemsize in bytes, applied in first-match order. Unrecognized dtypes
// default to 8 bytes (the common float64/int64 case) rather than failing
// chunk planning outright; structured dtypes are sized by summing fields.
var dtypeItemSizes = []struct {
	prefix string
	size   int
}{
	{"bool", 1},
	{"int8", 1}, {"uint8", 1},
	{"int16", 2}, {"uint16", 2}, {"float16", 2},
	{"int32", 4}, {"uint32", 4}, {"float32", 4},
	{"int64", 8}, {"uint64", 8}, {"float64", 8},
	{"complex64", 8}, {"complex128", 16},
}

// ItemSize returns the byte size of one dtype element, resolving
// structured dtypes via DtypeDescr field sizes and falling back to 8 for
// anything unrecognized.
func ItemSize(key docmodel.DataKey) int {
	if len(key.DtypeDescr) > 0 {
		total := 0
		for _, f := range key.DtypeDescr {
			total += itemSizeForString(f.Type)
		}
		if total > 0 {
			return total
		}
	}
	dtype := key.DtypeStr
	if dtype == "" {
		dtype = key.Dtype
	}
	return itemSizeForString(dtype)
}

func itemSizeForString(dtype string) int {
	for _, e := range dtypeItemSizes {
		if len(dtype) >= len(e.prefix) && dtype[:len(e.prefix)] == e.prefix {
			return e.size
		}
	}
	return 8
}

// BuildSchema resolves the per-column schema for one event stream from its
// descriptors' data_keys, reversing object_keys to attach each column's
// owning object name, resolving each column's element type and dimension
// labels, and propagating per-object configuration as a separate config
// column set. All descriptors sharing a stream name are assumed to agree
// on data_keys; the first is authoritative. runUid and stream are carried
// only to attach context to a returned docmodel.UnsupportedDtype error.
//
// Dimension labeling shares one anonymous-axis counter across every column
// in the stream: a column with no declared Dims gets "dim_N" labels that
// continue numbering from where the previous column's anonymous axes left
// off, rather than restarting at dim_0 per column.
func BuildSchema(runUid, stream string, descriptors []docmodel.EventDescriptor, byteCeiling int64) (StreamSchema, error) {
	out := StreamSchema{
		Columns:       map[string]ColumnSchema{},
		ConfigColumns: map[string]ColumnSchema{},
	}
	if len(descriptors) == 0 {
		return out, nil
	}
	d := descriptors[0]

	object := map[string]string{}
	for obj, keys := range d.ObjectKeys {
		for _, k := range keys {
			object[k] = obj
		}
	}

	anonAxis := 0
	for _, key := range sortedDataKeys(d.DataKeys) {
		col, err := buildColumnSchema(runUid, stream, key, d.DataKeys[key], object[key], byteCeiling, &anonAxis)
		if err != nil {
			return StreamSchema{}, err
		}
		out.Columns[key] = col
	}

	for _, obj := range sortedConfigObjects(d.Configuration) {
		cfg := d.Configuration[obj]
		for _, key := range sortedDataKeys(cfg.DataKeys) {
			colKey := obj + "_" + key
			col, err := buildColumnSchema(runUid, stream, colKey, cfg.DataKeys[key], obj, byteCeiling, &anonAxis)
			if err != nil {
				return StreamSchema{}, err
			}
			out.ConfigColumns[colKey] = col
		}
	}

	return out, nil
}

func sortedDataKeys(m map[string]docmodel.DataKey) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedConfigObjects(m map[string]docmodel.ObjectConfiguration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func buildColumnSchema(runUid, stream, key string, dk docmodel.DataKey, object string, byteCeiling int64, anonAxis *int) (ColumnSchema, error) {
	kind, structured, width, err := resolveElementType(runUid, stream, key, dk)
	if err != nil {
		return ColumnSchema{}, err
	}
	itemSize := ItemSize(dk)
	plan := chunks.Plan(dk.Shape, itemSize, byteCeiling, suggestionFromChunks(dk.Chunks, len(dk.Shape)))
	return ColumnSchema{
		Key:         key,
		Object:      object,
		Dtype:       dk.Dtype,
		DtypeStr:    dk.DtypeStr,
		Shape:       dk.Shape,
		Dims:        resolveDims(dk, anonAxis),
		ElementKind: kind,
		StringWidth: width,
		Structured:  structured,
		Units:       dk.Units,
		External:    dk.External,
		Chunks:      plan,
	}, nil
}

// resolveElementType resolves a DataKey's declared scalar element type in
// first-match order: a structured dtype_descr (only rank-1 columns are
// supported; deeper nesting raises docmodel.UnsupportedDtype), an explicit
// dtype_str, then the fallback mapping from the generic "dtype" field
// {boolean->bool, number->float64, integer->int64, string->string,
// array->float64}. A fallback string column's width is left at 0 here; the
// Materializer resolves it against real data at read time by scanning the
// column for its widest element.
func resolveElementType(runUid, stream, key string, dk docmodel.DataKey) (ElementKind, []docmodel.DtypeField, int, error) {
	if len(dk.DtypeDescr) > 0 {
		if len(dk.Shape) > 1 {
			return ElementUnknown, nil, 0, docmodel.UnsupportedDtype(runUid, stream, key,
				fmt.Sprintf("structured dtype_descr is only supported for rank <= 1 columns, got shape %v", dk.Shape))
		}
		return ElementStructured, dk.DtypeDescr, 0, nil
	}
	if kind, width, ok := elementKindForDtypeStr(dk.DtypeStr); ok {
		return kind, nil, width, nil
	}
	return elementKindForDtype(dk.Dtype), nil, 0, nil
}

// elementKindForDtypeStr parses a numpy-style dtype_str ("<f8", "|b1",
// "<U32", ...), stripping any byte-order marker, and reports whether it
// recognized the type.
func elementKindForDtypeStr(dtypeStr string) (ElementKind, int, bool) {
	trimmed := strings.TrimLeft(dtypeStr, "<>|=")
	switch {
	case trimmed == "":
		return ElementUnknown, 0, false
	case strings.HasPrefix(trimmed, "bool") || trimmed == "b1":
		return ElementBool, 1, true
	case strings.HasPrefix(trimmed, "U"):
		return ElementString, parseStringWidth(trimmed[1:]), true
	case strings.HasPrefix(trimmed, "S"):
		return ElementString, parseStringWidth(trimmed[1:]), true
	case strings.HasPrefix(trimmed, "f"):
		return ElementFloat64, 0, true
	case strings.HasPrefix(trimmed, "i"), strings.HasPrefix(trimmed, "u"):
		return ElementInt64, 0, true
	default:
		return ElementUnknown, 0, false
	}
}

func parseStringWidth(s string) int {
	width, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return width
}

// elementKindForDtype applies the fallback mapping from a DataKey's
// generic "dtype" field to an ElementKind, used when no structured
// dtype_descr or explicit dtype_str resolved one.
func elementKindForDtype(dtype string) ElementKind {
	switch dtype {
	case "boolean":
		return ElementBool
	case "integer":
		return ElementInt64
	case "string":
		return ElementString
	case "number", "array":
		return ElementFloat64
	default:
		return ElementFloat64
	}
}

// resolveDims labels a column's axes as ["time"] ++ dk.Dims when dk
// declares one name per axis, or ["time", "dim_N", "dim_N+1", ...]
// otherwise. anonAxis is shared across every column built for the same
// stream, so anonymous axis numbering continues across columns rather
// than resetting at zero for each one.
func resolveDims(dk docmodel.DataKey, anonAxis *int) []string {
	dims := make([]string, 0, len(dk.Shape)+1)
	dims = append(dims, "time")
	if len(dk.Dims) == len(dk.Shape) && len(dk.Dims) > 0 {
		dims = append(dims, dk.Dims...)
		return dims
	}
	for range dk.Shape {
		dims = append(dims, fmt.Sprintf("dim_%d", *anonAxis))
		*anonAxis++
	}
	return dims
}

// suggestionFromChunks normalizes a DataKey.Chunks value (nil, "auto", or a
// per-axis list) into a chunks.Suggestion, returning nil (use the planner's
// default) when the declared hint doesn't match rank.
func suggestionFromChunks(raw interface{}, rank int) chunks.Suggestion {
	if raw == nil {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok || len(list) != rank {
		return nil
	}
	out := make(chunks.Suggestion, len(list))
	for i, v := range list {
		switch vv := v.(type) {
		case string:
			out[i] = vv
		case float64:
			out[i] = int(vv)
		case int:
			out[i] = vv
		default:
			return nil
		}
	}
	return out
}

// SortedColumnKeys returns a stream schema's column keys in a stable,
// sorted order, useful for deterministic iteration in tests and dataset
// construction.
func (s StreamSchema) SortedColumnKeys() []string {
	keys := make([]string, 0, len(s.Columns))
	for k := range s.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
