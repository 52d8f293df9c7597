package materialize

import (
	"github.com/bluesky/databroker/docmodel"
)

// NDArray is a dense, row-major column value: Shape gives the per-axis
// extent (the leading axis is the event/time axis) and Data holds
// len(Data) == product(Shape) scalar elements (or, for structured dtypes,
// one map[string]interface{} per element). Dims labels every axis
// ("time" plus the column's own dimension names) and ElementKind/
// StringWidth record the resolved element type the data was coerced to.
type NDArray struct {
	Shape       []int
	Data        []interface{}
	Dims        []string
	ElementKind ElementKind
	StringWidth int
}

// shapeTolerance bounds how far one event's payload shape may deviate from
// a column's declared per-event shape, on any axis, before it is treated
// as corrupt rather than a benign deviation (e.g. a detector dropping the
// last frame of a multi-frame read). Per-axis deficits or surpluses of at
// most two are healed by trailing-edge edge-replication or truncation;
// anything larger fails.
const shapeTolerance = 2

// ValidateEventPayload checks one event's payload shape (inferred from its
// nested-slice structure) against a column's declared per-event shape
// (schema.Shape, which excludes the stream's leading time axis), resizing
// any axis within shapeTolerance by trailing-edge replication (pad) or
// truncation (trim), and failing with docmodel.BadShapeMetadata when rank
// differs or any axis deviates beyond tolerance.
func ValidateEventPayload(runUid, stream, key string, declared []int, v interface{}) (interface{}, error) {
	if len(declared) == 0 {
		return v, nil
	}
	actual := shapeOf(v)
	if len(actual) != len(declared) {
		return nil, docmodel.BadShapeMetadata(runUid, stream, key, declared, actual)
	}
	for axis, want := range declared {
		deficit := want - actual[axis]
		if deficit < -shapeTolerance || deficit > shapeTolerance {
			return nil, docmodel.BadShapeMetadata(runUid, stream, key, declared, actual)
		}
	}
	return resize(v, declared), nil
}

// shapeOf infers the per-axis extent of a nested-slice value by walking its
// first element down each axis. A value that isn't a []interface{} is rank
// 0 (a scalar leaf).
func shapeOf(v interface{}) []int {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	if len(list) == 0 {
		return []int{0}
	}
	return append([]int{len(list)}, shapeOf(list[0])...)
}

// resize pads or trims v to declared along every axis, replicating the
// trailing (last) element of a short axis and truncating a long one. A
// value that isn't a []interface{} (a scalar leaf, or already exhausted
// nesting) is returned unchanged.
func resize(v interface{}, declared []int) interface{} {
	if len(declared) == 0 {
		return v
	}
	list, ok := v.([]interface{})
	if !ok {
		return v
	}
	want := declared[0]
	rest := declared[1:]
	out := make([]interface{}, want)
	for i := 0; i < want; i++ {
		switch {
		case i < len(list):
			out[i] = resize(list[i], rest)
		case len(list) > 0:
			out[i] = resize(list[len(list)-1], rest)
		default:
			out[i] = resize(nil, rest)
		}
	}
	return out
}
