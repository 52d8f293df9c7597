// Package docmodel defines the immutable document types stored for an
// experiment run: RunStart, RunStop, EventDescriptor, Event, Resource, and
// Datum. These are the primary entities persisted by an external document
// writer; nothing in this module or its callers ever mutates them.
//
// The loosely typed "any document shape" model of the underlying store is
// replaced here by concrete Go structs plus a free-form Extra bag for
// user-supplied metadata fields that have no fixed schema.
package docmodel

// ExitStatus is the terminal state of a completed run.
type ExitStatus string

const (
	ExitSuccess ExitStatus = "success"
	ExitFail    ExitStatus = "fail"
	ExitAbort   ExitStatus = "abort"
)

// RunStart opens a run. Uid is globally unique; ScanID is not.
type RunStart struct {
	Uid    string                 `json:"uid"`
	Time   float64                `json:"time"`
	ScanID int64                  `json:"scan_id"`
	Extra  map[string]interface{} `json:"-"`
}

// RunStop closes a run. A run with no RunStop is live.
type RunStop struct {
	Uid        string                 `json:"uid"`
	RunStart   string                 `json:"run_start"`
	Time       float64                `json:"time"`
	ExitStatus ExitStatus             `json:"exit_status"`
	Reason     string                 `json:"reason,omitempty"`
	Extra      map[string]interface{} `json:"-"`
}

// DataKey describes one column of an event stream: its element type, shape,
// and optional dimension labels, units, external-reference flag, and
// per-column chunking hint.
type DataKey struct {
	Dtype      string       `json:"dtype"`
	DtypeStr   string       `json:"dtype_str,omitempty"`
	DtypeDescr []DtypeField `json:"dtype_descr,omitempty"`
	Shape      []int        `json:"shape"`
	Dims       []string     `json:"dims,omitempty"`
	External   bool         `json:"external,omitempty"`
	Units      string       `json:"units,omitempty"`
	Chunks     interface{}  `json:"chunks,omitempty"` // "auto", per-axis "auto", or explicit ints
	Object     string       `json:"-"`                // filled in from object_keys reverse lookup
}

// DtypeField is one field of a rank-1 structured dtype, e.g. {"name": "x",
// "type": "float64"}. Only rank-1 structured dtypes are supported; a
// DataKey combining DtypeDescr with a multi-axis Shape is rejected with a
// docmodel.UnsupportedDtype error at schema-build time.
type DtypeField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ObjectConfiguration is the snapshot of one producing device's state at the
// moment its descriptor was recorded.
type ObjectConfiguration struct {
	DataKeys   map[string]DataKey     `json:"data_keys"`
	Data       map[string]interface{} `json:"data"`
	Timestamps map[string]float64     `json:"timestamps"`
}

// EventDescriptor defines the schema of one event stream within a run. Every
// EventDescriptor sharing the same Name under the same RunStart is assumed
// to agree on DataKeys; callers may pick any one as representative.
type EventDescriptor struct {
	Uid           string                         `json:"uid"`
	RunStart      string                         `json:"run_start"`
	Name          string                         `json:"name"`
	Time          float64                        `json:"time"`
	DataKeys      map[string]DataKey             `json:"data_keys"`
	ObjectKeys    map[string][]string            `json:"object_keys"`
	Configuration map[string]ObjectConfiguration `json:"configuration"`
}

// Event is one row within a stream, identified by the descriptor it belongs
// to and its 1-based SeqNum.
type Event struct {
	Uid        string                 `json:"uid"`
	Descriptor string                 `json:"descriptor"`
	SeqNum     int64                  `json:"seq_num"`
	Time       float64                `json:"time"`
	Data       map[string]interface{} `json:"data"`
	Timestamps map[string]float64     `json:"timestamps"`
	Filled     map[string]bool        `json:"filled"`
}

// Resource describes an external artifact (e.g. a detector image file).
// Legacy records may lack Uid; callers surface Uid = the native primary key
// in that case (see store.Adapter.GetResource).
type Resource struct {
	Uid            string                 `json:"uid"`
	Spec           string                 `json:"spec"`
	ResourcePath   string                 `json:"resource_path"`
	Root           string                 `json:"root"`
	ResourceKwargs map[string]interface{} `json:"resource_kwargs"`
}

// Datum is one addressable payload reference within a Resource. DatumID may
// embed the resource uid as a "/"-separated prefix; that is an optimistic
// hint only, never a contract (see fill.Filler).
type Datum struct {
	DatumID     string                 `json:"datum_id"`
	Resource    string                 `json:"resource"`
	DatumKwargs map[string]interface{} `json:"datum_kwargs"`
}

// TransformKind names the document kinds that may carry a read-time
// transform, per the configuration's Transforms map.
type TransformKind string

const (
	TransformStart      TransformKind = "start"
	TransformStop       TransformKind = "stop"
	TransformDescriptor TransformKind = "descriptor"
	TransformResource   TransformKind = "resource"
)

// Transform is a pure function shadowing a stored document with a repaired
// copy at read time. It never propagates back to storage.
type Transform func(doc interface{}) interface{}

// Transforms is a compiled pipeline of read-time document repairs, one slot
// per TransformKind. Built once at catalog construction and applied only at
// read boundaries (store.Adapter lookups), never internally re-invoked.
type Transforms struct {
	Start      Transform
	Stop       Transform
	Descriptor Transform
	Resource   Transform
}

// Apply runs the transform registered for kind, if any, returning doc
// unchanged when none is configured.
func (t Transforms) Apply(kind TransformKind, doc interface{}) interface{} {
	var fn Transform
	switch kind {
	case TransformStart:
		fn = t.Start
	case TransformStop:
		fn = t.Stop
	case TransformDescriptor:
		fn = t.Descriptor
	case TransformResource:
		fn = t.Resource
	}
	if fn == nil {
		return doc
	}
	return fn(doc)
}
