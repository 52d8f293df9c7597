package docmodel

import "fmt"

// Kind identifies the abstract error category raised by the core, mirroring
// the error kinds enumerated in the catalog design: NotFound variants,
// schema errors, filler convergence failures, and store failures. User code
// should switch on Kind rather than string-matching Error().
type Kind string

const (
	KindRunNotFound        Kind = "run_not_found"
	KindResourceNotFound   Kind = "resource_not_found"
	KindDatumNotFound      Kind = "datum_not_found"
	KindDescriptorNotFound Kind = "descriptor_not_found"
	KindFieldNotFound      Kind = "field_not_found"

	KindBadShapeMetadata        Kind = "bad_shape_metadata"
	KindUnsupportedDtype        Kind = "unsupported_dtype"
	KindUnsupportedTransformKey Kind = "unsupported_transform_key"
	KindUnresolvableExternalRef Kind = "unresolvable_external_reference"
	KindDuplicateHandler        Kind = "duplicate_handler"
	KindStoreError              Kind = "store_error"
	KindAccessDenied            Kind = "access_denied"
)

// Error is the single error type raised across the core. Every instance
// carries the run uid and, when applicable, the stream name and column key,
// per the propagation policy: callers always get enough context to locate
// the offending document without re-querying.
type Error struct {
	Kind     Kind
	RunUid   string
	Stream   string
	Key      string
	Message  string
	Wrapped  error
	Transient bool // for KindStoreError: true if the caller may retry
}

func (e *Error) Error() string {
	ctx := e.RunUid
	if e.Stream != "" {
		ctx += "/" + e.Stream
	}
	if e.Key != "" {
		ctx += "/" + e.Key
	}
	if ctx != "" {
		if e.Wrapped != nil {
			return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, ctx, e.Message, e.Wrapped)
		}
		return fmt.Sprintf("%s [%s]: %s", e.Kind, ctx, e.Message)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Is supports errors.Is(err, &Error{Kind: KindX}) comparisons by Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// NotFound builds a run-scoped not-found error of the given kind.
func NotFound(kind Kind, runUid, message string) *Error {
	return &Error{Kind: kind, RunUid: runUid, Message: message}
}

// BadShapeMetadata builds the shape-mismatch error raised by
// materialize.ValidateEventPayload when a deficit exceeds the tolerance.
func BadShapeMetadata(runUid, stream, key string, expected, actual []int) *Error {
	return &Error{
		Kind:    KindBadShapeMetadata,
		RunUid:  runUid,
		Stream:  stream,
		Key:     key,
		Message: fmt.Sprintf("expected shape %v, got %v", expected, actual),
	}
}

// UnsupportedDtype builds the error raised when a column declares a dtype
// this engine cannot resolve an element type for: a structured dtype on a
// column of rank greater than 1. An unrecognized dtype_str is not an error;
// it falls back to the generic dtype mapping.
func UnsupportedDtype(runUid, stream, key, message string) *Error {
	return &Error{
		Kind:    KindUnsupportedDtype,
		RunUid:  runUid,
		Stream:  stream,
		Key:     key,
		Message: message,
	}
}

// UnresolvableExternalReference builds the error the filler raises when a
// re-entrant resolution attempt repeats the same datum id.
func UnresolvableExternalReference(runUid, stream, datumID string) *Error {
	return &Error{
		Kind:    KindUnresolvableExternalRef,
		RunUid:  runUid,
		Stream:  stream,
		Key:     datumID,
		Message: "filler could not resolve external reference after one retry",
	}
}

// StoreErr wraps a transient or permanent store failure.
func StoreErr(runUid string, transient bool, err error) *Error {
	return &Error{
		Kind:      KindStoreError,
		RunUid:    runUid,
		Message:   "document store operation failed",
		Wrapped:   err,
		Transient: transient,
	}
}
