// Package query implements the Query Engine: a registry of named query
// types (full-text, native Mango selector passthrough, partial-uid prefix
// match, scan_id equality, time range) each translating its argument into
// a Mango selector fragment, and a Catalog accumulating conjuncts across
// successive search calls before handing the composed selector to the
// Document Store Adapter's keyset-paginated find.
package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bluesky/databroker/docmodel"
	"github.com/bluesky/databroker/store"
)

// Translator renders one query-type invocation's argument into a Mango
// selector fragment.
type Translator func(arg interface{}) (map[string]interface{}, error)

// Registry holds the named query-type translators available to Catalog.
type Registry struct {
	translators map[string]Translator
}

// NewRegistry returns a Registry pre-populated with the built-in query
// types: "native", "partial_uid", "scan_id", "time_range", and
// "full_text".
func NewRegistry() *Registry {
	r := &Registry{translators: map[string]Translator{}}
	r.Register("native", translateNative)
	r.Register("partial_uid", translatePartialUid)
	r.Register("scan_id", translateScanID)
	r.Register("time_range", translateTimeRange)
	r.Register("full_text", translateFullText)
	return r
}

// Register adds or replaces the translator for queryType.
func (r *Registry) Register(queryType string, t Translator) {
	r.translators[queryType] = t
}

func (r *Registry) translate(queryType string, arg interface{}) (map[string]interface{}, error) {
	t, ok := r.translators[queryType]
	if !ok {
		return nil, &docmodel.Error{
			Kind:    docmodel.KindUnsupportedTransformKey,
			Message: "unknown query type " + queryType,
		}
	}
	return t(arg)
}

// translateNative passes a raw Mango selector through unchanged, for
// callers that already speak the store's native query language.
func translateNative(arg interface{}) (map[string]interface{}, error) {
	sel, ok := arg.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("query: native query argument must be a selector map")
	}
	return sel, nil
}

// translatePartialUid matches run_start.uid by prefix.
func translatePartialUid(arg interface{}) (map[string]interface{}, error) {
	prefix, ok := arg.(string)
	if !ok || prefix == "" {
		return nil, fmt.Errorf("query: partial_uid argument must be a non-empty string")
	}
	return map[string]interface{}{
		"uid": map[string]interface{}{"$regex": "^" + prefix},
	}, nil
}

// translateScanID matches run_start.scan_id by exact equality.
func translateScanID(arg interface{}) (map[string]interface{}, error) {
	switch v := arg.(type) {
	case int64:
		return map[string]interface{}{"scan_id": v}, nil
	case int:
		return map[string]interface{}{"scan_id": v}, nil
	case float64:
		return map[string]interface{}{"scan_id": int64(v)}, nil
	default:
		return nil, fmt.Errorf("query: scan_id argument must be numeric")
	}
}

// TimeRange bounds a time_range query: [Since, Until).
type TimeRange struct {
	Since float64
	Until float64
}

func translateTimeRange(arg interface{}) (map[string]interface{}, error) {
	tr, ok := arg.(TimeRange)
	if !ok {
		return nil, fmt.Errorf("query: time_range argument must be a query.TimeRange")
	}
	return map[string]interface{}{
		"time": map[string]interface{}{"$gte": tr.Since, "$lt": tr.Until},
	}, nil
}

// translateFullText builds a Mango {"$text": {"$search": term}} selector
// fragment. It depends on a text index being available on the store; no
// in-memory or regex fallback is attempted when there is none.
func translateFullText(arg interface{}) (map[string]interface{}, error) {
	term, ok := arg.(string)
	if !ok || term == "" {
		return nil, fmt.Errorf("query: full_text argument must be a non-empty string")
	}
	return map[string]interface{}{
		"$text": map[string]interface{}{"$search": term},
	}, nil
}

// Catalog is a run_start search in progress: an accumulated set of
// conjuncts built up across successive Search calls, mirroring the
// reference engine's "catalog.search(...).search(...)" chaining.
type Catalog struct {
	adapter   *store.Adapter
	registry  *Registry
	conjuncts []map[string]interface{}
	sortKeys  []store.SortKey
}

// NewCatalog returns an empty Catalog over adapter using registry's query
// types.
func NewCatalog(adapter *store.Adapter, registry *Registry) *Catalog {
	return &Catalog{adapter: adapter, registry: registry}
}

// Search returns a new Catalog with queryType(arg)'s selector conjoined
// onto the receiver's existing conjuncts. The receiver is left unmodified,
// so the same base Catalog can be reused to build multiple independent
// searches.
func (c *Catalog) Search(queryType string, arg interface{}) (*Catalog, error) {
	sel, err := c.registry.translate(queryType, arg)
	if err != nil {
		return nil, err
	}
	next := &Catalog{
		adapter:   c.adapter,
		registry:  c.registry,
		conjuncts: append(append([]map[string]interface{}{}, c.conjuncts...), sel),
		sortKeys:  c.sortKeys,
	}
	return next, nil
}

// Sort returns a new Catalog ordered by keys, replacing any prior sort.
func (c *Catalog) Sort(keys ...store.SortKey) *Catalog {
	return &Catalog{
		adapter:   c.adapter,
		registry:  c.registry,
		conjuncts: c.conjuncts,
		sortKeys:  keys,
	}
}

func (c *Catalog) selector() map[string]interface{} {
	if len(c.conjuncts) == 0 {
		return map[string]interface{}{}
	}
	if len(c.conjuncts) == 1 {
		return c.conjuncts[0]
	}
	and := make([]interface{}, len(c.conjuncts))
	for i, s := range c.conjuncts {
		and[i] = s
	}
	return map[string]interface{}{"$and": and}
}

// Run executes the composed query over run_start and returns a keyset
// cursor, paginating via the Document Store Adapter's chunked find.
func (c *Catalog) Run() (*store.Cursor, error) {
	return c.adapter.ChunkedFind(store.CollRunStart, c.selector(), c.sortKeys, "uid")
}

// All drains Run's cursor into a slice of decoded RunStart documents, for
// callers that don't need streaming results.
func (c *Catalog) All(ctx context.Context) ([]docmodel.RunStart, error) {
	cur, err := c.Run()
	if err != nil {
		return nil, err
	}
	var out []docmodel.RunStart
	for {
		raw, ok, err := cur.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		var rs docmodel.RunStart
		if err := json.Unmarshal(raw, &rs); err != nil {
			return nil, fmt.Errorf("query: decode run_start: %w", err)
		}
		out = append(out, rs)
	}
	return out, nil
}
