package store

import (
	"context"
	"encoding/json"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"

	"github.com/bluesky/databroker/docmodel"
)

// SortKey is one element of a composite sort order.
type SortKey struct {
	Field string
	Desc  bool
}

// mangoSort renders sort keys as Mango's documented sort param shape.
func mangoSort(keys []SortKey) []map[string]string {
	out := make([]map[string]string, 0, len(keys))
	for _, k := range keys {
		dir := "asc"
		if k.Desc {
			dir = "desc"
		}
		out = append(out, map[string]string{k.Field: dir})
	}
	return out
}

// Cursor is the lazy sequence returned by ChunkedFind. It fetches documents
// in fixed-size batches, advancing via a keyset predicate built from the
// last document of the previous batch rather than an offset, so that
// concurrent inserts never shift or duplicate already-returned results.
type Cursor struct {
	a          *Adapter
	db         *kivik.DB
	selector   map[string]interface{}
	sort       []SortKey // user sort, primary key tiebreaker already appended
	primaryKey string
	batchSize  int
	runUid     string // context for wrapped StoreError

	buf     []json.RawMessage
	bufPos  int
	lastDoc map[string]interface{}
	started bool
	done    bool
}

// ChunkedFind returns a Cursor over collection honoring sort ++
// [(primaryKey, asc)] as the stable composite order. baseSelector is a
// Mango selector narrowing the scanned documents; pass an empty map for no
// filter.
func (a *Adapter) ChunkedFind(collection string, baseSelector map[string]interface{}, sort []SortKey, primaryKey string) (*Cursor, error) {
	db, err := dbFor(a, collection)
	if err != nil {
		return nil, err
	}
	if baseSelector == nil {
		baseSelector = map[string]interface{}{}
	}
	effective := append(append([]SortKey{}, sort...), SortKey{Field: primaryKey})
	return &Cursor{
		a:          a,
		db:         db,
		selector:   baseSelector,
		sort:       effective,
		primaryKey: primaryKey,
		batchSize:  a.batchSize,
	}, nil
}

// Next advances the cursor and returns the next document, or ok=false when
// the sequence is exhausted.
func (c *Cursor) Next(ctx context.Context) (json.RawMessage, bool, error) {
	if c.bufPos >= len(c.buf) {
		if c.done {
			return nil, false, nil
		}
		if err := c.fetchBatch(ctx); err != nil {
			return nil, false, err
		}
		if len(c.buf) == 0 {
			c.done = true
			return nil, false, nil
		}
	}
	doc := c.buf[c.bufPos]
	c.bufPos++

	var asMap map[string]interface{}
	if err := json.Unmarshal(doc, &asMap); err == nil {
		c.lastDoc = asMap
	}
	if c.bufPos >= len(c.buf) && len(c.buf) < c.batchSize {
		c.done = true
	}
	return doc, true, nil
}

func (c *Cursor) fetchBatch(ctx context.Context) error {
	selector := c.selector
	if c.started {
		keyset := buildKeysetSelector(c.sort, c.lastDoc)
		selector = map[string]interface{}{
			"$and": []interface{}{c.selector, keyset},
		}
	}
	c.started = true

	rows := c.db.Find(ctx, selector, kivik.Params(map[string]interface{}{
		"sort":  mangoSort(c.sort),
		"limit": c.batchSize,
	}))
	defer rows.Close()

	c.buf = c.buf[:0]
	c.bufPos = 0
	for rows.Next() {
		var raw json.RawMessage
		if err := rows.ScanDoc(&raw); err != nil {
			return docmodel.StoreErr(c.runUid, false, fmt.Errorf("scan document: %w", err))
		}
		c.buf = append(c.buf, raw)
	}
	if err := rows.Err(); err != nil {
		return docmodel.StoreErr(c.runUid, kivik.HTTPStatus(err) >= 500, err)
	}
	return nil
}

// buildKeysetSelector builds the OR-of-prefixes keyset predicate for
// resuming after lastDoc under sort order keys: equality on every key
// strictly before position i, AND strict inequality (direction-aware) on
// key i, OR'd across all positions i. This is the standard seek-method
// pagination predicate and is equivalent, for the final key (the primary
// key tiebreaker), to "equal on every prior key, then strictly greater (or
// less, for a descending sort) than the primary key", which breaks ties
// deterministically under concurrent insertion.
func buildKeysetSelector(keys []SortKey, lastDoc map[string]interface{}) map[string]interface{} {
	if lastDoc == nil || len(keys) == 0 {
		return map[string]interface{}{}
	}
	clauses := make([]interface{}, 0, len(keys))
	for i, k := range keys {
		clause := map[string]interface{}{}
		for j := 0; j < i; j++ {
			clause[keys[j].Field] = map[string]interface{}{"$eq": lastDoc[keys[j].Field]}
		}
		op := "$gt"
		if k.Desc {
			op = "$lt"
		}
		clause[k.Field] = map[string]interface{}{op: lastDoc[k.Field]}
		clauses = append(clauses, clause)
	}
	return map[string]interface{}{"$or": clauses}
}
