// Package store implements the Document Store Adapter: typed access to the
// six collections (run_start, run_stop, event_descriptor, event, resource,
// datum) backed by a CouchDB document database through the Kivik driver,
// plus the keyset-paginated find and aggregation-style column extraction
// the rest of the engine builds on.
//
// Two CouchDB servers may be used — a metadata store and a separate asset
// store for resource/datum — identical behavior is required of both; a
// single-server deployment is the common case and is what Config defaults
// to. On each server every collection is its own database, named after the
// collection.
package store

import (
	"context"
	"fmt"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb" // registers the "couch" driver

	"github.com/bluesky/databroker/docmodel"
)

const (
	// defaultBatchSize is the suggested chunked_find batch size.
	defaultBatchSize = 100

	// defaultAggByteCeiling targets comfortably under CouchDB's typical
	// per-document hard limit when paging aggregation-style extraction.
	defaultAggByteCeiling = 10 * 1024 * 1024
)

// Collection names, matching the external interface in the specification.
const (
	CollRunStart   = "run_start"
	CollRunStop    = "run_stop"
	CollDescriptor = "event_descriptor"
	CollEvent      = "event"
	CollResource   = "resource"
	CollDatum      = "datum"
)

// Config configures an Adapter.
type Config struct {
	// StoreURI is the metadata server address handed to the Kivik client.
	// The run_start, run_stop, event_descriptor and event collections are
	// opened on it as databases of those names; no database name is read
	// from the URI.
	StoreURI string

	// AssetStoreURI optionally reaches a second, asset-only store for
	// resource/datum. Defaults to StoreURI.
	AssetStoreURI string

	// Transforms is the compiled read-time transform pipeline applied to
	// documents returned from lookups.
	Transforms docmodel.Transforms

	// BatchSize overrides the chunked_find batch size (default 100).
	BatchSize int

	// AggByteCeiling overrides the aggregation page byte target (default 10MB).
	AggByteCeiling int64
}

// Adapter is the Document Store Adapter described in the design: point
// lookup, filtered find, and aggregation over the six collections.
type Adapter struct {
	metaClient  *kivik.Client
	assetClient *kivik.Client

	runStart   *kivik.DB
	runStop    *kivik.DB
	descriptor *kivik.DB
	event      *kivik.DB
	resource   *kivik.DB
	datum      *kivik.DB

	transforms     docmodel.Transforms
	batchSize      int
	aggByteCeiling int64
}

// New connects to the configured store(s) and returns a ready Adapter. It
// does not create databases: the document writer that is out of scope for
// this engine owns collection lifecycle.
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if cfg.StoreURI == "" {
		return nil, fmt.Errorf("store: StoreURI is required")
	}
	assetURI := cfg.AssetStoreURI
	if assetURI == "" {
		assetURI = cfg.StoreURI
	}

	metaClient, err := kivik.New("couch", cfg.StoreURI)
	if err != nil {
		return nil, docmodel.StoreErr("", false, fmt.Errorf("connect metadata store: %w", err))
	}

	assetClient := metaClient
	if assetURI != cfg.StoreURI {
		assetClient, err = kivik.New("couch", assetURI)
		if err != nil {
			return nil, docmodel.StoreErr("", false, fmt.Errorf("connect asset store: %w", err))
		}
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	ceiling := cfg.AggByteCeiling
	if ceiling <= 0 {
		ceiling = defaultAggByteCeiling
	}

	a := &Adapter{
		metaClient:     metaClient,
		assetClient:    assetClient,
		runStart:       metaClient.DB(CollRunStart),
		runStop:        metaClient.DB(CollRunStop),
		descriptor:     metaClient.DB(CollDescriptor),
		event:          metaClient.DB(CollEvent),
		resource:       assetClient.DB(CollResource),
		datum:          assetClient.DB(CollDatum),
		transforms:     cfg.Transforms,
		batchSize:      batchSize,
		aggByteCeiling: ceiling,
	}
	return a, nil
}

// Close releases the underlying client connections.
func (a *Adapter) Close() error {
	if err := a.metaClient.Close(); err != nil {
		return err
	}
	if a.assetClient != a.metaClient {
		return a.assetClient.Close()
	}
	return nil
}

func dbFor(a *Adapter, collection string) (*kivik.DB, error) {
	switch collection {
	case CollRunStart:
		return a.runStart, nil
	case CollRunStop:
		return a.runStop, nil
	case CollDescriptor:
		return a.descriptor, nil
	case CollEvent:
		return a.event, nil
	case CollResource:
		return a.resource, nil
	case CollDatum:
		return a.datum, nil
	default:
		return nil, fmt.Errorf("store: unknown collection %q", collection)
	}
}
