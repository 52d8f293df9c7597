//go:build integration
// +build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startCouchDB boots a disposable CouchDB container for the duration of a
// test, mirroring how the wider document-store test suite exercises real
// store behavior rather than mocks.
func startCouchDB(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "couchdb:3.3",
		ExposedPorts: []string{"5984/tcp"},
		Env: map[string]string{
			"COUCHDB_USER":     "admin",
			"COUCHDB_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForHTTP("/_up").WithPort("5984/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start couchdb container")

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5984")
	require.NoError(t, err)

	uri := fmt.Sprintf("http://admin:testpass@%s:%s/run_start", host, port.Port())

	return uri, func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate couchdb container: %v", err)
		}
	}
}

func TestAdapter_GetRunStart_NotFound(t *testing.T) {
	uri, cleanup := startCouchDB(t)
	defer cleanup()

	a, err := New(context.Background(), Config{StoreURI: uri})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.GetRunStart(context.Background(), "does-not-exist")
	require.Error(t, err)
}
