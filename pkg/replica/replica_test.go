package replica

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/concordia-save/concordia/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemory()
	payload := []byte(`{"group_id":"g1"}`)

	address, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	assert.NotEmpty(t, address)

	got, err := store.Get(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// Content addressing dedupes identical payloads.
	again, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, address, again)

	require.NoError(t, store.Remove(context.Background(), address))
	_, err = store.Get(context.Background(), address)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIPFSStoreFallback(t *testing.T) {
	payload := []byte("group blob")
	const cid = "QmTestCid"

	// Primary upload node is down; the secondary accepts the add.
	downNode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node overloaded", http.StatusInternalServerError)
	}))
	defer downNode.Close()

	upNode := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.URL.Path, "/api/v0/add"))
		json.NewEncoder(w).Encode(addResponse{Hash: cid})
	}))
	defer upNode.Close()

	// Primary read gateway is down too; the fallback serves the bytes.
	downGateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer downGateway.Close()

	upGateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ipfs/"+cid, r.URL.Path)
		w.Write(payload)
	}))
	defer upGateway.Close()

	store := NewIPFS(
		[]string{downNode.URL, upNode.URL},
		[]string{downGateway.URL, upGateway.URL},
		discardLogger(),
	)

	address, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, cid, address)

	got, err := store.Get(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestIPFSStoreAllEndpointsDown(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer down.Close()

	store := NewIPFS([]string{down.URL, down.URL}, []string{down.URL}, discardLogger())

	_, err := store.Put(context.Background(), []byte("payload"))
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)

	_, err = store.Get(context.Background(), "QmMissing")
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
}

func TestIPFSStoreDeadlineSurfacesTimeout(t *testing.T) {
	// The server holds every request open until the caller gives up, so
	// the deadline is what ends the call.
	stalled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body first: the server only cancels the request
		// context on client disconnect once the body has been read, so
		// without this the handler blocks forever and Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer stalled.Close()

	store := NewIPFS([]string{stalled.URL}, []string{stalled.URL}, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := store.Get(ctx, "QmSlow")
	assert.ErrorIs(t, err, storage.ErrTimeout)

	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = store.Put(ctx, []byte("payload"))
	assert.ErrorIs(t, err, storage.ErrTimeout)
}

func TestIPFSStoreNotFound(t *testing.T) {
	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer missing.Close()

	store := NewIPFS(nil, []string{missing.URL, missing.URL}, discardLogger())

	// Every gateway reports the content missing: NotFound, not Unavailable.
	_, err := store.Get(context.Background(), "QmMissing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIPFSRemoveIsBestEffort(t *testing.T) {
	rejecting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not pinned", http.StatusInternalServerError)
	}))
	defer rejecting.Close()

	store := NewIPFS([]string{rejecting.URL}, nil, discardLogger())
	assert.NoError(t, store.Remove(context.Background(), "QmAnything"))

	// No nodes configured at all still reports success with a warning.
	store = NewIPFS(nil, nil, discardLogger())
	assert.NoError(t, store.Remove(context.Background(), "QmAnything"))
}

func TestArweaveStoreFallback(t *testing.T) {
	payload := []byte("permanent blob")
	const txID = "arweave-tx-1"

	downBundler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bundler down", http.StatusServiceUnavailable)
	}))
	defer downBundler.Close()

	upBundler := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tx", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, payload, body)
		json.NewEncoder(w).Encode(uploadResponse{ID: txID})
	}))
	defer upBundler.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/"+txID, r.URL.Path)
		w.Write(payload)
	}))
	defer gateway.Close()

	store := NewArweave([]string{downBundler.URL, upBundler.URL}, []string{gateway.URL}, discardLogger())

	address, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, txID, address)

	got, err := store.Get(context.Background(), address)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	// The permaweb has no unpin; removal still reports success.
	assert.NoError(t, store.Remove(context.Background(), address))
}

func TestArweavePendingTransactionIsTransient(t *testing.T) {
	pending := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer pending.Close()

	store := NewArweave(nil, []string{pending.URL}, discardLogger())

	_, err := store.Get(context.Background(), "tx-propagating")
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, storage.ErrNotFound)
}
