package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type mapProbeCache struct {
	mu    sync.Mutex
	state map[string]bool
}

func (c *mapProbeCache) GetAvailability(_ context.Context, target string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.state[target]
	return v, ok
}

func (c *mapProbeCache) SetAvailability(_ context.Context, target string, available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		c.state = make(map[string]bool)
	}
	c.state[target] = available
}

func upstream(t *testing.T, status int, body any) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != LookupPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			w.WriteHeader(status)
			return
		}
		gets.Add(1)
		w.WriteHeader(status)
		if body != nil {
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gets
}

func TestRemoteSourceAvailability(t *testing.T) {
	ctx := context.Background()

	require.False(t, NewRemoteSource(RemoteConfig{}, newFakeStore()).IsAvailable(ctx))

	notFound, _ := upstream(t, http.StatusNotFound, nil)
	require.True(t, NewRemoteSource(RemoteConfig{BaseURL: notFound.URL}, newFakeStore()).IsAvailable(ctx))

	failing, _ := upstream(t, http.StatusBadGateway, nil)
	require.False(t, NewRemoteSource(RemoteConfig{BaseURL: failing.URL}, newFakeStore()).IsAvailable(ctx))
}

func TestRemoteSourceAvailabilityUsesProbeCache(t *testing.T) {
	ctx := context.Background()
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		heads.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cache := &mapProbeCache{}
	src := NewRemoteSource(RemoteConfig{BaseURL: srv.URL, ProbeCache: cache}, newFakeStore())
	require.True(t, src.IsAvailable(ctx))
	require.True(t, src.IsAvailable(ctx))
	require.EqualValues(t, 1, heads.Load())

	cache.SetAvailability(ctx, srv.URL, false)
	require.False(t, src.IsAvailable(ctx))
}

func TestRemoteSourceWritesThrough(t *testing.T) {
	ctx := context.Background()
	remote := sampleProduct("7790001")
	remote.Base.ID = ""
	remote.Variant.ID = "upstream-id"
	srv, gets := upstream(t, http.StatusOK, LookupResponse{Success: true, Producto: remote})

	store := newFakeStore()
	src := NewRemoteSource(RemoteConfig{BaseURL: srv.URL}, store)
	got, err := src.FetchProduct(ctx, "7790001")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.EqualValues(t, 1, gets.Load())
	require.Equal(t, BaseID("FizzCo", "Cola"), got.Base.ID)
	require.Equal(t, got.Base.ID, got.Variant.BaseID)

	local, err := NewLocalSource(store).FetchProduct(ctx, "7790001")
	require.NoError(t, err)
	require.NotNil(t, local)
	require.Equal(t, got.Variant.ID, local.Variant.ID)
}

func TestRemoteSourceReusesOrphanedVariant(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	orphan := ProductVariant{ID: "local-orphan", BaseID: "gone", Barcode: "555", FullName: "Old"}
	require.NoError(t, store.PutVariant(ctx, orphan))

	srv, _ := upstream(t, http.StatusOK, LookupResponse{Success: true, Producto: sampleProduct("555")})
	got, err := NewRemoteSource(RemoteConfig{BaseURL: srv.URL}, store).FetchProduct(ctx, "555")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "local-orphan", got.Variant.ID)
	require.Equal(t, 1, store.variantCount())
}

func TestRemoteSourceMissesAreNotErrors(t *testing.T) {
	ctx := context.Background()
	cases := map[string]struct {
		status int
		body   any
	}{
		"not found":     {status: http.StatusNotFound, body: LookupResponse{Error: "product not found"}},
		"success false": {status: http.StatusOK, body: LookupResponse{Success: false}},
		"server error":  {status: http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv, _ := upstream(t, tc.status, tc.body)
			store := newFakeStore()
			got, err := NewRemoteSource(RemoteConfig{BaseURL: srv.URL}, store).FetchProduct(ctx, "1")
			require.NoError(t, err)
			require.Nil(t, got)
			require.Zero(t, store.variantCount())
		})
	}
}

func TestRemoteSourceFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	src := NewRemoteSource(RemoteConfig{BaseURL: srv.URL, FetchTimeout: 50 * time.Millisecond}, newFakeStore())
	start := time.Now()
	got, err := src.FetchProduct(context.Background(), "1")
	require.NoError(t, err)
	require.Nil(t, got)
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestRemoteSourceDerivesBaseIDSharedWithManualEntry(t *testing.T) {
	ctx := context.Background()
	remote := sampleProduct("111")
	remote.Base.ID = "65a1f0c2e4b0a1b2c3d4e5f6"
	remote.Variant.BaseID = remote.Base.ID
	srv, _ := upstream(t, http.StatusOK, LookupResponse{Success: true, Producto: remote})

	store := newFakeStore()
	svc := newTestService(store, NewLocalSource(store), NewRemoteSource(RemoteConfig{BaseURL: srv.URL}, store))
	fetched := svc.GetOrCreateProduct(ctx, "111")
	require.NotNil(t, fetched)
	require.Equal(t, BaseID("FizzCo", "Cola"), fetched.Base.ID)

	manual, err := svc.CreateManualProduct(ctx, "222", ManualDescriptor{BaseName: "Cola", Brand: "FizzCo"})
	require.NoError(t, err)
	require.Equal(t, fetched.Base.ID, manual.Base.ID)

	bases, err := store.ListBases(ctx)
	require.NoError(t, err)
	require.Len(t, bases, 1)
}
