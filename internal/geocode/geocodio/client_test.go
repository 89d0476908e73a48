package geocodio

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(zap.NewNop(), Config{APIKey: "test-key", BaseURL: srv.URL, QPS: 1000})
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(zap.NewNop(), Config{BaseURL: "http://example.com"})
	require.Error(t, err)

	_, err = New(zap.NewNop(), Config{APIKey: "k"})
	require.Error(t, err)
}

func TestLookupParsesMatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/geocode", r.URL.Path)
		require.Equal(t, "1 Oak St., Easton, PA 18042", r.URL.Query().Get("q"))
		require.Equal(t, "test-key", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"location":{"lat":40.68,"lng":-75.22},"accuracy":1}]}`)
	})

	loc, ok, err := c.Lookup(context.Background(), "1 Oak St., Easton, PA 18042")
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 40.68, loc.Latitude, 1e-9)
	require.InDelta(t, -75.22, loc.Longitude, 1e-9)
}

func TestLookupNoMatch(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[]}`)
	})

	_, ok, err := c.Lookup(context.Background(), "nowhere")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLookupServerError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	_, _, err := c.Lookup(context.Background(), "1 Oak St.")
	require.Error(t, err)
}
