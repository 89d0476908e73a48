package local

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "2025/restaurant-inspections/addresses.csv", "text/csv", []byte("Address,Latitude,Longitude\n"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "file://"))

	got, err := s.GetObject(context.Background(), "2025/restaurant-inspections/addresses.csv")
	require.NoError(t, err)
	require.Equal(t, []byte("Address,Latitude,Longitude\n"), got)
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.GetObject(context.Background(), "absent.csv")
	require.ErrorIs(t, err, pipeline.ErrObjectNotFound)
}

func TestBlobStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), filepath.Join("..", "escape.csv"), "", []byte("x"))
	require.Error(t, err)
}
