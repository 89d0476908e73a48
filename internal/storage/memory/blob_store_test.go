package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func TestBlobStoreRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "2025/restaurant-inspections/inspections.xlsx", "application/octet-stream", []byte("payload"))
	require.NoError(t, err)
	require.Equal(t, "memory://2025/restaurant-inspections/inspections.xlsx", uri)

	got, err := s.GetObject(context.Background(), "2025/restaurant-inspections/inspections.xlsx")
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), got)
}

func TestBlobStoreGetMissing(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	_, err := s.GetObject(context.Background(), "absent.csv")
	require.ErrorIs(t, err, pipeline.ErrObjectNotFound)
}

func TestBlobStoreCopiesOnWrite(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	data := []byte("original")
	_, err := s.PutObject(context.Background(), "k", "", data)
	require.NoError(t, err)

	data[0] = 'X'
	got, err := s.GetObject(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}
