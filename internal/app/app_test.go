package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/keystonedata/inspections-pipeline/internal/config"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	t.Setenv("S3_BUCKET_NAME", "test-bucket")
	t.Setenv("AWS_REGION", "us-east-2")
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Storage.Provider = "memory"
	cfg.Store.Provider = "memory"
	cfg.Publisher.Provider = "noop"
	cfg.Report.DownloadDir = t.TempDir()
	return cfg
}

func TestNewRejectsUnknownStorageProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Provider = "tape"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown storage provider")
}

func TestNewRejectsUnknownStoreProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Provider = "flatfile"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown store provider")
}

func TestNewRequiresS3Bucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Provider = "s3"
	cfg.Storage.S3.Bucket = ""

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "storage.s3.bucket")
}

func TestNewRequiresPostgresDSN(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Provider = "postgres"

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "store.postgres.dsn")
}

func TestNewWiresMemoryProviders(t *testing.T) {
	cfg := testConfig(t)

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("browser unavailable: %v", err)
	}
	defer a.Close(context.Background())

	require.NotNil(t, a.RunStore)
	require.NotNil(t, a.BlobStore)
	require.NotNil(t, a.Queue)
	require.NotNil(t, a.Hub)
	require.NotNil(t, a.Dispatcher)
	require.NotNil(t, a.Runs)

	run, err := a.Runs.Submit(context.Background(), pipeline.TriggerManual)
	require.NoError(t, err)
	require.Equal(t, pipeline.RunStatusQueued, run.Status)
}

func TestObjectKeyJoinsPrefix(t *testing.T) {
	a := &App{}
	a.Cfg.Storage.Prefix = "/2025/restaurant-inspections/"
	require.Equal(t, "2025/restaurant-inspections/addresses.csv", a.objectKey("addresses.csv"))

	a.Cfg.Storage.Prefix = ""
	require.Equal(t, "addresses.csv", a.objectKey("addresses.csv"))
}
