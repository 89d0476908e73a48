package exporter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewChromedpExporterValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := NewChromedpExporter(Config{DownloadDir: t.TempDir()}, zap.NewNop())
	require.Error(t, err)

	_, err = NewChromedpExporter(Config{URL: "https://example.com"}, zap.NewNop())
	require.Error(t, err)
}

func TestChromedpExporterStartsAndCloses(t *testing.T) {
	e, err := NewChromedpExporter(Config{
		URL:           "https://example.com",
		Tab:           "Violation Details",
		UserAgent:     "TestAgent",
		LoadTimeout:   10 * time.Second,
		ExportTimeout: 20 * time.Second,
		DownloadDir:   t.TempDir(),
	}, zap.NewNop())
	if err != nil {
		t.Skipf("chromedp unavailable: %v", err)
	}
	require.NoError(t, e.Close(context.Background()))
}

func TestForwardCancelPropagates(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	child, cancelChild := context.WithCancel(context.Background())
	defer cancelChild()

	stop := forwardCancel(parent, cancelChild)
	defer stop()

	cancelParent()
	select {
	case <-child.Done():
	case <-time.After(time.Second):
		t.Fatal("child context not canceled")
	}
}

func TestTabXPathQuotesLabel(t *testing.T) {
	t.Parallel()

	e := &ChromedpExporter{cfg: Config{Tab: "Violation Details"}}
	require.Equal(t, `//*[text()="Violation Details"]`, e.tabXPath())
}
