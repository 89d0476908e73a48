// Package exporter drives the public report page in headless Chrome and
// downloads the raw violation workbook.
package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// The export visual sits deep inside the Power BI exploration host. These
// paths track the published report layout and need updating when the report
// is rearranged.
const (
	hoverVisualXPath = "//*[@id='pvExplorationHost']/div/div/exploration/div/explore-canvas" +
		"/div/div[2]/div/div[2]/div[2]/visual-container-repeat/visual-container[19]" +
		"/transform/div/div[2]/div/div"
	menuButtonXPath = "//*[@id='pvExplorationHost']/div/div/exploration/div/explore-canvas" +
		"/div/div[2]/div/div[2]/div[2]/visual-container-repeat/visual-container[19]" +
		"/transform/div/visual-container-header/div/div/div/visual-container-options-menu" +
		"/visual-header-item-container/div"
)

// Settle delays between report interactions. The report redraws visuals
// asynchronously after each click.
const (
	tabSettle  = 5 * time.Second
	menuSettle = 2 * time.Second
	keySettle  = 200 * time.Millisecond
	exportTabs = 4
)

// ChromedpExporter exports the report workbook using headless Chrome.
type ChromedpExporter struct {
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	logger          *zap.Logger
	cfg             Config
}

// NewChromedpExporter starts a headless browser for report exports.
func NewChromedpExporter(cfg Config, logger *zap.Logger) (*ChromedpExporter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("report url is required")
	}
	if cfg.DownloadDir == "" {
		return nil, fmt.Errorf("download directory is required")
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := chromedp.DefaultExecAllocatorOptions[:]
	opts = append(opts,
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(cfg.UserAgent),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		allocatorCancel()
		browserCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}

	return &ChromedpExporter{
		allocatorCancel: allocatorCancel,
		browserCtx:      browserCtx,
		browserCancel:   browserCancel,
		logger:          logger,
		cfg:             cfg,
	}, nil
}

// Close tears down the chromedp allocator and browser contexts.
func (e *ChromedpExporter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.browserCancel()
	e.allocatorCancel()
	select {
	case <-ctx.Done():
	default:
	}
	return nil
}

// Export opens the report, switches to the violation tab, walks the visual's
// options menu, and triggers the workbook export. It returns the path of the
// downloaded file.
func (e *ChromedpExporter) Export(ctx context.Context) (string, error) {
	tabCtx, cancelTab := chromedp.NewContext(e.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, e.cfg.ExportTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	watcher := newDownloadWatcher()
	watcher.listen(taskCtx)
	started := time.Now()

	if err := e.openReport(taskCtx); err != nil {
		return "", err
	}
	if err := e.triggerExport(taskCtx); err != nil {
		return "", err
	}
	return e.awaitDownload(taskCtx, watcher, started)
}

// openReport navigates to the report and waits for the violation tab, bounded
// by the configured load timeout.
func (e *ChromedpExporter) openReport(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, e.cfg.LoadTimeout)
	defer cancel()

	tasks := chromedp.Tasks{
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(e.cfg.DownloadDir).
			WithEventsEnabled(true),
		chromedp.Navigate(e.cfg.URL),
		chromedp.WaitVisible(e.tabXPath(), chromedp.BySearch),
	}
	if err := chromedp.Run(loadCtx, tasks); err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	e.logger.Debug("report frame rendered", zap.String("url", e.cfg.URL))
	return nil
}

// triggerExport clicks through the tab and options menu. The menu itself has
// no stable selectors, so the export entries are reached by keyboard.
func (e *ChromedpExporter) triggerExport(ctx context.Context) error {
	tasks := chromedp.Tasks{
		chromedp.Click(e.tabXPath(), chromedp.BySearch),
		chromedp.Sleep(tabSettle),
		hoverNode(hoverVisualXPath, chromedp.BySearch),
		chromedp.WaitVisible(menuButtonXPath, chromedp.BySearch),
		chromedp.Click(menuButtonXPath, chromedp.BySearch),
		chromedp.Sleep(menuSettle),
		chromedp.KeyEvent(kb.Enter),
	}
	for i := 0; i < exportTabs; i++ {
		tasks = append(tasks, chromedp.KeyEvent(kb.Tab), chromedp.Sleep(keySettle))
	}
	tasks = append(tasks, chromedp.KeyEvent(kb.Enter))

	if err := chromedp.Run(ctx, tasks); err != nil {
		return fmt.Errorf("export interaction: %w", err)
	}
	e.logger.Debug("export triggered", zap.String("tab", e.cfg.Tab))
	return nil
}

// awaitDownload waits for the browser to finish the export download, with a
// directory scan fallback at the configured poll interval.
func (e *ChromedpExporter) awaitDownload(ctx context.Context, watcher *downloadWatcher, started time.Time) (string, error) {
	poll := e.cfg.DownloadPollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case guid := <-watcher.done:
			path := filepath.Join(e.cfg.DownloadDir, guid)
			e.logger.Info("export downloaded",
				zap.String("path", path),
				zap.String("suggested_filename", watcher.suggestedName(guid)),
			)
			return path, nil
		case err := <-watcher.failed:
			return "", err
		case <-ticker.C:
			if path := e.scanDownloadDir(started); path != "" {
				e.logger.Info("export found by directory scan", zap.String("path", path))
				return path, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("await download: %w", ctx.Err())
		}
	}
}

// scanDownloadDir looks for a finished download newer than the session start.
func (e *ChromedpExporter) scanDownloadDir(started time.Time) string {
	entries, err := os.ReadDir(e.cfg.DownloadDir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".crdownload" {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().Before(started) || info.Size() == 0 {
			continue
		}
		return filepath.Join(e.cfg.DownloadDir, entry.Name())
	}
	return ""
}

func (e *ChromedpExporter) tabXPath() string {
	return fmt.Sprintf("//*[text()=%q]", e.cfg.Tab)
}

// downloadWatcher tracks browser download events for the session.
type downloadWatcher struct {
	mu    sync.Mutex
	names map[string]string
	once  sync.Once

	done   chan string
	failed chan error
}

func newDownloadWatcher() *downloadWatcher {
	return &downloadWatcher{
		names:  make(map[string]string),
		done:   make(chan string, 1),
		failed: make(chan error, 1),
	}
}

func (w *downloadWatcher) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *browser.EventDownloadWillBegin:
			w.mu.Lock()
			w.names[ev.GUID] = ev.SuggestedFilename
			w.mu.Unlock()
		case *browser.EventDownloadProgress:
			switch ev.State {
			case browser.DownloadProgressStateCompleted:
				w.once.Do(func() { w.done <- ev.GUID })
			case browser.DownloadProgressStateCanceled:
				w.once.Do(func() { w.failed <- fmt.Errorf("download canceled") })
			}
		}
	})
}

func (w *downloadWatcher) suggestedName(guid string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.names[guid]
}

// hoverNode moves the mouse to the center of the first node matching sel so
// the report reveals the visual's header controls.
func hoverNode(sel string, opts ...chromedp.QueryOption) chromedp.Action {
	return chromedp.QueryAfter(sel, func(ctx context.Context, _ runtime.ExecutionContextID, nodes ...*cdp.Node) error {
		if len(nodes) == 0 {
			return fmt.Errorf("hover: no nodes match %q", sel)
		}
		quads, err := dom.GetContentQuads().WithNodeID(nodes[0].NodeID).Do(ctx)
		if err != nil {
			return fmt.Errorf("hover: content quads: %w", err)
		}
		if len(quads) == 0 || len(quads[0]) < 8 {
			return fmt.Errorf("hover: node has no layout box")
		}
		q := quads[0]
		x := (q[0] + q[2] + q[4] + q[6]) / 4
		y := (q[1] + q[3] + q[5] + q[7]) / 4
		return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
	}, append(opts, chromedp.NodeVisible)...)
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
