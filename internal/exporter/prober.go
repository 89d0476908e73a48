package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// CollyProber checks that the report page is reachable before the expensive
// browser session is started.
type CollyProber struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
	url           string
}

// NewCollyProber constructs a Colly-based reachability probe.
func NewCollyProber(cfg Config, logger *zap.Logger) (*CollyProber, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("report url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := colly.NewCollector(colly.UserAgent(cfg.UserAgent))
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.ProbeTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.ProbeTimeout)

	return &CollyProber{
		baseCollector: base,
		logger:        logger,
		url:           cfg.URL,
	}, nil
}

type probeResult struct {
	status int
	err    error
}

// Probe fetches the report page and fails on any non-2xx outcome.
func (p *CollyProber) Probe(ctx context.Context) error {
	collector := p.baseCollector.Clone()
	resultCh := make(chan probeResult, 1)
	var once sync.Once
	send := func(res probeResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(probeResult{status: r.StatusCode})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(probeResult{status: status, err: err})
	})

	if err := collector.Visit(p.url); err != nil {
		return fmt.Errorf("probe %s: %w", p.url, err)
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if res.err != nil {
			return fmt.Errorf("probe %s: %w", p.url, res.err)
		}
		if res.status < 200 || res.status > 299 {
			return fmt.Errorf("probe %s: status %d", p.url, res.status)
		}
		p.logger.Debug("report page reachable", zap.String("url", p.url), zap.Int("status", res.status))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("probe %s: %w", p.url, ctx.Err())
	}
}
