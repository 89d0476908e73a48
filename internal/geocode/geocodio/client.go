// Package geocodio implements a rate-limited Geocodio forward-geocoding
// client.
package geocodio

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/keystonedata/inspections-pipeline/internal/geocode"
)

// Config captures the parameters for the Geocodio API.
type Config struct {
	APIKey  string
	BaseURL string
	QPS     float64
	Timeout time.Duration
}

type geocodeResponse struct {
	Results []struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		Accuracy float64 `json:"accuracy"`
	} `json:"results"`
}

// Client geocodes addresses against the Geocodio HTTP API.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	apiKey  string
}

// New creates a Geocodio client.
func New(logger *zap.Logger, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.QPS <= 0 {
		cfg.QPS = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	http := resty.New()
	http.SetBaseURL(cfg.BaseURL)
	http.SetTimeout(cfg.Timeout)

	return &Client{
		http:    http,
		limiter: rate.NewLimiter(rate.Limit(cfg.QPS), 1),
		logger:  logger,
		apiKey:  cfg.APIKey,
	}, nil
}

// Lookup geocodes a single address. The second return value reports whether
// the API produced a match; an unmatched address is not an error.
func (c *Client) Lookup(ctx context.Context, address string) (geocode.Location, bool, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return geocode.Location{}, false, err
	}

	var body geocodeResponse
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", address).
		SetQueryParam("api_key", c.apiKey).
		SetQueryParam("limit", "1").
		SetResult(&body).
		Get("/geocode")
	if err != nil {
		return geocode.Location{}, false, fmt.Errorf("geocode request: %w", err)
	}
	if res.IsError() {
		return geocode.Location{}, false, fmt.Errorf("geocode request: status %d", res.StatusCode())
	}
	if len(body.Results) == 0 {
		c.logger.Debug("no geocode match", zap.String("address", address))
		return geocode.Location{}, false, nil
	}
	loc := body.Results[0].Location
	return geocode.Location{Latitude: loc.Lat, Longitude: loc.Lng}, true, nil
}
