// Package geocode attaches coordinates to inspection records from the shared
// address roster, with live lookups for addresses the roster does not cover.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Roster column names in addresses.csv.
const (
	colAddress   = "Address"
	colLatitude  = "Latitude"
	colLongitude = "Longitude"
)

// Location is a geocoded coordinate pair.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Geocoder resolves a single address to coordinates. The boolean reports
// whether a match was found; no match is not an error.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (Location, bool, error)
}

// Result summarizes one enrichment pass.
type Result struct {
	// Geocoded counts records that ended up with coordinates.
	Geocoded int
	// Resolved counts addresses newly geocoded by live lookup.
	Resolved int
	// Missing counts unique addresses still without coordinates.
	Missing int
}

// Enricher merges the address roster onto records and maintains the
// missing-address report.
type Enricher struct {
	logger       *zap.Logger
	blobs        pipeline.BlobStore
	geocoder     Geocoder
	addressesKey string
	missingKey   string
}

// NewEnricher constructs an Enricher. geocoder may be nil, in which case
// unknown addresses are only reported, never resolved.
func NewEnricher(logger *zap.Logger, blobs pipeline.BlobStore, geocoder Geocoder, addressesKey, missingKey string) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{
		logger:       logger,
		blobs:        blobs,
		geocoder:     geocoder,
		addressesKey: addressesKey,
		missingKey:   missingKey,
	}
}

// Enrich sets Latitude and Longitude on each record whose address appears in
// the roster. Addresses absent from the roster are looked up live when a
// geocoder is configured; resolved addresses are written back to the roster
// and the rest land in the missing-address report.
func (e *Enricher) Enrich(ctx context.Context, records []dataset.Inspection) (Result, error) {
	raw, err := e.blobs.GetObject(ctx, e.addressesKey)
	if err != nil {
		return Result{}, fmt.Errorf("loading address roster %q: %w", e.addressesKey, err)
	}
	tbl, err := dataset.ParseTable(raw)
	if err != nil {
		return Result{}, fmt.Errorf("parsing address roster: %w", err)
	}
	if !tbl.HasColumns(colAddress, colLatitude, colLongitude) {
		return Result{}, fmt.Errorf("address roster missing required columns, has %v", tbl.Columns)
	}

	coords := make(map[string]Location, len(tbl.Rows))
	for _, row := range tbl.Rows {
		addr := strings.TrimSpace(row[colAddress])
		if addr == "" {
			continue
		}
		lat, latErr := strconv.ParseFloat(strings.TrimSpace(row[colLatitude]), 64)
		lng, lngErr := strconv.ParseFloat(strings.TrimSpace(row[colLongitude]), 64)
		if latErr != nil || lngErr != nil {
			continue
		}
		coords[addr] = Location{Latitude: lat, Longitude: lng}
	}
	e.logger.Info("loaded address roster", zap.Int("addresses", len(coords)))

	// Unique unknown addresses in first-seen order.
	var unknown []string
	seen := make(map[string]struct{})
	for _, rec := range records {
		addr := strings.TrimSpace(rec.Address)
		if addr == "" {
			continue
		}
		if _, ok := coords[addr]; ok {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		unknown = append(unknown, addr)
	}

	resolved, err := e.resolve(ctx, unknown, coords)
	if err != nil {
		return Result{}, err
	}
	if len(resolved) > 0 {
		if err := e.saveRoster(ctx, tbl, resolved, coords); err != nil {
			return Result{}, err
		}
	}

	res := Result{Resolved: len(resolved)}
	for i := range records {
		loc, ok := coords[strings.TrimSpace(records[i].Address)]
		if !ok {
			continue
		}
		records[i].Latitude = strconv.FormatFloat(loc.Latitude, 'f', -1, 64)
		records[i].Longitude = strconv.FormatFloat(loc.Longitude, 'f', -1, 64)
		res.Geocoded++
	}

	var stillMissing []string
	for _, addr := range unknown {
		if _, ok := coords[addr]; !ok {
			stillMissing = append(stillMissing, addr)
		}
	}
	res.Missing = len(stillMissing)
	if len(stillMissing) > 0 {
		if err := e.saveMissing(ctx, stillMissing); err != nil {
			return Result{}, err
		}
		e.logger.Warn("addresses without coordinates",
			zap.Int("count", len(stillMissing)),
			zap.String("report", e.missingKey),
		)
	}
	return res, nil
}

// resolve looks up unknown addresses live. Lookup failures are logged and the
// address stays missing; context cancellation aborts the pass.
func (e *Enricher) resolve(ctx context.Context, unknown []string, coords map[string]Location) ([]string, error) {
	if e.geocoder == nil || len(unknown) == 0 {
		return nil, nil
	}
	var resolved []string
	for _, addr := range unknown {
		loc, ok, err := e.geocoder.Lookup(ctx, addr)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			e.logger.Warn("geocode lookup failed", zap.String("address", addr), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		coords[addr] = loc
		resolved = append(resolved, addr)
	}
	if len(resolved) > 0 {
		e.logger.Info("resolved addresses via live geocoding", zap.Int("count", len(resolved)))
	}
	return resolved, nil
}

// saveRoster appends newly resolved addresses to the roster and writes it
// back, preserving any extra columns the stored file carries.
func (e *Enricher) saveRoster(ctx context.Context, tbl dataset.Table, resolved []string, coords map[string]Location) error {
	for _, addr := range resolved {
		loc := coords[addr]
		row := map[string]string{
			colAddress:   addr,
			colLatitude:  strconv.FormatFloat(loc.Latitude, 'f', -1, 64),
			colLongitude: strconv.FormatFloat(loc.Longitude, 'f', -1, 64),
		}
		for _, col := range tbl.Columns {
			if _, ok := row[col]; !ok {
				row[col] = ""
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	data, err := tbl.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling address roster: %w", err)
	}
	if _, err := e.blobs.PutObject(ctx, e.addressesKey, "text/csv", data); err != nil {
		return fmt.Errorf("writing address roster %q: %w", e.addressesKey, err)
	}
	return nil
}

func (e *Enricher) saveMissing(ctx context.Context, addresses []string) error {
	tbl := dataset.Table{Columns: []string{"address"}}
	for _, addr := range addresses {
		tbl.Rows = append(tbl.Rows, map[string]string{"address": addr})
	}
	data, err := tbl.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling missing address report: %w", err)
	}
	if _, err := e.blobs.PutObject(ctx, e.missingKey, "text/csv", data); err != nil {
		return fmt.Errorf("writing missing address report %q: %w", e.missingKey, err)
	}
	return nil
}
