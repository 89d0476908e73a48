// Package categories maintains the shared establishment category roster and
// joins curated labels back onto inspection records.
package categories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

var rosterColumns = []string{"facility", "address", "city", "category"}

// entry is one roster row keyed by (facility, address, city).
type entry struct {
	facility string
	address  string
	city     string
	category string
}

// key builds the internal dedupe/merge key. Not persisted.
func (e entry) key() string {
	return e.facility + "||" + e.address + "||" + e.city
}

// Manager upserts and joins the categories roster stored in blob storage.
type Manager struct {
	logger        *zap.Logger
	blobs         pipeline.BlobStore
	categoriesKey string
}

// NewManager constructs a Manager reading and writing the roster at
// categoriesKey.
func NewManager(logger *zap.Logger, blobs pipeline.BlobStore, categoriesKey string) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{logger: logger, blobs: blobs, categoriesKey: categoriesKey}
}

// Upsert merges the unique (facility, address, city) combinations from the
// records into the stored roster. New combinations get a blank category;
// existing curated labels are preserved. Returns the number of new rows.
func (m *Manager) Upsert(ctx context.Context, records []dataset.Inspection) (int, error) {
	existing, err := m.loadRoster(ctx)
	if err != nil {
		if !errors.Is(err, pipeline.ErrObjectNotFound) {
			return 0, err
		}
		m.logger.Info("no existing category roster, creating it", zap.String("key", m.categoriesKey))
	}

	known := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		known[e.key()] = struct{}{}
	}

	added := 0
	for _, rec := range records {
		e := entry{
			facility: strings.TrimSpace(rec.Facility),
			address:  strings.TrimSpace(rec.Address),
			city:     strings.TrimSpace(rec.City),
		}
		if _, ok := known[e.key()]; ok {
			continue
		}
		known[e.key()] = struct{}{}
		existing = append(existing, e)
		added++
	}

	sortRoster(existing)
	data, err := marshalRoster(existing)
	if err != nil {
		return 0, err
	}
	if _, err := m.blobs.PutObject(ctx, m.categoriesKey, "text/csv", data); err != nil {
		return 0, fmt.Errorf("writing category roster %q: %w", m.categoriesKey, err)
	}
	m.logger.Info("upserted category roster",
		zap.Int("rows", len(existing)),
		zap.Int("added", added),
	)
	return added, nil
}

// Join sets each record's category from the stored roster by exact
// (facility, address, city) match. Records without a roster match, or when no
// roster exists yet, get an empty category.
func (m *Manager) Join(ctx context.Context, records []dataset.Inspection) error {
	roster, err := m.loadRoster(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrObjectNotFound) {
			for i := range records {
				records[i].Category = ""
			}
			return nil
		}
		return err
	}

	// First roster row wins for duplicate keys.
	sortRoster(roster)
	labels := make(map[string]string, len(roster))
	for _, e := range roster {
		if _, ok := labels[e.key()]; !ok {
			labels[e.key()] = e.category
		}
	}

	for i := range records {
		e := entry{
			facility: strings.TrimSpace(records[i].Facility),
			address:  strings.TrimSpace(records[i].Address),
			city:     strings.TrimSpace(records[i].City),
		}
		records[i].Category = labels[e.key()]
	}
	return nil
}

func (m *Manager) loadRoster(ctx context.Context) ([]entry, error) {
	raw, err := m.blobs.GetObject(ctx, m.categoriesKey)
	if err != nil {
		if errors.Is(err, pipeline.ErrObjectNotFound) {
			return nil, fmt.Errorf("category roster %q: %w", m.categoriesKey, pipeline.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("loading category roster %q: %w", m.categoriesKey, err)
	}
	tbl, err := dataset.ParseTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing category roster: %w", err)
	}

	out := make([]entry, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		out = append(out, entry{
			facility: strings.TrimSpace(row["facility"]),
			address:  strings.TrimSpace(row["address"]),
			city:     strings.TrimSpace(row["city"]),
			category: strings.TrimSpace(row["category"]),
		})
	}
	return out, nil
}

func sortRoster(roster []entry) {
	sort.SliceStable(roster, func(i, j int) bool {
		if roster[i].facility != roster[j].facility {
			return roster[i].facility < roster[j].facility
		}
		if roster[i].address != roster[j].address {
			return roster[i].address < roster[j].address
		}
		return roster[i].city < roster[j].city
	})
}

func marshalRoster(roster []entry) ([]byte, error) {
	tbl := dataset.Table{Columns: rosterColumns}
	seen := make(map[string]struct{}, len(roster))
	for _, e := range roster {
		dedupe := e.key() + "||" + e.category
		if _, ok := seen[dedupe]; ok {
			continue
		}
		seen[dedupe] = struct{}{}
		tbl.Rows = append(tbl.Rows, map[string]string{
			"facility": e.facility,
			"address":  e.address,
			"city":     e.city,
			"category": e.category,
		})
	}
	data, err := tbl.Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshaling category roster: %w", err)
	}
	return data, nil
}
