package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// WriteCSV serializes the records into CSV with the published header row.
func WriteCSV(records []Inspection) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Row()); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Table is a header-indexed CSV document used for the bucket-side reference
// files (addresses.csv, food-codes.csv, categories.csv).
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// ParseTable reads CSV bytes into a Table. Values are whitespace-trimmed;
// missing trailing cells become empty strings.
func ParseTable(data []byte) (Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return Table{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(all) == 0 {
		return Table{}, fmt.Errorf("csv has no header row")
	}
	cols := make([]string, len(all[0]))
	for i, c := range all[0] {
		cols[i] = strings.TrimSpace(c)
	}
	t := Table{Columns: cols}
	for _, raw := range all[1:] {
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if i < len(raw) {
				row[col] = strings.TrimSpace(raw[i])
			} else {
				row[col] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// HasColumns reports whether every named column is present.
func (t Table) HasColumns(names ...string) bool {
	present := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		present[c] = struct{}{}
	}
	for _, n := range names {
		if _, ok := present[n]; !ok {
			return false
		}
	}
	return true
}

// Marshal renders the table back to CSV bytes in column order.
func (t Table) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, row := range t.Rows {
		cells := make([]string, len(t.Columns))
		for i, col := range t.Columns {
			cells[i] = row[col]
		}
		if err := w.Write(cells); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
