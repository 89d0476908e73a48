// Package cleaner normalizes the raw report export into publishable records.
package cleaner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
)

// expectedColumns is the column count of the raw Violation Details export.
const expectedColumns = 8

// bannerRows is the number of non-data rows the report prepends after the
// header (title and export-timestamp banners).
const bannerRows = 2

var (
	apostropheRe = regexp.MustCompile("[`´‘’]")
	possessiveRe = regexp.MustCompile(`(\w+)'S\b`)
	llcRe        = regexp.MustCompile(`\bLlc\b`)
	dbaRe        = regexp.MustCompile(`\bDba\b`)
	compassRe    = regexp.MustCompile(`\b(N|S|E|W|NE|NW|SE|SW)\b`)
	paStateRe    = regexp.MustCompile(`(\s)Pa(\s)`)
	lineBreakRe  = regexp.MustCompile(`\s*\n\s*`)
	cityRe       = regexp.MustCompile(`,\s*([^,]+?)\s*,\s*PA\s`)
)

// dateLayouts are tried in order when parsing the export's date cells. The
// report has shipped several formats over time.
var dateLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"2006-01-02",
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Cleaner turns raw export rows into normalized inspection records.
type Cleaner struct {
	logger *zap.Logger
}

// New constructs a Cleaner.
func New(logger *zap.Logger) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{logger: logger}
}

// Clean maps, normalizes, and sorts the raw export rows. The first row is the
// export header and the next two are report banners; both are discarded.
// Records are returned newest-first.
func (c *Cleaner) Clean(raw [][]string) ([]dataset.Inspection, error) {
	if len(raw) <= 1+bannerRows {
		return nil, fmt.Errorf("export has no data rows (%d rows total)", len(raw))
	}
	data := raw[1+bannerRows:]

	records := make([]dataset.Inspection, 0, len(data))
	for i, row := range data {
		if len(row) != expectedColumns {
			if isBlankRow(row) {
				continue
			}
			if len(row) < expectedColumns {
				c.logger.Warn("column count mismatch; padding row",
					zap.Int("row", i),
					zap.Int("expected", expectedColumns),
					zap.Int("got", len(row)),
				)
				padded := make([]string, expectedColumns)
				copy(padded, row)
				row = padded
			} else {
				row = row[:expectedColumns]
			}
		}
		records = append(records, c.cleanRow(row))
	}

	// Newest first; unparseable dates sort last.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})
	for i := range records {
		records[i].InspectionDate = formatAPDate(records[i].Date)
	}
	return records, nil
}

func (c *Cleaner) cleanRow(row []string) dataset.Inspection {
	rec := dataset.Inspection{
		ISP:                  strings.TrimSpace(row[0]),
		InspectionReason:     strings.TrimSpace(row[2]),
		Facility:             CleanFacility(row[3]),
		Address:              CleanAddress(row[4]),
		ViolationCode:        strings.TrimSpace(row[5]),
		ViolationDescription: strings.TrimSpace(row[6]),
		Comment:              strings.TrimSpace(row[7]),
	}
	rec.Date = parseDate(strings.TrimSpace(row[1]))
	rec.City = ExtractCity(rec.Address)
	return rec
}

// CleanFacility normalizes an establishment name: title case with AP small
// words, standard apostrophes, possessive casing, and LLC/DBA fixes.
func CleanFacility(s string) string {
	s = titleCase(strings.TrimSpace(s))
	s = lowerSmallWords(s)
	s = apostropheRe.ReplaceAllString(s, "'")
	s = possessiveRe.ReplaceAllString(s, "${1}'s")
	s = llcRe.ReplaceAllString(s, "LLC")
	s = dbaRe.ReplaceAllString(s, "DBA")
	return s
}

// CleanAddress normalizes a street address: title case, AP compass and street
// abbreviations, ", PA" state separation, and embedded line breaks.
func CleanAddress(s string) string {
	s = titleCase(strings.TrimSpace(s))
	s = compassRe.ReplaceAllString(s, "$1.")
	s = paStateRe.ReplaceAllString(s, ", PA${2}")
	s = lineBreakRe.ReplaceAllString(s, ", ")
	s = abbreviateStreets(s)
	return s
}

// ExtractCity pulls the city out of a normalized address using ", PA " as the
// right boundary and the preceding comma as the left boundary.
func ExtractCity(address string) string {
	m := cityRe.FindStringSubmatch(address)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// titleCase capitalizes the first letter of every alphabetic run and lowers
// the rest, matching the report's mixed-case source data handling.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

func lowerSmallWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if i == 0 {
			continue
		}
		if _, ok := smallWords[strings.ToLower(w)]; ok {
			words[i] = strings.ToLower(w)
		}
	}
	return strings.Join(words, " ")
}

type streetRule struct {
	re   *regexp.Regexp
	abbr string
}

var streetRules = compileStreetRules()

func compileStreetRules() []streetRule {
	out := make([]streetRule, 0, len(apStreetAbbreviations))
	for full, abbr := range apStreetAbbreviations {
		out = append(out, streetRule{regexp.MustCompile(`\b` + full + `\b`), abbr})
	}
	return out
}

func abbreviateStreets(s string) string {
	for _, rule := range streetRules {
		s = rule.re.ReplaceAllString(s, rule.abbr)
	}
	return s
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// formatAPDate renders a date in AP style ("Jan. 2, 2026"). Zero dates render
// as an empty string.
func formatAPDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	month := apMonths[t.Month().String()]
	return fmt.Sprintf("%s %d, %d", month, t.Day(), t.Year())
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
