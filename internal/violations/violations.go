// Package violations annotates inspection records with regulatory food-code
// details looked up from a reference table in blob storage.
package violations

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/keystonedata/inspections-pipeline/internal/dataset"
	"github.com/keystonedata/inspections-pipeline/internal/pipeline"
)

// Columns the food-codes reference table must carry.
const (
	colRequirement     = "Requirement"
	colSpotlightPA     = "Spotlight PA Category"
	colPriorityLevel   = "Priority Level"
	colRequirementDesc = "Requirement Description"
)

var (
	parensRe     = regexp.MustCompile(`\([^)]*\)`)
	hyphenRe     = regexp.MustCompile(`\s*-\s*`)
	lettersRe    = regexp.MustCompile(`[a-zA-Z]`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// riskMap translates regulatory priority levels to reader-facing risk labels.
var riskMap = map[string]string{
	"P":  "high risk",
	"Pf": "moderate risk",
	"C":  "low risk",
}

// codeDetails is one row of the food-codes reference table.
type codeDetails struct {
	spotlightPA     string
	priorityLevel   string
	requirementDesc string
}

// Joiner enriches records with spotlight category, priority level, risk level,
// and requirement description columns.
type Joiner struct {
	logger       *zap.Logger
	blobs        pipeline.BlobStore
	foodCodesKey string
}

// NewJoiner constructs a Joiner reading the reference table at foodCodesKey.
func NewJoiner(logger *zap.Logger, blobs pipeline.BlobStore, foodCodesKey string) *Joiner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Joiner{logger: logger, blobs: blobs, foodCodesKey: foodCodesKey}
}

// Join annotates records in place. A record's violation_code cell may hold
// several codes separated by pipes; the joined columns keep the same pipe
// layout so codes and annotations stay aligned. Codes absent from the
// reference table get "NA" annotations and keep their original description.
// The unique cleaned codes that missed the table are returned sorted.
func (j *Joiner) Join(ctx context.Context, records []dataset.Inspection) ([]string, error) {
	raw, err := j.blobs.GetObject(ctx, j.foodCodesKey)
	if err != nil {
		return nil, fmt.Errorf("loading food codes %q: %w", j.foodCodesKey, err)
	}
	tbl, err := dataset.ParseTable(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing food codes: %w", err)
	}
	if !tbl.HasColumns(colRequirement, colSpotlightPA, colPriorityLevel, colRequirementDesc) {
		return nil, fmt.Errorf("food codes table missing required columns, has %v", tbl.Columns)
	}

	lookup := make(map[string]codeDetails, len(tbl.Rows))
	for _, row := range tbl.Rows {
		req := strings.TrimSpace(row[colRequirement])
		if req == "" {
			continue
		}
		lookup[req] = codeDetails{
			spotlightPA:     row[colSpotlightPA],
			priorityLevel:   row[colPriorityLevel],
			requirementDesc: row[colRequirementDesc],
		}
	}
	j.logger.Info("loaded food code lookup", zap.Int("codes", len(lookup)))

	missing := make(map[string]struct{})
	for i := range records {
		j.annotate(&records[i], lookup, missing)
	}

	out := make([]string, 0, len(missing))
	for code := range missing {
		out = append(out, code)
	}
	sort.Strings(out)
	if len(out) > 0 {
		j.logger.Warn("violation codes absent from food code table",
			zap.Int("count", len(out)),
			zap.Strings("codes", out),
		)
	}
	return out, nil
}

func (j *Joiner) annotate(rec *dataset.Inspection, lookup map[string]codeDetails, missing map[string]struct{}) {
	if strings.TrimSpace(rec.ViolationCode) == "" {
		rec.SpotlightPA = ""
		rec.PriorityLevel = ""
		rec.RiskLevel = ""
		rec.RequirementDescription = ""
		return
	}

	codes := splitPipes(rec.ViolationCode)
	descriptions := splitPipes(rec.ViolationDescription)
	for len(descriptions) < len(codes) {
		descriptions = append(descriptions, "")
	}

	spotlight := make([]string, 0, len(codes))
	priority := make([]string, 0, len(codes))
	risk := make([]string, 0, len(codes))
	reqDesc := make([]string, 0, len(codes))
	for i, code := range codes {
		cleaned := CleanViolationCode(code)
		details, ok := lookup[cleaned]
		if !ok {
			if cleaned != "" {
				missing[cleaned] = struct{}{}
			}
			spotlight = append(spotlight, "NA")
			priority = append(priority, "NA")
			risk = append(risk, "NA")
			reqDesc = append(reqDesc, descriptions[i])
			continue
		}
		spotlight = append(spotlight, details.spotlightPA)
		priority = append(priority, details.priorityLevel)
		risk = append(risk, TranslatePriorityToRisk(details.priorityLevel))
		reqDesc = append(reqDesc, details.requirementDesc)
	}

	rec.SpotlightPA = strings.Join(spotlight, " | ")
	rec.PriorityLevel = strings.Join(priority, " | ")
	rec.RiskLevel = strings.Join(risk, " | ")
	rec.RequirementDescription = strings.Join(reqDesc, " | ")
}

// CleanViolationCode reduces a raw violation code cell to the bare numeric
// code used as the reference table key. Parenthesized qualifiers, letter
// suffixes, and stray punctuation are stripped and hyphen spacing normalized.
func CleanViolationCode(code string) string {
	cleaned := strings.TrimSpace(code)
	cleaned = parensRe.ReplaceAllString(cleaned, "")
	cleaned = hyphenRe.ReplaceAllString(cleaned, " - ")
	cleaned = lettersRe.ReplaceAllString(cleaned, "")
	cleaned = multiSpaceRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, "- .")
	return strings.TrimSpace(cleaned)
}

// TranslatePriorityToRisk maps a priority level to a risk label. Comma
// separated lists translate element-wise; unknown levels become "NA".
func TranslatePriorityToRisk(priorityLevel string) string {
	if priorityLevel == "" || priorityLevel == "NA" {
		return "NA"
	}
	parts := strings.Split(priorityLevel, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if label, ok := riskMap[strings.TrimSpace(part)]; ok {
			out = append(out, label)
		} else {
			out = append(out, "NA")
		}
	}
	return strings.Join(out, ", ")
}

func splitPipes(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
