// Package quality derives quality measurements and warnings for an analysis.
package quality

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/coverage"
	"github.com/sells-group/dokanalyse/internal/model"
)

// Coverage sentinel values.
const (
	NotMapped   = "ikkeKartlagt"
	NotRelevant = "ikkeRelevant"
)

const (
	valueYes = "Ja"
	valueNo  = "Nei"
)

// CodelistLookup resolves a named codelist.
type CodelistLookup interface {
	Codelist(ctx context.Context, name string) ([]model.CodelistEntry, error)
}

// CoverageOutcome is the verdict of a coverage check.
type CoverageOutcome struct {
	Measurements []model.QualityMeasurement
	Warning      string
	HasCoverage  bool
}

// CoverageEvaluator decides whether a dataset is mapped for a working geometry.
type CoverageEvaluator struct {
	source    coverage.Source
	codelists CodelistLookup
	format    PercentFormatter
}

// NewCoverageEvaluator creates an evaluator. codelists may be nil.
func NewCoverageEvaluator(source coverage.Source, codelists CodelistLookup, format PercentFormatter) *CoverageEvaluator {
	if format == nil {
		format = NewLocaleFormatter("nb")
	}
	return &CoverageEvaluator{source: source, codelists: codelists, format: format}
}

// Evaluate fetches the coverage values under g. No values, or a failed fetch,
// means coverage is unknown: no measurements, no warning, no coverage.
func (e *CoverageEvaluator) Evaluate(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) CoverageOutcome {
	res, err := e.source.Fetch(ctx, qi, g, epsg)
	if err != nil {
		zap.L().Warn("quality: coverage fetch failed",
			zap.String("dimension", qi.QualityDimensionID),
			zap.Error(err),
		)
		return CoverageOutcome{}
	}
	if len(res.Values) == 0 {
		return CoverageOutcome{}
	}

	labels := e.labels(ctx, qi.CodelistName())

	out := CoverageOutcome{
		Measurements: make([]model.QualityMeasurement, 0, len(res.Values)),
		HasCoverage:  HasCoverage(res.Values),
	}
	for _, v := range res.Values {
		answer := valueYes
		if v == NotMapped || v == NotRelevant {
			answer = valueNo
		}
		out.Measurements = append(out.Measurements,
			model.NewQualityMeasurement(qi.QualityDimensionID, qi.QualityDimensionName, answer, labels[v]))
	}
	out.Warning = e.warning(qi, res)

	return out
}

func (e *CoverageEvaluator) labels(ctx context.Context, name string) map[string]string {
	if e.codelists == nil {
		return nil
	}
	entries, err := e.codelists.Codelist(ctx, name)
	if err != nil {
		zap.L().Warn("quality: codelist lookup failed", zap.String("codelist", name), zap.Error(err))
		return nil
	}
	labels := make(map[string]string, len(entries))
	for _, entry := range entries {
		if _, ok := labels[entry.Value]; !ok {
			labels[entry.Value] = entry.Label
		}
	}
	return labels
}

func (e *CoverageEvaluator) warning(qi *model.QualityIndicator, res coverage.Result) string {
	flagged := false
	for _, v := range res.Values {
		if qi.IsThreshold(v) {
			flagged = true
			break
		}
	}
	if !flagged {
		return ""
	}
	if res.Percent > 0 && res.Percent < 100 {
		return e.format.PartialWarning(res.Percent, qi.QualityWarningText)
	}
	return qi.QualityWarningText
}

// HasCoverage reports whether the values describe a usable area. A set made
// up solely of the not-mapped sentinel, or solely of the not-relevant
// sentinel, is inadequate; any other non-empty combination is adequate.
func HasCoverage(values []string) bool {
	if len(values) == 0 {
		return false
	}
	return !onlyValue(values, NotMapped) && !onlyValue(values, NotRelevant)
}

func onlyValue(values []string, want string) bool {
	for _, v := range values {
		if v != want {
			return false
		}
	}
	return true
}
