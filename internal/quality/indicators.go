package quality

import (
	"fmt"
	"strings"

	"github.com/sells-group/dokanalyse/internal/model"
)

// DatasetQuality emits the fixed measurements of `dataset` indicators. A
// warning fires for a threshold value when the request context is empty or
// one of the indicator's contexts.
func DatasetQuality(indicators []model.QualityIndicator, requestContext string) ([]model.QualityMeasurement, []string) {
	var (
		qms      []model.QualityMeasurement
		warnings []string
	)
	for i := range indicators {
		qi := &indicators[i]
		if qi.Type != model.IndicatorDataset {
			continue
		}
		qms = append(qms, model.NewQualityMeasurement(qi.QualityDimensionID, qi.QualityDimensionName, qi.Value, qi.Comment))

		if qi.QualityWarningText != "" && qi.IsThreshold(qi.Value) && inContext(qi.Contexts, requestContext) {
			warnings = append(warnings, qi.QualityWarningText)
		}
	}
	return qms, warnings
}

func inContext(contexts []string, requestContext string) bool {
	if requestContext == "" || len(contexts) == 0 {
		return true
	}
	for _, c := range contexts {
		if strings.EqualFold(c, requestContext) {
			return true
		}
	}
	return false
}

// ObjectQuality emits one measurement per distinct value of an `object`
// indicator's property among the matched records.
func ObjectQuality(indicators []model.QualityIndicator, records []map[string]any) ([]model.QualityMeasurement, []string) {
	var (
		qms      []model.QualityMeasurement
		warnings []string
	)
	for i := range indicators {
		qi := &indicators[i]
		if qi.Type != model.IndicatorObject {
			continue
		}

		seen := make(map[string]bool)
		flagged := false
		for _, rec := range records {
			raw, ok := rec[qi.Property]
			if !ok || raw == nil {
				continue
			}
			v := fmt.Sprint(raw)
			if seen[v] {
				continue
			}
			seen[v] = true
			qms = append(qms, model.NewQualityMeasurement(qi.QualityDimensionID, qi.QualityDimensionName, raw, qi.Comment))
			if qi.IsThreshold(v) {
				flagged = true
			}
		}

		if flagged && qi.QualityWarningText != "" {
			warnings = append(warnings, qi.QualityWarningText)
		}
	}
	return qms, warnings
}
