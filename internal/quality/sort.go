package quality

import "github.com/sells-group/dokanalyse/internal/model"

// displayRank orders the quality dimensions shown to users.
var displayRank = map[string]int{
	model.DimensionCoverage:             0,
	model.DimensionPositionalAccuracy:   1,
	model.DimensionSuitabilityZoning:    2,
	model.DimensionSuitabilityMunicipal: 3,
	model.DimensionSuitabilityBuilding:  4,
}

// Sort orders measurements by display rank. Unknown dimensions are dropped and
// measurements of the same dimension keep their input order.
func Sort(qms []model.QualityMeasurement) []model.QualityMeasurement {
	buckets := make([][]model.QualityMeasurement, len(displayRank))
	for _, qm := range qms {
		rank, ok := displayRank[qm.QualityDimensionID]
		if !ok {
			continue
		}
		buckets[rank] = append(buckets[rank], qm)
	}

	out := make([]model.QualityMeasurement, 0, len(qms))
	for _, b := range buckets {
		out = append(out, b...)
	}
	return out
}
