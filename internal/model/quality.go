package model

// QualityMeasurement is one value along a quality dimension.
type QualityMeasurement struct {
	QualityDimensionID   string  `json:"qualityDimensionId"`
	QualityDimensionName string  `json:"qualityDimensionName"`
	Value                any     `json:"value"`
	Comment              *string `json:"comment"`
}

// NewQualityMeasurement builds a measurement. An empty comment is serialized as null.
func NewQualityMeasurement(id, name string, value any, comment string) QualityMeasurement {
	qm := QualityMeasurement{
		QualityDimensionID:   id,
		QualityDimensionName: name,
		Value:                value,
	}
	if comment != "" {
		qm.Comment = &comment
	}
	return qm
}

// Quality dimension identifiers in display order.
const (
	DimensionCoverage             = "fullstendighet_dekning"
	DimensionPositionalAccuracy   = "stedfestingsnøyaktighet"
	DimensionSuitabilityZoning    = "egnethet_reguleringsplan"
	DimensionSuitabilityMunicipal = "egnethet_kommuneplan"
	DimensionSuitabilityBuilding  = "egnethet_byggesak"
)

// CodelistEntry is one value/label pair of a register codelist.
type CodelistEntry struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
