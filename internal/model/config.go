package model

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Backend identifies how a dataset's features are queried.
type Backend string

const (
	BackendOGCAPI    Backend = "ogc_api"
	BackendShapefile Backend = "shapefile"
)

// DatasetConfig is one `type: dataset` document from the configuration directory.
type DatasetConfig struct {
	DatasetID    uuid.UUID `yaml:"dataset_id" json:"datasetId"`
	Title        string    `yaml:"title" json:"title"`
	Themes       []string  `yaml:"themes" json:"themes"`
	OGCAPI       string    `yaml:"ogc_api" json:"ogcApi,omitempty"`
	ShapefileDir string    `yaml:"shapefile_dir" json:"shapefileDir,omitempty"`
	GeomField    string    `yaml:"geom_field" json:"geomField,omitempty"`
	Properties   []string  `yaml:"properties" json:"properties"`
	WMS          string    `yaml:"wms" json:"wms,omitempty"`
	Layers       []Layer   `yaml:"layers" json:"layers"`

	// ShapefileEPSG is the CRS of the shapefiles; 0 means the analysis EPSG.
	ShapefileEPSG int `yaml:"shapefile_epsg" json:"shapefileEpsg,omitempty"`
}

// Layer is one queryable layer of a dataset. Layers are evaluated in order and
// the first layer with matching features decides the result status.
type Layer struct {
	OGCAPI       string       `yaml:"ogc_api" json:"ogcApi,omitempty"`
	Shapefile    string       `yaml:"shapefile" json:"shapefile,omitempty"`
	GeolettID    uuid.UUID    `yaml:"geolett_id" json:"geolettId"`
	ResultStatus ResultStatus `yaml:"result_status" json:"resultStatus"`
	WMS          []string     `yaml:"wms" json:"wms,omitempty"`
}

// Name returns the backend-specific layer reference.
func (l Layer) Name() string {
	if l.OGCAPI != "" {
		return l.OGCAPI
	}
	return l.Shapefile
}

// Backend returns the query backend configured for the dataset.
func (c *DatasetConfig) Backend() Backend {
	if c.ShapefileDir != "" {
		return BackendShapefile
	}
	return BackendOGCAPI
}

// HasTheme reports whether the dataset is tagged with the theme (case-insensitive).
func (c *DatasetConfig) HasTheme(theme string) bool {
	for _, t := range c.Themes {
		if strings.EqualFold(t, theme) {
			return true
		}
	}
	return false
}

// Validate checks required fields and normalizes layer result statuses.
func (c *DatasetConfig) Validate() error {
	if c.DatasetID == uuid.Nil {
		return eris.New("model: dataset_id is required")
	}
	if c.OGCAPI == "" && c.ShapefileDir == "" {
		return eris.Errorf("model: dataset %s has no backend (ogc_api or shapefile_dir)", c.DatasetID)
	}
	if c.OGCAPI != "" && c.ShapefileDir != "" {
		return eris.Errorf("model: dataset %s has both ogc_api and shapefile_dir", c.DatasetID)
	}
	if len(c.Layers) == 0 {
		return eris.Errorf("model: dataset %s has no layers", c.DatasetID)
	}

	for i := range c.Layers {
		layer := &c.Layers[i]
		if layer.Name() == "" {
			return eris.Errorf("model: dataset %s layer %d has no name", c.DatasetID, i)
		}
		if c.Backend() == BackendOGCAPI && layer.OGCAPI == "" {
			return eris.Errorf("model: dataset %s layer %d is missing ogc_api collection", c.DatasetID, i)
		}
		if c.Backend() == BackendShapefile && layer.Shapefile == "" {
			return eris.Errorf("model: dataset %s layer %d is missing shapefile name", c.DatasetID, i)
		}

		status, err := ParseResultStatus(string(layer.ResultStatus))
		if err != nil {
			return eris.Wrapf(err, "model: dataset %s layer %s", c.DatasetID, layer.Name())
		}
		if status.IsTerminal() {
			return eris.Errorf("model: dataset %s layer %s cannot use status %s", c.DatasetID, layer.Name(), status)
		}
		layer.ResultStatus = status
	}

	return nil
}

// QualityIndicatorType is the kind of a quality indicator.
type QualityIndicatorType string

const (
	IndicatorCoverage QualityIndicatorType = "coverage"
	IndicatorDataset  QualityIndicatorType = "dataset"
	IndicatorObject   QualityIndicatorType = "object"
)

// FeatureSourceConfig points a coverage indicator at an OGC API Features collection.
type FeatureSourceConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	GeomField  string `yaml:"geom_field"`
}

// TableSourceConfig points a coverage indicator at a PostGIS table.
type TableSourceConfig struct {
	Table       string `yaml:"table"`
	ValueColumn string `yaml:"value_column"`
	GeomColumn  string `yaml:"geom_column"`
}

// QualityIndicator configures one quality dimension for a dataset.
type QualityIndicator struct {
	Type                 QualityIndicatorType `yaml:"type"`
	QualityDimensionID   string               `yaml:"quality_dimension_id"`
	QualityDimensionName string               `yaml:"quality_dimension_name"`
	QualityWarningText   string               `yaml:"quality_warning_text"`
	ThresholdValues      []string             `yaml:"threshold_values"`
	Property             string               `yaml:"property"`
	Value                string               `yaml:"value"`
	Comment              string               `yaml:"comment"`
	Contexts             []string             `yaml:"contexts"`
	Codelist             string               `yaml:"codelist"`
	OGCAPI               *FeatureSourceConfig `yaml:"ogc_api"`
	PostGIS              *TableSourceConfig   `yaml:"postgis"`
}

// DefaultCoverageCodelist labels coverage values when no codelist is configured.
const DefaultCoverageCodelist = "fullstendighet_dekning"

// IsThreshold reports whether value is one of the indicator's threshold values.
func (q *QualityIndicator) IsThreshold(value string) bool {
	for _, t := range q.ThresholdValues {
		if t == value {
			return true
		}
	}
	return false
}

// CodelistName returns the codelist used to label coverage values.
func (q *QualityIndicator) CodelistName() string {
	if q.Codelist != "" {
		return q.Codelist
	}
	return DefaultCoverageCodelist
}

// Validate checks that the indicator is usable for its type.
func (q *QualityIndicator) Validate() error {
	if q.QualityDimensionID == "" {
		return eris.New("model: quality_dimension_id is required")
	}

	switch q.Type {
	case IndicatorCoverage:
		if q.OGCAPI == nil && q.PostGIS == nil {
			return eris.Errorf("model: coverage indicator %s has no source (ogc_api or postgis)", q.QualityDimensionID)
		}
		if q.Property == "" && q.OGCAPI != nil {
			return eris.Errorf("model: coverage indicator %s is missing property", q.QualityDimensionID)
		}
	case IndicatorObject:
		if q.Property == "" {
			return eris.Errorf("model: object indicator %s is missing property", q.QualityDimensionID)
		}
	case IndicatorDataset:
	default:
		return eris.Errorf("model: unknown quality indicator type %q", q.Type)
	}

	return nil
}

// QualityConfig is one `type: quality` document. A nil DatasetID applies the
// indicators to every dataset.
type QualityConfig struct {
	DatasetID  uuid.UUID          `yaml:"dataset_id"`
	Indicators []QualityIndicator `yaml:"indicators"`
}

// AppliesTo reports whether the document's indicators apply to the dataset.
func (q *QualityConfig) AppliesTo(datasetID uuid.UUID) bool {
	return q.DatasetID == uuid.Nil || q.DatasetID == datasetID
}

// Validate validates every indicator in the document.
func (q *QualityConfig) Validate() error {
	if len(q.Indicators) == 0 {
		return eris.New("model: quality config has no indicators")
	}
	for i := range q.Indicators {
		if err := q.Indicators[i].Validate(); err != nil {
			return eris.Wrapf(err, "model: indicator %d", i)
		}
	}
	return nil
}
