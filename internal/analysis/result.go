package analysis

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/internal/quality"
)

// Algorithm step labels, in pipeline order.
const (
	StepSetInputGeometry = "set input_geometry"
	StepAddBuffer        = "add buffer"
	StepCheckCoverage    = "check coverage"
	StepIntersectLayer   = "intersect layer "
	StepGetDistance      = "get distance"
	StepDeliverResult    = "deliver result"
)

// Result is the analysis of one input geometry against one dataset. The
// engine fills it stage by stage; it is read-only once serialized.
type Result struct {
	DatasetID uuid.UUID
	Config    *model.DatasetConfig

	// Geometry is the caller's input in the analysis EPSG. It is never mutated.
	Geometry geom.T
	EPSG     int
	OrigEPSG int
	Buffer   int

	Working    geom.T
	Geometries []geom.T
	Data       []map[string]any

	Status            model.ResultStatus
	InputGeometryArea *float64
	HitArea           *float64
	Distance          int64
	Steps             []string
	HasCoverage       bool

	Title           string
	Description     string
	GuidanceText    string
	GuidanceLinks   []model.GuidanceLink
	PossibleActions []string
	Themes          []string
	Metadata        *model.Metadata

	RasterRef      string
	CartographyRef string
	WorkingGeoJSON map[string]any

	QualityMeasurements []model.QualityMeasurement
	QualityWarnings     []string

	guidance *model.Guidance
}

// NewResult creates an empty result for one dataset.
func NewResult(cfg *model.DatasetConfig, g geom.T, epsg, origEPSG, buffer int) *Result {
	if buffer < 0 {
		buffer = 0
	}
	return &Result{
		DatasetID:   cfg.DatasetID,
		Config:      cfg,
		Geometry:    g,
		EPSG:        epsg,
		OrigEPSG:    origEPSG,
		Buffer:      buffer,
		Status:      model.StatusNoHitGreen,
		HasCoverage: true,
	}
}

func (r *Result) addStep(step string) {
	r.Steps = append(r.Steps, step)
}

type resultJSON struct {
	Title               string                     `json:"title"`
	RunOnInputGeometry  map[string]any             `json:"runOnInputGeometry"`
	BufferDistance      int                        `json:"bufferDistance"`
	Steps               []string                   `json:"algorithmStepsApplied"`
	InputGeometryArea   *float64                   `json:"inputGeometryArea"`
	HitArea             *float64                   `json:"hitArea"`
	ResultStatus        model.ResultStatus         `json:"resultStatus"`
	DistanceToObject    int64                      `json:"distanceToObject"`
	RasterResultRef     *string                    `json:"rasterResultRef"`
	CartographyRef      *string                    `json:"cartographyRef"`
	MatchedRecords      []map[string]any           `json:"matchedRecords"`
	Themes              []string                   `json:"themes"`
	DatasetMetadata     *model.Metadata            `json:"datasetMetadata"`
	Description         *string                    `json:"description"`
	GuidanceText        *string                    `json:"guidanceText"`
	GuidanceLinks       []model.GuidanceLink       `json:"guidanceLinks"`
	PossibleActions     []string                   `json:"possibleActions"`
	QualityMeasurements []model.QualityMeasurement `json:"qualityMeasurements"`
	QualityWarnings     []string                   `json:"qualityWarnings"`
}

// MarshalJSON renders the output record. Quality measurements are put in
// display order and record keys are camel-cased.
func (r *Result) MarshalJSON() ([]byte, error) {
	records := make([]map[string]any, 0, len(r.Data))
	for _, rec := range r.Data {
		records = append(records, camelKeys(rec))
	}

	out := resultJSON{
		Title:               r.Title,
		RunOnInputGeometry:  r.WorkingGeoJSON,
		BufferDistance:      r.Buffer,
		Steps:               nonNil(r.Steps),
		InputGeometryArea:   r.InputGeometryArea,
		HitArea:             r.HitArea,
		ResultStatus:        r.Status,
		DistanceToObject:    r.Distance,
		RasterResultRef:     nullable(r.RasterRef),
		CartographyRef:      nullable(r.CartographyRef),
		MatchedRecords:      records,
		Themes:              nonNil(r.Themes),
		DatasetMetadata:     r.Metadata,
		Description:         nullable(r.Description),
		GuidanceText:        nullable(r.GuidanceText),
		GuidanceLinks:       nonNil(r.GuidanceLinks),
		PossibleActions:     nonNil(r.PossibleActions),
		QualityMeasurements: quality.Sort(r.QualityMeasurements),
		QualityWarnings:     nonNil(r.QualityWarnings),
	}
	return json.Marshal(out)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func camelKeys(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[camelCase(k)] = v
	}
	return out
}

// camelCase converts snake_case, kebab-case and PascalCase keys to camelCase.
func camelCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(parts) == 0 {
		return s
	}

	var b strings.Builder
	for i, p := range parts {
		runes := []rune(p)
		if i == 0 {
			runes[0] = unicode.ToLower(runes[0])
		} else {
			runes[0] = unicode.ToUpper(runes[0])
		}
		b.WriteString(string(runes))
	}
	return b.String()
}
