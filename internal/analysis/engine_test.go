package analysis

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/coverage"
	"github.com/sells-group/dokanalyse/internal/dataset"
	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/geometry/geomtest"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/internal/quality"
)

type queryCall struct {
	layer  string
	bounds *geom.Bounds
}

// fakeStrategy answers layer queries from a function and records every call.
type fakeStrategy struct {
	mu     sync.Mutex
	answer func(layer model.Layer, g geom.T) (int, *FeatureSet)
	calls  []queryCall
}

func (f *fakeStrategy) Query(_ context.Context, layer model.Layer, g geom.T, _ int) (int, *FeatureSet) {
	f.mu.Lock()
	f.calls = append(f.calls, queryCall{layer: layer.Name(), bounds: g.Bounds()})
	f.mu.Unlock()
	return f.answer(layer, g)
}

func (f *fakeStrategy) layers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.layer)
	}
	return out
}

type staticProvider struct{ s QueryStrategy }

func (p staticProvider) For(*model.DatasetConfig) (QueryStrategy, error) { return p.s, nil }

type fakeIndicators struct {
	coverage    *model.QualityIndicator
	coverageErr error
	all         []model.QualityIndicator
}

func (f *fakeIndicators) CoverageIndicator(uuid.UUID) (*model.QualityIndicator, error) {
	return f.coverage, f.coverageErr
}

func (f *fakeIndicators) QualityIndicators(uuid.UUID) ([]model.QualityIndicator, error) {
	return f.all, nil
}

type valuesSource []string

func (v valuesSource) Fetch(context.Context, *model.QualityIndicator, geom.T, int) (coverage.Result, error) {
	return coverage.Result{Values: v, Percent: 40}, nil
}

type fakeCatalog struct{ err error }

func (f fakeCatalog) Metadata(_ context.Context, id uuid.UUID) (*model.Metadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Metadata{DatasetID: id, Title: "Katalogtittel", Owner: "Kartverket"}, nil
}

type fakeGuidance map[uuid.UUID]*model.Guidance

func (f fakeGuidance) Guidance(_ context.Context, id uuid.UUID) (*model.Guidance, error) {
	return f[id], nil
}

func features(geoms ...geom.T) *FeatureSet {
	fs := &FeatureSet{}
	for i, g := range geoms {
		fs.Properties = append(fs.Properties, map[string]any{"objekt_id": i + 1})
		fs.Geometries = append(fs.Geometries, g)
	}
	return fs
}

// isSearch reports whether g is the distance search area around the 0..10 input.
func isSearch(g geom.T) bool {
	return g.Bounds().Min(0) <= -DefaultSearchRadius
}

func testConfig(layers ...string) *model.DatasetConfig {
	cfg := &model.DatasetConfig{
		DatasetID: uuid.New(),
		Title:     "Flomsoner",
		Themes:    []string{"Natur"},
		OGCAPI:    "https://ogc.example.test",
		WMS:       "https://wms.example.test/wms",
	}
	for _, name := range layers {
		cfg.Layers = append(cfg.Layers, model.Layer{
			OGCAPI:       name,
			ResultStatus: model.StatusHitRed,
			WMS:          []string{name + "_wms"},
		})
	}
	return cfg
}

func newTestEngine(s QueryStrategy, ind IndicatorStore, cov CoverageChecker) *Engine {
	return NewEngine(Deps{
		Geometry:   geomtest.NewRectEngine(),
		Strategies: staticProvider{s},
		Indicators: ind,
		Coverage:   cov,
		Catalog:    fakeCatalog{},
	})
}

func newResult(cfg *model.DatasetConfig, buffer int) *Result {
	return NewResult(cfg, geomtest.Rect(0, 0, 10, 10), geometry.EPSGUTM33N, geometry.EPSGUTM33N, buffer)
}

func TestEngine_HitContainingInput(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, features(geomtest.Rect(-5, -5, 20, 20))
	}}
	r := newResult(testConfig("Flomsone"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, model.StatusHitRed, r.Status)
	require.NotNil(t, r.HitArea)
	require.NotNil(t, r.InputGeometryArea)
	assert.Equal(t, *r.InputGeometryArea, *r.HitArea)
	assert.Equal(t, 100.0, *r.HitArea)
	assert.Equal(t, int64(0), r.Distance)
	assert.Contains(t, r.RasterRef, "layers=Flomsone_wms")
	assert.Contains(t, r.CartographyRef, "layer=Flomsone_wms")
	assert.Len(t, r.Data, 1)

	want := []string{StepSetInputGeometry, "intersect layer Flomsone", StepDeliverResult}
	if diff := cmp.Diff(want, r.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_NoHitComputesDistance(t *testing.T) {
	s := &fakeStrategy{answer: func(_ model.Layer, g geom.T) (int, *FeatureSet) {
		if isSearch(g) {
			return StatusOK, features(geomtest.Rect(110, 0, 120, 10), nil, geomtest.Rect(0, 250, 10, 260))
		}
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("Flomsone"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, model.StatusNoHitGreen, r.Status)
	assert.Equal(t, int64(100), r.Distance)
	assert.Nil(t, r.HitArea)
	require.NotNil(t, r.InputGeometryArea)
	assert.Equal(t, 100.0, *r.InputGeometryArea)

	require.Len(t, s.calls, 2)
	search := s.calls[1].bounds
	assert.Equal(t, -float64(DefaultSearchRadius), search.Min(0))
	assert.Equal(t, 10+float64(DefaultSearchRadius), search.Max(1))

	want := []string{StepSetInputGeometry, "intersect layer Flomsone", StepGetDistance, StepDeliverResult}
	if diff := cmp.Diff(want, r.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_DistanceSearchUsesOriginalGeometry(t *testing.T) {
	s := &fakeStrategy{answer: func(_ model.Layer, g geom.T) (int, *FeatureSet) {
		if isSearch(g) {
			return StatusOK, features(geomtest.Rect(110, 0, 120, 10))
		}
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("Flomsone"), 50)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	require.Len(t, s.calls, 2)
	assert.Equal(t, -50.0, s.calls[0].bounds.Min(0))
	assert.Equal(t, -float64(DefaultSearchRadius), s.calls[1].bounds.Min(0))
	// Distance is measured from the buffered working geometry.
	assert.Equal(t, int64(50), r.Distance)
}

func TestEngine_DistanceWithoutResponse(t *testing.T) {
	s := &fakeStrategy{answer: func(_ model.Layer, g geom.T) (int, *FeatureSet) {
		if isSearch(g) {
			return StatusTimeout, nil
		}
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("Flomsone"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, NoObjectDistance, r.Distance)
	assert.NotContains(t, r.Steps, StepGetDistance)
}

func TestEngine_DistanceNoFeaturesInRadius(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("Flomsone"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, NoObjectDistance, r.Distance)
	assert.Contains(t, r.Steps, StepGetDistance)
}

func TestEngine_Buffer(t *testing.T) {
	tests := []struct {
		name     string
		buffer   int
		wantArea float64
		wantStep bool
	}{
		{"no buffer", 0, 100, false},
		{"negative treated as none", -5, 100, false},
		{"buffered", 5, 400, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
				return StatusOK, &FeatureSet{}
			}}
			r := newResult(testConfig("L"), tt.buffer)

			require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

			require.NotNil(t, r.InputGeometryArea)
			assert.Equal(t, tt.wantArea, *r.InputGeometryArea)
			assert.GreaterOrEqual(t, *r.InputGeometryArea, geometry.Area(r.Geometry))
			assert.Equal(t, tt.wantStep, contains(r.Steps, StepAddBuffer))
			assert.Equal(t, 100.0, geometry.Area(r.Geometry), "input geometry must not change")
		})
	}
}

func contains(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}

func TestEngine_LineResultAddsNoHitArea(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, features(geomtest.Line(-5, 5, 15, 5), geomtest.Rect(0, 0, 5, 5))
	}}
	r := newResult(testConfig("Veg"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	require.NotNil(t, r.HitArea)
	assert.Equal(t, 25.0, *r.HitArea)
}

func TestEngine_OnlyLineResult(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, features(geomtest.Line(-5, 5, 15, 5))
	}}
	r := newResult(testConfig("Veg"), 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, model.StatusHitRed, r.Status)
	require.NotNil(t, r.HitArea)
	assert.Equal(t, 0.0, *r.HitArea)
}

func TestEngine_TerminalStatuses(t *testing.T) {
	tests := []struct {
		name string
		code int
		want model.ResultStatus
	}{
		{"timeout", StatusTimeout, model.StatusTimeout},
		{"server error", 500, model.StatusError},
		{"bad gateway", 502, model.StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
				return tt.code, nil
			}}
			cfg := testConfig("A", "B")
			r := newResult(cfg, 0)

			require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{IncludeGuidance: true, IncludeQuality: true}))

			assert.Equal(t, tt.want, r.Status)
			assert.Equal(t, int64(0), r.Distance)
			assert.Nil(t, r.InputGeometryArea)
			assert.Nil(t, r.HitArea)
			assert.Nil(t, r.WorkingGeoJSON)
			assert.Equal(t, []string{"A"}, s.layers())
			assert.Equal(t, []string{StepSetInputGeometry}, r.Steps)

			assert.Equal(t, "Flomsoner", r.Title)
			assert.Equal(t, []string{"Natur"}, r.Themes)
			require.NotNil(t, r.Metadata)
			assert.Equal(t, "Katalogtittel", r.Metadata.Title)
		})
	}
}

func TestEngine_FirstMatchingLayerWins(t *testing.T) {
	s := &fakeStrategy{answer: func(layer model.Layer, g geom.T) (int, *FeatureSet) {
		if layer.Name() == "A" {
			return StatusOK, &FeatureSet{}
		}
		return StatusOK, features(geomtest.Rect(0, 0, 10, 10))
	}}
	cfg := testConfig("A", "B", "C")
	cfg.Layers[1].ResultStatus = model.StatusHitYellow
	r := newResult(cfg, 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	assert.Equal(t, model.StatusHitYellow, r.Status)
	assert.Equal(t, []string{"A", "B"}, s.layers())
	want := []string{StepSetInputGeometry, "intersect layer A", "intersect layer B", StepDeliverResult}
	if diff := cmp.Diff(want, r.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_MultipleCoverageIndicatorsIsFatal(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	ind := &fakeIndicators{coverageErr: eris.Wrap(dataset.ErrMultipleCoverageIndicators, "dataset: test")}
	r := newResult(testConfig("A"), 0)

	err := newTestEngine(s, ind, nil).Run(context.Background(), r, Options{})

	require.Error(t, err)
	assert.True(t, errors.Is(err, dataset.ErrMultipleCoverageIndicators))
	assert.Empty(t, s.calls)
}

func coverageChecker(values ...string) CoverageChecker {
	return quality.NewCoverageEvaluator(valuesSource(values), nil, quality.NewLocaleFormatter("nb"))
}

func coverageQI() *model.QualityIndicator {
	return &model.QualityIndicator{
		Type:                 model.IndicatorCoverage,
		QualityDimensionID:   model.DimensionCoverage,
		QualityDimensionName: "Fullstendighet dekning",
		QualityWarningText:   "Området er ikke kartlagt",
		ThresholdValues:      []string{quality.NotMapped},
		Property:             "kartlagt",
	}
}

func TestEngine_NotRelevantCoverageSkipsQuery(t *testing.T) {
	s := &fakeStrategy{answer: func(_ model.Layer, g geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	ind := &fakeIndicators{coverage: coverageQI()}
	r := newResult(testConfig("A"), 0)

	require.NoError(t, newTestEngine(s, ind, coverageChecker(quality.NotRelevant)).Run(context.Background(), r, Options{}))

	assert.Equal(t, model.StatusNoHitYellow, r.Status)
	assert.False(t, r.HasCoverage)
	assert.Nil(t, r.HitArea)
	assert.Nil(t, r.InputGeometryArea)

	// Only the distance search touches the layer.
	require.Len(t, s.calls, 1)
	assert.True(t, s.calls[0].bounds.Min(0) <= -DefaultSearchRadius)

	want := []string{StepSetInputGeometry, StepCheckCoverage, StepGetDistance, StepDeliverResult}
	if diff := cmp.Diff(want, r.Steps); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_PartialCoverageQueries(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, features(geomtest.Rect(0, 0, 10, 10))
	}}
	ind := &fakeIndicators{coverage: coverageQI()}
	r := newResult(testConfig("A"), 0)

	eng := newTestEngine(s, ind, coverageChecker(quality.NotMapped, "kartlagt"))
	require.NoError(t, eng.Run(context.Background(), r, Options{IncludeQuality: true}))

	assert.Equal(t, model.StatusHitRed, r.Status)
	assert.True(t, r.HasCoverage)
	require.Len(t, r.QualityMeasurements, 2)
	assert.Equal(t, "Nei", r.QualityMeasurements[0].Value)
	assert.Equal(t, "Ja", r.QualityMeasurements[1].Value)
	require.Len(t, r.QualityWarnings, 1)
	assert.Contains(t, r.QualityWarnings[0], "40 %")
}

func TestEngine_NoCoverageIndicatorIsCovered(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("A"), 0)

	require.NoError(t, newTestEngine(s, &fakeIndicators{}, coverageChecker()).Run(context.Background(), r, Options{}))

	assert.True(t, r.HasCoverage)
	assert.NotContains(t, r.Steps, StepCheckCoverage)
}

func TestEngine_Guidance(t *testing.T) {
	first, second := uuid.New(), uuid.New()
	guidance := fakeGuidance{
		first: {Title: "Første", ExplanatoryText: "forklaring 1", PossibleActions: "- gjør noe"},
		second: {
			Title:           "Andre",
			ExplanatoryText: "forklaring 2",
			DialogText:      "dialog 2",
			Links:           []model.GuidanceLink{{Href: "https://a.test", Title: "A"}},
			PossibleActions: "- Kontakt kommunen\r\n- Søk dispensasjon\n",
		},
	}

	s := &fakeStrategy{answer: func(layer model.Layer, _ geom.T) (int, *FeatureSet) {
		if layer.Name() == "B" {
			return StatusOK, features(geomtest.Rect(0, 0, 10, 10))
		}
		return StatusOK, &FeatureSet{}
	}}
	cfg := testConfig("A", "B")
	cfg.Layers[0].GeolettID = first
	cfg.Layers[1].GeolettID = second
	r := newResult(cfg, 0)

	eng := NewEngine(Deps{
		Geometry:   geomtest.NewRectEngine(),
		Strategies: staticProvider{s},
		Guidance:   guidance,
	})
	require.NoError(t, eng.Run(context.Background(), r, Options{IncludeGuidance: true}))

	assert.Equal(t, "Andre", r.Title)
	assert.Equal(t, "forklaring 2", r.Description)
	assert.Equal(t, "dialog 2", r.GuidanceText)
	assert.Equal(t, []model.GuidanceLink{{Href: "https://a.test", Title: "A"}}, r.GuidanceLinks)
	assert.Equal(t, []string{"Kontakt kommunen", "Søk dispensasjon"}, r.PossibleActions)
}

func TestEngine_GuidanceNoHitGreenOmitsDescription(t *testing.T) {
	id := uuid.New()
	guidance := fakeGuidance{id: {Title: "Veiledning", ExplanatoryText: "forklaring", DialogText: "dialog", PossibleActions: "- tiltak"}}
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	cfg := testConfig("A")
	cfg.Layers[0].GeolettID = id
	r := newResult(cfg, 0)

	eng := NewEngine(Deps{Geometry: geomtest.NewRectEngine(), Strategies: staticProvider{s}, Guidance: guidance})
	require.NoError(t, eng.Run(context.Background(), r, Options{IncludeGuidance: true}))

	assert.Equal(t, model.StatusNoHitGreen, r.Status)
	assert.Equal(t, "Veiledning", r.Title)
	assert.Empty(t, r.Description)
	assert.Empty(t, r.GuidanceText)
	assert.Equal(t, []string{"tiltak"}, r.PossibleActions)
}

func TestEngine_GuidanceNotRequested(t *testing.T) {
	id := uuid.New()
	guidance := fakeGuidance{id: {Title: "Veiledning", ExplanatoryText: "forklaring"}}
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, features(geomtest.Rect(0, 0, 10, 10))
	}}
	cfg := testConfig("A")
	cfg.Layers[0].GeolettID = id
	r := newResult(cfg, 0)

	eng := NewEngine(Deps{Geometry: geomtest.NewRectEngine(), Strategies: staticProvider{s}, Guidance: guidance})
	require.NoError(t, eng.Run(context.Background(), r, Options{}))

	assert.Equal(t, "Veiledning", r.Title)
	assert.Empty(t, r.Description)
	assert.Empty(t, r.PossibleActions)
}

func TestEngine_CatalogFailureLeavesMetadataEmpty(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	r := newResult(testConfig("A"), 0)

	eng := NewEngine(Deps{
		Geometry:   geomtest.NewRectEngine(),
		Strategies: staticProvider{s},
		Catalog:    fakeCatalog{err: errors.New("boom")},
	})
	require.NoError(t, eng.Run(context.Background(), r, Options{}))

	assert.Nil(t, r.Metadata)
	assert.Equal(t, "Flomsoner", r.Title)
}

func TestEngine_QualityMeasurements(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		fs := features(geomtest.Rect(0, 0, 10, 10))
		fs.Properties[0]["noyaktighet"] = "lav"
		return StatusOK, fs
	}}
	ind := &fakeIndicators{all: []model.QualityIndicator{
		{
			Type:                 model.IndicatorDataset,
			QualityDimensionID:   model.DimensionSuitabilityBuilding,
			QualityDimensionName: "Egnethet byggesak",
			Value:                "3",
		},
		{
			Type:                 model.IndicatorObject,
			QualityDimensionID:   model.DimensionPositionalAccuracy,
			QualityDimensionName: "Stedfestingsnøyaktighet",
			Property:             "noyaktighet",
			ThresholdValues:      []string{"lav"},
			QualityWarningText:   "Lav stedfestingsnøyaktighet",
		},
	}}
	r := newResult(testConfig("A"), 0)

	require.NoError(t, newTestEngine(s, ind, nil).Run(context.Background(), r, Options{IncludeQuality: true}))

	sorted := quality.Sort(r.QualityMeasurements)
	require.Len(t, sorted, 2)
	assert.Equal(t, model.DimensionPositionalAccuracy, sorted[0].QualityDimensionID)
	assert.Equal(t, model.DimensionSuitabilityBuilding, sorted[1].QualityDimensionID)
	assert.Equal(t, []string{"Lav stedfestingsnøyaktighet"}, r.QualityWarnings)
}

func TestEngine_WorkingGeoJSONInCallerCRS(t *testing.T) {
	s := &fakeStrategy{answer: func(model.Layer, geom.T) (int, *FeatureSet) {
		return StatusOK, &FeatureSet{}
	}}
	cfg := testConfig("A")
	r := NewResult(cfg, geomtest.Rect(0, 0, 10, 10), geometry.EPSGUTM33N, geometry.EPSGWGS84, 0)

	require.NoError(t, newTestEngine(s, nil, nil).Run(context.Background(), r, Options{}))

	require.NotNil(t, r.WorkingGeoJSON)
	assert.Equal(t, "Polygon", r.WorkingGeoJSON["type"])
	crs := r.WorkingGeoJSON["crs"].(map[string]any)
	assert.Equal(t, "urn:ogc:def:crs:EPSG::4326", crs["properties"].(map[string]any)["name"])
	assert.Equal(t, geometry.EPSGUTM33N, r.Working.SRID())
}

func TestSplitActions(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"- én\n- to", []string{"én", "to"}},
		{"-- dobbel\r\n  innrykk\n", []string{"dobbel", "innrykk"}},
		{"uten strek", []string{"uten strek"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitActions(tt.in), tt.in)
	}
}
