// Package analysis evaluates an input geometry against configured datasets.
package analysis

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/internal/quality"
	"github.com/sells-group/dokanalyse/internal/raster"
)

// IndicatorStore resolves the quality indicators configured for a dataset.
type IndicatorStore interface {
	CoverageIndicator(id uuid.UUID) (*model.QualityIndicator, error)
	QualityIndicators(id uuid.UUID) ([]model.QualityIndicator, error)
}

// CoverageChecker judges whether a dataset has data under a geometry.
type CoverageChecker interface {
	Evaluate(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) quality.CoverageOutcome
}

// MetadataLookup resolves catalog metadata for a dataset.
type MetadataLookup interface {
	Metadata(ctx context.Context, datasetID uuid.UUID) (*model.Metadata, error)
}

// GuidanceLookup resolves guidance text by id.
type GuidanceLookup interface {
	Guidance(ctx context.Context, id uuid.UUID) (*model.Guidance, error)
}

// Options are the per-request switches of a run.
type Options struct {
	IncludeGuidance bool
	IncludeQuality  bool
	// Context is the planning context used to select dataset quality warnings.
	Context string
}

// Deps are the collaborators of an Engine. Catalog, Guidance and Coverage may be nil.
type Deps struct {
	Geometry     geometry.Engine
	Strategies   StrategyProvider
	Indicators   IndicatorStore
	Coverage     CoverageChecker
	Catalog      MetadataLookup
	Guidance     GuidanceLookup
	SearchRadius float64
}

// Engine runs the per-dataset analysis pipeline. It holds no per-analysis
// state and is safe for concurrent use.
type Engine struct {
	geo        geometry.Engine
	strategies StrategyProvider
	indicators IndicatorStore
	coverage   CoverageChecker
	catalog    MetadataLookup
	guidance   GuidanceLookup
	area       *AreaCalculator
	distance   *DistanceEvaluator
}

// NewEngine creates an Engine.
func NewEngine(d Deps) *Engine {
	return &Engine{
		geo:        d.Geometry,
		strategies: d.Strategies,
		indicators: d.Indicators,
		coverage:   d.Coverage,
		catalog:    d.Catalog,
		guidance:   d.Guidance,
		area:       NewAreaCalculator(d.Geometry),
		distance:   NewDistanceEvaluator(d.Geometry, d.SearchRadius),
	}
}

// Run evaluates r in place. Transport failures end up in r.Status; the
// returned error is reserved for configuration faults that prevent the run.
func (e *Engine) Run(ctx context.Context, r *Result, opts Options) error {
	log := zap.L().With(zap.Stringer("dataset_id", r.DatasetID))

	strategy, err := e.strategies.For(r.Config)
	if err != nil {
		return eris.Wrapf(err, "analysis: strategy for dataset %s", r.DatasetID)
	}

	if err := e.prepareGeometry(ctx, r); err != nil {
		return err
	}

	var coverageOut quality.CoverageOutcome
	if err := e.checkCoverage(ctx, r, &coverageOut); err != nil {
		return err
	}

	if r.HasCoverage {
		e.runQueries(ctx, r, strategy)
		if r.Status.IsTerminal() {
			log.Debug("analysis: query aborted", zap.String("status", string(r.Status)))
			e.setDefaultData(ctx, r)
			return nil
		}
		inputArea, hitArea := e.area.Compute(ctx, r.Working, r.Geometries)
		r.InputGeometryArea = &inputArea
		r.HitArea = hitArea
	} else {
		r.Status = model.StatusNoHitYellow
	}

	if r.Status.IsNoHit() && len(r.Config.Layers) > 0 {
		dist, answered := e.distance.Evaluate(ctx, strategy, r.Config.Layers[0], r.Geometry, r.Working, r.EPSG)
		r.Distance = dist
		if answered {
			r.addStep(StepGetDistance)
		}
	}

	r.addStep(StepDeliverResult)

	if err := e.setWorkingGeoJSON(ctx, r); err != nil {
		log.Warn("analysis: encode working geometry", zap.Error(err))
	}

	e.setDefaultData(ctx, r)

	if opts.IncludeGuidance && r.guidance != nil {
		setGuidanceData(r)
	}

	if opts.IncludeQuality {
		e.setQuality(r, coverageOut, opts.Context)
	}

	log.Debug("analysis: done",
		zap.String("status", string(r.Status)),
		zap.Strings("steps", r.Steps),
	)
	return nil
}

func (e *Engine) prepareGeometry(ctx context.Context, r *Result) error {
	r.addStep(StepSetInputGeometry)

	if r.Buffer > 0 {
		buffered, err := e.geo.Buffer(ctx, r.Geometry, float64(r.Buffer))
		if err != nil {
			return eris.Wrapf(err, "analysis: buffer input geometry by %d", r.Buffer)
		}
		r.Working = geometry.WithSRID(buffered, r.EPSG)
		r.addStep(StepAddBuffer)
		return nil
	}

	r.Working = geometry.Clone(r.Geometry)
	if r.Working == nil {
		return eris.New("analysis: unsupported input geometry")
	}
	return nil
}

func (e *Engine) checkCoverage(ctx context.Context, r *Result, out *quality.CoverageOutcome) error {
	if e.indicators == nil {
		return nil
	}
	qi, err := e.indicators.CoverageIndicator(r.DatasetID)
	if err != nil {
		return eris.Wrap(err, "analysis: coverage indicator")
	}
	if qi == nil || e.coverage == nil {
		return nil
	}

	r.addStep(StepCheckCoverage)
	*out = e.coverage.Evaluate(ctx, qi, r.Working, r.EPSG)
	r.HasCoverage = out.HasCoverage
	return nil
}

// runQueries evaluates the layers in order until one returns features.
func (e *Engine) runQueries(ctx context.Context, r *Result, strategy QueryStrategy) {
	if len(r.Config.Layers) == 0 {
		return
	}
	r.guidance = e.lookupGuidance(ctx, r.Config.Layers[0].GeolettID)

	for _, layer := range r.Config.Layers {
		code, fs := strategy.Query(ctx, layer, r.Working, r.EPSG)
		switch {
		case code == StatusTimeout:
			r.Status = model.StatusTimeout
			return
		case code != StatusOK:
			r.Status = model.StatusError
			return
		}

		r.addStep(StepIntersectLayer + layer.Name())

		if fs.Len() == 0 {
			continue
		}

		if layer.GeolettID != r.Config.Layers[0].GeolettID {
			r.guidance = e.lookupGuidance(ctx, layer.GeolettID)
		}
		r.Data = fs.Properties
		r.Geometries = fs.Geometries
		r.RasterRef = raster.ResultRef(r.Config.WMS, layer.WMS)
		r.CartographyRef = raster.CartographyRef(r.Config.WMS, layer.WMS)
		r.Status = layer.ResultStatus
		return
	}
}

func (e *Engine) lookupGuidance(ctx context.Context, id uuid.UUID) *model.Guidance {
	if e.guidance == nil || id == uuid.Nil {
		return nil
	}
	g, err := e.guidance.Guidance(ctx, id)
	if err != nil {
		zap.L().Warn("analysis: guidance lookup failed", zap.Stringer("geolett_id", id), zap.Error(err))
		return nil
	}
	return g
}

// setDefaultData fills the fields every result carries, including aborted ones.
func (e *Engine) setDefaultData(ctx context.Context, r *Result) {
	r.Title = r.Config.Title
	if r.guidance != nil && r.guidance.Title != "" {
		r.Title = r.guidance.Title
	}
	r.Themes = r.Config.Themes

	if e.catalog == nil {
		return
	}
	md, err := e.catalog.Metadata(ctx, r.DatasetID)
	if err != nil {
		zap.L().Warn("analysis: catalog metadata lookup failed",
			zap.Stringer("dataset_id", r.DatasetID),
			zap.Error(err),
		)
		return
	}
	r.Metadata = md
}

func (e *Engine) setWorkingGeoJSON(ctx context.Context, r *Result) error {
	out, err := geometry.Reproject(ctx, e.geo, geometry.Clone(r.Working), r.OrigEPSG)
	if err != nil {
		return err
	}
	obj, err := geometry.EncodeGeoJSON(out, r.OrigEPSG)
	if err != nil {
		return err
	}
	r.WorkingGeoJSON = obj
	return nil
}

func setGuidanceData(r *Result) {
	g := r.guidance
	if r.Status != model.StatusNoHitGreen {
		r.Description = g.ExplanatoryText
		r.GuidanceText = g.DialogText
	}
	r.GuidanceLinks = append(r.GuidanceLinks, g.Links...)
	r.PossibleActions = SplitActions(g.PossibleActions)
}

// SplitActions turns a bulleted text block into one action per line.
func SplitActions(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return []string{}
	}
	lines := strings.Split(text, "\n")
	actions := make([]string, 0, len(lines))
	for _, line := range lines {
		actions = append(actions, strings.TrimLeft(line, "- "))
	}
	return actions
}

func (e *Engine) setQuality(r *Result, cov quality.CoverageOutcome, requestContext string) {
	r.QualityMeasurements = append(r.QualityMeasurements, cov.Measurements...)
	if cov.Warning != "" {
		r.QualityWarnings = append(r.QualityWarnings, cov.Warning)
	}

	if e.indicators == nil {
		return
	}
	indicators, err := e.indicators.QualityIndicators(r.DatasetID)
	if err != nil {
		zap.L().Warn("analysis: quality indicators", zap.Stringer("dataset_id", r.DatasetID), zap.Error(err))
		return
	}
	if len(indicators) == 0 {
		return
	}

	dqms, dwarnings := quality.DatasetQuality(indicators, requestContext)
	oqms, owarnings := quality.ObjectQuality(indicators, r.Data)
	r.QualityMeasurements = append(r.QualityMeasurements, dqms...)
	r.QualityMeasurements = append(r.QualityMeasurements, oqms...)
	r.QualityWarnings = append(r.QualityWarnings, dwarnings...)
	r.QualityWarnings = append(r.QualityWarnings, owarnings...)
}
