package analysis

import (
	"context"
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
)

// NoObjectDistance reports that nothing was found within the search radius.
const NoObjectDistance int64 = math.MaxInt64

// DefaultSearchRadius is how far around the input geometry the nearest object is searched.
const DefaultSearchRadius = 20000

// DistanceEvaluator finds the distance to the nearest object of a dataset.
type DistanceEvaluator struct {
	engine geometry.Engine
	radius float64
}

// NewDistanceEvaluator creates an evaluator searching within radius map units.
func NewDistanceEvaluator(engine geometry.Engine, radius float64) *DistanceEvaluator {
	if radius <= 0 {
		radius = DefaultSearchRadius
	}
	return &DistanceEvaluator{engine: engine, radius: radius}
}

// Evaluate queries the first layer around the original input geometry and
// returns the rounded minimum distance from the working geometry.
// answered is false when the query produced no response.
func (d *DistanceEvaluator) Evaluate(ctx context.Context, strategy QueryStrategy, layer model.Layer, original, working geom.T, epsg int) (distance int64, answered bool) {
	search, err := d.engine.Buffer(ctx, original, d.radius)
	if err != nil {
		zap.L().Warn("analysis: buffer search area", zap.Error(err))
		return NoObjectDistance, false
	}

	code, fs := strategy.Query(ctx, layer, search, epsg)
	if code != StatusOK || fs == nil {
		return NoObjectDistance, false
	}

	distance = NoObjectDistance
	for _, g := range fs.Geometries {
		if g == nil {
			continue
		}
		dist, err := d.engine.Distance(ctx, working, g)
		if err != nil {
			zap.L().Debug("analysis: distance failed, skipping geometry", zap.Error(err))
			continue
		}
		if rounded := int64(math.RoundToEven(dist)); rounded < distance {
			distance = rounded
		}
	}
	return distance, true
}
