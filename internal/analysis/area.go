package analysis

import (
	"context"
	"math"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
)

// AreaCalculator measures the working geometry and the part of it covered by
// matched polygons.
type AreaCalculator struct {
	engine geometry.Engine
}

// NewAreaCalculator creates an area calculator.
func NewAreaCalculator(engine geometry.Engine) *AreaCalculator {
	return &AreaCalculator{engine: engine}
}

// Compute returns the input area and, when there are result geometries, the
// hit area. Only polygonal intersections count towards the hit area, and the
// sum is rounded once.
func (c *AreaCalculator) Compute(ctx context.Context, working geom.T, results []geom.T) (float64, *float64) {
	inputArea := round2(geometry.Area(working))
	if len(results) == 0 {
		return inputArea, nil
	}

	var hit float64
	for _, g := range results {
		if g == nil {
			continue
		}
		inter, err := c.engine.Intersection(ctx, working, g)
		if err != nil {
			zap.L().Warn("analysis: intersection failed, skipping geometry", zap.Error(err))
			continue
		}
		if inter == nil || !geometry.IsPolygonal(inter) {
			continue
		}
		hit += geometry.Area(inter)
	}

	hit = round2(hit)
	return inputArea, &hit
}

func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
