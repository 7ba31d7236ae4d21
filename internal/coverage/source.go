// Package coverage fetches the categorical coverage values that intersect a
// working geometry, together with the share of the geometry they flag.
package coverage

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/model"
)

// Result is the outcome of a coverage fetch.
type Result struct {
	// Values are the distinct coverage values in source order.
	Values []string
	// Percent is the share of the working geometry, 0 to 100, covered by
	// features whose value is one of the indicator's threshold values.
	// It is rounded to two decimals, so warning text shows at most two.
	Percent float64
}

// Source fetches coverage values for a geometry in the given EPSG.
type Source interface {
	Fetch(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) (Result, error)
}

// Router dispatches to the source configured on the indicator.
type Router struct {
	OGC     Source
	PostGIS Source
}

// Fetch implements Source.
func (r *Router) Fetch(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) (Result, error) {
	switch {
	case qi.OGCAPI != nil && r.OGC != nil:
		return r.OGC.Fetch(ctx, qi, g, epsg)
	case qi.PostGIS != nil && r.PostGIS != nil:
		return r.PostGIS.Fetch(ctx, qi, g, epsg)
	default:
		return Result{}, eris.Errorf("coverage: no source available for indicator %s", qi.QualityDimensionID)
	}
}

// collector accumulates distinct values and flagged area.
type collector struct {
	qi          *model.QualityIndicator
	seen        map[string]bool
	values      []string
	flaggedArea float64
}

func newCollector(qi *model.QualityIndicator) *collector {
	return &collector{qi: qi, seen: make(map[string]bool)}
}

func (c *collector) add(value string, area float64) {
	if !c.seen[value] {
		c.seen[value] = true
		c.values = append(c.values, value)
	}
	if c.qi.IsThreshold(value) {
		c.flaggedArea += area
	}
}

func (c *collector) result(totalArea float64) Result {
	return Result{Values: c.values, Percent: percentOf(c.flaggedArea, totalArea)}
}

func percentOf(part, total float64) float64 {
	if total <= 0 || part <= 0 {
		return 0
	}
	p := part / total * 100
	if p > 100 {
		p = 100
	}
	return math.Round(p*100) / 100
}
