// Package geomtest provides an envelope-based geometry.Engine for tests. Every
// geometry is reduced to its bounding box, which is exact for axis-aligned rectangles.
package geomtest

import (
	"context"
	"math"
	"sync"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/geometry"
)

// RectEngine implements geometry.Engine on bounding boxes and counts calls per operation.
type RectEngine struct {
	mu    sync.Mutex
	calls map[string]int
}

// NewRectEngine creates an empty RectEngine.
func NewRectEngine() *RectEngine {
	return &RectEngine{calls: make(map[string]int)}
}

// Calls returns how often op ("buffer", "intersection", ...) was invoked.
func (e *RectEngine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

func (e *RectEngine) record(op string) {
	e.mu.Lock()
	e.calls[op]++
	e.mu.Unlock()
}

// Rect builds an axis-aligned rectangle polygon.
func Rect(minX, minY, maxX, maxY float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}}).SetSRID(geometry.EPSGUTM33N)
}

// Line builds a line string through the given x,y pairs.
func Line(coords ...float64) *geom.LineString {
	return geom.NewLineStringFlat(geom.XY, coords).SetSRID(geometry.EPSGUTM33N)
}

// Buffer implements geometry.Engine by growing the bounding box.
func (e *RectEngine) Buffer(_ context.Context, g geom.T, distance float64) (geom.T, error) {
	e.record("buffer")
	b := g.Bounds()
	return Rect(b.Min(0)-distance, b.Min(1)-distance, b.Max(0)+distance, b.Max(1)+distance).SetSRID(g.SRID()), nil
}

// Intersection implements geometry.Engine. Polygonal inputs yield the overlapping
// rectangle; a non-polygonal b that overlaps a is returned unchanged.
func (e *RectEngine) Intersection(_ context.Context, a, b geom.T) (geom.T, error) {
	e.record("intersection")
	ba, bb := a.Bounds(), b.Bounds()
	if !ba.Overlaps(geom.XY, bb) {
		return nil, nil
	}
	if !geometry.IsPolygonal(b) {
		return geometry.Clone(b), nil
	}
	minX, minY := math.Max(ba.Min(0), bb.Min(0)), math.Max(ba.Min(1), bb.Min(1))
	maxX, maxY := math.Min(ba.Max(0), bb.Max(0)), math.Min(ba.Max(1), bb.Max(1))
	if minX >= maxX || minY >= maxY {
		return geom.NewLineStringFlat(geom.XY, []float64{minX, minY, maxX, maxY}), nil
	}
	return Rect(minX, minY, maxX, maxY), nil
}

// Intersects implements geometry.Engine.
func (e *RectEngine) Intersects(_ context.Context, a, b geom.T) (bool, error) {
	e.record("intersects")
	return a.Bounds().Overlaps(geom.XY, b.Bounds()), nil
}

// Distance implements geometry.Engine as the gap between bounding boxes.
func (e *RectEngine) Distance(_ context.Context, a, b geom.T) (float64, error) {
	e.record("distance")
	ba, bb := a.Bounds(), b.Bounds()
	dx := math.Max(0, math.Max(bb.Min(0)-ba.Max(0), ba.Min(0)-bb.Max(0)))
	dy := math.Max(0, math.Max(bb.Min(1)-ba.Max(1), ba.Min(1)-bb.Max(1)))
	return math.Hypot(dx, dy), nil
}

// Transform implements geometry.Engine as an identity that only relabels the SRID.
func (e *RectEngine) Transform(_ context.Context, g geom.T, _, to int) (geom.T, error) {
	e.record("transform")
	return geometry.WithSRID(geometry.Clone(g), to), nil
}
