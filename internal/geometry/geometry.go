// Package geometry wraps go-geom values and the geometry operations the analysis
// pipeline delegates to a spatial backend.
package geometry

import (
	"context"
	"math"

	"github.com/twpayne/go-geom"
)

// Well-known EPSG codes.
const (
	EPSGWGS84  = 4326
	EPSGUTM33N = 25833
)

// Engine performs planar geometry operations in a projected reference system.
// Implementations must not mutate their arguments.
type Engine interface {
	// Buffer returns g grown by distance map units.
	Buffer(ctx context.Context, g geom.T, distance float64) (geom.T, error)

	// Intersection returns the shared part of a and b, or nil when they do not meet.
	Intersection(ctx context.Context, a, b geom.T) (geom.T, error)

	// Intersects reports whether a and b share any point.
	Intersects(ctx context.Context, a, b geom.T) (bool, error)

	// Distance returns the minimum planar distance between a and b.
	Distance(ctx context.Context, a, b geom.T) (float64, error)

	// Transform reprojects g from one EPSG code to another.
	Transform(ctx context.Context, g geom.T, from, to int) (geom.T, error)
}

// Area returns the planar area of polygonal geometries and 0 for everything
// else. Ring orientation does not matter: holes always subtract.
func Area(g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Polygon:
		return polygonArea(t)
	case *geom.MultiPolygon:
		var sum float64
		for i := 0; i < t.NumPolygons(); i++ {
			sum += polygonArea(t.Polygon(i))
		}
		return sum
	case *geom.GeometryCollection:
		var sum float64
		for _, child := range t.Geoms() {
			sum += Area(child)
		}
		return sum
	default:
		return 0
	}
}

func polygonArea(p *geom.Polygon) float64 {
	var a float64
	for i := 0; i < p.NumLinearRings(); i++ {
		r := math.Abs(p.LinearRing(i).Area())
		if i == 0 {
			a += r
		} else {
			a -= r
		}
	}
	return a
}

// IsPolygonal reports whether g is a Polygon or MultiPolygon.
func IsPolygonal(g geom.T) bool {
	switch g.(type) {
	case *geom.Polygon, *geom.MultiPolygon:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of g. Unknown types yield nil.
func Clone(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.Clone()
	case *geom.LineString:
		return t.Clone()
	case *geom.LinearRing:
		return t.Clone()
	case *geom.Polygon:
		return t.Clone()
	case *geom.MultiPoint:
		return t.Clone()
	case *geom.MultiLineString:
		return t.Clone()
	case *geom.MultiPolygon:
		return t.Clone()
	case *geom.GeometryCollection:
		gc := geom.NewGeometryCollection().SetSRID(t.SRID())
		for _, child := range t.Geoms() {
			_ = gc.Push(Clone(child))
		}
		return gc
	default:
		return nil
	}
}

// WithSRID sets the SRID on g in place and returns it.
func WithSRID(g geom.T, srid int) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(srid)
	case *geom.LineString:
		return t.SetSRID(srid)
	case *geom.LinearRing:
		return t.SetSRID(srid)
	case *geom.Polygon:
		return t.SetSRID(srid)
	case *geom.MultiPoint:
		return t.SetSRID(srid)
	case *geom.MultiLineString:
		return t.SetSRID(srid)
	case *geom.MultiPolygon:
		return t.SetSRID(srid)
	case *geom.GeometryCollection:
		return t.SetSRID(srid)
	default:
		return g
	}
}

// Reproject transforms g into epsg unless its SRID already matches.
func Reproject(ctx context.Context, eng Engine, g geom.T, epsg int) (geom.T, error) {
	if g == nil || g.SRID() == epsg {
		return g, nil
	}
	return eng.Transform(ctx, g, g.SRID(), epsg)
}
