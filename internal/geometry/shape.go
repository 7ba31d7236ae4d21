package geometry

import (
	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// FromShape converts a shapefile record to go-geom with the given SRID.
// Polygon parts become separate polygons of a MultiPolygon; unsupported
// or empty shapes yield nil.
func FromShape(shape shp.Shape, srid int) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(srid)
	case *shp.MultiPoint:
		if s == nil || len(s.Points) == 0 {
			return nil
		}
		flat := make([]float64, 0, len(s.Points)*2)
		for _, p := range s.Points {
			flat = append(flat, p.X, p.Y)
		}
		return geom.NewMultiPointFlat(geom.XY, flat).SetSRID(srid)
	case *shp.PolyLine:
		if s == nil {
			return nil
		}
		return lines(s.Parts, s.Points, srid)
	case *shp.Polygon:
		if s == nil {
			return nil
		}
		return polygons(s.Parts, s.Points, srid)
	default:
		return nil
	}
}

// partRanges splits a shapefile point array into [start, end) index pairs.
func partRanges(parts []int32, n int) [][2]int {
	out := make([][2]int, 0, len(parts))
	for i, start := range parts {
		end := n
		if i+1 < len(parts) {
			end = int(parts[i+1])
		}
		if int(start) < 0 || int(start) >= end || end > n {
			continue
		}
		out = append(out, [2]int{int(start), end})
	}
	return out
}

func flatPoints(points []shp.Point) []float64 {
	flat := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}

func lines(parts []int32, points []shp.Point, srid int) geom.T {
	mls := geom.NewMultiLineString(geom.XY).SetSRID(srid)
	for _, r := range partRanges(parts, len(points)) {
		ls := geom.NewLineStringFlat(geom.XY, flatPoints(points[r[0]:r[1]]))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("geometry: skipping shapefile line part", zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygons(parts []int32, points []shp.Point, srid int) geom.T {
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
	for _, r := range partRanges(parts, len(points)) {
		ring := geom.NewLinearRingFlat(geom.XY, flatPoints(points[r[0]:r[1]]))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("geometry: skipping shapefile ring", zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geometry: skipping shapefile polygon", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
