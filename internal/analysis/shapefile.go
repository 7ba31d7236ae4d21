package analysis

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
)

// ShapefileStrategy reads <shapefile_dir>/<layer>.shp and keeps the records
// whose shape intersects the query geometry.
type ShapefileStrategy struct {
	engine geometry.Engine
	cfg    *model.DatasetConfig
}

// NewShapefileStrategy creates a strategy for a dataset with a shapefile backend.
func NewShapefileStrategy(engine geometry.Engine, cfg *model.DatasetConfig) *ShapefileStrategy {
	return &ShapefileStrategy{engine: engine, cfg: cfg}
}

// Query implements QueryStrategy. Records are pre-filtered on their bounding
// box before the exact intersects test.
func (s *ShapefileStrategy) Query(ctx context.Context, layer model.Layer, g geom.T, epsg int) (int, *FeatureSet) {
	log := zap.L().With(
		zap.Stringer("dataset_id", s.cfg.DatasetID),
		zap.String("layer", layer.Shapefile),
	)

	path := filepath.Join(s.cfg.ShapefileDir, layer.Shapefile)
	if !strings.EqualFold(filepath.Ext(path), ".shp") {
		path += ".shp"
	}

	reader, err := shp.Open(path)
	if err != nil {
		log.Warn("analysis: open shapefile", zap.String("path", path), zap.Error(err))
		return http.StatusInternalServerError, nil
	}
	defer func() { _ = reader.Close() }()

	srcEPSG := s.cfg.ShapefileEPSG
	if srcEPSG == 0 {
		srcEPSG = epsg
	}

	// Query geometry in the shapefile's CRS for the bounding box test.
	query, err := geometry.Reproject(ctx, s.engine, geometry.WithSRID(geometry.Clone(g), epsg), srcEPSG)
	if err != nil {
		log.Warn("analysis: reproject query geometry", zap.Error(err))
		return http.StatusInternalServerError, nil
	}
	bounds := query.Bounds()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.TrimRight(f.String(), "\x00")
	}

	fs := &FeatureSet{}
	for reader.Next() {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return StatusTimeout, nil
			}
			return http.StatusInternalServerError, nil
		}

		n, shape := reader.Shape()
		if shape == nil {
			continue
		}
		box := shape.BBox()
		if box.MaxX < bounds.Min(0) || box.MinX > bounds.Max(0) || box.MaxY < bounds.Min(1) || box.MinY > bounds.Max(1) {
			continue
		}

		fg := geometry.FromShape(shape, srcEPSG)
		if fg == nil {
			continue
		}
		hit, err := s.engine.Intersects(ctx, query, fg)
		if err != nil {
			log.Warn("analysis: intersects failed", zap.Int("record", n), zap.Error(err))
			return http.StatusInternalServerError, nil
		}
		if !hit {
			continue
		}

		fg, err = geometry.Reproject(ctx, s.engine, fg, epsg)
		if err != nil {
			log.Warn("analysis: reproject record", zap.Int("record", n), zap.Error(err))
			return http.StatusInternalServerError, nil
		}

		props := make(map[string]any, len(names))
		for i, name := range names {
			props[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}
		fs.Properties = append(fs.Properties, MapProperties(props, s.cfg.Properties))
		fs.Geometries = append(fs.Geometries, fg)
	}

	return StatusOK, fs
}
