package analysis

import (
	"context"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/metrics"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/pkg/ogcapi"
)

// OGCStrategy queries an OGC API Features service with an S_INTERSECTS filter.
type OGCStrategy struct {
	client ogcapi.Client
	engine geometry.Engine
	cfg    *model.DatasetConfig
}

// NewOGCStrategy creates a strategy for a dataset with an ogc_api backend.
func NewOGCStrategy(client ogcapi.Client, engine geometry.Engine, cfg *model.DatasetConfig) *OGCStrategy {
	return &OGCStrategy{client: client, engine: engine, cfg: cfg}
}

// Query implements QueryStrategy.
func (s *OGCStrategy) Query(ctx context.Context, layer model.Layer, g geom.T, epsg int) (int, *FeatureSet) {
	log := zap.L().With(
		zap.Stringer("dataset_id", s.cfg.DatasetID),
		zap.String("layer", layer.OGCAPI),
	)

	filter, err := geometry.WKT(g)
	if err != nil {
		log.Warn("analysis: encode filter geometry", zap.Error(err))
		return ogcapi.StatusCode(err), nil
	}

	fc, err := s.client.Items(ctx, ogcapi.Query{
		BaseURL:    s.cfg.OGCAPI,
		Collection: layer.OGCAPI,
		GeomField:  s.cfg.GeomField,
		WKT:        filter,
		EPSG:       epsg,
	})
	code := ogcapi.StatusCode(err)
	metrics.ObserveRemoteCall("ogc_api", code)
	if err != nil {
		log.Warn("analysis: layer query failed", zap.Int("status", code), zap.Error(err))
		return code, nil
	}

	fs := &FeatureSet{
		Properties: make([]map[string]any, 0, len(fc.Features)),
		Geometries: make([]geom.T, 0, len(fc.Features)),
	}
	for _, f := range fc.Features {
		fs.Properties = append(fs.Properties, MapProperties(f.Properties, s.cfg.Properties))
		fs.Geometries = append(fs.Geometries, s.featureGeometry(ctx, f, fc.EPSG, epsg))
	}
	return StatusOK, fs
}

func (s *OGCStrategy) featureGeometry(ctx context.Context, f ogcapi.Feature, srcEPSG, epsg int) geom.T {
	g, err := geometry.DecodeFeatureGeometry(f.Geometry, srcEPSG)
	if err != nil || g == nil {
		return nil
	}
	g, err = geometry.Reproject(ctx, s.engine, g, epsg)
	if err != nil {
		zap.L().Debug("analysis: reproject feature geometry", zap.Error(err))
		return nil
	}
	return g
}
