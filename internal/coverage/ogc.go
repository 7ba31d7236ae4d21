package coverage

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/pkg/ogcapi"
)

// OGCSource reads coverage polygons from an OGC API Features collection.
type OGCSource struct {
	client ogcapi.Client
	engine geometry.Engine
}

// NewOGCSource creates an OGC API coverage source.
func NewOGCSource(client ogcapi.Client, engine geometry.Engine) *OGCSource {
	return &OGCSource{client: client, engine: engine}
}

// Fetch implements Source.
func (s *OGCSource) Fetch(ctx context.Context, qi *model.QualityIndicator, g geom.T, epsg int) (Result, error) {
	if qi.OGCAPI == nil {
		return Result{}, eris.New("coverage: indicator has no ogc_api source")
	}

	filter, err := geometry.WKT(g)
	if err != nil {
		return Result{}, err
	}

	fc, err := s.client.Items(ctx, ogcapi.Query{
		BaseURL:    qi.OGCAPI.URL,
		Collection: qi.OGCAPI.Collection,
		GeomField:  qi.OGCAPI.GeomField,
		WKT:        filter,
		EPSG:       epsg,
	})
	if err != nil {
		return Result{}, eris.Wrap(err, "coverage: query ogc api")
	}

	c := newCollector(qi)
	for _, f := range fc.Features {
		raw, ok := f.Properties[qi.Property]
		if !ok || raw == nil {
			continue
		}
		value := fmt.Sprint(raw)

		area, err := s.flaggedArea(ctx, qi, value, f, fc.EPSG, g, epsg)
		if err != nil {
			zap.L().Debug("coverage: skipping feature geometry", zap.Error(err))
		}
		c.add(value, area)
	}

	return c.result(geometry.Area(g)), nil
}

// flaggedArea is the area of the feature inside g, computed only for threshold values.
func (s *OGCSource) flaggedArea(ctx context.Context, qi *model.QualityIndicator, value string, f ogcapi.Feature, srcEPSG int, g geom.T, epsg int) (float64, error) {
	if !qi.IsThreshold(value) || !f.HasGeometry() {
		return 0, nil
	}
	fg, err := geometry.DecodeFeatureGeometry(f.Geometry, srcEPSG)
	if err != nil || fg == nil {
		return 0, err
	}
	fg, err = geometry.Reproject(ctx, s.engine, fg, epsg)
	if err != nil {
		return 0, err
	}
	inter, err := s.engine.Intersection(ctx, g, fg)
	if err != nil || inter == nil {
		return 0, err
	}
	return geometry.Area(inter), nil
}
