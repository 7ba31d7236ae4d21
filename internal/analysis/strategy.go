package analysis

import (
	"context"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/geometry"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/pkg/ogcapi"
)

// Query status codes reported by a QueryStrategy.
const (
	StatusOK      = http.StatusOK
	StatusTimeout = http.StatusRequestTimeout
)

// FeatureSet is the parsed result of a layer query. Properties and Geometries
// are parallel; a feature without geometry has a nil entry.
type FeatureSet struct {
	Properties []map[string]any
	Geometries []geom.T
}

// Len returns the number of matched features.
func (fs *FeatureSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.Properties)
}

// QueryStrategy runs a spatial query against one layer of a dataset. Transport
// outcomes are status codes, not errors: 200 ok, 408 timeout, anything else
// an error. The returned geometries are in epsg.
type QueryStrategy interface {
	Query(ctx context.Context, layer model.Layer, g geom.T, epsg int) (int, *FeatureSet)
}

// StrategyProvider picks the query strategy for a dataset backend.
type StrategyProvider interface {
	For(cfg *model.DatasetConfig) (QueryStrategy, error)
}

// Strategies builds strategies from shared clients.
type Strategies struct {
	OGC    ogcapi.Client
	Engine geometry.Engine
}

// For implements StrategyProvider.
func (s *Strategies) For(cfg *model.DatasetConfig) (QueryStrategy, error) {
	switch cfg.Backend() {
	case model.BackendOGCAPI:
		if s.OGC == nil {
			return nil, eris.New("analysis: no ogc api client configured")
		}
		return NewOGCStrategy(s.OGC, s.Engine, cfg), nil
	case model.BackendShapefile:
		return NewShapefileStrategy(s.Engine, cfg), nil
	default:
		return nil, eris.Errorf("analysis: unsupported backend %q", cfg.Backend())
	}
}

// MapProperties picks the configured dotted paths out of a feature's
// properties. Each value is keyed by the last path segment; missing paths map to nil.
func MapProperties(props map[string]any, paths []string) map[string]any {
	out := make(map[string]any, len(paths))
	for _, path := range paths {
		segments := strings.Split(path, ".")
		out[segments[len(segments)-1]] = lookup(props, segments)
	}
	return out
}

func lookup(props map[string]any, segments []string) any {
	var cur any = props
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}
