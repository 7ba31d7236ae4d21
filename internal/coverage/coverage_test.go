package coverage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/dokanalyse/internal/geometry/geomtest"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/pkg/ogcapi"
)

func ogcIndicator(url string) *model.QualityIndicator {
	return &model.QualityIndicator{
		Type:               model.IndicatorCoverage,
		QualityDimensionID: model.DimensionCoverage,
		Property:           "dekningsstatus",
		ThresholdValues:    []string{"ikkeKartlagt"},
		OGCAPI:             &model.FeatureSourceConfig{URL: url, Collection: "Dekning"},
	}
}

// Working geometry is 0..10 x 0..10; the unmapped feature covers its left quarter.
const coverageBody = `{"type":"FeatureCollection","features":[
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[0,0],[2.5,0],[2.5,10],[0,10],[0,0]]]},"properties":{"dekningsstatus":"ikkeKartlagt"}},
	{"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[2.5,0],[20,0],[20,10],[2.5,10],[2.5,0]]]},"properties":{"dekningsstatus":"kartlagt"}},
	{"type":"Feature","geometry":null,"properties":{"dekningsstatus":"kartlagt"}},
	{"type":"Feature","geometry":null,"properties":{}}
]}`

func TestOGCSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("filter"), "S_INTERSECTS(geometry,POLYGON")
		w.Header().Set("Content-Crs", "<http://www.opengis.net/def/crs/EPSG/0/25833>")
		_, _ = w.Write([]byte(coverageBody))
	}))
	defer srv.Close()

	eng := geomtest.NewRectEngine()
	src := NewOGCSource(ogcapi.NewClient(), eng)

	res, err := src.Fetch(context.Background(), ogcIndicator(srv.URL), geomtest.Rect(0, 0, 10, 10), 25833)
	require.NoError(t, err)

	assert.Equal(t, []string{"ikkeKartlagt", "kartlagt"}, res.Values)
	assert.InDelta(t, 25.0, res.Percent, 1e-9)
	assert.Equal(t, 0, eng.Calls("transform"))
	assert.Equal(t, 1, eng.Calls("intersection"))
}

func TestOGCSource_ReprojectsCRS84(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(coverageBody))
	}))
	defer srv.Close()

	eng := geomtest.NewRectEngine()
	res, err := NewOGCSource(ogcapi.NewClient(), eng).Fetch(context.Background(), ogcIndicator(srv.URL), geomtest.Rect(0, 0, 10, 10), 25833)
	require.NoError(t, err)
	assert.Len(t, res.Values, 2)
	assert.Equal(t, 1, eng.Calls("transform"))
}

func TestOGCSource_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	res, err := NewOGCSource(ogcapi.NewClient(), geomtest.NewRectEngine()).
		Fetch(context.Background(), ogcIndicator(srv.URL), geomtest.Rect(0, 0, 10, 10), 25833)
	require.NoError(t, err)
	assert.Empty(t, res.Values)
	assert.Zero(t, res.Percent)
}

func TestOGCSource_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewOGCSource(ogcapi.NewClient(), geomtest.NewRectEngine()).
		Fetch(context.Background(), ogcIndicator(srv.URL), geomtest.Rect(0, 0, 10, 10), 25833)
	assert.Error(t, err)
}

func TestPostGISSource_Fetch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	qi := &model.QualityIndicator{
		Type:               model.IndicatorCoverage,
		QualityDimensionID: model.DimensionCoverage,
		ThresholdValues:    []string{"ikkeKartlagt"},
		PostGIS:            &model.TableSourceConfig{Table: "dekning.status", ValueColumn: "status"},
	}

	mock.ExpectQuery(`SELECT t\."status"::text AS value`).
		WithArgs(pgxmock.AnyArg(), 25833).
		WillReturnRows(pgxmock.NewRows([]string{"value", "area"}).
			AddRow("ikkeKartlagt", 12.5).
			AddRow("kartlagt", 87.5))

	res, err := NewPostGISSource(mock).Fetch(context.Background(), qi, geomtest.Rect(0, 0, 10, 10), 25833)
	require.NoError(t, err)
	assert.Equal(t, []string{"ikkeKartlagt", "kartlagt"}, res.Values)
	assert.InDelta(t, 12.5, res.Percent, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGISSource_RequiresColumn(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	qi := &model.QualityIndicator{PostGIS: &model.TableSourceConfig{Table: "dekning"}}
	_, err = NewPostGISSource(mock).Fetch(context.Background(), qi, geomtest.Rect(0, 0, 1, 1), 25833)
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	called := ""
	r := &Router{
		OGC:     sourceFunc(func() { called = "ogc" }),
		PostGIS: sourceFunc(func() { called = "postgis" }),
	}
	g := geomtest.Rect(0, 0, 1, 1)

	_, err := r.Fetch(context.Background(), &model.QualityIndicator{PostGIS: &model.TableSourceConfig{}}, g, 25833)
	require.NoError(t, err)
	assert.Equal(t, "postgis", called)

	_, err = r.Fetch(context.Background(), &model.QualityIndicator{OGCAPI: &model.FeatureSourceConfig{}}, g, 25833)
	require.NoError(t, err)
	assert.Equal(t, "ogc", called)

	_, err = (&Router{}).Fetch(context.Background(), &model.QualityIndicator{OGCAPI: &model.FeatureSourceConfig{}}, g, 25833)
	assert.Error(t, err)
}

func TestPercentOf(t *testing.T) {
	assert.Zero(t, percentOf(5, 0))
	assert.Zero(t, percentOf(0, 10))
	assert.Equal(t, 33.33, percentOf(1, 3))
	assert.Equal(t, 100.0, percentOf(11, 10))
}

type sourceFunc func()

func (f sourceFunc) Fetch(context.Context, *model.QualityIndicator, geom.T, int) (Result, error) {
	f()
	return Result{}, nil
}
