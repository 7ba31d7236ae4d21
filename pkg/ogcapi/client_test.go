package ogcapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dokanalyse/internal/resilience"
)

const itemsBody = `{
  "type": "FeatureCollection",
  "numberReturned": 2,
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "Point", "coordinates": [10, 20]}, "properties": {"navn": "A", "detaljer": {"kode": 7}}},
    {"type": "Feature", "id": 2, "geometry": null, "properties": {"navn": "B"}}
  ]
}`

func TestItems_BuildsFilterQuery(t *testing.T) {
	var got url.Values
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		got = r.URL.Query()
		assert.Equal(t, "application/geo+json", r.Header.Get("Accept"))
		assert.Equal(t, "dok-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Crs", "<http://www.opengis.net/def/crs/EPSG/0/25833>")
		_, _ = w.Write([]byte(itemsBody))
	}))
	defer srv.Close()

	c := NewClient(WithUserAgent("dok-test"), WithRateLimit(100))
	fc, err := c.Items(context.Background(), Query{
		BaseURL:    srv.URL + "/ogc/",
		Collection: "Flomsone",
		GeomField:  "omrade",
		WKT:        "POINT (1 2)",
		EPSG:       25833,
	})
	require.NoError(t, err)

	assert.Equal(t, "/ogc/collections/Flomsone/items", path)
	assert.Equal(t, "S_INTERSECTS(omrade,POINT (1 2))", got.Get("filter"))
	assert.Equal(t, "cql2-text", got.Get("filter-lang"))
	assert.Equal(t, "http://www.opengis.net/def/crs/EPSG/0/25833", got.Get("filter-crs"))
	assert.Equal(t, "http://www.opengis.net/def/crs/EPSG/0/25833", got.Get("crs"))
	assert.Equal(t, "10000", got.Get("limit"))

	require.Len(t, fc.Features, 2)
	assert.Equal(t, 25833, fc.EPSG)
	assert.True(t, fc.Features[0].HasGeometry())
	assert.False(t, fc.Features[1].HasGeometry())
	assert.Equal(t, "A", fc.Features[0].Properties["navn"])
}

func TestItems_DefaultsToCRS84(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	fc, err := NewClient().Items(context.Background(), Query{BaseURL: srv.URL, Collection: "c"})
	require.NoError(t, err)
	assert.Equal(t, 4326, fc.EPSG)
	assert.Empty(t, fc.Features)
}

func TestItems_RetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(itemsBody))
	}))
	defer srv.Close()

	c := NewClient(WithRetries(2))
	fc, err := c.Items(context.Background(), Query{BaseURL: srv.URL, Collection: "c"})
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestItems_ServerErrorMapsTo500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient().Items(context.Background(), Query{BaseURL: srv.URL, Collection: "c"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestItems_TimeoutMapsTo408(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	defer srv.Close()
	defer close(done)

	c := NewClient(WithTimeout(50 * time.Millisecond))
	_, err := c.Items(context.Background(), Query{BaseURL: srv.URL, Collection: "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, http.StatusRequestTimeout, StatusCode(err))
}

func TestItems_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	_, err := NewClient().Items(context.Background(), Query{BaseURL: srv.URL, Collection: "c"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
}

func TestItems_OpenBreakerShortCircuits(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	breakers := resilience.NewBreakers(resilience.NewBreakerConfig(1, 60))
	c := NewClient(WithBreakers(breakers))
	q := Query{BaseURL: srv.URL, Collection: "c"}

	_, err := c.Items(context.Background(), q)
	require.Error(t, err)
	_, err = c.Items(context.Background(), q)
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestItemsURL_Validation(t *testing.T) {
	_, _, err := itemsURL(Query{BaseURL: "not a url", Collection: "c"})
	assert.Error(t, err)

	_, _, err = itemsURL(Query{BaseURL: "https://ogc.example"})
	assert.Error(t, err)
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusCode(nil))
	assert.Equal(t, http.StatusRequestTimeout, StatusCode(context.DeadlineExceeded))

	upstream408 := eris.Wrap(&resilience.StatusError{URL: "https://ogc.example", StatusCode: http.StatusRequestTimeout}, "ogcapi: query x")
	assert.Equal(t, http.StatusRequestTimeout, StatusCode(upstream408))

	upstream503 := eris.Wrap(&resilience.StatusError{URL: "https://ogc.example", StatusCode: http.StatusServiceUnavailable}, "ogcapi: query x")
	assert.Equal(t, http.StatusInternalServerError, StatusCode(upstream503))
}

func TestFeature_RawGeometry(t *testing.T) {
	var fc FeatureCollection
	require.NoError(t, json.Unmarshal([]byte(itemsBody), &fc))
	assert.JSONEq(t, `{"type": "Point", "coordinates": [10, 20]}`, string(fc.Features[0].Geometry))
}

func TestParseContentCRS(t *testing.T) {
	assert.Equal(t, 25833, parseContentCRS("<http://www.opengis.net/def/crs/EPSG/0/25833>"))
	assert.Equal(t, 4326, parseContentCRS("<http://www.opengis.net/def/crs/OGC/1.3/CRS84>"))
	assert.Equal(t, 4326, parseContentCRS(""))
}
