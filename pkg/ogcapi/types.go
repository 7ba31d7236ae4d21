package ogcapi

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// FeatureCollection is a GeoJSON items page.
type FeatureCollection struct {
	Type           string    `json:"type"`
	Features       []Feature `json:"features"`
	NumberMatched  int       `json:"numberMatched,omitempty"`
	NumberReturned int       `json:"numberReturned,omitempty"`

	// EPSG is the CRS of the feature geometries, taken from the Content-Crs
	// response header. GeoJSON without the header is CRS84 (4326).
	EPSG int `json:"-"`
}

// Feature is a single GeoJSON feature. Geometry is kept raw so null
// geometries survive decoding.
type Feature struct {
	ID         json.RawMessage `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// HasGeometry reports whether the feature carries a non-null geometry.
func (f Feature) HasGeometry() bool {
	return len(f.Geometry) > 0 && string(f.Geometry) != "null"
}

// Query selects features of one collection intersecting a geometry.
type Query struct {
	BaseURL    string
	Collection string
	GeomField  string
	// WKT is the filter geometry in the EPSG coordinate system.
	WKT   string
	EPSG  int
	Limit int
}

var contentCRSPattern = regexp.MustCompile(`(?i)EPSG/\d+/(\d+)`)

func parseContentCRS(header string) int {
	m := contentCRSPattern.FindStringSubmatch(header)
	if m == nil {
		return 4326
	}
	epsg, err := strconv.Atoi(m[1])
	if err != nil {
		return 4326
	}
	return epsg
}

func crsURI(epsg int) string {
	return "http://www.opengis.net/def/crs/EPSG/0/" + strconv.Itoa(epsg)
}
