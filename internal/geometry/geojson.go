package geometry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

var epsgPattern = regexp.MustCompile(`(?i)EPSG:{1,2}(\d+)$|/EPSG/\d+/(\d+)$`)

type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

// ParseEPSG extracts the EPSG code from a CRS name such as
// "urn:ogc:def:crs:EPSG::25833", "EPSG:4326" or an OGC CRS URI.
func ParseEPSG(name string) (int, error) {
	m := epsgPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, eris.Errorf("geometry: unrecognized crs name %q", name)
	}
	code := m[1]
	if code == "" {
		code = m[2]
	}
	epsg, err := strconv.Atoi(code)
	if err != nil {
		return 0, eris.Wrapf(err, "geometry: parse epsg in %q", name)
	}
	return epsg, nil
}

// CRSName returns the URN form used in GeoJSON crs members.
func CRSName(epsg int) string {
	return fmt.Sprintf("urn:ogc:def:crs:EPSG::%d", epsg)
}

// DecodeGeoJSON parses a GeoJSON geometry object. The EPSG code comes from the
// optional crs member and defaults to WGS84. The returned geometry carries it as SRID.
func DecodeGeoJSON(data []byte) (geom.T, int, error) {
	var envelope struct {
		CRS *namedCRS `json:"crs"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, 0, eris.Wrap(err, "geometry: parse geojson")
	}

	epsg := EPSGWGS84
	if envelope.CRS != nil && envelope.CRS.Properties.Name != "" {
		parsed, err := ParseEPSG(envelope.CRS.Properties.Name)
		if err != nil {
			return nil, 0, err
		}
		epsg = parsed
	}

	var g geom.T
	if err := geojson.Unmarshal(data, &g); err != nil {
		return nil, 0, eris.Wrap(err, "geometry: decode geojson geometry")
	}
	if g == nil {
		return nil, 0, eris.New("geometry: geojson geometry is empty")
	}

	return WithSRID(g, epsg), epsg, nil
}

// EncodeGeoJSON renders g as a GeoJSON geometry object with a named crs member.
func EncodeGeoJSON(g geom.T, epsg int) (map[string]any, error) {
	data, err := geojson.Marshal(g)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode geojson")
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, eris.Wrap(err, "geometry: reparse geojson")
	}
	AddCRS(obj, epsg)

	return obj, nil
}

// AddCRS sets the named crs member on a decoded GeoJSON object.
func AddCRS(obj map[string]any, epsg int) {
	obj["crs"] = map[string]any{
		"type": "name",
		"properties": map[string]any{
			"name": CRSName(epsg),
		},
	}
}

// WKT renders g as well-known text, used in CQL2 spatial filters.
func WKT(g geom.T) (string, error) {
	s, err := wkt.Marshal(g)
	if err != nil {
		return "", eris.Wrap(err, "geometry: encode wkt")
	}
	return s, nil
}

// DecodeFeatureGeometry decodes the geometry member of a GeoJSON feature whose
// coordinates are in srcEPSG. A null geometry decodes to nil without error.
func DecodeFeatureGeometry(raw json.RawMessage, srcEPSG int) (geom.T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var g geom.T
	if err := geojson.Unmarshal(raw, &g); err != nil {
		return nil, eris.Wrap(err, "geometry: decode feature geometry")
	}
	if g == nil {
		return nil, nil
	}
	return WithSRID(g, srcEPSG), nil
}
