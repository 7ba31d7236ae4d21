// Package raster builds WMS references for the layers that produced a hit.
package raster

import (
	"net/url"
	"strings"
)

const wmsVersion = "1.3.0"

// ResultRef returns a GetMap request for the hit layers, without bbox and size
// so the caller can pick its own map extent. Empty when the dataset has no WMS.
func ResultRef(wmsURL string, layers []string) string {
	if wmsURL == "" || len(layers) == 0 {
		return ""
	}
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("version", wmsVersion)
	q.Set("request", "GetMap")
	q.Set("layers", strings.Join(layers, ","))
	q.Set("styles", "")
	q.Set("format", "image/png")
	q.Set("transparent", "true")
	return withQuery(wmsURL, q)
}

// CartographyRef returns the legend graphic of the first hit layer.
func CartographyRef(wmsURL string, layers []string) string {
	if wmsURL == "" || len(layers) == 0 {
		return ""
	}
	q := url.Values{}
	q.Set("service", "WMS")
	q.Set("version", wmsVersion)
	q.Set("request", "GetLegendGraphic")
	q.Set("layer", layers[0])
	q.Set("format", "image/png")
	q.Set("sld_version", "1.1.0")
	return withQuery(wmsURL, q)
}

// withQuery merges q into the base URL, keeping parameters already present
// (for example a map= selector on MapServer endpoints).
func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	existing := u.Query()
	for k, v := range q {
		if existing.Get(k) == "" {
			existing[k] = v
		}
	}
	u.RawQuery = existing.Encode()
	return u.String()
}
