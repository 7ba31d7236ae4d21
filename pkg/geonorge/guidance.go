package geonorge

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dokanalyse/internal/model"
)

// DefaultGuidanceURL lists every published guidance text.
const DefaultGuidanceURL = "https://register.geonorge.no/geolett/api/"

// guidanceRecord is the register wire format.
type guidanceRecord struct {
	ID               string `json:"id"`
	Title            string `json:"tittel"`
	ExplanatoryText  string `json:"forklarendeTekst"`
	DialogText       string `json:"dialogtekst"`
	PossibleMeasures string `json:"muligeTiltak"`
	Links            []struct {
		Href  string `json:"href"`
		Title string `json:"tittel"`
	} `json:"lenker"`
}

func (r guidanceRecord) toModel() *model.Guidance {
	g := &model.Guidance{
		ID:              r.ID,
		Title:           r.Title,
		ExplanatoryText: r.ExplanatoryText,
		DialogText:      r.DialogText,
		PossibleActions: r.PossibleMeasures,
		Links:           make([]model.GuidanceLink, 0, len(r.Links)),
	}
	for _, l := range r.Links {
		g.Links = append(g.Links, model.GuidanceLink{Href: l.Href, Title: l.Title})
	}
	return g
}

// GuidanceClient looks up guidance texts. IDs listed as local are served from
// a JSON file instead of the register.
type GuidanceClient struct {
	*base
	url       string
	localFile string
	localIDs  map[string]bool
}

// NewGuidanceClient creates a guidance client.
func NewGuidanceClient(url, localFile string, localIDs []string, opts ...Option) *GuidanceClient {
	if url == "" {
		url = DefaultGuidanceURL
	}
	ids := make(map[string]bool, len(localIDs))
	for _, id := range localIDs {
		ids[strings.ToLower(id)] = true
	}
	return &GuidanceClient{base: newBase(opts), url: url, localFile: localFile, localIDs: ids}
}

// Guidance returns the guidance text with the given ID, or nil when the ID is
// nil or unknown.
func (c *GuidanceClient) Guidance(ctx context.Context, id uuid.UUID) (*model.Guidance, error) {
	if id == uuid.Nil {
		return nil, nil
	}

	var (
		records []guidanceRecord
		err     error
	)
	if c.localIDs[id.String()] {
		records, err = c.local()
	} else {
		records, err = cached[[]guidanceRecord](ctx, c.base, "geolett:all", c.url)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "geonorge: guidance %s", id)
	}

	for _, r := range records {
		if strings.EqualFold(r.ID, id.String()) {
			return r.toModel(), nil
		}
	}
	return nil, nil
}

func (c *GuidanceClient) local() ([]guidanceRecord, error) {
	if c.localFile == "" {
		return nil, eris.New("geonorge: no local guidance file configured")
	}
	data, err := os.ReadFile(c.localFile)
	if err != nil {
		return nil, eris.Wrap(err, "geonorge: read local guidance")
	}
	var records []guidanceRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "geonorge: parse local guidance")
	}
	return records, nil
}
