package geonorge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dokanalyse/internal/model"
)

// DefaultCatalogURL is the public metadata catalog.
const DefaultCatalogURL = "https://kartkatalog.geonorge.no"

// CatalogClient resolves dataset metadata from the catalog.
type CatalogClient struct {
	*base
	baseURL string
}

// NewCatalogClient creates a catalog client rooted at baseURL.
func NewCatalogClient(baseURL string, opts ...Option) *CatalogClient {
	if baseURL == "" {
		baseURL = DefaultCatalogURL
	}
	return &CatalogClient{base: newBase(opts), baseURL: strings.TrimRight(baseURL, "/")}
}

type catalogRecord struct {
	UUID         string `json:"Uuid"`
	Title        string `json:"Title"`
	Abstract     string `json:"Abstract"`
	DateUpdated  string `json:"DateUpdated"`
	ContactOwner *struct {
		Organization string `json:"Organization"`
	} `json:"ContactOwner"`
}

// Metadata returns the catalog entry for a dataset.
func (c *CatalogClient) Metadata(ctx context.Context, datasetID uuid.UUID) (*model.Metadata, error) {
	rec, err := cached[catalogRecord](ctx, c.base, "catalog:"+datasetID.String(), c.baseURL+"/api/getdata/"+datasetID.String())
	if err != nil {
		return nil, eris.Wrapf(err, "geonorge: metadata %s", datasetID)
	}
	if rec.UUID == "" && rec.Title == "" {
		return nil, eris.Errorf("geonorge: no catalog entry for %s", datasetID)
	}

	md := &model.Metadata{
		DatasetID:             datasetID,
		Title:                 rec.Title,
		Description:           rec.Abstract,
		DatasetDescriptionURI: c.baseURL + "/metadata/" + datasetID.String(),
	}
	if rec.ContactOwner != nil {
		md.Owner = rec.ContactOwner.Organization
	}
	if updated, ok := parseCatalogTime(rec.DateUpdated); ok {
		md.Updated = &updated
	}
	return md, nil
}

func parseCatalogTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
