package geonorge

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dokanalyse/internal/model"
)

// CodelistClient resolves named register codelists.
type CodelistClient struct {
	*base
	urls map[string]string
}

// NewCodelistClient creates a client for the named codelist URLs.
func NewCodelistClient(urls map[string]string, opts ...Option) *CodelistClient {
	return &CodelistClient{base: newBase(opts), urls: urls}
}

type registerPage struct {
	ContainedItems []struct {
		CodeValue string `json:"codevalue"`
		Label     string `json:"label"`
		Status    string `json:"status"`
	} `json:"containeditems"`
}

// Codelist returns the entries of the named codelist.
func (c *CodelistClient) Codelist(ctx context.Context, name string) ([]model.CodelistEntry, error) {
	url, ok := c.urls[name]
	if !ok {
		return nil, eris.Errorf("geonorge: unknown codelist %q", name)
	}

	page, err := cached[registerPage](ctx, c.base, "codelist:"+name, url)
	if err != nil {
		return nil, eris.Wrapf(err, "geonorge: codelist %s", name)
	}

	entries := make([]model.CodelistEntry, 0, len(page.ContainedItems))
	for _, item := range page.ContainedItems {
		entries = append(entries, model.CodelistEntry{Value: item.CodeValue, Label: item.Label})
	}
	return entries, nil
}
