package catalog

import (
	"testing"

	"github.com/scriptoria/weaver/internal/model"
)

func sampleCatalog() *Catalog {
	return Load([]model.CatalogEntry{
		{
			Code: "en",
			Contents: []model.CatalogEntry{
				{
					Code: "ulb-wa",
					Subcontents: []model.CatalogEntry{
						{
							Code: "col",
							Links: []model.Link{
								{Format: "usfm", URL: "https://example.org/en/col.usfm"},
							},
						},
					},
				},
				{
					Code: "tn-wa",
					Links: []model.Link{
						{Format: "zip", URL: "https://example.org/en/tn-wa.zip"},
					},
				},
			},
		},
		{
			Code: "fr",
			Contents: []model.CatalogEntry{
				{
					Code: "bundle",
					Subcontents: []model.CatalogEntry{
						{
							Code: "f10",
							Links: []model.Link{
								{Format: "zip", URL: "https://example.org/fr/f10.zip"},
							},
						},
						{
							Code: "col",
							Links: []model.Link{
								{Format: "Download", URL: "https://example.org/fr/col.git"},
							},
						},
					},
				},
			},
		},
	})
}

func TestLookupScriptureBook(t *testing.T) {
	c := sampleCatalog()
	locs, err := c.Lookup(model.ResourceRequest{LangCode: "en", ResourceType: "ulb-wa", BookCode: "col"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 1 || locs[0].FileFormat != model.FormatUSFM {
		t.Fatalf("got %+v", locs)
	}
}

func TestLookupResourceAtLanguage(t *testing.T) {
	c := sampleCatalog()
	locs, err := c.Lookup(model.ResourceRequest{LangCode: "en", ResourceType: "tn-wa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 1 || locs[0].FileFormat != model.FormatZip {
		t.Fatalf("got %+v", locs)
	}
}

func TestLookupResourceAtSubLanguage(t *testing.T) {
	c := sampleCatalog()
	locs, err := c.Lookup(model.ResourceRequest{LangCode: "fr", ResourceType: "f10", BookCode: "col"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 1 || locs[0].FileFormat != model.FormatZip {
		t.Fatalf("got %+v", locs)
	}
}

func TestLookupDownloadFallback(t *testing.T) {
	c := sampleCatalog()
	locs, err := c.Lookup(model.ResourceRequest{LangCode: "fr", ResourceType: "bundle", BookCode: "col"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(locs) != 1 || locs[0].FileFormat != model.FormatGit {
		t.Fatalf("got %+v", locs)
	}
}

func TestLookupNotFound(t *testing.T) {
	c := sampleCatalog()
	_, err := c.Lookup(model.ResourceRequest{LangCode: "llx", ResourceType: "ulb", BookCode: "col"})
	if err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestEnumerations(t *testing.T) {
	c := sampleCatalog()
	langs := c.Languages()
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "fr" {
		t.Fatalf("got %v", langs)
	}
	rts := c.ResourceTypes()
	found := map[string]bool{}
	for _, rt := range rts {
		found[rt] = true
	}
	for _, want := range []string{"ulb-wa", "tn-wa", "bundle", "f10", "col"} {
		if !found[want] {
			t.Fatalf("missing resource type %s in %v", want, rts)
		}
	}
}

func TestParseSelectorTemplates(t *testing.T) {
	for _, tpl := range templateSelectors {
		sel, err := ParseSelector(tpl)
		if err != nil {
			t.Fatalf("template %q failed to parse: %v", tpl, err)
		}
		if sel.String() == "" {
			t.Fatalf("template %q rendered empty", tpl)
		}
	}
}
