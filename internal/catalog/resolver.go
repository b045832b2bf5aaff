// Package catalog implements the Catalog Resolver: translating abstract
// ResourceRequests into concrete AssetLocators via a queryable, nested
// JSON catalog tree (language -> contents -> subcontents -> links).
package catalog

import (
	"sort"
	"sync/atomic"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

// Catalog wraps the parsed catalog tree and answers lookup/enumeration
// queries. It is immutable after Load; callers swap the whole value when
// the Asset Fetcher detects staleness (see fetcher.EnsureCatalog).
type Catalog struct {
	languages []model.CatalogEntry
	version   int64
}

var catalogVersionSeq int64

// Load wraps an already-decoded catalog array. Each Catalog gets a
// monotonically increasing version, used by EnumCache to key its cached
// enumeration results so a reload (see fetcher.EnsureCatalog) never serves
// entries computed from a superseded catalog.
func Load(languages []model.CatalogEntry) *Catalog {
	return &Catalog{
		languages: languages,
		version:   atomic.AddInt64(&catalogVersionSeq, 1),
	}
}

// templateNames names the four path templates of spec.md §4.1, index for
// index with templateSelectors below; init uses them in its panic message
// so a malformed template fails at init, not at request time.
var templateNames = [...]string{
	"scripture+book_code",
	"resource@language",
	"resource@sublanguage",
	"download/git fallback",
}

var templateSelectors = [...]string{
	`$[?code='LANG'].contents[?code='RT'].subcontents[?code='BC'].links[?format='usfm']`,
	`$[?code='LANG'].contents[?code='RT'].links[?format='zip']`,
	`$[?code='LANG'].contents[?code='ANY'].subcontents[?code='RT'].links[?format='zip']`,
	`$[?code='LANG'].contents[?code='RT'].subcontents[?code='BC'].links[?format='Download']`,
}

func init() {
	// Validate every template against the restricted grammar at package
	// init, per DESIGN NOTES §9: a dozen concrete queries, no generic
	// engine. A panic here means a template was mistyped during
	// development, not a runtime condition.
	for i, tpl := range templateSelectors {
		if _, err := ParseSelector(tpl); err != nil {
			panic("catalog: template " + templateNames[i] + " failed to parse: " + err.Error())
		}
	}
}

// Lookup resolves req to zero or more AssetLocators, trying each path
// template of spec.md §4.1 in order until one yields a non-empty result.
func (c *Catalog) Lookup(req model.ResourceRequest) ([]model.AssetLocator, error) {
	var locs []model.AssetLocator

	if req.BookCode != "" {
		locs = c.lookupScriptureBook(req)
	}
	if len(locs) == 0 {
		locs = c.lookupResourceAtLanguage(req)
	}
	if len(locs) == 0 {
		locs = c.lookupResourceAtSubLanguage(req)
	}
	if len(locs) == 0 && req.BookCode != "" {
		locs = c.lookupDownloadFallback(req)
	}

	if len(locs) == 0 {
		return nil, &errs.NotFoundInCatalogError{
			LangCode:     req.LangCode,
			ResourceType: req.ResourceType,
			BookCode:     req.BookCode,
		}
	}
	return locs, nil
}

// lookupScriptureBook implements template 1: language -> contents(code
// matches resource type) -> subcontents(code matches book_code) ->
// links(format=usfm).
func (c *Catalog) lookupScriptureBook(req model.ResourceRequest) []model.AssetLocator {
	var out []model.AssetLocator
	for _, lang := range c.languages {
		if lang.Code != req.LangCode {
			continue
		}
		for _, content := range lang.Contents {
			if content.Code != req.ResourceType {
				continue
			}
			for _, sub := range content.Subcontents {
				if sub.Code != req.BookCode {
					continue
				}
				out = append(out, linksByFormat(sub.Links, "usfm")...)
			}
		}
	}
	return out
}

// lookupResourceAtLanguage implements template 2: contents[code=rt].links[format=zip].
func (c *Catalog) lookupResourceAtLanguage(req model.ResourceRequest) []model.AssetLocator {
	var out []model.AssetLocator
	for _, lang := range c.languages {
		if lang.Code != req.LangCode {
			continue
		}
		for _, content := range lang.Contents {
			if content.Code != req.ResourceType {
				continue
			}
			out = append(out, linksByFormat(content.Links, "zip")...)
		}
	}
	return out
}

// lookupResourceAtSubLanguage implements template 3: contents[*].subcontents[code=rt].links[format=zip].
func (c *Catalog) lookupResourceAtSubLanguage(req model.ResourceRequest) []model.AssetLocator {
	var out []model.AssetLocator
	for _, lang := range c.languages {
		if lang.Code != req.LangCode {
			continue
		}
		for _, content := range lang.Contents {
			for _, sub := range content.Subcontents {
				if sub.Code != req.ResourceType {
					continue
				}
				out = append(out, linksByFormat(sub.Links, "zip")...)
			}
		}
	}
	return out
}

// lookupDownloadFallback implements template 4: contents[code=rt].subcontents[code=bc].links[format=Download].
func (c *Catalog) lookupDownloadFallback(req model.ResourceRequest) []model.AssetLocator {
	var out []model.AssetLocator
	for _, lang := range c.languages {
		if lang.Code != req.LangCode {
			continue
		}
		for _, content := range lang.Contents {
			if content.Code != req.ResourceType {
				continue
			}
			for _, sub := range content.Subcontents {
				if sub.Code != req.BookCode {
					continue
				}
				out = append(out, linksByFormat(sub.Links, "Download")...)
			}
		}
	}
	return out
}

// linksByFormat returns the AssetLocator for the first link matching
// format, in document order — the deterministic tie-break DESIGN NOTES
// §9 picks for "multiple URLs for one selector".
func linksByFormat(links []model.Link, format string) []model.AssetLocator {
	for _, l := range links {
		if l.Format == format {
			return []model.AssetLocator{{URL: l.URL, FileFormat: model.DetectFileFormat(l.URL)}}
		}
	}
	return nil
}

// Languages returns deduplicated, sorted language codes.
func (c *Catalog) Languages() []string {
	set := map[string]struct{}{}
	for _, lang := range c.languages {
		set[lang.Code] = struct{}{}
	}
	return sortedKeys(set)
}

// ResourceTypes returns deduplicated, sorted resource-type codes found at
// either the language-level contents or the sub-language-level
// subcontents of any language.
func (c *Catalog) ResourceTypes() []string {
	set := map[string]struct{}{}
	for _, lang := range c.languages {
		for _, content := range lang.Contents {
			set[content.Code] = struct{}{}
			for _, sub := range content.Subcontents {
				set[sub.Code] = struct{}{}
			}
		}
	}
	return sortedKeys(set)
}

// BookCodes returns deduplicated, sorted book codes found as subcontent
// codes anywhere in the catalog.
func (c *Catalog) BookCodes() []string {
	set := map[string]struct{}{}
	for _, lang := range c.languages {
		for _, content := range lang.Contents {
			for _, sub := range content.Subcontents {
				if looksLikeBookCode(sub.Code) {
					set[sub.Code] = struct{}{}
				}
			}
		}
	}
	return sortedKeys(set)
}

// knownResourceTypeCodes are the short resource-type codes (see
// model.KindForResourceType) that can appear nested as subcontents under a
// language's catch-all content bucket (template 3) — the same shape
// real book codes have, so looksLikeBookCode must exclude them by name
// rather than by length alone.
var knownResourceTypeCodes = map[string]struct{}{
	"ulb": {}, "udb": {}, "reg": {}, "f10": {}, "ult": {}, "ust": {},
	"tn": {}, "tq": {}, "tw": {}, "ta": {},
}

// looksLikeBookCode filters out subcontent codes that are really resource
// types nested under a language's catch-all content bucket (template 3),
// which share the same `subcontents[].code` shape as real book codes.
func looksLikeBookCode(code string) bool {
	if len(code) < 2 || len(code) > 4 {
		return false
	}
	_, isResourceType := knownResourceTypeCodes[code]
	return !isResourceType
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
