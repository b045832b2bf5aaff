package assemble

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"sort"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/scriptoria/weaver/internal/model"
)

var markdownRenderer = goldmark.New()

// markdownToHTML converts one already link-rewritten markdown body (a Doc
// or HelpEntry) to HTML. Goldmark handles escaping of any literal HTML the
// source markdown happens to contain, so callers never need to pre-escape.
func markdownToHTML(body string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdownRenderer.Convert([]byte(body), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

var (
	chapterMarkerRe = regexp.MustCompile(`\\c[ \x{00A0}]+\d+`)
	verseMarkerRe   = regexp.MustCompile(`\\v[ \x{00A0}]+(\d+)(?:-(\d+))?`)
)

// scriptureChunkHTML renders one scripture Chunk's raw markup. Every verse
// number is emitted by exactly one <sup> tag in a single left-to-right
// pass — the teacher's repeating-verse defect (a verse number wrapped by
// several nested, duplicated sup/b tags) cannot occur here because there
// is only ever one write per regexp match.
func scriptureChunkHTML(chunk *model.Chunk) template.HTML {
	raw := chapterMarkerRe.ReplaceAllString(chunk.RawMarkup, "")

	var b strings.Builder
	last := 0
	for _, loc := range verseMarkerRe.FindAllStringSubmatchIndex(raw, -1) {
		if loc[0] > last {
			b.WriteString(html.EscapeString(strings.TrimSpace(raw[last:loc[0]])))
			b.WriteString(" ")
		}
		label := raw[loc[2]:loc[3]]
		if loc[4] != -1 {
			label += "-" + raw[loc[4]:loc[5]]
		}
		b.WriteString(`<sup class="verse-num">`)
		b.WriteString(label)
		b.WriteString(`</sup> `)
		last = loc[1]
	}
	if last < len(raw) {
		b.WriteString(html.EscapeString(strings.TrimSpace(raw[last:])))
	}
	return template.HTML(b.String())
}

// cell is one resource's content for a single granule (book, chapter, or
// verse boundary).
type cell struct {
	ResourceType string
	Kind         model.ResourceKind
	AnchorID     string
	HTML         template.HTML
}

// renderGranule lays out cells per spec.md §4.7: with TWO_COLUMN_SL_SR(_COMPACT)
// and exactly two scripture cells, they render side-by-side in a
// two-column flex block;
// every other combination (including the "only one scripture resource"
// degrade case) falls back to single-column flow. Non-scripture cells
// always flow full-width, after the scripture block.
func renderGranule(anchorID string, cells []cell, layout model.Layout) template.HTML {
	var scripture, other []cell
	for _, c := range cells {
		if c.Kind == model.KindScripture {
			scripture = append(scripture, c)
		} else {
			other = append(other, c)
		}
	}

	compact := layout == model.OneColumnCompact || layout == model.TwoColumnSLSRCompact
	twoColumn := (layout == model.TwoColumnSLSR || layout == model.TwoColumnSLSRCompact) && len(scripture) == 2

	var b strings.Builder
	class := "granule-wrap"
	if compact {
		class += " compact"
	}
	fmt.Fprintf(&b, `<div class="%s" id="%s">`, class, anchorID)

	if twoColumn {
		b.WriteString(`<div class="two-column">`)
		for _, c := range scripture {
			fmt.Fprintf(&b, `<div class="column" id="%s">%s</div>`, c.AnchorID, c.HTML)
		}
		b.WriteString(`</div>`)
	} else {
		for _, c := range scripture {
			fmt.Fprintf(&b, `<div class="scripture" id="%s">%s</div>`, c.AnchorID, c.HTML)
		}
	}

	for _, c := range other {
		fmt.Fprintf(&b, `<div class="helps %s" id="%s">%s</div>`, c.ResourceType, c.AnchorID, c.HTML)
	}
	b.WriteString(`</div>`)
	return template.HTML(b.String())
}

// renderHelpsAppendix renders the translation-words and translation-academy
// entries the Link Rewriter resolved transitively while rewriting every
// resource's text (Resource.ResolvedHelps), so the #<kind>-<category-path>
// anchors it wrote into the body resolve to something — mirroring the
// original's "Translation Words" / "Translation Academy" appendix
// (resource.py's _get_tw_markdown, which walks _resource_data sorted by
// lowercased title and emits `<a id="...">` + body for each).
func renderHelpsAppendix(resources []*model.Resource) (template.HTML, error) {
	merged := map[string]model.HelpEntry{}
	for _, r := range resources {
		for _, e := range r.ResolvedHelps {
			merged[e.AnchorID] = e
		}
	}
	if len(merged) == 0 {
		return "", nil
	}

	words := make([]model.HelpEntry, 0, len(merged))
	academy := make([]model.HelpEntry, 0, len(merged))
	for _, e := range merged {
		switch e.Kind {
		case model.KindAcademy:
			academy = append(academy, e)
		default:
			words = append(words, e)
		}
	}

	var b strings.Builder
	wordsHTML, err := renderHelpsSection("Translation Words", words)
	if err != nil {
		return "", err
	}
	b.WriteString(string(wordsHTML))

	academyHTML, err := renderHelpsSection("Translation Academy", academy)
	if err != nil {
		return "", err
	}
	b.WriteString(string(academyHTML))

	return template.HTML(b.String()), nil
}

// renderHelpsSection renders one appendix section's entries, sorted by
// lowercased title, each anchored by its AnchorID.
func renderHelpsSection(title string, entries []model.HelpEntry) (template.HTML, error) {
	if len(entries) == 0 {
		return "", nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Title) < strings.ToLower(entries[j].Title)
	})

	var b strings.Builder
	fmt.Fprintf(&b, `<section class="appendix"><h2>%s</h2>`, html.EscapeString(title))
	for _, e := range entries {
		body, err := markdownToHTML(e.Body)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `<div class="helps-entry" id="%s"><h3>%s</h3>%s</div>`,
			e.AnchorID, html.EscapeString(e.Title), body)
	}
	b.WriteString(`</section>`)
	return template.HTML(b.String()), nil
}
