// Package assemble implements the Assembler: combining an ordered list of
// populated Resources and an AssemblyConfig into one interleaved HTML
// document, per spec.md §4.7.
package assemble

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

// Assembler turns surviving Resources into the final Document. It is
// stateless and safe to reuse across requests.
type Assembler struct{}

// New returns an Assembler.
func New() *Assembler {
	return &Assembler{}
}

// Assemble is the sole entry point: resources must already be in the
// caller's request order (the Orchestrator's job, not this package's —
// see spec.md §4.7, "this order is the sole determinant of presentation
// order").
func (a *Assembler) Assemble(resources []*model.Resource, cfg model.AssemblyConfig, unfound []model.FailedRequest) (*model.Document, error) {
	if cfg.ChunkSize == model.ChunkVerse && !anyScripture(resources) {
		return nil, &errs.AssemblerError{Message: "VERSE chunk size requested with no scripture resources present"}
	}

	groups := groupResources(resources, cfg.Strategy)

	var body strings.Builder
	toc := make([]tocEntry, 0, len(groups))
	for _, g := range groups {
		frag, err := renderGroupBody(g, cfg)
		if err != nil {
			return nil, err
		}
		toc = append(toc, tocEntry{Title: g.bookTitle, AnchorID: g.bookID})
		fmt.Fprintf(&body, `<section class="book" id="%s"><h2>%s</h2>%s</section>`,
			g.bookID, html.EscapeString(g.bookTitle), frag)
	}

	appendix, err := renderHelpsAppendix(resources)
	if err != nil {
		return nil, err
	}
	body.WriteString(string(appendix))

	docHTML, err := renderDocument(documentView{
		Title:    "Assembled Translation Resource Document",
		Requests: requestsOf(resources),
		Unfound:  unfound,
		TOC:      toc,
		BodyHTML: template.HTML(body.String()),
	})
	if err != nil {
		return nil, err
	}

	return &model.Document{
		HTML:    []byte(docHTML),
		Formats: map[model.OutputFormat]string{},
		Unfound: unfound,
	}, nil
}

func anyScripture(resources []*model.Resource) bool {
	for _, r := range resources {
		if r.Kind == model.KindScripture {
			return true
		}
	}
	return false
}

func requestsOf(resources []*model.Resource) []model.ResourceRequest {
	out := make([]model.ResourceRequest, len(resources))
	for i, r := range resources {
		out[i] = r.Request
	}
	return out
}

// renderGroupBody dispatches to the chunk-size-specific renderer for one
// outer-order group.
func renderGroupBody(g group, cfg model.AssemblyConfig) (template.HTML, error) {
	switch cfg.ChunkSize {
	case model.ChunkBook:
		return renderByBook(g, cfg.Layout)
	case model.ChunkVerse:
		return renderByVerse(g, cfg.Layout)
	default: // model.ChunkChapter
		return renderByChapter(g, cfg.Layout)
	}
}

// renderByBook concatenates each resource's entire content into a single
// granule per spec.md §4.7 ("BOOK: concatenate entire per-resource content
// in group order").
func renderByBook(g group, layout model.Layout) (template.HTML, error) {
	var cells []cell
	for _, r := range g.resources {
		switch {
		case r.Kind == model.KindScripture && r.Scripture != nil:
			cells = append(cells, cell{
				ResourceType: r.Request.ResourceType,
				Kind:         r.Kind,
				AnchorID:     bookAnchor(r.Request.ResourceType, r.BookID),
				HTML:         fullScriptureHTML(r.Scripture),
			})
		case r.Helps != nil:
			h, err := fullHelpsHTML(r.Helps)
			if err != nil {
				return "", err
			}
			cells = append(cells, cell{
				ResourceType: r.Request.ResourceType,
				Kind:         r.Kind,
				AnchorID:     bookAnchor(r.Request.ResourceType, r.BookID),
				HTML:         h,
			})
		}
	}
	return renderGranule(g.bookID, cells, layout), nil
}

// renderByChapter emits, for each chapter present anywhere in the group,
// every resource's content for that chapter in turn, then the next
// chapter — spec.md §4.7's CHAPTER rule.
func renderByChapter(g group, layout model.Layout) (template.HTML, error) {
	var b strings.Builder
	for _, ch := range g.unionChapterNumbers() {
		var cells []cell
		for _, r := range g.resources {
			switch {
			case r.Kind == model.KindScripture && r.Scripture != nil:
				block, ok := r.Scripture.Chapters[ch]
				if !ok {
					continue // resource has no content at this chapter: contributes nothing
				}
				var hb strings.Builder
				for _, chunk := range block.Chunks {
					hb.WriteString(string(scriptureChunkHTML(chunk)))
					hb.WriteString(" ")
				}
				cells = append(cells, cell{
					ResourceType: r.Request.ResourceType,
					Kind:         r.Kind,
					AnchorID:     chapterAnchor(r.Request.ResourceType, r.BookID, ch),
					HTML:         template.HTML(hb.String()),
				})
			case r.Helps != nil:
				chHelps, ok := r.Helps.Chapters[ch]
				if !ok {
					continue
				}
				h, err := chapterHelpsHTML(chHelps)
				if err != nil {
					return "", err
				}
				cells = append(cells, cell{
					ResourceType: r.Request.ResourceType,
					Kind:         r.Kind,
					AnchorID:     chapterAnchor(r.Request.ResourceType, r.BookID, ch),
					HTML:         h,
				})
			}
		}
		fmt.Fprintf(&b, `<div class="chapter" id="%s-%d"><h3>Chapter %d</h3>%s</div>`,
			g.bookID, ch, ch, renderGranule(fmt.Sprintf("%s-%d", g.bookID, ch), cells, layout))
	}
	return template.HTML(b.String()), nil
}

// renderByVerse emits, for each chapter, every resource's chunk at each
// firstVerse boundary present in the group's scripture trees — spec.md
// §4.7's VERSE rule. A resource lacking a chunk at a boundary contributes
// nothing; this is not an error.
func renderByVerse(g group, layout model.Layout) (template.HTML, error) {
	var b strings.Builder
	for _, ch := range g.unionChapterNumbers() {
		boundaries := g.unionFirstVerses(ch)
		if len(boundaries) == 0 {
			continue
		}
		fmt.Fprintf(&b, `<div class="chapter" id="%s-%d"><h3>Chapter %d</h3>`, g.bookID, ch, ch)
		for _, fv := range boundaries {
			var cells []cell
			for _, r := range g.scriptureResources() {
				block, ok := r.Scripture.Chapters[ch]
				if !ok {
					continue
				}
				chunk, ok := block.ByFirstVerse[fv]
				if !ok {
					continue
				}
				cells = append(cells, cell{
					ResourceType: r.Request.ResourceType,
					Kind:         r.Kind,
					AnchorID:     verseAnchor(r.Request.ResourceType, r.BookID, ch, fv),
					HTML:         scriptureChunkHTML(chunk),
				})
			}
			for _, r := range g.resources {
				if r.Kind == model.KindScripture || r.Helps == nil {
					continue
				}
				chHelps, ok := r.Helps.Chapters[ch]
				if !ok {
					continue
				}
				doc, ok := chHelps.PerVerse[fv]
				if !ok {
					continue
				}
				h, err := markdownToHTML(doc.Body)
				if err != nil {
					return "", err
				}
				cells = append(cells, cell{
					ResourceType: r.Request.ResourceType,
					Kind:         r.Kind,
					AnchorID:     doc.AnchorID,
					HTML:         h,
				})
			}
			if len(cells) == 0 {
				continue
			}
			b.WriteString(string(renderGranule(verseAnchor("", g.bookID, ch, fv), cells, layout)))
		}
		b.WriteString(`</div>`)
	}
	return template.HTML(b.String()), nil
}

func bookAnchor(resourceType, bookID string) string {
	return resourceType + "-" + bookID
}

func chapterAnchor(resourceType, bookID string, ch int) string {
	return resourceType + "-" + bookID + "-" + strconv.Itoa(ch)
}

func verseAnchor(resourceType, bookID string, ch, fv int) string {
	return strings.TrimPrefix(resourceType+"-"+bookID+"-"+strconv.Itoa(ch)+"-"+strconv.Itoa(fv), "-")
}

// fullScriptureHTML renders every chapter of tree, in order, for the BOOK
// chunk size.
func fullScriptureHTML(tree *model.ScriptureTree) template.HTML {
	var b strings.Builder
	for _, ch := range tree.SortedChapterNumbers() {
		fmt.Fprintf(&b, `<h4>Chapter %d</h4>`, ch)
		for _, chunk := range tree.Chapters[ch].Chunks {
			b.WriteString(string(scriptureChunkHTML(chunk)))
			b.WriteString(" ")
		}
	}
	return template.HTML(b.String())
}

// fullHelpsHTML renders a helps resource's book intro and every chapter's
// intro/per-verse docs, in order, for the BOOK chunk size.
func fullHelpsHTML(tree *model.HelpsTree) (template.HTML, error) {
	var b strings.Builder
	if tree.BookIntro != nil {
		h, err := markdownToHTML(tree.BookIntro.Body)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `<div id="%s">%s</div>`, tree.BookIntro.AnchorID, h)
	}
	for _, ch := range tree.SortedChapterNumbers() {
		h, err := chapterHelpsHTML(tree.Chapters[ch])
		if err != nil {
			return "", err
		}
		b.WriteString(string(h))
	}
	return template.HTML(b.String()), nil
}

// chapterHelpsHTML renders one chapter's intro (if any) followed by its
// per-verse docs in verse order.
func chapterHelpsHTML(ch *model.ChapterHelps) (template.HTML, error) {
	var b strings.Builder
	if ch.Intro != nil {
		h, err := markdownToHTML(ch.Intro.Body)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `<div id="%s">%s</div>`, ch.Intro.AnchorID, h)
	}
	verses := make([]int, 0, len(ch.PerVerse))
	for v := range ch.PerVerse {
		verses = append(verses, v)
	}
	sort.Ints(verses)
	for _, v := range verses {
		doc := ch.PerVerse[v]
		h, err := markdownToHTML(doc.Body)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `<div id="%s">%s</div>`, doc.AnchorID, h)
	}
	return template.HTML(b.String()), nil
}

// tocEntry is one top-of-document table-of-contents row.
type tocEntry struct {
	Title    string
	AnchorID string
}

// documentView is the root data passed to the document template.
type documentView struct {
	Title    string
	Requests []model.ResourceRequest
	Unfound  []model.FailedRequest
	TOC      []tocEntry
	BodyHTML template.HTML
}

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
  body { font-family: Georgia, serif; max-width: 900px; margin: 0 auto; padding: 20px; }
  h1 { text-align: center; }
  .toc ul { list-style: none; padding-left: 0; }
  .granule-wrap { margin: 1em 0; }
  .granule-wrap.compact { margin: 0.25em 0; }
  .two-column { display: flex; gap: 2em; }
  .two-column .column { flex: 1; }
  .verse-num { font-weight: bold; color: #666; margin-right: 0.25em; }
  .helps { background: #f7f7f5; padding: 0.5em 1em; margin-top: 0.5em; }
  .cover .unfound { color: #a33; }
</style>
</head>
<body>
<section class="cover">
  <h1>{{.Title}}</h1>
  <h2>Requested resources</h2>
  <ul>
  {{range .Requests}}<li>{{.LangCode}} / {{.ResourceType}} / {{.BookCode}}</li>
  {{end}}
  </ul>
  {{if .Unfound}}
  <h2 class="unfound">Unfulfilled requests</h2>
  <ul class="unfound">
  {{range .Unfound}}<li>{{.Request.LangCode}} / {{.Request.ResourceType}} / {{.Request.BookCode}} — {{.Reason}}</li>
  {{end}}
  </ul>
  {{end}}
</section>
<nav class="toc">
  <h2>Contents</h2>
  <ul>
  {{range .TOC}}<li><a href="#{{.AnchorID}}">{{.Title}}</a></li>
  {{end}}
  </ul>
</nav>
<main>
{{.BodyHTML}}
</main>
</body>
</html>
`))

func renderDocument(v documentView) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render document template: %w", err)
	}
	return buf.String(), nil
}
