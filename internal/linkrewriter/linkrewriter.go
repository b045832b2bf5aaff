package linkrewriter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scriptoria/weaver/internal/helps"
	"github.com/scriptoria/weaver/internal/layout"
	"github.com/scriptoria/weaver/internal/model"
)

// Locator tells the rewriter where a referenced resource already lives on
// disk, so a translation-notes file can pull in a translation-words entry
// (and that entry, in turn, a translation-academy entry) without the
// rewriter knowing anything about acquisition itself.
type Locator interface {
	// Dir returns the already-acquired resource directory for
	// (langCode, resourceType), or ok=false if that resource was never
	// requested or fetched for this document.
	Dir(langCode, resourceType string) (dir string, ok bool)
}

// Canonical external URL templates, per DESIGN NOTES §9: these are data,
// not branching logic, mirroring the teacher's static bookNames table.
const (
	obsStoryURLTemplate   = "https://git.door43.org/unfoldingword/en_obs/src/branch/master/content/%s.md#%s"
	scriptureURLTemplate  = "https://www.bible.com/bible/en/%s.%s.%s"
	sourceRepoURLTemplate = "https://git.door43.org/%s/%s"
)

// tokenFormRe matches all three rc:// forms spec.md §4.6 names, in
// preference order: a markdown link whose target is rc:// (groups 1, 2), a
// double-bracket token (group 3), or a bare token (whole match, no group).
var tokenFormRe = regexp.MustCompile(`\[([^\]]*)\]\((rc://[^)]+)\)|\[\[(rc://[^\]]+)\]\]|rc://[^\s\]\)]+`)

// linkOrURLRe matches an existing markdown link as a whole (left
// untouched) or a bare http(s)/ftp URL (to be linkified), whichever starts
// earlier — this is what keeps linkifyBareURLs from ever touching a URL
// that is already the text or target of a markdown link.
var linkOrURLRe = regexp.MustCompile(`\[[^\]]*\]\([^)]*\)|(https?|ftp)://[^\s\]\)]+`)

var tokenRe = regexp.MustCompile(`^rc://([^/]+)/([^/]+)/(.+)$`)

// Rewriter rewrites rc:// cross-references in resource text, transitively
// resolving translation-words/translation-academy tokens into a shared
// Arena.
type Rewriter struct {
	Arena   *Arena
	Locator Locator
}

// New returns a Rewriter sharing arena across every resource of one
// document build, so a translation-words entry referenced from two
// different books is only ever fetched and rewritten once.
func New(arena *Arena, locator Locator) *Rewriter {
	return &Rewriter{Arena: arena, Locator: locator}
}

// Rewrite rewrites every rc:// and bare URL reference in text. Broken
// references are recorded into res.BadLinks and left as literal text,
// never raised as an error. Resolving a translation-words/academy token
// also populates res.ResolvedRefs and res.ResolvedHelps with whatever was
// reached transitively. Rewrite is idempotent: running it again on its own
// output reproduces that output unchanged, since no rc:// token or
// un-linked bare URL survives a successful pass.
func (rw *Rewriter) Rewrite(res *model.Resource, text string) string {
	if res.ResolvedRefs == nil {
		res.ResolvedRefs = map[string]int{}
	}

	// All three rc:// forms are rewritten in a single scan: ReplaceAllStringFunc
	// never revisits text it already produced, so (unlike three sequential
	// passes) a title or fallback that happens to contain "rc://" can never
	// be picked up and resolved a second time.
	text = tokenFormRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := tokenFormRe.FindStringSubmatch(m)
		switch {
		case sub[2] != "": // `[text](rc://...)`
			linkText, token := sub[1], sub[2]
			target, _, ok := rw.resolve(res, token)
			if !ok {
				return m
			}
			return "[" + linkText + "](" + target + ")"

		case sub[3] != "": // `[[rc://...]]`
			target, title, ok := rw.resolve(res, sub[3])
			if !ok {
				return m
			}
			return "[" + title + "](" + target + ")"

		default: // bare `rc://...`
			target, title, ok := rw.resolve(res, m)
			if !ok {
				return m
			}
			return "[" + title + "](" + target + ")"
		}
	})

	res.ResolvedHelps = rw.Arena.Entries()
	return linkifyBareURLs(text)
}

// resolve maps one rc:// token to (target, title, ok). target is either an
// in-document "#anchor" or an external URL; title is only meaningful to
// callers that need to synthesize their own link text.
func (rw *Rewriter) resolve(res *model.Resource, token string) (target, title string, ok bool) {
	m := tokenRe.FindStringSubmatch(token)
	if m == nil {
		res.BadLinks = append(res.BadLinks, token)
		return "", "", false
	}
	lang, kind, rest := m[1], m[2], m[3]

	switch {
	case kind == "tn" && strings.HasPrefix(rest, "help/obs/"):
		story, frame, valid := splitTwo(strings.TrimPrefix(rest, "help/obs/"))
		if !valid {
			res.BadLinks = append(res.BadLinks, token)
			return "", "", false
		}
		return fmt.Sprintf(obsStoryURLTemplate, story, frame), "OBS Story " + story + ":" + frame, true

	case kind == "tn" && strings.HasPrefix(rest, "help/"):
		book, chapter, verse, valid := splitBookChapterVerse(strings.TrimPrefix(rest, "help/"))
		if !valid {
			res.BadLinks = append(res.BadLinks, token)
			return "", "", false
		}
		num := layout.BookNumber(book)
		if num >= 40 {
			num-- // New-Testament books decrement by one in the URL's book number
		}
		url := fmt.Sprintf(scriptureURLTemplate, fmt.Sprintf("%02d", num), chapter, verse)
		return url, layout.BookTitle(book) + " " + chapter + ":" + verse, true

	case (kind == "tw" || kind == "ta") && strings.HasPrefix(rest, "help/"):
		categoryPath := strings.TrimPrefix(rest, "help/")
		return rw.resolveTransitive(res, token, lang, kind, categoryPath)

	default:
		return fmt.Sprintf(sourceRepoURLTemplate, lang, kind), lang + "/" + kind + "/" + rest, true
	}
}

// resolveTransitive loads the tw/ta entry named by categoryPath out of the
// resource directory Locator has for (lang, kind), registers it in the
// shared Arena, recursively rewrites its own body (so a ta reference
// inside a tw entry resolves too), and returns an in-document anchor. A
// token already in the Arena is never re-walked — this is the cycle
// breaker DESIGN NOTES §9 calls for.
func (rw *Rewriter) resolveTransitive(res *model.Resource, token, lang, kind, categoryPath string) (target, title string, ok bool) {
	id, fresh := rw.Arena.Reserve(token)
	res.ResolvedRefs[token] = id

	if !fresh {
		if entry, ok := rw.Arena.Get(id); ok {
			return "#" + entry.AnchorID, entry.Title, true
		}
		// Still being resolved further up the call stack: this is the cycle
		// itself. Point at the anchor it will eventually get without
		// re-entering resolveTransitive; the anchor doubles as the title.
		anchor := string(model.KindForResourceType(kind)) + "-" + strings.ReplaceAll(categoryPath, "/", "-")
		return "#" + anchor, anchor, true
	}

	dir, found := rw.Locator.Dir(lang, kind)
	if !found {
		res.BadLinks = append(res.BadLinks, token)
		return "", "", false
	}

	entry, err := helps.LookupCategoryEntry(dir, categoryPath, model.KindForResourceType(kind))
	if err != nil {
		res.BadLinks = append(res.BadLinks, token)
		return "", "", false
	}

	// Rewrite the entry's own body before storing it, so any rc:// token it
	// contains (e.g. a ta reference inside a tw entry) is resolved too.
	entry.Body = rw.Rewrite(res, entry.Body)
	rw.Arena.Set(id, *entry)

	return "#" + entry.AnchorID, entry.Title, true
}

func splitTwo(s string) (a, b string, ok bool) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func splitBookChapterVerse(s string) (book, chapter, verse string, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return "", "", "", false
	}
	if _, err := strconv.Atoi(parts[1]); err != nil {
		return "", "", "", false
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

// linkifyBareURLs converts un-linked http(s)/ftp URLs into markdown links,
// leaving any URL that is already the text or target of a markdown link
// untouched — this is what makes repeated passes idempotent.
func linkifyBareURLs(text string) string {
	return linkOrURLRe.ReplaceAllStringFunc(text, func(m string) string {
		if m[0] == '[' {
			return m // already a markdown link, text and target alike
		}
		trimmed := strings.TrimRight(m, ".,;:")
		trailer := m[len(trimmed):]
		return "[" + trimmed + "](" + trimmed + ")" + trailer
	})
}
