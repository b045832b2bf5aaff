// Package scripture implements the Scripture Parser: versified scripture
// markup -> model.ScriptureTree. Directly grounded on the teacher's
// internal/formats/usfm/parser.go marker-splitting approach (bufio
// scanning plus a small set of compiled marker regexes), generalized to
// produce the chapter/verse-indexed chunk tree spec.md §4.4 defines
// instead of the teacher's flat ir.Corpus content blocks.
package scripture

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

var (
	sectionBreakRe  = regexp.MustCompile(`\\s5[ \t]*\r?\n?`)
	verseMarkerRe   = regexp.MustCompile(`\\v[ \x{00A0}]+(\d+)(?:-(\d+))?`)
	chapterMarkerRe = regexp.MustCompile(`\\c[ \x{00A0}]+(\d+)`)
)

// Parse implements spec.md §4.4: split on section breaks, re-split each
// remaining segment into per-verse chunks, and index every chunk under
// (chapter, firstVerse).
func Parse(data []byte) (*model.ScriptureTree, error) {
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, &errs.ParseError{Message: "no header found: empty scripture markup"}
	}

	segments := sectionBreakRe.Split(text, -1)
	header := strings.TrimSpace(segments[0])

	var chunkSegments []string
	if len(segments) > 1 {
		chunkSegments = segments[1:]
	}

	tree := &model.ScriptureTree{Header: header, Chapters: map[int]*model.ChapterBlock{}}
	currentChapter := 0

	for _, segment := range chunkSegments {
		currentChapter = parseSegment(tree, segment, currentChapter)
	}

	return tree, nil
}

// parseSegment re-splits one \s5-delimited segment into per-verse chunks,
// starting a new chunk at every \v marker. The first chunk of the segment
// additionally carries whatever preamble preceded the first \v (which may
// include a \c marker) verbatim — the resolution of the chapter-marker
// open question in SPEC_FULL.md §9.1: never trimmed.
func parseSegment(tree *model.ScriptureTree, segment string, currentChapter int) int {
	locs := verseMarkerRe.FindAllStringIndex(segment, -1)
	if len(locs) == 0 {
		// edge case: introductory matter between \s5 and the first \v.
		return currentChapter
	}

	for i, loc := range locs {
		start := loc[0]
		if i == 0 {
			start = 0
		}
		end := len(segment)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		currentChapter = emitChunk(tree, segment[start:end], currentChapter)
	}
	return currentChapter
}

// emitChunk parses one chunk's raw markup, updates the running chapter
// number if a \c marker is present, and indexes the chunk under
// (chapter, firstVerse).
func emitChunk(tree *model.ScriptureTree, rawMarkup string, currentChapter int) int {
	if m := lastSubmatch(chapterMarkerRe, rawMarkup); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			currentChapter = n
		}
	}

	verseMatches := verseMarkerRe.FindAllStringSubmatch(rawMarkup, -1)
	if len(verseMatches) == 0 {
		return currentChapter
	}

	verses := make([]int, 0, len(verseMatches))
	firstVerse, lastVerse := 0, 0
	for i, m := range verseMatches {
		n, _ := strconv.Atoi(m[1])
		verses = append(verses, n)
		if i == 0 {
			firstVerse = n
			lastVerse = n
			if m[2] != "" {
				if end, err := strconv.Atoi(m[2]); err == nil {
					lastVerse = end
				}
			}
		}
	}

	chunk := &model.Chunk{
		RawMarkup:  rawMarkup,
		FirstVerse: firstVerse,
		LastVerse:  lastVerse,
		Verses:     verses,
	}

	cb := tree.Chapters[currentChapter]
	if cb == nil {
		cb = &model.ChapterBlock{ByFirstVerse: map[int]*model.Chunk{}}
		tree.Chapters[currentChapter] = cb
	}
	cb.Chunks = append(cb.Chunks, chunk)
	cb.ByFirstVerse[firstVerse] = chunk

	return currentChapter
}

func lastSubmatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}
