// Package helps implements the Helps Parser: reading translation
// notes/questions/commentary content (per-book/per-chapter/per-verse
// files, plus per-book intros) and normalizing it into the chapter/verse
// addressing spec.md §3 defines for HelpsTree. Translation words and
// translation academy, which are addressed by category path rather than
// chapter/verse, are handled separately in category.go.
package helps

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

var chapterDirRe = regexp.MustCompile(`^\d+$`)
var verseFileRe = regexp.MustCompile(`^(\d+)\.md$`)

// ParseChapterVerseHelps builds a HelpsTree for a notes/questions/
// commentary resource already discovered by Layout Discovery (res.Dir is
// the resource root, res.BookID the lower-case book id).
func ParseChapterVerseHelps(res *model.Resource) (*model.HelpsTree, error) {
	bookDir := filepath.Join(res.Dir, res.BookID)
	if _, err := os.Stat(bookDir); err != nil {
		return nil, &errs.ParseError{Path: bookDir, Message: "book directory not found", Err: err}
	}

	tree := &model.HelpsTree{Chapters: map[int]*model.ChapterHelps{}}

	if doc, ok := readDoc(filepath.Join(bookDir, "front", "intro.md"), res.Kind, "book-intro", 1, false); ok {
		tree.BookIntro = doc
	}

	entries, err := os.ReadDir(bookDir)
	if err != nil {
		return nil, &errs.ParseError{Path: bookDir, Message: err.Error(), Err: err}
	}

	for _, e := range entries {
		if !e.IsDir() || !chapterDirRe.MatchString(e.Name()) {
			continue
		}
		chNum, _ := strconv.Atoi(e.Name())
		chDir := filepath.Join(bookDir, e.Name())
		ch := &model.ChapterHelps{PerVerse: map[int]*model.Doc{}}

		anchorPrefix := anchorPrefixFor(res, chNum)

		if doc, ok := readDoc(filepath.Join(chDir, "intro.md"), res.Kind, anchorPrefix+"-intro", 1, true); ok {
			ch.Intro = doc
		}

		verseFiles, _ := os.ReadDir(chDir)
		for _, vf := range verseFiles {
			m := verseFileRe.FindStringSubmatch(vf.Name())
			if m == nil {
				continue // excludes intro.md and any non-numeric name (README, LICENSE, ...)
			}
			verseNum, _ := strconv.Atoi(m[1])
			anchor := anchorPrefix + "-" + m[1]
			if doc, ok := readDoc(filepath.Join(chDir, vf.Name()), res.Kind, anchor, 3, false); ok {
				ch.PerVerse[verseNum] = doc
			}
		}

		if ch.Intro != nil || len(ch.PerVerse) > 0 {
			tree.Chapters[chNum] = ch
		}
	}

	if tree.BookIntro == nil && len(tree.Chapters) == 0 {
		return nil, &errs.ParseError{Path: bookDir, Message: "no helps content found"}
	}
	return tree, nil
}

func anchorPrefixFor(res *model.Resource, chapter int) string {
	return string(res.Request.ResourceType) + "-" + res.BookID + "-" + strconv.Itoa(chapter)
}

// readDoc reads one markdown file and shifts its headers per spec.md
// §4.5. Returns ok=false if the file does not exist (not an error: most
// chapters have no intro.md). isChapterIntro selects the §4.5 overflow
// correction for a chapter intro specifically (decrease by 2); a book
// intro and every other doc kind decrease by 1.
func readDoc(path string, kind model.ResourceKind, anchorID string, shift int, isChapterIntro bool) (*model.Doc, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	body := string(data)
	title := firstHeaderText(body)
	return &model.Doc{
		Title:    title,
		AnchorID: anchorID,
		Body:     shiftHeaders(body, shift, isChapterIntro),
	}, true
}
