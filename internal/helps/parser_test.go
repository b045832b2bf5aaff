package helps

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scriptoria/weaver/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestParseChapterVerseHelps(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tit", "front", "intro.md"), "# Introduction to Titus\nBody text.")
	writeFile(t, filepath.Join(dir, "tit", "01", "intro.md"), "# Chapter 1 intro\nBody.")
	writeFile(t, filepath.Join(dir, "tit", "01", "01.md"), "# Note on verse 1\nExplanation.")
	writeFile(t, filepath.Join(dir, "tit", "01", "README.md"), "ignored")

	res := &model.Resource{
		Request: model.ResourceRequest{ResourceType: "tn", BookCode: "tit"},
		Kind:    model.KindNotes,
		Dir:     dir,
		BookID:  "tit",
	}

	tree, err := ParseChapterVerseHelps(res)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tree.BookIntro == nil {
		t.Fatal("expected book intro")
	}
	ch1 := tree.Chapters[1]
	if ch1 == nil || ch1.Intro == nil {
		t.Fatal("expected chapter 1 intro")
	}
	doc, ok := ch1.PerVerse[1]
	if !ok {
		t.Fatal("expected per-verse doc at verse 1")
	}
	// header should have been shifted from level 1 to level 4 (+3)
	if doc.Body[:5] != "#### " {
		t.Fatalf("expected header shifted to level 4, got %q", doc.Body[:10])
	}
	if len(ch1.PerVerse) != 1 {
		t.Fatalf("README.md must not be treated as a verse file, got %d entries", len(ch1.PerVerse))
	}
}

func TestShiftHeadersOverflow(t *testing.T) {
	// level 5 + shift 3 = 8, which exceeds 5 and is pulled back by 1 (not
	// an intro) to 7.
	out := shiftLine("##### Deep header", 3, false)
	want := "####### Deep header"
	if out != want {
		t.Fatalf("got %q, want %q", out, want)
	}

	// same overflow, but as an intro: pulled back by 2 instead of 1.
	outIntro := shiftLine("##### Deep header", 3, true)
	wantIntro := "###### Deep header"
	if outIntro != wantIntro {
		t.Fatalf("got %q, want %q", outIntro, wantIntro)
	}
}

func TestLookupCategoryEntryWithFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bible", "other", "word.md"), "# Word\nDefinition.")

	entry, err := LookupCategoryEntry(dir, "bible/kt/word", model.KindWords)
	if err != nil {
		t.Fatalf("expected fallback lookup to succeed: %v", err)
	}
	if entry.Title != "Word" {
		t.Fatalf("got title %q", entry.Title)
	}
}

func TestLookupCategoryEntryNotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := LookupCategoryEntry(dir, "bible/kt/missing", model.KindWords); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestComposeAcademyEntry(t *testing.T) {
	dir := t.TempDir()
	entryDir := filepath.Join(dir, "translate", "figs-metaphor")
	writeFile(t, filepath.Join(entryDir, "title.md"), "Metaphors")
	writeFile(t, filepath.Join(entryDir, "sub-title.md"), "What is a metaphor?")
	writeFile(t, filepath.Join(entryDir, "01.md"), "A metaphor is a figure of speech.")

	entry, err := LookupCategoryEntry(dir, "translate/figs-metaphor/01", model.KindAcademy)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if entry.Title != "Metaphors" {
		t.Fatalf("got title %q", entry.Title)
	}
}
