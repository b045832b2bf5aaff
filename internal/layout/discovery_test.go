package layout

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

func TestDiscoverWithYAMLManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "manifest.yaml"), `
dublin_core:
  version: "1"
  issued: "2020-01-01"
projects:
  - identifier: col
    title: Colossians
    sort: 51
`)
	writeFile(t, filepath.Join(dir, "57-COL.usfm"), "\\id COL\n")

	res := &model.Resource{
		Request: model.ResourceRequest{BookCode: "col"},
		Kind:    model.KindScripture,
		Dir:     dir,
	}
	if err := Discover(res); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.Version != "1" || res.IssuedDate != "2020-01-01" {
		t.Fatalf("got version=%q issued=%q", res.Version, res.IssuedDate)
	}
	if res.BookTitle != "Colossians" || res.BookNumber != 51 {
		t.Fatalf("got title=%q number=%d", res.BookTitle, res.BookNumber)
	}
	if len(res.ContentFiles) != 1 {
		t.Fatalf("expected 1 content file, got %v", res.ContentFiles)
	}
}

func TestDiscoverWithoutManifestSplitsFilename(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "en-tit.usfm"), "\\id TIT\n")

	res := &model.Resource{
		Request: model.ResourceRequest{},
		Kind:    model.KindScripture,
		Dir:     dir,
	}
	if err := Discover(res); err != nil {
		t.Fatalf("discover: %v", err)
	}
	if res.BookID != "tit" || res.BookTitle != "Titus" || res.BookNumber != 56 {
		t.Fatalf("got id=%q title=%q number=%d", res.BookID, res.BookTitle, res.BookNumber)
	}
}

func TestDiscoverNoContentFilesIsLayoutError(t *testing.T) {
	dir := t.TempDir()
	res := &model.Resource{Kind: model.KindScripture, Dir: dir}
	if err := Discover(res); err == nil {
		t.Fatal("expected layout error for empty directory")
	}
}

func TestDiscoverHelpsPrefersMarkdown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tit", "01", "01.md"), "# Note\nBody")
	writeFile(t, filepath.Join(dir, "tit", "01", "01.txt"), "plain")

	res := &model.Resource{Request: model.ResourceRequest{BookCode: "tit"}, Kind: model.KindNotes, Dir: dir}
	if err := Discover(res); err != nil {
		t.Fatalf("discover: %v", err)
	}
	for _, f := range res.ContentFiles {
		if filepath.Ext(f) != ".md" {
			t.Fatalf("expected only .md files when present, got %v", res.ContentFiles)
		}
	}
}
