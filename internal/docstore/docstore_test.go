package docstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/scriptoria/weaver/internal/model"
)

func sampleDoc(html string) *model.Document {
	return &model.Document{HTML: []byte(html)}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key := store.Key([]model.ResourceRequest{{LangCode: "en", ResourceType: "ulb-wa", BookCode: "tit"}}, model.AssemblyConfig{})

	existed, err := store.Write(key, sampleDoc("<html>first</html>"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if existed {
		t.Fatal("expected the first write to report existed=false")
	}

	got, err := store.Read(key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte("<html>first</html>")) {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestWriteIsFirstFinisherWins(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key := store.Key(nil, model.AssemblyConfig{})

	if _, err := store.Write(key, sampleDoc("<html>original</html>")); err != nil {
		t.Fatalf("first write: %v", err)
	}

	existed, err := store.Write(key, sampleDoc("<html>second, should be ignored</html>"))
	if err != nil {
		t.Fatalf("second write: %v", err)
	}
	if !existed {
		t.Fatal("expected the second write for the same key to report existed=true")
	}

	got, err := store.Read(key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, []byte("<html>original</html>")) {
		t.Fatal("expected the first finisher's content to survive, not be overwritten")
	}
}

func TestKeyIsOrderInsensitiveAndDeterministic(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	a := []model.ResourceRequest{
		{LangCode: "en", ResourceType: "ulb-wa", BookCode: "tit"},
		{LangCode: "en", ResourceType: "tn-wa", BookCode: "tit"},
	}
	b := []model.ResourceRequest{
		{LangCode: "en", ResourceType: "tn-wa", BookCode: "tit"},
		{LangCode: "en", ResourceType: "ulb-wa", BookCode: "tit"},
	}
	cfg := model.AssemblyConfig{Strategy: model.LanguageBookOrder, Layout: model.OneColumn, ChunkSize: model.ChunkChapter}

	keyA := store.Key(a, cfg)
	keyB := store.Key(b, cfg)
	if keyA != keyB {
		t.Fatalf("expected order-insensitive keys, got %q vs %q", keyA, keyB)
	}

	keyAgain := store.Key(a, cfg)
	if keyA != keyAgain {
		t.Fatal("expected Key to be deterministic across calls")
	}

	keyDifferentConfig := store.Key(a, model.AssemblyConfig{Strategy: model.BookLanguageOrder})
	if keyA == keyDifferentConfig {
		t.Fatal("expected a different AssemblyConfig to change the key")
	}
}

func TestReadUnknownKeyFails(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Read("does-not-exist"); err == nil {
		t.Fatal("expected an error reading a key nothing ever wrote")
	}
}

func TestWriteCopiesDerivedFormats(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	pdfSrc := filepath.Join(dir, "converter-output.pdf")
	if err := os.WriteFile(pdfSrc, []byte("%PDF-fake"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	key := store.Key(nil, model.AssemblyConfig{})
	doc := sampleDoc("<html>body</html>")
	doc.Formats = map[model.OutputFormat]string{model.OutputPDF: pdfSrc}

	if _, err := store.Write(key, doc); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := store.ReadFormat(key, model.OutputPDF)
	if err != nil {
		t.Fatalf("read format: %v", err)
	}
	if !bytes.Equal(got, []byte("%PDF-fake")) {
		t.Fatalf("unexpected pdf content: %q", got)
	}
}
