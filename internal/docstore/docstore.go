// Package docstore implements the output-document idempotency rule of
// spec.md §5: a document key derived from a request's normalized
// (sorted ResourceRequests, AssemblyConfig), and an append-only output
// directory where the first finisher wins — a later finisher for the
// identical request observes the existing file and skips re-work rather
// than overwriting it.
//
// Keying and the atomic-write discipline are both grounded directly on
// the teacher's core/cas content-addressed blob store: the same
// stat-then-skip dedup check, the same temp-file-then-rename write so a
// reader never observes a partial file. The one adaptation is what gets
// hashed — core/cas hashes a blob's own bytes; a docstore key hashes the
// *request* that will produce the blob, since the point here is
// deduplicating identical requests, not identical output bytes.
package docstore

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"

	"github.com/scriptoria/weaver/internal/model"
)

// Store persists assembled Documents under root, one HTML file per
// document key plus one file per successfully produced derived format.
type Store struct {
	root string
}

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create root: %w", err)
	}
	return &Store{root: dir}, nil
}

// keyInput is the normalized shape hashed to produce a document key.
// Requests are sorted so that two callers requesting the same resources
// in a different order still collide onto the same key — ordering only
// matters for presentation, which AssemblyConfig.Strategy already governs
// independently of request order.
type keyInput struct {
	Requests []model.ResourceRequest
	Config   model.AssemblyConfig
}

// Key computes the stable document key for a request: BLAKE3 over the
// JSON encoding of keyInput. encoding/json sorts map keys during
// marshaling, so AssemblyConfig.Outputs does not introduce nondeterminism.
func (s *Store) Key(reqs []model.ResourceRequest, cfg model.AssemblyConfig) string {
	data, err := json.Marshal(keyInput{Requests: model.SortRequests(reqs), Config: cfg})
	if err != nil {
		// keyInput's fields are all JSON-safe; Marshal cannot fail here.
		panic("docstore: unexpected marshal error: " + err.Error())
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *Store) htmlPath(key string) string {
	return filepath.Join(s.root, key+".html")
}

func (s *Store) formatPath(key string, format model.OutputFormat) string {
	return filepath.Join(s.root, key+"."+string(format))
}

// Write persists doc under key unless an earlier finisher already has;
// existed reports which happened. Write never overwrites an existing
// file — that is the idempotency guarantee spec.md §5 asks for.
func (s *Store) Write(key string, doc *model.Document) (existed bool, err error) {
	path := s.htmlPath(key)
	if _, statErr := os.Stat(path); statErr == nil {
		return true, nil
	}
	if err := writeAtomic(path, doc.HTML); err != nil {
		return false, fmt.Errorf("docstore: write %s: %w", path, err)
	}

	for format, srcPath := range doc.Formats {
		dst := s.formatPath(key, format)
		if _, statErr := os.Stat(dst); statErr == nil {
			continue
		}
		data, readErr := os.ReadFile(srcPath)
		if readErr != nil {
			// The converter's output file is missing; spec.md's converter
			// error handling already treats this as non-fatal to the
			// primary HTML document, so docstore does too.
			continue
		}
		if err := writeAtomic(dst, data); err != nil {
			return false, fmt.Errorf("docstore: write %s: %w", dst, err)
		}
	}
	return false, nil
}

// Read returns an already-written document's primary HTML for key, or an
// error if no finisher has produced it yet.
func (s *Store) Read(key string) ([]byte, error) {
	return os.ReadFile(s.htmlPath(key))
}

// ReadFormat returns an already-written derived-format file for key, or
// an error if that format was never produced.
func (s *Store) ReadFormat(key string, format model.OutputFormat) ([]byte, error) {
	return os.ReadFile(s.formatPath(key, format))
}

// writeAtomic writes data to path via a temp file in the same directory
// followed by rename, so a concurrent reader never observes a partially
// written file — the teacher's core/cas.Store discipline unchanged.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".docstore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
