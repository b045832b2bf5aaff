// Package layout implements Layout Discovery: turning an unpacked resource
// directory into a typed view (manifest + content files + book identity)
// the Scripture/Helps parsers consume.
package layout

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/model"
)

// manifestCandidates lists the three accepted manifest file names, in the
// precedence order spec.md §4.3 specifies ("the first one found wins").
var manifestCandidates = []struct {
	name   string
	typ    model.ManifestType
	parser func([]byte) (*model.Manifest, error)
}{
	{"manifest.yaml", model.ManifestYAML, parseYAMLManifest},
	{"manifest.txt", model.ManifestTXT, parseTXTManifest},
	{"manifest.json", model.ManifestJSON, parseJSONManifest},
}

// Discover populates res.Manifest, res.Version, res.IssuedDate,
// res.BookID/Title/Number, and res.ContentFiles from res.Dir. res.Kind and
// res.Request must already be set.
func Discover(res *model.Resource) error {
	manifest, err := findManifest(res.Dir)
	if err != nil {
		return err
	}
	res.Manifest = manifest
	if manifest != nil {
		res.Version = manifest.Version
		res.IssuedDate = manifest.Issued
	}

	files, err := enumerateContentFiles(res)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return &errs.LayoutError{Dir: res.Dir, Message: "no content files matched"}
	}
	res.ContentFiles = files

	deriveBookIdentity(res)
	return nil
}

// findManifest walks res.Dir for the first accepted manifest file name.
func findManifest(dir string) (*model.Manifest, error) {
	for _, cand := range manifestCandidates {
		var found string
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || found != "" {
				return nil
			}
			if !d.IsDir() && strings.EqualFold(d.Name(), cand.name) {
				found = path
			}
			return nil
		})
		if found == "" {
			continue
		}
		data, err := readFile(found)
		if err != nil {
			return nil, &errs.LayoutError{Dir: dir, Message: "cannot read " + cand.name + ": " + err.Error()}
		}
		m, err := cand.parser(data)
		if err != nil {
			return nil, &errs.LayoutError{Dir: dir, Message: "cannot parse " + cand.name + ": " + err.Error()}
		}
		return m, nil
	}
	return nil, nil
}

// contentExtensions lists, per resource kind, the candidate suffixes in
// preference order (spec.md §4.3: "scripture-bearing resources prefer
// files with scripture-markup suffix, then .txt; helps resources use .md
// and .txt").
func contentExtensions(kind model.ResourceKind) []string {
	switch kind {
	case model.KindScripture:
		return []string{".usfm", ".sfm", ".txt"}
	default:
		return []string{".md", ".txt"}
	}
}

// enumerateContentFiles walks res.Dir collecting files whose extension
// matches the kind's preference list, filtered by book_code substring
// (case-insensitive) when one is given. Only the highest-preference
// extension that has any match is returned, matching "prefer X then Y".
func enumerateContentFiles(res *model.Resource) ([]string, error) {
	bookFilter := strings.ToLower(res.Request.BookCode)

	byExt := map[string][]string{}
	err := filepath.WalkDir(res.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if bookFilter != "" && !strings.Contains(strings.ToLower(path), bookFilter) {
			return nil
		}
		byExt[ext] = append(byExt[ext], path)
		return nil
	})
	if err != nil {
		return nil, &errs.LayoutError{Dir: res.Dir, Message: err.Error()}
	}

	for _, ext := range contentExtensions(res.Kind) {
		if files := byExt[ext]; len(files) > 0 {
			return files, nil
		}
	}
	return nil, nil
}

// deriveBookIdentity fills res.BookID/BookTitle/BookNumber per spec.md
// §4.3's three cases: YAML-manifest project entry, filename-hyphen split,
// or (book_code already known from the request) direct lookup.
func deriveBookIdentity(res *model.Resource) {
	id := strings.ToLower(res.Request.BookCode)

	if res.Manifest != nil && res.Manifest.Type == model.ManifestYAML {
		if proj, ok := res.Manifest.Projects[id]; ok {
			res.BookID = id
			res.BookTitle, res.BookNumber = manifestTitleNumber(id, proj.Sort, proj.Title)
			return
		}
	}

	if id == "" && res.Kind == model.KindScripture && len(res.ContentFiles) > 0 {
		id = bookIDFromFilename(res.ContentFiles[0])
	}

	res.BookID = id
	res.BookTitle = BookTitle(id)
	res.BookNumber = BookNumber(id)
}

// bookIDFromFilename splits a manifest-free scripture filename on "-": the
// part after the hyphen (or the whole stem if there is none) is the book
// id, lower-cased.
func bookIDFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if _, after, ok := strings.Cut(stem, "-"); ok {
		return strings.ToLower(after)
	}
	return strings.ToLower(stem)
}
