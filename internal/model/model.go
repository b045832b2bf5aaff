// Package model holds the data types shared across every pipeline phase:
// requests, catalog entries, fetched resources, parsed trees, and the
// assembly configuration that drives the final document.
package model

import "sort"

// FileFormat is the on-disk shape of a fetched asset.
type FileFormat string

const (
	FormatZip   FileFormat = "zip"
	FormatGit   FileFormat = "git"
	FormatUSFM  FileFormat = "usfm"
	FormatTXT   FileFormat = "txt"
	FormatTSV   FileFormat = "tsv"
	FormatMD    FileFormat = "md"
	FormatOther FileFormat = "other"
)

// DetectFileFormat derives a FileFormat from a URL's suffix. A URL with no
// recognizable suffix is assumed to be a git remote.
func DetectFileFormat(url string) FileFormat {
	switch suffix(url) {
	case "zip":
		return FormatZip
	case "usfm", "sfm":
		return FormatUSFM
	case "txt":
		return FormatTXT
	case "tsv":
		return FormatTSV
	case "md":
		return FormatMD
	case "":
		return FormatGit
	default:
		return FormatOther
	}
}

func suffix(url string) string {
	// strip query/fragment, then take the extension of the last path segment.
	for i := len(url) - 1; i >= 0; i-- {
		switch url[i] {
		case '?', '#':
			url = url[:i]
		}
	}
	dot := -1
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			break
		}
		if url[i] == '.' {
			dot = i
			break
		}
	}
	if dot == -1 {
		return ""
	}
	return url[dot+1:]
}

// ResourceRequest names one translation resource to pull into the document.
// Immutable once created.
type ResourceRequest struct {
	LangCode     string `json:"language_code"`
	ResourceType string `json:"resource_type"`
	BookCode     string `json:"book_code"`
}

// Key is the stable, comparable identity of a request, used for dedup and
// for the document-key hash input.
func (r ResourceRequest) Key() string {
	return r.LangCode + "/" + r.ResourceType + "/" + r.BookCode
}

// SortRequests returns a new slice sorted by Key, for hashing purposes only
// — callers that care about presentation order must keep the original
// request-order slice around (see AssemblyConfig / Assembler).
func SortRequests(reqs []ResourceRequest) []ResourceRequest {
	out := make([]ResourceRequest, len(reqs))
	copy(out, reqs)
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Link is one {format, url} pair inside a catalog entry.
type Link struct {
	Format string `json:"format"`
	URL    string `json:"url"`
}

// CatalogEntry is one node of the catalog tree: language, content, or
// sub-content, depending on nesting depth.
type CatalogEntry struct {
	Code        string         `json:"code"`
	Name        string         `json:"name,omitempty"`
	Contents    []CatalogEntry `json:"contents,omitempty"`
	Subcontents []CatalogEntry `json:"subcontents,omitempty"`
	Links       []Link         `json:"links,omitempty"`
}

// AssetLocator is a resolved, fetchable location for one resource.
type AssetLocator struct {
	URL        string
	FileFormat FileFormat
}

// AssemblyStrategy picks the outer grouping order.
type AssemblyStrategy string

const (
	BookLanguageOrder AssemblyStrategy = "BOOK_LANGUAGE_ORDER"
	LanguageBookOrder AssemblyStrategy = "LANGUAGE_BOOK_ORDER"
)

// Layout picks the visual arrangement of a granule.
type Layout string

const (
	OneColumn            Layout = "ONE_COLUMN"
	OneColumnCompact     Layout = "ONE_COLUMN_COMPACT"
	TwoColumnSLSR        Layout = "TWO_COLUMN_SL_SR"
	TwoColumnSLSRCompact Layout = "TWO_COLUMN_SL_SR_COMPACT"
)

// ChunkSize picks the interleaving granularity.
type ChunkSize string

const (
	ChunkBook    ChunkSize = "BOOK"
	ChunkChapter ChunkSize = "CHAPTER"
	ChunkVerse   ChunkSize = "VERSE"
)

// OutputFormat is one of the document formats the caller may request.
type OutputFormat string

const (
	OutputHTML OutputFormat = "html"
	OutputPDF  OutputFormat = "pdf"
	OutputEPUB OutputFormat = "epub"
	OutputDOCX OutputFormat = "docx"
)

// AssemblyConfig is the full strategy x granularity x layout matrix input.
type AssemblyConfig struct {
	Strategy       AssemblyStrategy       `json:"strategy"`
	Layout         Layout                 `json:"layout"`
	ChunkSize      ChunkSize              `json:"chunk_size"`
	LayoutForPrint bool                   `json:"layout_for_print"`
	Outputs        map[OutputFormat]bool  `json:"outputs,omitempty"`
}

// WantsOutput reports whether fmt was requested.
func (c AssemblyConfig) WantsOutput(f OutputFormat) bool {
	return c.Outputs[f]
}

// ResourceKind tags which parser/renderer a Resource needs — the tagged
// variant the catalog of bible-resource classes collapses to.
type ResourceKind string

const (
	KindScripture  ResourceKind = "scripture"
	KindNotes      ResourceKind = "notes"
	KindQuestions  ResourceKind = "questions"
	KindWords      ResourceKind = "words"
	KindAcademy    ResourceKind = "academy"
	KindCommentary ResourceKind = "commentary"
)

// KindForResourceType maps the catalog's short resource-type codes to a
// ResourceKind. Unrecognized codes default to KindCommentary, the most
// permissive (body-text-only) helps renderer.
func KindForResourceType(rt string) ResourceKind {
	switch rt {
	case "ulb", "ulb-wa", "udb", "reg", "f10", "ult", "ust":
		return KindScripture
	case "tn", "tn-wa":
		return KindNotes
	case "tq", "tq-wa":
		return KindQuestions
	case "tw", "tw-wa":
		return KindWords
	case "ta", "ta-wa":
		return KindAcademy
	default:
		return KindCommentary
	}
}

// ManifestType records which of the three accepted manifest dialects a
// Resource was discovered with.
type ManifestType string

const (
	ManifestYAML ManifestType = "yaml"
	ManifestJSON ManifestType = "json"
	ManifestTXT  ManifestType = "txt"
	ManifestNone ManifestType = ""
)

// Manifest is the normalized subset of manifest fields the pipeline needs,
// regardless of source dialect.
type Manifest struct {
	Type    ManifestType
	Version string
	Issued  string
	// Projects maps a book identifier (lower-case) to its manifest title
	// and number, populated from a YAML manifest's `projects` entries.
	Projects map[string]ProjectEntry
}

// ProjectEntry is one `projects[]` item of a YAML (resource container)
// manifest.
type ProjectEntry struct {
	Identifier string
	Title      string
	Sort       int
}

// HelpEntry is one resolved cross-reference target: a translation-words,
// translation-academy, or other helps body the Link Rewriter inlined.
type HelpEntry struct {
	Kind     ResourceKind // KindWords or KindAcademy
	AnchorID string
	Title    string
	Body     string
}

// Resource is the in-memory materialization of one fulfilled request.
type Resource struct {
	Request ResourceRequest
	Kind    ResourceKind

	Dir        string
	FileFormat FileFormat
	Manifest   *Manifest
	Version    string
	IssuedDate string

	BookID     string
	BookTitle  string
	BookNumber int

	ContentFiles []string

	Scripture *ScriptureTree
	Helps     *HelpsTree

	// ResolvedRefs is the set of rc:// tokens this resource's text produced,
	// keyed by token -> arena id (see linkrewriter.Arena).
	ResolvedRefs map[string]int
	// ResolvedHelps is a snapshot of the arena shared by every resource of
	// the document build, taken after this resource's latest rewrite: every
	// inlined helps body reached so far, keyed by arena id.
	ResolvedHelps map[int]HelpEntry
	BadLinks      []string
}

// ScriptureTree is the parsed form of one versified-scripture-markup file.
type ScriptureTree struct {
	Header   string
	Chapters map[int]*ChapterBlock
}

// ChapterBlock holds one chapter's chunks, in document order and indexed
// by first verse for VERSE-granularity lookups.
type ChapterBlock struct {
	Chunks      []*Chunk
	ByFirstVerse map[int]*Chunk
}

// Chunk is a contiguous span of scripture markup bounded by section breaks.
type Chunk struct {
	RawMarkup  string
	FirstVerse int
	LastVerse  int
	Verses     []int
}

// SortedChapterNumbers returns chapter numbers of t in numeric order.
func (t *ScriptureTree) SortedChapterNumbers() []int {
	nums := make([]int, 0, len(t.Chapters))
	for n := range t.Chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// SortedFirstVerses returns the chunk first-verse boundaries of c in
// numeric order.
func (c *ChapterBlock) SortedFirstVerses() []int {
	nums := make([]int, 0, len(c.ByFirstVerse))
	for n := range c.ByFirstVerse {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Doc is one structured markdown fragment of a HelpsTree: a book/chapter
// intro or a per-verse note/question/word/academy body.
type Doc struct {
	Title    string
	AnchorID string
	Body     string
}

// ChapterHelps holds the intro and per-verse docs for one chapter of a
// helps resource.
type ChapterHelps struct {
	Intro    *Doc
	PerVerse map[int]*Doc
}

// HelpsTree is the parsed form of a notes/questions/words/academy
// resource for one book.
type HelpsTree struct {
	BookIntro *Doc
	Chapters  map[int]*ChapterHelps
}

// SortedChapterNumbers returns chapter numbers of t in numeric order.
func (t *HelpsTree) SortedChapterNumbers() []int {
	nums := make([]int, 0, len(t.Chapters))
	for n := range t.Chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// SortedVerseNumbers returns per-verse doc keys of c in numeric order.
func (c *ChapterHelps) SortedVerseNumbers() []int {
	nums := make([]int, 0, len(c.PerVerse))
	for n := range c.PerVerse {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// FailedRequest records one ResourceRequest that did not make it into the
// assembled document, and why.
type FailedRequest struct {
	Request ResourceRequest
	Reason  string
}

// Document is the produced output: the assembled HTML plus whichever
// derived formats were requested and successfully converted.
type Document struct {
	Key      string
	HTML     []byte
	Formats  map[OutputFormat]string // format -> output file path
	Unfound  []FailedRequest
}
