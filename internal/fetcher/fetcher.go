// Package fetcher implements the Asset Fetcher: ensuring on-disk presence
// of every asset an AssetLocator names, and of the catalog JSON itself.
//
// Download/unzip discipline mirrors the teacher's stream-to-temp-path,
// move-into-place-on-success, remove-on-failure pattern. The in-process
// decoded-catalog cache reuses the teacher's internal/cache.TTLCache
// directly, rather than just its RWMutex discipline.
package fetcher

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/scriptoria/weaver/internal/cache"
	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/logging"
	"github.com/scriptoria/weaver/internal/model"
)

// Fetcher acquires assets named by AssetLocators into a working directory
// tree, and keeps the catalog JSON file fresh.
type Fetcher struct {
	WorkingDir   string
	CatalogURL   string
	StaleAfter   time.Duration
	HTTPClient   *http.Client
	dirMu        sync.Map // map[string]*sync.Mutex, one per target directory
	fetchWorkers chan struct{}

	// decoded memoizes the decoded catalog in-process for StaleAfter, so
	// concurrent requests landing in the same freshness window skip
	// re-decoding the (possibly large) catalog JSON file. The on-disk xz
	// file (see catalogcache.go) remains the cross-process/cross-restart
	// cache; this is purely a single-process layer in front of it.
	decoded *cache.TTLCache[string, []model.CatalogEntry]
}

// New creates a Fetcher bounding outbound concurrency to workers.
func New(workingDir, catalogURL string, staleAfter time.Duration, workers int) *Fetcher {
	if workers <= 0 {
		workers = 8
	}
	return &Fetcher{
		WorkingDir:   workingDir,
		CatalogURL:   catalogURL,
		StaleAfter:   staleAfter,
		HTTPClient:   &http.Client{},
		fetchWorkers: make(chan struct{}, workers),
		decoded:      cache.New[string, []model.CatalogEntry](staleAfter),
	}
}

func (f *Fetcher) dirLock(dir string) *sync.Mutex {
	v, _ := f.dirMu.LoadOrStore(dir, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (f *Fetcher) acquireSlot(ctx context.Context) error {
	select {
	case f.fetchWorkers <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fetcher) releaseSlot() { <-f.fetchWorkers }

// CatalogPath is the on-disk path of the cached catalog JSON (xz-compressed).
func (f *Fetcher) CatalogPath() string {
	return filepath.Join(f.WorkingDir, "catalog.json.xz")
}

// IsPresent reports whether dir already holds acquired content, the
// spec's cache key ("directory existence is the cache key").
func (f *Fetcher) IsPresent(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

// Acquire dispatches by loc.FileFormat into dir, per spec.md §4.2.
func (f *Fetcher) Acquire(ctx context.Context, loc model.AssetLocator, dir string) error {
	lock := f.dirLock(dir)
	lock.Lock()
	defer lock.Unlock()

	if f.IsPresent(dir) {
		logging.InfoContext(ctx, "fetcher: reusing cached directory", "dir", dir)
		return nil
	}

	if err := f.acquireSlot(ctx); err != nil {
		return err
	}
	defer f.releaseSlot()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &errs.AcquisitionError{URL: loc.URL, Op: "mkdir", Err: err}
	}

	switch loc.FileFormat {
	case model.FormatZip:
		return f.acquireZip(ctx, loc.URL, dir)
	case model.FormatGit:
		return f.acquireGit(ctx, loc.URL, dir)
	default:
		return f.acquireFile(ctx, loc.URL, dir)
	}
}

// acquireFile downloads a single-file asset (usfm|txt|tsv|md) into dir.
func (f *Fetcher) acquireFile(ctx context.Context, url, dir string) error {
	name := filepath.Base(url)
	dst := filepath.Join(dir, name)
	n, err := f.download(ctx, url, dst)
	if err != nil {
		return &errs.AcquisitionError{URL: url, Op: "download", Err: err}
	}
	logging.InfoContext(ctx, "fetcher: downloaded file", "url", url, "bytes", humanize.Bytes(uint64(n)))
	return nil
}

// acquireZip downloads then unzips an archive into dir.
func (f *Fetcher) acquireZip(ctx context.Context, url, dir string) error {
	tmp, err := os.CreateTemp("", "weaver-zip-*")
	if err != nil {
		return &errs.AcquisitionError{URL: url, Op: "unzip", Err: err}
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	n, err := f.download(ctx, url, tmpPath)
	if err != nil {
		return &errs.AcquisitionError{URL: url, Op: "download", Err: err}
	}
	logging.InfoContext(ctx, "fetcher: downloaded archive", "url", url, "bytes", humanize.Bytes(uint64(n)))

	if err := unzipInto(tmpPath, dir); err != nil {
		os.RemoveAll(dir)
		return &errs.AcquisitionError{URL: url, Op: "unzip", Err: err}
	}
	return nil
}

// acquireGit shallow-clones a repository into dir/<basename>.
func (f *Fetcher) acquireGit(ctx context.Context, url, dir string) error {
	target := filepath.Join(dir, basenameNoExt(url))
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", url, target)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(target)
		return &errs.AcquisitionError{URL: url, Op: "clone", Err: &gitError{string(out), err}}
	}
	return nil
}

type gitError struct {
	output string
	err    error
}

func (e *gitError) Error() string { return e.err.Error() + ": " + e.output }
func (e *gitError) Unwrap() error { return e.err }

// download streams url to a temp file alongside dst, then renames into
// place only on success; the temp file is removed on any failure.
func (f *Fetcher) download(ctx context.Context, url, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, &httpStatusError{url, resp.StatusCode}
	}

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, err
	}
	return n, nil
}

type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return http.StatusText(e.status) + " (" + e.url + ")"
}

func basenameNoExt(url string) string {
	b := filepath.Base(url)
	for _, ext := range []string{".git", ".zip"} {
		if len(b) > len(ext) && b[len(b)-len(ext):] == ext {
			return b[:len(b)-len(ext)]
		}
	}
	return b
}
