// Package orchestrator implements the Pipeline Orchestrator: the single
// driver that walks a request through Catalog Resolver -> Asset Fetcher
// -> Layout Discovery -> Parsers -> Link Rewriter -> Assembler, demoting
// any per-resource failure to the unfound list instead of aborting the
// request. Task lifecycle (ID, state, progress surfacing, cancellation)
// is modeled directly on the teacher's internal/api/jobs.go
// JobStore/Job/runJob pattern: a goroutine per task, a context/cancel
// pair for mid-flight cancellation, and a store callers poll for status.
package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/scriptoria/weaver/internal/assemble"
	"github.com/scriptoria/weaver/internal/catalog"
	"github.com/scriptoria/weaver/internal/config"
	"github.com/scriptoria/weaver/internal/convert"
	"github.com/scriptoria/weaver/internal/errs"
	"github.com/scriptoria/weaver/internal/fetcher"
	"github.com/scriptoria/weaver/internal/helps"
	"github.com/scriptoria/weaver/internal/layout"
	"github.com/scriptoria/weaver/internal/linkrewriter"
	"github.com/scriptoria/weaver/internal/logging"
	"github.com/scriptoria/weaver/internal/model"
	"github.com/scriptoria/weaver/internal/scripture"
)

// DocStore lets the orchestrator make a finished Document content-
// addressed and idempotent ("first finisher wins") without importing the
// storage layer directly — any package implementing this seam (see
// docstore.Store) can be wired in.
type DocStore interface {
	Key(reqs []model.ResourceRequest, cfg model.AssemblyConfig) string
	Write(key string, doc *model.Document) (existed bool, err error)
	Read(key string) ([]byte, error)
}

// Orchestrator wires the five phases together for one request at a time;
// it holds no per-request state of its own beyond its collaborators.
type Orchestrator struct {
	Config    config.Config
	Catalog   *catalog.Catalog
	Enum      *catalog.EnumCache // read-through cache over Catalog's enumeration queries
	Fetcher   *fetcher.Fetcher
	Assembler *assemble.Assembler
	Converter *convert.Converter // external pandoc-backed PDF/EPUB/DOCX export (spec.md §7 ConverterError on failure)
	Store     Store
	DocStore  DocStore // optional; nil means the Document's HTML is returned but never persisted

	// OnPhase, if set, is called whenever runTask enters a new phase for a
	// task — the seam the HTTP layer hangs its WebSocket progress
	// broadcast off, without this package importing net/http or gorilla's
	// websocket package itself.
	OnPhase func(taskID, phase string)

	// OnDone, if set, is called once a task reaches SUCCESS or FAILURE.
	OnDone func(taskID string, state TaskState, errMsg string)
}

// New constructs an Orchestrator with sensible collaborator defaults
// (assemble.New()) for anything left nil by the caller.
func New(cfg config.Config, cat *catalog.Catalog, f *fetcher.Fetcher, store Store) *Orchestrator {
	return &Orchestrator{
		Config:    cfg,
		Catalog:   cat,
		Enum:      catalog.NewEnumCache(cat),
		Fetcher:   f,
		Assembler: assemble.New(),
		Converter: convert.New(cfg.PandocPath),
		Store:     store,
	}
}

// Submit creates a task and runs the pipeline for it in the background,
// returning the task id immediately — the spec.md §6 "task id" contract.
func (o *Orchestrator) Submit(reqs []model.ResourceRequest, cfg model.AssemblyConfig) string {
	task := o.Store.Create(reqs, cfg)
	go o.runTask(task)
	return task.ID
}

// Status returns a task's current lifecycle snapshot.
func (o *Orchestrator) Status(id string) (*Task, bool) {
	return o.Store.Get(id)
}

// Cancel requests cancellation of an in-flight task; per spec.md §5 the
// orchestrator only actually observes it at a phase boundary.
func (o *Orchestrator) Cancel(id string) error {
	return o.Store.Cancel(id)
}

func (o *Orchestrator) runTask(task *Task) {
	o.Store.Update(task.ID, StateStarted, "", nil, "")

	var key string
	if o.DocStore != nil {
		key = o.DocStore.Key(task.Requests, task.Config)
		if _, err := o.DocStore.Read(key); err == nil {
			// First finisher already produced this exact request; skip
			// every phase rather than just skipping the final write.
			o.announce(task.ctx, task.ID, "docstore-hit")
			o.finish(task.ID, StateSuccess, key, nil, "")
			return
		}
	}

	o.announce(task.ctx, task.ID, "resolve+fetch")

	resources, unfound := o.resolveAndFetch(task.ctx, task.Requests)
	if err := task.ctx.Err(); err != nil {
		o.finish(task.ID, StateFailure, "", unfound, "cancelled after fetch: "+err.Error())
		return
	}

	o.announce(task.ctx, task.ID, "parse+rewrite")
	survivors, parseUnfound := o.parseAndRewrite(task.ctx, resources)
	unfound = append(unfound, parseUnfound...)
	if err := task.ctx.Err(); err != nil {
		o.finish(task.ID, StateFailure, "", unfound, "cancelled after parse: "+err.Error())
		return
	}

	o.announce(task.ctx, task.ID, "assemble")
	doc, err := o.runAssemble(task.ctx, survivors, task.Config, unfound)
	if err != nil {
		o.finish(task.ID, StateFailure, "", unfound, err.Error())
		return
	}

	if key == "" {
		key = task.ID
	}
	doc.Key = key

	o.announce(task.ctx, task.ID, "convert")
	o.runConvert(task.ctx, task.ID, doc, task.Config)

	if o.DocStore != nil {
		if _, err := o.DocStore.Write(key, doc); err != nil {
			o.finish(task.ID, StateFailure, "", unfound, err.Error())
			return
		}
	}

	o.finish(task.ID, StateSuccess, key, unfound, "")
}

// finish records a task's terminal state and, if OnDone is set, forwards
// it to the caller's progress channel.
func (o *Orchestrator) finish(taskID string, state TaskState, documentKey string, unfound []model.FailedRequest, errMsg string) {
	o.Store.Update(taskID, state, documentKey, unfound, errMsg)
	if o.OnDone != nil {
		o.OnDone(taskID, state, errMsg)
	}
}

// announce logs a phase transition and, if OnPhase is set, forwards it to
// the caller's progress channel.
func (o *Orchestrator) announce(ctx context.Context, taskID, phase string) {
	logging.PipelinePhase(ctx, phase, taskID)
	if o.OnPhase != nil {
		o.OnPhase(taskID, phase)
	}
}

// resourceDir is the canonical on-disk directory for one (lang, resource
// type) pair, per spec.md §6's "one subdirectory per (lang_code,
// resource_type)" filesystem layout.
func (o *Orchestrator) resourceDir(req model.ResourceRequest) string {
	return filepath.Join(o.Config.WorkingDir, req.LangCode, req.ResourceType)
}

// resolveAndFetch implements Pipeline Orchestrator steps 1-2: resolve
// every request against the catalog, then fetch every resolved one in
// parallel. The Fetcher's own bounded worker pool (spec.md §5, default 8)
// caps outbound concurrency; this loop just dispatches.
func (o *Orchestrator) resolveAndFetch(ctx context.Context, reqs []model.ResourceRequest) ([]*model.Resource, []model.FailedRequest) {
	type resolved struct {
		req model.ResourceRequest
		loc model.AssetLocator
	}

	var unfound []model.FailedRequest
	var toFetch []resolved
	for _, req := range reqs {
		locs, err := o.Catalog.Lookup(req)
		if err != nil {
			unfound = append(unfound, model.FailedRequest{Request: req, Reason: err.Error()})
			continue
		}
		toFetch = append(toFetch, resolved{req: req, loc: locs[0]})
	}

	resources := make([]*model.Resource, len(toFetch))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, rf := range toFetch {
		wg.Add(1)
		go func(i int, rf resolved) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, o.Config.FetchTimeout)
			defer cancel()

			dir := o.resourceDir(rf.req)
			if err := o.Fetcher.Acquire(fctx, rf.loc, dir); err != nil {
				logging.ResourceFailure(ctx, "fetch", rf.req.Key(), err)
				mu.Lock()
				unfound = append(unfound, model.FailedRequest{Request: rf.req, Reason: err.Error()})
				mu.Unlock()
				return
			}

			mu.Lock()
			resources[i] = &model.Resource{
				Request:    rf.req,
				Kind:       model.KindForResourceType(rf.req.ResourceType),
				Dir:        dir,
				FileFormat: rf.loc.FileFormat,
			}
			mu.Unlock()
		}(i, rf)
	}
	wg.Wait()

	out := make([]*model.Resource, 0, len(resources))
	for _, r := range resources {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, unfound
}

// parseAndRewrite implements step 3: Layout Discovery, the appropriate
// Parser, then the Link Rewriter, for each acquired Resource in request
// order. A Locator is built opportunistically, fetching the translation-
// words/translation-academy siblings of any helps resource's language so
// the Link Rewriter's transitive resolution (spec.md §4.6) has somewhere
// to look; a sibling that cannot be found or fetched simply leaves the
// Locator unable to answer for it, which the rewriter already treats as a
// broken, non-fatal link.
func (o *Orchestrator) parseAndRewrite(ctx context.Context, resources []*model.Resource) ([]*model.Resource, []model.FailedRequest) {
	locator := o.buildLocator(ctx, resources)
	arena := linkrewriter.NewArena()
	rw := linkrewriter.New(arena, locator)

	var unfound []model.FailedRequest
	out := make([]*model.Resource, 0, len(resources))
	for _, res := range resources {
		if err := ctx.Err(); err != nil {
			unfound = append(unfound, model.FailedRequest{Request: res.Request, Reason: err.Error()})
			continue
		}

		if err := o.parseOneWithTimeout(ctx, res, rw); err != nil {
			logging.ResourceFailure(ctx, "parse", res.Request.Key(), err)
			unfound = append(unfound, model.FailedRequest{Request: res.Request, Reason: err.Error()})
			continue
		}
		out = append(out, res)
	}
	return out, unfound
}

// parseOneWithTimeout bounds one resource's Layout Discovery + Parser +
// Link Rewriter pass to the configured parse timeout (spec.md §5 default
// 30s), the same way the Fetcher bounds one resource's download.
func (o *Orchestrator) parseOneWithTimeout(ctx context.Context, res *model.Resource, rw *linkrewriter.Rewriter) error {
	pctx, cancel := context.WithTimeout(ctx, o.Config.ParseTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.parseOne(res, rw) }()

	select {
	case err := <-done:
		return err
	case <-pctx.Done():
		return pctx.Err()
	}
}

// parseOne runs Layout Discovery then the Scripture or Helps Parser,
// dispatching on Kind the way the Pipeline Orchestrator is specified to.
// Words/Academy resources have no chapter/verse body of their own — their
// category entries are read on demand by the Link Rewriter via Locator —
// so layout discovery is all they need here.
func (o *Orchestrator) parseOne(res *model.Resource, rw *linkrewriter.Rewriter) error {
	if err := layout.Discover(res); err != nil {
		return err
	}

	switch res.Kind {
	case model.KindScripture:
		return o.parseScripture(res)
	case model.KindWords, model.KindAcademy:
		return nil
	default:
		return o.parseHelps(res, rw)
	}
}

func (o *Orchestrator) parseScripture(res *model.Resource) error {
	if len(res.ContentFiles) == 0 {
		return &errs.ParseError{Message: "no scripture content files found"}
	}

	tree := &model.ScriptureTree{Chapters: map[int]*model.ChapterBlock{}}
	for _, path := range res.ContentFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return &errs.ParseError{Path: path, Message: err.Error(), Err: err}
		}
		part, err := scripture.Parse(data)
		if err != nil {
			return err
		}
		if tree.Header == "" {
			tree.Header = part.Header
		}
		for ch, block := range part.Chapters {
			tree.Chapters[ch] = block
		}
	}
	res.Scripture = tree
	return nil
}

func (o *Orchestrator) parseHelps(res *model.Resource, rw *linkrewriter.Rewriter) error {
	tree, err := helps.ParseChapterVerseHelps(res)
	if err != nil {
		return err
	}
	rewriteHelpsTree(tree, rw, res)
	res.Helps = tree
	return nil
}

// rewriteHelpsTree runs the Link Rewriter over every markdown body in
// tree, in place.
func rewriteHelpsTree(tree *model.HelpsTree, rw *linkrewriter.Rewriter, res *model.Resource) {
	if tree.BookIntro != nil {
		tree.BookIntro.Body = rw.Rewrite(res, tree.BookIntro.Body)
	}
	for _, ch := range tree.Chapters {
		if ch.Intro != nil {
			ch.Intro.Body = rw.Rewrite(res, ch.Intro.Body)
		}
		for _, doc := range ch.PerVerse {
			doc.Body = rw.Rewrite(res, doc.Body)
		}
	}
}

// buildLocator seeds a dirLocator with every already-acquired resource's
// directory, then best-effort fetches each helps language's tw/ta
// siblings so transitive rc:// resolution has a directory to read from.
func (o *Orchestrator) buildLocator(ctx context.Context, resources []*model.Resource) *dirLocator {
	loc := newDirLocator()
	for _, res := range resources {
		loc.set(res.Request.LangCode, res.Request.ResourceType, res.Dir)
	}

	langs := map[string]bool{}
	for _, res := range resources {
		switch res.Kind {
		case model.KindNotes, model.KindQuestions, model.KindCommentary:
			langs[res.Request.LangCode] = true
		}
	}

	var wg sync.WaitGroup
	for lang := range langs {
		for _, rt := range []string{"tw", "ta"} {
			if _, ok := loc.Dir(lang, rt); ok {
				continue
			}
			wg.Add(1)
			go func(lang, rt string) {
				defer wg.Done()
				o.fetchAuxiliary(ctx, lang, rt, loc)
			}(lang, rt)
		}
	}
	wg.Wait()
	return loc
}

func (o *Orchestrator) fetchAuxiliary(ctx context.Context, lang, resourceType string, loc *dirLocator) {
	req := model.ResourceRequest{LangCode: lang, ResourceType: resourceType}
	locs, err := o.Catalog.Lookup(req)
	if err != nil || len(locs) == 0 {
		return
	}

	fctx, cancel := context.WithTimeout(ctx, o.Config.FetchTimeout)
	defer cancel()

	dir := o.resourceDir(req)
	if err := o.Fetcher.Acquire(fctx, locs[0], dir); err != nil {
		logging.ResourceFailure(ctx, "fetch-auxiliary", req.Key(), err)
		return
	}
	loc.set(lang, resourceType, dir)
}

// runAssemble implements step 4, bounded by the configured assemble
// timeout the same way parseOneWithTimeout bounds a parse; the Assembler
// itself does no I/O, so exceeding it can only happen under pathological
// input sizes.
func (o *Orchestrator) runAssemble(ctx context.Context, resources []*model.Resource, cfg model.AssemblyConfig, unfound []model.FailedRequest) (*model.Document, error) {
	actx, cancel := context.WithTimeout(ctx, o.Config.AssembleTimeout)
	defer cancel()
	if err := actx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		doc *model.Document
		err error
	}
	done := make(chan result, 1)
	go func() {
		doc, err := o.Assembler.Assemble(resources, cfg, unfound)
		done <- result{doc, err}
	}()

	select {
	case r := <-done:
		return r.doc, r.err
	case <-actx.Done():
		return nil, actx.Err()
	}
}

// runConvert implements step 5: optional external conversion to PDF/EPUB/
// DOCX. Per spec.md §7, a ConverterError never fails the request — the
// document is still delivered as HTML with the failing format simply
// absent from doc.Formats.
func (o *Orchestrator) runConvert(ctx context.Context, taskID string, doc *model.Document, cfg model.AssemblyConfig) {
	if o.Converter == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, o.Config.ConvertTimeout)
	defer cancel()

	outDir := o.Config.OutputDir
	if outDir == "" {
		outDir = o.Config.WorkingDir
	}
	for _, err := range o.Converter.Convert(cctx, doc, cfg, outDir) {
		logging.ResourceFailure(ctx, "convert", taskID, err)
	}
}

// dirLocator implements linkrewriter.Locator over a set of resource
// directories discovered at task-run time.
type dirLocator struct {
	mu   sync.RWMutex
	dirs map[string]string
}

func newDirLocator() *dirLocator { return &dirLocator{dirs: map[string]string{}} }

func (l *dirLocator) set(langCode, resourceType, dir string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.dirs[langCode+"/"+resourceType] = dir
}

func (l *dirLocator) Dir(langCode, resourceType string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	dir, ok := l.dirs[langCode+"/"+resourceType]
	return dir, ok
}
