package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/golang/groupcache"
)

// enumCacheBytes bounds each group's in-memory LRU. The cached values are a
// handful of short string lists, so this is generous headroom, not a tuned
// limit.
const enumCacheBytes = 1 << 20

var enumCacheSeq int64

// EnumCache memoizes the Catalog Resolver's Languages/ResourceTypes/
// BookCodes enumeration behind groupcache.Group: a read-through cache with
// built-in request-coalescing (concurrent callers for the same key block on
// one computation, per groupcache's singleflight) over data that only
// changes as often as the catalog itself (spec.md §4.2's staleness window).
// Used by internal/api's GET /language_codes, /resource_types, and
// /resource_codes handlers, which would otherwise re-walk the full catalog
// tree on every request.
type EnumCache struct {
	cat     atomic.Pointer[Catalog]
	version int64

	languages     *groupcache.Group
	resourceTypes *groupcache.Group
	bookCodes     *groupcache.Group
}

// NewEnumCache builds an EnumCache around cat. Group names are suffixed with
// a process-wide sequence number so repeated construction — as in tests
// that spin up several servers in one process — never collides with
// groupcache's global group registry, which panics on a duplicate name.
func NewEnumCache(cat *Catalog) *EnumCache {
	id := atomic.AddInt64(&enumCacheSeq, 1)

	e := &EnumCache{version: cat.version}
	e.cat.Store(cat)

	e.languages = newEnumGroup(fmt.Sprintf("weaver-languages-%d", id), func() []string {
		return e.cat.Load().Languages()
	})
	e.resourceTypes = newEnumGroup(fmt.Sprintf("weaver-resourcetypes-%d", id), func() []string {
		return e.cat.Load().ResourceTypes()
	})
	e.bookCodes = newEnumGroup(fmt.Sprintf("weaver-bookcodes-%d", id), func() []string {
		return e.cat.Load().BookCodes()
	})
	return e
}

func newEnumGroup(name string, compute func() []string) *groupcache.Group {
	return groupcache.NewGroup(name, enumCacheBytes, groupcache.GetterFunc(
		func(ctx context.Context, key string, dest groupcache.Sink) error {
			data, err := json.Marshal(compute())
			if err != nil {
				return err
			}
			return dest.SetBytes(data)
		}))
}

// Swap replaces the backing Catalog, e.g. after the Asset Fetcher reloads a
// stale catalog file. Cached entries keyed to the old version are simply
// never looked up again; they age out of the LRU on their own.
func (e *EnumCache) Swap(cat *Catalog) {
	e.cat.Store(cat)
	atomic.StoreInt64(&e.version, cat.version)
}

func (e *EnumCache) key(suffix string) string {
	return fmt.Sprintf("%d:%s", atomic.LoadInt64(&e.version), suffix)
}

// Languages returns the cached, deduplicated, sorted language codes.
func (e *EnumCache) Languages(ctx context.Context) ([]string, error) {
	return e.fetch(ctx, e.languages, e.key("languages"))
}

// ResourceTypes returns the cached, deduplicated, sorted resource-type codes.
func (e *EnumCache) ResourceTypes(ctx context.Context) ([]string, error) {
	return e.fetch(ctx, e.resourceTypes, e.key("resourcetypes"))
}

// BookCodes returns the cached, deduplicated, sorted book codes.
func (e *EnumCache) BookCodes(ctx context.Context) ([]string, error) {
	return e.fetch(ctx, e.bookCodes, e.key("bookcodes"))
}

func (e *EnumCache) fetch(ctx context.Context, g *groupcache.Group, key string) ([]string, error) {
	var data []byte
	if err := g.Get(ctx, key, groupcache.AllocatingByteSliceSink(&data)); err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
