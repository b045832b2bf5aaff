// Package linkrewriter implements the Link Rewriter: converting in-
// content rc:// cross-reference tokens into intra-document anchors or
// external URLs, and transitively resolving the help entries they name.
//
// The resolved-entries table is an id-indexed arena, per DESIGN NOTES §9:
// cross-references become small integer ids, and a token that resolves to
// an id already present in the arena is never re-fetched or re-walked —
// this is what keeps a tw<->ta reference cycle from recursing forever.
package linkrewriter

import (
	"sync"

	"github.com/scriptoria/weaver/internal/model"
)

// Arena is the process-wide (per document-build) table of every help
// entry reached while rewriting any resource's text.
type Arena struct {
	mu      sync.Mutex
	byToken map[string]int
	entries map[int]model.HelpEntry
	next    int
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{byToken: map[string]int{}, entries: map[int]model.HelpEntry{}}
}

// Reserve returns the id for token. fresh is true the first time token is
// seen; callers must populate the entry with Set only when fresh is true,
// and must not follow the token's own references when fresh is false.
func (a *Arena) Reserve(token string) (id int, fresh bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id, ok := a.byToken[token]; ok {
		return id, false
	}
	id = a.next
	a.next++
	a.byToken[token] = id
	return id, true
}

// Set records the resolved entry for id.
func (a *Arena) Set(id int, entry model.HelpEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries[id] = entry
}

// Get returns the entry for id, if resolved.
func (a *Arena) Get(id int) (model.HelpEntry, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e, ok := a.entries[id]
	return e, ok
}

// Entries returns a snapshot of every id -> entry resolved so far, for
// Resource.ResolvedHelps.
func (a *Arena) Entries() map[int]model.HelpEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int]model.HelpEntry, len(a.entries))
	for id, e := range a.entries {
		out[id] = e
	}
	return out
}
