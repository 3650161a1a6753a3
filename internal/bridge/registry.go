package bridge

import (
	"fmt"
	"sync"

	"github.com/goodtune/kfocus/internal/session"
	lru "github.com/hashicorp/golang-lru/v2"
)

// tabRegistry caches the last known state of browser tabs. Tabs that have
// not been seen recently fall out of the cache and look like closed tabs.
type tabRegistry struct {
	mu     sync.Mutex
	cache  *lru.Cache[int, session.Tab]
	active int
	known  bool
}

func newTabRegistry(size int) (*tabRegistry, error) {
	cache, err := lru.New[int, session.Tab](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create tab cache: %w", err)
	}
	return &tabRegistry{cache: cache}, nil
}

func (r *tabRegistry) get(id int) (session.Tab, bool) {
	return r.cache.Get(id)
}

func (r *tabRegistry) activeTab() (session.Tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.known {
		return session.Tab{}, false
	}
	return r.cache.Get(r.active)
}

// activate marks id as the focused tab. url may be empty when the shim did
// not include it.
func (r *tabRegistry) activate(id int, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.known && r.active != id {
		if prev, ok := r.cache.Peek(r.active); ok {
			prev.Active = false
			r.cache.Add(prev.ID, prev)
		}
	}

	tab, _ := r.cache.Peek(id)
	tab.ID = id
	tab.Active = true
	if url != "" {
		tab.URL = url
	}
	r.cache.Add(id, tab)
	r.active = id
	r.known = true
}

// update merges tab into the cached state and returns the result.
func (r *tabRegistry) update(tab session.Tab) session.Tab {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached, ok := r.cache.Peek(tab.ID)
	if ok {
		if tab.URL == "" {
			tab.URL = cached.URL
		}
		if !tab.Active && r.known && r.active == tab.ID {
			tab.Active = cached.Active
		}
	}
	if tab.Active {
		r.active = tab.ID
		r.known = true
	}
	r.cache.Add(tab.ID, tab)
	return tab
}

func (r *tabRegistry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Remove(id)
	if r.known && r.active == id {
		r.known = false
	}
}

// replace swaps the whole registry for a snapshot.
func (r *tabRegistry) replace(tabs []session.Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache.Purge()
	r.known = false
	for _, tab := range tabs {
		r.cache.Add(tab.ID, tab)
		if tab.Active {
			r.active = tab.ID
			r.known = true
		}
	}
}
