package repo

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"confvault/internal/objstore"
)

// DiffCache memoizes tree comparisons across repositories. Comparing two
// large trees is the most expensive read the engine does and history
// walks repeat the same pairs constantly.
type DiffCache struct {
	cache *lru.Cache[string, []objstore.DiffEntry]

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

// NewDiffCache creates a cache holding up to size tree pairs.
func NewDiffCache(size int) (*DiffCache, error) {
	cache, err := lru.New[string, []objstore.DiffEntry](size)
	if err != nil {
		return nil, err
	}
	return &DiffCache{cache: cache, inflight: map[string]*sync.Mutex{}}, nil
}

// compare returns the diff between two trees, computing it at most once
// per pair even under concurrent callers. The key carries the repository
// identity because the cache is shared.
func (dc *DiffCache) compare(repoKey string, oldID, newID objstore.ID, compute func() ([]objstore.DiffEntry, error)) ([]objstore.DiffEntry, error) {
	key := fmt.Sprintf("%s:%s..%s", repoKey, oldID, newID)

	if entries, ok := dc.cache.Get(key); ok {
		return entries, nil
	}

	// One lock per key: concurrent requests for the same pair compute
	// once, requests for different pairs proceed in parallel.
	dc.mu.Lock()
	keyLock, ok := dc.inflight[key]
	if !ok {
		keyLock = &sync.Mutex{}
		dc.inflight[key] = keyLock
	}
	dc.mu.Unlock()

	keyLock.Lock()
	defer func() {
		keyLock.Unlock()
		dc.mu.Lock()
		delete(dc.inflight, key)
		dc.mu.Unlock()
	}()

	if entries, ok := dc.cache.Get(key); ok {
		return entries, nil
	}
	entries, err := compute()
	if err != nil {
		return nil, err
	}
	dc.cache.Add(key, entries)
	return entries, nil
}
