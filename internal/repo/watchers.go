package repo

import (
	"sync"

	"github.com/google/uuid"

	"confvault/internal/pattern"
)

// watchResult is what a waiter eventually receives: the revision that
// satisfied the watch, or the error that ended it.
type watchResult struct {
	revision Revision
	err      error
}

// waiter is a registered watch. Its channel is buffered so notification
// never blocks on a slow watcher.
type waiter struct {
	id        uuid.UUID
	lastKnown Revision
	pattern   *pattern.Pattern
	ch        chan watchResult
}

// commitWatchers tracks the watches waiting for a future commit. Matching
// waiters are collected under the lock and completed outside it.
type commitWatchers struct {
	mu      sync.Mutex
	waiters map[uuid.UUID]*waiter
	closed  bool
	cause   error
}

func newCommitWatchers() *commitWatchers {
	return &commitWatchers{waiters: map[uuid.UUID]*waiter{}}
}

// add registers a waiter. It fails immediately when the registry is
// already closed.
func (cw *commitWatchers) add(lastKnown Revision, pat *pattern.Pattern) (*waiter, error) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return nil, cw.cause
	}
	w := &waiter{
		id:        uuid.New(),
		lastKnown: lastKnown,
		pattern:   pat,
		ch:        make(chan watchResult, 1),
	}
	cw.waiters[w.id] = w
	return w, nil
}

// remove unregisters a waiter that timed out or was cancelled.
func (cw *commitWatchers) remove(id uuid.UUID) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	delete(cw.waiters, id)
}

// notify completes every waiter whose pattern matches one of the changed
// paths. Paths carry a leading slash.
func (cw *commitWatchers) notify(rev Revision, paths []string) {
	cw.mu.Lock()
	var matched []*waiter
	for _, w := range cw.waiters {
		if rev <= w.lastKnown {
			continue
		}
		for _, p := range paths {
			if w.pattern.Matches(p) {
				matched = append(matched, w)
				delete(cw.waiters, w.id)
				break
			}
		}
	}
	cw.mu.Unlock()

	for _, w := range matched {
		w.ch <- watchResult{revision: rev}
	}
}

// close fails every pending waiter with the given cause and rejects
// future registrations.
func (cw *commitWatchers) close(cause error) {
	cw.mu.Lock()
	if cw.closed {
		cw.mu.Unlock()
		return
	}
	cw.closed = true
	cw.cause = cause
	pending := make([]*waiter, 0, len(cw.waiters))
	for _, w := range cw.waiters {
		pending = append(pending, w)
	}
	cw.waiters = map[uuid.UUID]*waiter{}
	cw.mu.Unlock()

	for _, w := range pending {
		w.ch <- watchResult{err: cause}
	}
}
