package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/exp/slices"

	"confvault/internal/apperr"
	"confvault/internal/jsonedit"
	"confvault/internal/objstore"
	"confvault/internal/pattern"
	"confvault/internal/text"
)

// FindOptions tunes a Find call. The zero value fetches content and
// returns every match.
type FindOptions struct {
	// WithoutContent returns entries with their paths and types only.
	WithoutContent bool
	// MaxEntries caps the result size. Zero means unlimited.
	MaxEntries int
	// Query is a JSON pointer or JSON path evaluated against the content
	// of matching JSON entries.
	Query string
}

// Find returns the entries matching a path pattern at a revision, in path
// order. A revision beyond the head yields an empty result, not an error.
func (r *Repository) Find(ctx context.Context, rev Revision, pathPattern string, opts FindOptions) (*orderedmap.OrderedMap[string, Entry], error) {
	release, err := r.acquireWorker(ctx, "find")
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(rev, pathPattern, opts)
}

func (r *Repository) findLocked(rev Revision, pathPattern string, opts FindOptions) (*orderedmap.OrderedMap[string, Entry], error) {
	result := orderedmap.New[string, Entry]()

	head := Revision(r.head.Load())
	normalized, err := normalize(rev, head)
	if err != nil {
		if rev > 0 && rev > head {
			// Callers probing future revisions get an empty result.
			return result, nil
		}
		return nil, err
	}

	// The root itself is not part of any tree walk.
	if pathPattern == "/" {
		result.Set("/", Entry{Path: "/", Type: EntryDirectory, Revision: normalized})
		return result, nil
	}

	pat, err := pattern.Compile(pathPattern)
	if err != nil {
		return nil, err
	}

	treeID, err := r.treeAt(normalized)
	if err != nil {
		return nil, err
	}

	walkErr := objstore.Walk(r.store, treeID, func(path string, te objstore.TreeEntry) (bool, error) {
		full := "/" + path
		if pat.Matches(full) {
			entry, err := r.toEntry(full, te, normalized, opts)
			if err != nil {
				return false, err
			}
			result.Set(full, entry)
			if opts.MaxEntries > 0 && result.Len() >= opts.MaxEntries {
				return false, objstore.ErrStopWalk
			}
		}
		return te.Type == objstore.TypeTree && pat.MatchesPrefix(full), nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return result, nil
}

func (r *Repository) toEntry(path string, te objstore.TreeEntry, rev Revision, opts FindOptions) (Entry, error) {
	if te.Type == objstore.TypeTree {
		return Entry{Path: path, Type: EntryDirectory, Revision: rev}, nil
	}
	entry := Entry{Path: path, Type: EntryTypeFromPath(path), Revision: rev}
	if opts.WithoutContent {
		return entry, nil
	}
	content, err := r.store.GetTyped(objstore.TypeBlob, te.ID)
	if err != nil {
		return Entry{}, &apperr.StorageError{Op: "load entry content", Err: err}
	}
	if entry.Type == EntryJSON && opts.Query != "" {
		fragment, err := jsonedit.Query(content, opts.Query)
		if err != nil {
			return Entry{}, err
		}
		content = fragment
	}
	entry.Content = string(content)
	return entry, nil
}

// Get returns a single entry, optionally narrowed by a JSON query.
func (r *Repository) Get(ctx context.Context, rev Revision, path, query string) (Entry, error) {
	if err := ValidateFilePath(path); err != nil {
		return Entry{}, err
	}
	normalized, err := r.Normalize(rev)
	if err != nil {
		return Entry{}, err
	}
	entries, err := r.Find(ctx, normalized, path, FindOptions{Query: query, MaxEntries: 1})
	if err != nil {
		return Entry{}, err
	}
	entry, ok := entries.Get(path)
	if !ok {
		return Entry{}, &apperr.EntryNotFoundError{Revision: int64(normalized), Path: path}
	}
	return entry, nil
}

// History returns the commits between two revisions whose changes touch a
// path pattern, ordered the way the revisions were given. maxCommits of
// zero means unlimited.
func (r *Repository) History(ctx context.Context, from, to Revision, pathPattern string, maxCommits int) ([]Commit, error) {
	pat, err := pattern.Compile(pathPattern)
	if err != nil {
		return nil, err
	}

	release, err := r.acquireWorker(ctx, "history")
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()

	head := Revision(r.head.Load())
	fromRev, err := normalize(from, head)
	if err != nil {
		return nil, err
	}
	toRev, err := normalize(to, head)
	if err != nil {
		return nil, err
	}
	rng := RevisionRange{From: fromRev, To: toRev, Ascending: fromRev <= toRev}
	lo, hi := fromRev, toRev
	if !rng.Ascending {
		lo, hi = toRev, fromRev
	}

	var commits []Commit
	for rev := hi; rev >= lo; rev-- {
		if maxCommits > 0 && len(commits) >= maxCommits {
			break
		}
		include := false
		if rev == Init && strings.Contains(pathPattern, "/**") {
			// The initial commit is part of every recursive history even
			// when it introduced nothing.
			include = true
		} else {
			entries, err := r.compareTreesLocked(rev-1, rev)
			if err != nil {
				return nil, err
			}
			for _, e := range entries {
				if pat.Matches("/" + e.Path()) {
					include = true
					break
				}
			}
		}
		if include {
			c, err := r.loadCommitLocked(rev)
			if err != nil {
				return nil, err
			}
			commits = append(commits, c)
		}
	}

	if rng.Ascending {
		for i, j := 0, len(commits)-1; i < j; i, j = i+1, j-1 {
			commits[i], commits[j] = commits[j], commits[i]
		}
	}
	return commits, nil
}

// Diff returns the changes that transform revision from into revision to,
// keyed by path. Modifications come back as patches.
func (r *Repository) Diff(ctx context.Context, from, to Revision, pathPattern string) (*orderedmap.OrderedMap[string, Change], error) {
	pat, err := pattern.Compile(pathPattern)
	if err != nil {
		return nil, err
	}

	release, err := r.acquireWorker(ctx, "diff")
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()

	head := Revision(r.head.Load())
	fromRev, err := normalize(from, head)
	if err != nil {
		return nil, err
	}
	toRev, err := normalize(to, head)
	if err != nil {
		return nil, err
	}

	entries, err := r.compareTreesLocked(fromRev, toRev)
	if err != nil {
		return nil, err
	}
	filtered := entries[:0:0]
	for _, e := range entries {
		if pat.Matches("/" + e.Path()) {
			filtered = append(filtered, e)
		}
	}
	return r.toChangeMap(filtered)
}

// PreviewDiff applies changes against a base revision without committing
// and returns what a subsequent Diff would report.
func (r *Repository) PreviewDiff(ctx context.Context, baseRevision Revision, changes []Change) (*orderedmap.OrderedMap[string, Change], error) {
	for _, c := range changes {
		if err := validateChange(c); err != nil {
			return nil, err
		}
	}

	release, err := r.acquireWorker(ctx, "previewDiff")
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()

	head := Revision(r.head.Load())
	base, err := normalize(baseRevision, head)
	if err != nil {
		return nil, err
	}
	treeID, err := r.treeAt(base)
	if err != nil {
		return nil, err
	}
	files, err := objstore.Flatten(r.store, treeID)
	if err != nil {
		return nil, err
	}

	before := newWorkingTree(r.store, files)
	after := before.clone()
	if _, err := after.apply(changes); err != nil {
		return nil, err
	}

	entries := diffFlat(before.files, after.files)
	return r.toChangeMap(entries)
}

// FindLatestRevision returns the head revision when a revision after
// lastKnown touched the pattern, or zero when nothing has.
func (r *Repository) FindLatestRevision(ctx context.Context, lastKnown Revision, pathPattern string) (Revision, error) {
	pat, err := pattern.Compile(pathPattern)
	if err != nil {
		return 0, err
	}

	release, err := r.acquireWorker(ctx, "findLatestRevision")
	if err != nil {
		return 0, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()

	normalized, err := normalize(lastKnown, Revision(r.head.Load()))
	if err != nil {
		return 0, err
	}
	return r.findLatestRevisionLocked(normalized, pat)
}

// findLatestRevisionLocked reports the head revision when anything matching
// the pattern changed after lastKnown, zero otherwise. lastKnown is already
// normalized; the caller holds at least the read lock.
func (r *Repository) findLatestRevisionLocked(lastKnown Revision, pat *pattern.Pattern) (Revision, error) {
	head := Revision(r.head.Load())
	if lastKnown == head {
		return 0, nil
	}

	if lastKnown == Init {
		// Comparing against the initial commit degenerates to existence:
		// anything matching now was created after it.
		entries, err := r.findLocked(head, pat.String(), FindOptions{WithoutContent: true, MaxEntries: 1})
		if err != nil {
			return 0, err
		}
		if entries.Len() > 0 {
			return head, nil
		}
		return 0, nil
	}

	diff, err := r.compareTreesLocked(lastKnown, head)
	if err != nil {
		return 0, err
	}
	for _, e := range diff {
		if pat.Matches("/" + e.Path()) {
			return head, nil
		}
	}
	return 0, nil
}

// Watch blocks until a revision after lastKnown touches the pattern, the
// timeout elapses, the context is cancelled, or the repository closes. A
// timeout is reported as revision zero with no error.
func (r *Repository) Watch(ctx context.Context, lastKnown Revision, pathPattern string, timeout time.Duration) (Revision, error) {
	pat, err := pattern.Compile(pathPattern)
	if err != nil {
		return 0, err
	}

	release, err := r.acquireWorker(ctx, "watch")
	if err != nil {
		return 0, err
	}

	r.mu.RLock()
	normalized, err := normalize(lastKnown, Revision(r.head.Load()))
	if err != nil {
		r.mu.RUnlock()
		release()
		return 0, err
	}
	// Double-check before registering: a commit that already satisfies
	// the watch must not leave the caller waiting.
	latest, err := r.findLatestRevisionLocked(normalized, pat)
	if err != nil {
		r.mu.RUnlock()
		release()
		return 0, err
	}
	if latest != 0 {
		r.mu.RUnlock()
		release()
		return latest, nil
	}
	// Registration happens under the read lock so no commit can complete
	// between the check above and the waiter becoming visible.
	w, err := r.watcher.add(normalized, pat)
	r.mu.RUnlock()
	release()
	if err != nil {
		return 0, err
	}

	var timerCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case res := <-w.ch:
		return res.revision, res.err
	case <-timerCh:
		r.watcher.remove(w.id)
		return 0, nil
	case <-ctx.Done():
		r.watcher.remove(w.id)
		return 0, ctx.Err()
	}
}

// treeAt resolves the root tree of a normalized revision. Revision zero is
// the empty tree.
func (r *Repository) treeAt(rev Revision) (objstore.ID, error) {
	if rev == 0 {
		return objstore.ZeroID, nil
	}
	id, err := r.index.get(rev)
	if err != nil {
		return objstore.ZeroID, err
	}
	c, err := objstore.GetCommit(r.store, id)
	if err != nil {
		return objstore.ZeroID, &apperr.StorageError{Op: fmt.Sprintf("load commit at revision %d", rev), Err: err}
	}
	return c.Tree, nil
}

// compareTreesLocked diffs the trees of two normalized revisions, through
// the shared cache when one is configured.
func (r *Repository) compareTreesLocked(from, to Revision) ([]objstore.DiffEntry, error) {
	oldTree, err := r.treeAt(from)
	if err != nil {
		return nil, err
	}
	newTree, err := r.treeAt(to)
	if err != nil {
		return nil, err
	}
	compute := func() ([]objstore.DiffEntry, error) {
		return objstore.DiffTrees(r.store, oldTree, newTree)
	}
	if r.diffs == nil {
		return compute()
	}
	return r.diffs.compare(r.repoKey(), oldTree, newTree, compute)
}

func (r *Repository) loadCommitLocked(rev Revision) (Commit, error) {
	id, err := r.index.get(rev)
	if err != nil {
		return Commit{}, err
	}
	obj, err := objstore.GetCommit(r.store, id)
	if err != nil {
		return Commit{}, &apperr.StorageError{Op: fmt.Sprintf("load commit at revision %d", rev), Err: err}
	}
	msg, err := parseMessage(obj.Message)
	if err != nil {
		return Commit{}, err
	}
	return Commit{
		Revision: rev,
		Author:   Author{Name: obj.AuthorName, Email: obj.AuthorEmail},
		When:     time.Unix(obj.When, 0),
		Summary:  msg.Summary,
		Detail:   msg.Detail,
		Markup:   msg.Markup,
	}, nil
}

// toChangeMap translates tree differences into the changes a caller could
// commit to reproduce them. Additions come back as full upserts, removals
// as removes, and modifications as guarded patches; a modification whose
// paths differ is emitted as a rename followed by a patch.
func (r *Repository) toChangeMap(entries []objstore.DiffEntry) (*orderedmap.OrderedMap[string, Change], error) {
	result := orderedmap.New[string, Change]()
	put := func(c Change) error {
		if _, exists := result.Get(c.Path); exists {
			return &apperr.StorageError{Op: fmt.Sprintf("duplicate path in diff: %s", c.Path)}
		}
		result.Set(c.Path, c)
		return nil
	}

	for _, e := range entries {
		switch e.Kind {
		case objstore.DiffAdd:
			path := "/" + e.NewPath
			content, err := r.store.GetTyped(objstore.TypeBlob, e.NewID)
			if err != nil {
				return nil, &apperr.StorageError{Op: "load added content", Err: err}
			}
			var c Change
			if EntryTypeFromPath(path) == EntryJSON {
				c = UpsertJSON(path, string(content))
			} else {
				c = UpsertText(path, string(content))
			}
			if err := put(c); err != nil {
				return nil, err
			}

		case objstore.DiffDelete:
			if err := put(Remove("/" + e.OldPath)); err != nil {
				return nil, err
			}

		case objstore.DiffModify:
			oldPath, newPath := "/"+e.OldPath, "/"+e.NewPath
			if oldPath != newPath {
				if err := put(Rename(oldPath, newPath)); err != nil {
					return nil, err
				}
			}
			oldContent, err := r.store.GetTyped(objstore.TypeBlob, e.OldID)
			if err != nil {
				return nil, &apperr.StorageError{Op: "load old content", Err: err}
			}
			newContent, err := r.store.GetTyped(objstore.TypeBlob, e.NewID)
			if err != nil {
				return nil, &apperr.StorageError{Op: "load new content", Err: err}
			}
			c, err := modifyChange(newPath, oldContent, newContent)
			if err != nil {
				return nil, err
			}
			if err := put(c); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

func modifyChange(path string, oldContent, newContent []byte) (Change, error) {
	if EntryTypeFromPath(path) == EntryJSON {
		patch, err := jsonedit.GeneratePatch(oldContent, newContent, jsonedit.ReplaceSafe)
		if err != nil {
			return Change{}, &apperr.StorageError{Op: "generate JSON patch", Err: err}
		}
		return ApplyJSONPatch(path, string(patch)), nil
	}
	patch := text.GeneratePatch(path, string(oldContent), string(newContent))
	return ApplyTextPatch(path, patch), nil
}

// diffFlat compares two flat file maps without touching stored trees. Used
// by previews, where the modified tree is never written.
func diffFlat(before, after map[string]objstore.ID) []objstore.DiffEntry {
	paths := map[string]bool{}
	for p := range before {
		paths[p] = true
	}
	for p := range after {
		paths[p] = true
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	slices.Sort(sorted)

	var entries []objstore.DiffEntry
	for _, p := range sorted {
		oldID, inOld := before[p]
		newID, inNew := after[p]
		switch {
		case inOld && !inNew:
			entries = append(entries, objstore.DiffEntry{Kind: objstore.DiffDelete, OldPath: p, OldID: oldID})
		case !inOld && inNew:
			entries = append(entries, objstore.DiffEntry{Kind: objstore.DiffAdd, NewPath: p, NewID: newID})
		case oldID != newID:
			entries = append(entries, objstore.DiffEntry{
				Kind: objstore.DiffModify, OldPath: p, NewPath: p, OldID: oldID, NewID: newID,
			})
		}
	}
	return entries
}
