package repo

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"confvault/internal/apperr"
	"confvault/internal/objstore"
)

// Commit applies changes on top of baseRevision and appends a new revision.
// baseRevision must normalize to the current head; anything older means the
// caller raced another writer and is reported as a conflict.
func (r *Repository) Commit(ctx context.Context, baseRevision Revision, author Author, summary, detail string, markup Markup, changes []Change) (Commit, error) {
	if err := validateCommitInput(summary, changes, false); err != nil {
		return Commit{}, err
	}
	if author == (Author{}) {
		author = UnknownAuthor
	}
	if markup == "" {
		markup = MarkupPlaintext
	}

	release, err := r.acquireWorker(ctx, "commit")
	if err != nil {
		return Commit{}, err
	}
	defer release()

	r.mu.Lock()
	if err := r.closeError(); err != nil {
		r.mu.Unlock()
		return Commit{}, err
	}
	head := Revision(r.head.Load())
	base, err := normalize(baseRevision, head)
	if err != nil {
		r.mu.Unlock()
		return Commit{}, err
	}
	if base != head {
		r.mu.Unlock()
		return Commit{}, &apperr.ChangeConflictError{
			Reason: fmt.Sprintf("stale base revision %d (head: %d)", base, head),
		}
	}
	result, changedPaths, err := r.commit0(author, summary, detail, markup, changes, false, time.Now())
	r.mu.Unlock()
	if err != nil {
		return Commit{}, err
	}

	// Watchers are completed outside the lock so a slow watcher can never
	// stall the writer.
	r.watcher.notify(result.Revision, changedPaths)

	r.logger.Info("commit",
		zap.Int64("revision", int64(result.Revision)),
		zap.String("author", author.Email),
		zap.Int("changes", len(changes)))
	return result, nil
}

// replay appends a commit preserving the metadata of an existing one. It is
// the clone path; empty commits are tolerated when allowEmpty is set.
func (r *Repository) replay(c Commit, changes []Change, allowEmpty bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.closeError(); err != nil {
		return err
	}
	head := Revision(r.head.Load())
	if c.Revision != head+1 {
		return &apperr.StorageError{
			Op: fmt.Sprintf("replay out of order: revision %d on head %d", c.Revision, head),
		}
	}
	_, _, err := r.commit0(c.Author, c.Summary, c.Detail, c.Markup, changes, allowEmpty, c.When)
	return err
}

// commit0 is the single writer. The caller holds the write lock.
func (r *Repository) commit0(author Author, summary, detail string, markup Markup, changes []Change, allowEmpty bool, when time.Time) (Commit, []string, error) {
	head := Revision(r.head.Load())

	var parentID, parentTree objstore.ID
	files := map[string]objstore.ID{}
	if head >= Init {
		var err error
		if parentID, err = r.index.get(head); err != nil {
			return Commit{}, nil, err
		}
		parent, err := objstore.GetCommit(r.store, parentID)
		if err != nil {
			return Commit{}, nil, &apperr.StorageError{Op: "load parent commit", Err: err}
		}
		parentTree = parent.Tree
		if files, err = objstore.Flatten(r.store, parent.Tree); err != nil {
			return Commit{}, nil, &apperr.StorageError{Op: "load parent tree", Err: err}
		}
	}

	wt := newWorkingTree(r.store, files)
	changedPaths, err := wt.apply(changes)
	if err != nil {
		return Commit{}, nil, err
	}

	newTree, err := wt.write()
	if err != nil {
		return Commit{}, nil, &apperr.StorageError{Op: "write tree", Err: err}
	}
	// Skipped no-op changes can leave the tree untouched even when the
	// change list was not empty, so the tree id is the final word.
	if newTree == parentTree && !allowEmpty {
		return Commit{}, nil, &apperr.RedundantChangeError{
			Revision: int64(head),
			Reason:   "changes did not change anything",
		}
	}

	newRevision := head + 1
	// Commit times are stored with second precision.
	when = time.Unix(when.Unix(), 0)

	message, err := encodeMessage(&commitMessage{
		Summary:  summary,
		Detail:   detail,
		Markup:   markup,
		Revision: newRevision,
	})
	if err != nil {
		return Commit{}, nil, err
	}

	id, err := objstore.PutCommit(r.store, &objstore.CommitObject{
		Tree:        newTree,
		Parent:      parentID,
		AuthorName:  author.Name,
		AuthorEmail: author.Email,
		When:        when.Unix(),
		Message:     message,
	})
	if err != nil {
		return Commit{}, nil, &apperr.StorageError{Op: "write commit", Err: err}
	}

	if err := r.index.put(newRevision, id); err != nil {
		return Commit{}, nil, err
	}
	if err := r.refs.Update(objstore.HeadRef, id, parentID); err != nil {
		return Commit{}, nil, err
	}
	r.head.Store(int64(newRevision))

	return Commit{
		Revision: newRevision,
		Author:   author,
		When:     when,
		Summary:  summary,
		Detail:   detail,
		Markup:   markup,
	}, changedPaths, nil
}
