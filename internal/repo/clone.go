package repo

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"confvault/internal/apperr"
	"confvault/internal/objstore"
)

// cloneBatchSize is how many revisions are loaded from the source before
// they are replayed into the destination.
const cloneBatchSize = 16

// replayUnit is one source revision ready to be committed again.
type replayUnit struct {
	commit  Commit
	changes []Change
}

// CloneTo reproduces this repository's full history in a new repository at
// dstDir. The destination is removed again when cloning fails.
func (r *Repository) CloneTo(ctx context.Context, dstDir string, opts Options) (*Repository, error) {
	dst, err := Create(dstDir, opts, UnknownAuthor)
	if err != nil {
		return nil, err
	}

	if err := r.cloneInto(ctx, dst); err != nil {
		dst.closeNow()
		os.RemoveAll(dstDir)
		return nil, err
	}
	return dst, nil
}

func (r *Repository) cloneInto(ctx context.Context, dst *Repository) error {
	head := r.Head()
	for batchStart := Init + 1; batchStart <= head; batchStart += cloneBatchSize {
		batchEnd := batchStart + cloneBatchSize - 1
		if batchEnd > head {
			batchEnd = head
		}

		units, err := r.loadReplayBatch(ctx, batchStart, batchEnd)
		if err != nil {
			return err
		}
		for _, u := range units {
			if err := replayInto(dst, u); err != nil {
				return err
			}
		}
		r.logger.Debug("cloned batch",
			zap.Int64("from", int64(batchStart)), zap.Int64("to", int64(batchEnd)))
	}
	return nil
}

func (r *Repository) loadReplayBatch(ctx context.Context, from, to Revision) ([]replayUnit, error) {
	release, err := r.acquireWorker(ctx, "clone")
	if err != nil {
		return nil, err
	}
	defer release()

	r.mu.RLock()
	defer r.mu.RUnlock()

	units := make([]replayUnit, 0, to-from+1)
	for rev := from; rev <= to; rev++ {
		c, err := r.loadCommitLocked(rev)
		if err != nil {
			return nil, err
		}
		entries, err := r.compareTreesLocked(rev-1, rev)
		if err != nil {
			return nil, err
		}
		changes, err := r.toUpsertChanges(entries)
		if err != nil {
			return nil, err
		}
		units = append(units, replayUnit{commit: c, changes: changes})
	}
	return units, nil
}

// toUpsertChanges translates a diff into content-bearing changes. Patches
// are avoided so replaying never depends on patch application.
func (r *Repository) toUpsertChanges(entries []objstore.DiffEntry) ([]Change, error) {
	var changes []Change
	for _, e := range entries {
		switch e.Kind {
		case objstore.DiffDelete:
			changes = append(changes, Remove("/"+e.OldPath))
		default:
			path := "/" + e.NewPath
			content, err := r.store.GetTyped(objstore.TypeBlob, e.NewID)
			if err != nil {
				return nil, &apperr.StorageError{Op: "load content for clone", Err: err}
			}
			if EntryTypeFromPath(path) == EntryJSON {
				changes = append(changes, UpsertJSON(path, string(content)))
			} else {
				changes = append(changes, UpsertText(path, string(content)))
			}
		}
	}
	return changes, nil
}

// replayInto appends one source revision to the destination. The strict
// attempt keeps the redundancy check honest; historical empty commits are
// then retried with the check disabled.
func replayInto(dst *Repository, u replayUnit) error {
	err := dst.replay(u.commit, u.changes, false)
	var redundant *apperr.RedundantChangeError
	if errors.As(err, &redundant) {
		err = dst.replay(u.commit, u.changes, true)
	}
	return err
}
