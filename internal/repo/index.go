package repo

import (
	"fmt"
	"os"
	"sync"

	"confvault/internal/apperr"
	"confvault/internal/objstore"
)

const indexRecordSize = 32

// commitIndex maps revisions to commit ids through a dense file of raw
// 32-byte digests: revision r lives at offset (r-1)*32. The file is
// append-only; its length divided by the record size is the head revision.
type commitIndex struct {
	mu   sync.Mutex
	file *os.File
	head Revision
}

func openIndex(path string) (*commitIndex, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &apperr.StorageError{Op: "open commit index", Err: err}
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &apperr.StorageError{Op: "stat commit index", Err: err}
	}
	if info.Size()%indexRecordSize != 0 {
		file.Close()
		return nil, &apperr.StorageError{
			Op: fmt.Sprintf("commit index is corrupt: size %d is not a multiple of %d", info.Size(), indexRecordSize),
		}
	}
	return &commitIndex{file: file, head: Revision(info.Size() / indexRecordSize)}, nil
}

// headRevision returns the highest indexed revision, 0 when empty.
func (ci *commitIndex) headRevision() Revision {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	return ci.head
}

// get resolves a normalized revision to its commit id.
func (ci *commitIndex) get(rev Revision) (objstore.ID, error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if rev < Init || rev > ci.head {
		return objstore.ZeroID, &apperr.RevisionNotFoundError{Revision: int64(rev), Head: int64(ci.head)}
	}
	buf := make([]byte, indexRecordSize)
	if _, err := ci.file.ReadAt(buf, int64(rev-1)*indexRecordSize); err != nil {
		return objstore.ZeroID, &apperr.StorageError{Op: fmt.Sprintf("read commit index at revision %d", rev), Err: err}
	}
	id, err := objstore.IDFromRaw(buf)
	if err != nil {
		return objstore.ZeroID, &apperr.StorageError{Op: fmt.Sprintf("commit index record %d is corrupt", rev), Err: err}
	}
	return id, nil
}

// put appends the id of the next revision. rev must be exactly head+1.
func (ci *commitIndex) put(rev Revision, id objstore.ID) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if rev != ci.head+1 {
		return &apperr.StorageError{
			Op: fmt.Sprintf("commit index append out of order: revision %d, head %d", rev, ci.head),
		}
	}
	raw, err := id.Raw()
	if err != nil {
		return &apperr.StorageError{Op: "encode commit index record", Err: err}
	}
	if _, err := ci.file.WriteAt(raw, int64(rev-1)*indexRecordSize); err != nil {
		return &apperr.StorageError{Op: fmt.Sprintf("write commit index at revision %d", rev), Err: err}
	}
	if err := ci.file.Sync(); err != nil {
		return &apperr.StorageError{Op: "sync commit index", Err: err}
	}
	ci.head = rev
	return nil
}

// rebuild rewrites the whole index by walking the commit graph back from
// headID. Each commit's revision is taken from its message.
func (ci *commitIndex) rebuild(store *objstore.Store, headID objstore.ID) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	ids := map[Revision]objstore.ID{}
	var head Revision
	for id := headID; id != objstore.ZeroID; {
		commit, err := objstore.GetCommit(store, id)
		if err != nil {
			return &apperr.StorageError{Op: fmt.Sprintf("rebuild: load commit %s", id.Short()), Err: err}
		}
		msg, err := parseMessage(commit.Message)
		if err != nil {
			return &apperr.StorageError{Op: fmt.Sprintf("rebuild: commit %s", id.Short()), Err: err}
		}
		if msg.Revision < Init {
			return &apperr.StorageError{
				Op: fmt.Sprintf("rebuild: commit %s has no revision in its message", id.Short()),
			}
		}
		ids[msg.Revision] = id
		if msg.Revision > head {
			head = msg.Revision
		}
		id = commit.Parent
	}

	if err := ci.file.Truncate(0); err != nil {
		return &apperr.StorageError{Op: "rebuild: truncate commit index", Err: err}
	}
	for rev := Init; rev <= head; rev++ {
		id, ok := ids[rev]
		if !ok {
			return &apperr.StorageError{Op: fmt.Sprintf("rebuild: revision %d missing from commit graph", rev)}
		}
		raw, err := id.Raw()
		if err != nil {
			return &apperr.StorageError{Op: "rebuild: encode commit index record", Err: err}
		}
		if _, err := ci.file.WriteAt(raw, int64(rev-1)*indexRecordSize); err != nil {
			return &apperr.StorageError{Op: "rebuild: write commit index", Err: err}
		}
	}
	if err := ci.file.Sync(); err != nil {
		return &apperr.StorageError{Op: "rebuild: sync commit index", Err: err}
	}
	ci.head = head
	return nil
}

func (ci *commitIndex) close() error {
	ci.mu.Lock()
	defer ci.mu.Unlock()
	if ci.file == nil {
		return nil
	}
	err := ci.file.Close()
	ci.file = nil
	return err
}
