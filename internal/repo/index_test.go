package repo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confvault/internal/apperr"
	"confvault/internal/objstore"
)

func newTestIndex(t *testing.T) *commitIndex {
	t.Helper()
	ci, err := openIndex(filepath.Join(t.TempDir(), "commits.idx"))
	require.NoError(t, err)
	t.Cleanup(func() { ci.close() })
	return ci
}

func testCommitID(t *testing.T, n byte) objstore.ID {
	t.Helper()
	raw := make([]byte, 32)
	raw[0] = n
	id, err := objstore.IDFromRaw(raw)
	require.NoError(t, err)
	return id
}

func TestIndexPutGet(t *testing.T) {
	ci := newTestIndex(t)
	assert.Equal(t, Revision(0), ci.headRevision())

	first := testCommitID(t, 1)
	second := testCommitID(t, 2)

	require.NoError(t, ci.put(1, first))
	require.NoError(t, ci.put(2, second))
	assert.Equal(t, Revision(2), ci.headRevision())

	got, err := ci.get(1)
	require.NoError(t, err)
	assert.Equal(t, first, got)
	got, err = ci.get(2)
	require.NoError(t, err)
	assert.Equal(t, second, got)

	t.Run("rejects out of order appends", func(t *testing.T) {
		var serr *apperr.StorageError
		assert.ErrorAs(t, ci.put(4, testCommitID(t, 4)), &serr)
		assert.ErrorAs(t, ci.put(2, testCommitID(t, 9)), &serr)
	})

	t.Run("rejects out of range reads", func(t *testing.T) {
		var nf *apperr.RevisionNotFoundError
		_, err := ci.get(3)
		assert.ErrorAs(t, err, &nf)
		_, err = ci.get(0)
		assert.ErrorAs(t, err, &nf)
	})
}

func TestIndexReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.idx")

	ci, err := openIndex(path)
	require.NoError(t, err)
	require.NoError(t, ci.put(1, testCommitID(t, 7)))
	require.NoError(t, ci.close())

	reopened, err := openIndex(path)
	require.NoError(t, err)
	defer reopened.close()

	assert.Equal(t, Revision(1), reopened.headRevision())
	got, err := reopened.get(1)
	require.NoError(t, err)
	assert.Equal(t, testCommitID(t, 7), got)
}

func TestOpenIndexCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.idx")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o644))

	_, err := openIndex(path)
	var serr *apperr.StorageError
	assert.ErrorAs(t, err, &serr)
}

func TestIndexRebuild(t *testing.T) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	store, err := objstore.New(db, objstore.Options{Root: filepath.Join(t.TempDir(), "objects")})
	require.NoError(t, err)
	defer store.Close()

	// A three-commit chain whose revisions live in the messages.
	var parent, head objstore.ID
	for rev := Revision(1); rev <= 3; rev++ {
		msg, err := encodeMessage(&commitMessage{Summary: "c", Markup: MarkupPlaintext, Revision: rev})
		require.NoError(t, err)
		head, err = objstore.PutCommit(store, &objstore.CommitObject{
			Parent:      parent,
			AuthorName:  "a",
			AuthorEmail: "a@example.com",
			Message:     msg,
		})
		require.NoError(t, err)
		parent = head
	}

	ci := newTestIndex(t)
	require.NoError(t, ci.put(1, testCommitID(t, 1)))

	require.NoError(t, ci.rebuild(store, head))
	assert.Equal(t, Revision(3), ci.headRevision())

	got, err := ci.get(3)
	require.NoError(t, err)
	assert.Equal(t, head, got)
}
