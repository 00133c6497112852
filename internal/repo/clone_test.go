package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneTo(t *testing.T) {
	src := newTestRepo(t)
	ctx := context.Background()

	mustCommit(t, src, "seed",
		UpsertJSON("/cfg.json", `{"v":1}`),
		UpsertText("/doc.txt", "one\n"))
	mustCommit(t, src, "evolve",
		UpsertJSON("/cfg.json", `{"v":2}`),
		Remove("/doc.txt"),
		UpsertText("/other.txt", "two\n"))
	mustCommit(t, src, "rename", Rename("/other.txt", "/renamed.txt"))

	dst, err := src.CloneTo(ctx, t.TempDir(), Options{Project: "proj", Name: "copy"})
	require.NoError(t, err)
	defer closeRepo(t, dst)

	t.Run("heads match", func(t *testing.T) {
		assert.Equal(t, src.Head(), dst.Head())
	})

	t.Run("content matches at every revision", func(t *testing.T) {
		for rev := Init; rev <= src.Head(); rev++ {
			srcEntries, err := src.Find(ctx, rev, "/**", FindOptions{})
			require.NoError(t, err)
			dstEntries, err := dst.Find(ctx, rev, "/**", FindOptions{})
			require.NoError(t, err)

			require.Equal(t, srcEntries.Len(), dstEntries.Len(), "revision %d", rev)
			for pair := srcEntries.Oldest(); pair != nil; pair = pair.Next() {
				got, ok := dstEntries.Get(pair.Key)
				require.True(t, ok, "revision %d path %s", rev, pair.Key)
				assert.Equal(t, pair.Value.Content, got.Content, "revision %d path %s", rev, pair.Key)
			}
		}
	})

	t.Run("commit metadata is preserved", func(t *testing.T) {
		srcCommits, err := src.History(ctx, Head, Init, "/**", 0)
		require.NoError(t, err)
		dstCommits, err := dst.History(ctx, Head, Init, "/**", 0)
		require.NoError(t, err)

		require.Equal(t, len(srcCommits), len(dstCommits))
		for i := range srcCommits {
			assert.Equal(t, srcCommits[i].Revision, dstCommits[i].Revision)
			if srcCommits[i].Revision == Init {
				// The destination's initial commit is its own.
				continue
			}
			assert.Equal(t, srcCommits[i].Summary, dstCommits[i].Summary)
			assert.Equal(t, srcCommits[i].Author, dstCommits[i].Author)
			assert.Equal(t, srcCommits[i].When, dstCommits[i].When)
		}
	})
}

func TestCloneToFreshRepository(t *testing.T) {
	src := newTestRepo(t)

	dst, err := src.CloneTo(context.Background(), t.TempDir(), Options{Project: "proj", Name: "copy"})
	require.NoError(t, err)
	defer closeRepo(t, dst)

	assert.Equal(t, Init, dst.Head())
}
