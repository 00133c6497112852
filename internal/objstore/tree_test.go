package objstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func putBlobs(t *testing.T, s *Store, contents map[string]string) map[string]ID {
	t.Helper()
	files := map[string]ID{}
	for path, content := range contents {
		id, err := s.Put(TypeBlob, []byte(content))
		require.NoError(t, err)
		files[path] = id
	}
	return files
}

func TestWriteFlatAndFlatten(t *testing.T) {
	s := newTestStore(t)

	files := putBlobs(t, s, map[string]string{
		"a.json":     `{"a":1}`,
		"dir/b.txt":  "b\n",
		"dir/c.json": `{"c":3}`,
	})

	root, err := WriteFlat(s, files)
	require.NoError(t, err)
	require.NotEqual(t, ZeroID, root)

	got, err := Flatten(s, root)
	require.NoError(t, err)
	assert.Equal(t, files, got)
}

func TestWriteFlatIsDeterministic(t *testing.T) {
	s := newTestStore(t)

	files := putBlobs(t, s, map[string]string{
		"x/one.json": `1`,
		"x/two.json": `2`,
		"y.txt":      "y\n",
	})

	a, err := WriteFlat(s, files)
	require.NoError(t, err)
	b, err := WriteFlat(s, files)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGetTreeZeroID(t *testing.T) {
	s := newTestStore(t)

	tree, err := GetTree(s, ZeroID)
	require.NoError(t, err)
	assert.Empty(t, tree.Entries)

	flat, err := Flatten(s, ZeroID)
	require.NoError(t, err)
	assert.Empty(t, flat)
}

func TestTreeLookup(t *testing.T) {
	s := newTestStore(t)

	files := putBlobs(t, s, map[string]string{"b.txt": "b\n", "a.txt": "a\n"})
	root, err := WriteFlat(s, files)
	require.NoError(t, err)

	tree, err := GetTree(s, root)
	require.NoError(t, err)

	entry, ok := tree.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, TypeBlob, entry.Type)
	assert.Equal(t, files["a.txt"], entry.ID)

	_, ok = tree.Lookup("missing.txt")
	assert.False(t, ok)
}

func TestWalk(t *testing.T) {
	s := newTestStore(t)

	files := putBlobs(t, s, map[string]string{
		"a.txt":       "a\n",
		"dir/b.txt":   "b\n",
		"dir/c/d.txt": "d\n",
	})
	root, err := WriteFlat(s, files)
	require.NoError(t, err)

	t.Run("visits every entry in order", func(t *testing.T) {
		var paths []string
		err := Walk(s, root, func(path string, entry TreeEntry) (bool, error) {
			paths = append(paths, path)
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "dir", "dir/b.txt", "dir/c", "dir/c/d.txt"}, paths)
	})

	t.Run("skips subtrees when told to", func(t *testing.T) {
		var paths []string
		err := Walk(s, root, func(path string, entry TreeEntry) (bool, error) {
			paths = append(paths, path)
			return entry.Name != "dir", nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt", "dir"}, paths)
	})

	t.Run("stops on ErrStopWalk", func(t *testing.T) {
		var count int
		err := Walk(s, root, func(path string, entry TreeEntry) (bool, error) {
			count++
			return false, ErrStopWalk
		})
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestDiffTrees(t *testing.T) {
	s := newTestStore(t)

	oldFiles := putBlobs(t, s, map[string]string{
		"keep.txt":    "same\n",
		"change.json": `{"v":1}`,
		"gone/x.txt":  "x\n",
		"gone/y.txt":  "y\n",
	})
	oldRoot, err := WriteFlat(s, oldFiles)
	require.NoError(t, err)

	newFiles := putBlobs(t, s, map[string]string{
		"keep.txt":    "same\n",
		"change.json": `{"v":2}`,
		"fresh.txt":   "new\n",
	})
	newRoot, err := WriteFlat(s, newFiles)
	require.NoError(t, err)

	diff, err := DiffTrees(s, oldRoot, newRoot)
	require.NoError(t, err)

	byPath := map[string]DiffEntry{}
	for _, d := range diff {
		byPath[d.Path()] = d
	}
	require.Len(t, byPath, 4)

	assert.Equal(t, DiffModify, byPath["change.json"].Kind)
	assert.Equal(t, oldFiles["change.json"], byPath["change.json"].OldID)
	assert.Equal(t, newFiles["change.json"], byPath["change.json"].NewID)
	assert.Equal(t, DiffAdd, byPath["fresh.txt"].Kind)
	assert.Equal(t, DiffDelete, byPath["gone/x.txt"].Kind)
	assert.Equal(t, DiffDelete, byPath["gone/y.txt"].Kind)

	t.Run("equal trees yield no entries", func(t *testing.T) {
		diff, err := DiffTrees(s, oldRoot, oldRoot)
		require.NoError(t, err)
		assert.Empty(t, diff)
	})

	t.Run("zero id stands for the empty tree", func(t *testing.T) {
		diff, err := DiffTrees(s, ZeroID, newRoot)
		require.NoError(t, err)
		require.Len(t, diff, 3)
		for _, d := range diff {
			assert.Equal(t, DiffAdd, d.Kind)
		}
	})
}

func TestDiffTreesTypeChange(t *testing.T) {
	s := newTestStore(t)

	oldFiles := putBlobs(t, s, map[string]string{"node": "a file\n"})
	oldRoot, err := WriteFlat(s, oldFiles)
	require.NoError(t, err)

	newFiles := putBlobs(t, s, map[string]string{"node/inner.txt": "now a directory\n"})
	newRoot, err := WriteFlat(s, newFiles)
	require.NoError(t, err)

	diff, err := DiffTrees(s, oldRoot, newRoot)
	require.NoError(t, err)
	require.Len(t, diff, 2)

	kinds := map[string]DiffKind{}
	for _, d := range diff {
		kinds[d.Path()] = d.Kind
	}
	assert.Equal(t, DiffDelete, kinds["node"])
	assert.Equal(t, DiffAdd, kinds["node/inner.txt"])
}
