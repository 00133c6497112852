package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confvault/internal/apperr"
	"confvault/internal/repo"
)

func newTestProject(t *testing.T) *Project {
	t.Helper()
	p, err := New(t.TempDir(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.Close(ctx)
	})
	return p
}

func TestCreateAndOpenRepository(t *testing.T) {
	p := newTestProject(t)

	r, err := p.CreateRepository("main")
	require.NoError(t, err)
	assert.Equal(t, "main", r.Name())
	assert.Equal(t, p.Name(), r.Project())
	assert.Equal(t, repo.Init, r.Head())

	t.Run("open reuses the open handle", func(t *testing.T) {
		again, err := p.OpenRepository("main")
		require.NoError(t, err)
		assert.Same(t, r, again)
	})

	t.Run("creating twice fails", func(t *testing.T) {
		_, err := p.CreateRepository("main")
		assert.Error(t, err)
	})

	t.Run("invalid name", func(t *testing.T) {
		_, err := p.CreateRepository("bad/name")
		assert.Error(t, err)
	})

	t.Run("opening a missing repository", func(t *testing.T) {
		_, err := p.OpenRepository("ghost")
		var nf *apperr.RepositoryNotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestList(t *testing.T) {
	p := newTestProject(t)

	names, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = p.CreateRepository("beta")
	require.NoError(t, err)
	_, err = p.CreateRepository("alpha")
	require.NoError(t, err)

	names, err = p.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestRemoveRepository(t *testing.T) {
	p := newTestProject(t)
	ctx := context.Background()

	_, err := p.CreateRepository("doomed")
	require.NoError(t, err)

	require.NoError(t, p.RemoveRepository(ctx, "doomed"))

	names, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, names)

	t.Run("removing again fails", func(t *testing.T) {
		err := p.RemoveRepository(ctx, "doomed")
		var nf *apperr.RepositoryNotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestProjectClose(t *testing.T) {
	dir := t.TempDir()
	p, err := New(dir, nil, nil)
	require.NoError(t, err)

	r, err := p.CreateRepository("main")
	require.NoError(t, err)
	_, err = r.Commit(context.Background(), repo.Head, repo.Author{Name: "a", Email: "a@example.com"},
		"add", "", repo.MarkupPlaintext, []repo.Change{repo.UpsertJSON("/cfg.json", `{"v":1}`)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	t.Run("repositories survive a close", func(t *testing.T) {
		reopened, err := New(dir, nil, nil)
		require.NoError(t, err)
		defer reopened.Close(ctx)

		r, err := reopened.OpenRepository("main")
		require.NoError(t, err)
		assert.Equal(t, repo.Revision(2), r.Head())
	})
}
