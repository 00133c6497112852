package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	valid := []string{"main", "my-repo", "a", "repo.v2", "snake_case", "0numbers"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", "-leading-dash", ".hidden", "_underscore", "has space", "slash/inside"}
	for _, name := range invalid {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestValidateFilePath(t *testing.T) {
	valid := []string{"/a.json", "/dir/file.txt", "/deep/er/still.json", "/with-dash_and.dots+plus"}
	for _, path := range valid {
		assert.NoError(t, ValidateFilePath(path), path)
	}

	invalid := []string{"", "relative.txt", "/", "/trailing/", "/double//slash", "/dot/./seg", "/up/../seg", "/bad char"}
	for _, path := range invalid {
		assert.Error(t, ValidateFilePath(path), path)
	}
}

func TestValidateDirPath(t *testing.T) {
	valid := []string{"/", "/dir", "/dir/", "/a/b/c"}
	for _, path := range valid {
		assert.NoError(t, ValidateDirPath(path), path)
	}

	invalid := []string{"", "dir", "/a//b", "/a/../b"}
	for _, path := range invalid {
		assert.Error(t, ValidateDirPath(path), path)
	}
}

func TestValidateCommitInput(t *testing.T) {
	change := UpsertText("/a.txt", "a\n")

	t.Run("accepts a normal commit", func(t *testing.T) {
		assert.NoError(t, validateCommitInput("summary", []Change{change}, false))
	})

	t.Run("requires a summary", func(t *testing.T) {
		assert.Error(t, validateCommitInput("", []Change{change}, false))
	})

	t.Run("requires changes unless empty commits are allowed", func(t *testing.T) {
		assert.Error(t, validateCommitInput("summary", nil, false))
		assert.NoError(t, validateCommitInput("summary", nil, true))
	})

	t.Run("rejects an upsert without content", func(t *testing.T) {
		assert.Error(t, validateCommitInput("summary", []Change{{Type: ChangeUpsertJSON, Path: "/a.json"}}, false))
	})

	t.Run("accepts an empty text upsert", func(t *testing.T) {
		assert.NoError(t, validateCommitInput("summary", []Change{{Type: ChangeUpsertText, Path: "/a.txt"}}, false))
	})

	t.Run("rejects a rename without a target", func(t *testing.T) {
		assert.Error(t, validateCommitInput("summary", []Change{{Type: ChangeRename, Path: "/a.txt"}}, false))
	})

	t.Run("rejects an unknown change type", func(t *testing.T) {
		assert.Error(t, validateCommitInput("summary", []Change{{Type: "SOMETHING_ELSE", Path: "/a.txt"}}, false))
	})
}
