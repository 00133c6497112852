package jsonedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	t.Run("sorts keys and strips whitespace", func(t *testing.T) {
		got, err := Canonical([]byte(`{ "b": 2,  "a": 1 }`))
		require.NoError(t, err)
		assert.Equal(t, `{"a":1,"b":2}`, string(got))
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := Canonical([]byte(`{broken`))
		assert.Error(t, err)
	})

	t.Run("stable for equal documents", func(t *testing.T) {
		a, err := Canonical([]byte(`{"x": [1, 2], "y": null}`))
		require.NoError(t, err)
		b, err := Canonical([]byte(`{"y":null,"x":[1,2]}`))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	})
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal([]byte(`{"a":1,"b":2}`), []byte(`{"b":2,"a":1}`)))
	assert.False(t, Equal([]byte(`{"a":1}`), []byte(`{"a":2}`)))
}

func TestGenerateAndApplyPatch(t *testing.T) {
	oldDoc := []byte(`{"a":1,"b":"keep"}`)
	newDoc := []byte(`{"a":2,"b":"keep"}`)

	t.Run("safe round trip", func(t *testing.T) {
		patch, err := GeneratePatch(oldDoc, newDoc, ReplaceSafe)
		require.NoError(t, err)
		require.NotNil(t, patch)
		// Safe mode guards the replace with a test operation.
		assert.Contains(t, string(patch), `"test"`)

		applied, err := ApplyPatch(oldDoc, patch)
		require.NoError(t, err)
		assert.True(t, Equal(newDoc, applied))
	})

	t.Run("rfc round trip", func(t *testing.T) {
		patch, err := GeneratePatch(oldDoc, newDoc, ReplaceRFC)
		require.NoError(t, err)
		assert.NotContains(t, string(patch), `"test"`)

		applied, err := ApplyPatch(oldDoc, patch)
		require.NoError(t, err)
		assert.True(t, Equal(newDoc, applied))
	})

	t.Run("equal documents produce no patch", func(t *testing.T) {
		patch, err := GeneratePatch(oldDoc, []byte(`{"b":"keep","a":1}`), ReplaceSafe)
		require.NoError(t, err)
		assert.Nil(t, patch)
	})

	t.Run("safe patch fails on drifted base", func(t *testing.T) {
		patch, err := GeneratePatch(oldDoc, newDoc, ReplaceSafe)
		require.NoError(t, err)

		_, err = ApplyPatch([]byte(`{"a":99,"b":"keep"}`), patch)
		assert.Error(t, err)
	})

	t.Run("rejects malformed patch", func(t *testing.T) {
		_, err := ApplyPatch(oldDoc, []byte(`{"not":"an array"}`))
		assert.Error(t, err)
	})
}

func TestQuery(t *testing.T) {
	doc := []byte(`{"a":{"b":[10,20,30]},"name":"x"}`)

	t.Run("empty expression returns the document", func(t *testing.T) {
		got, err := Query(doc, "")
		require.NoError(t, err)
		assert.True(t, Equal(doc, got))
	})

	t.Run("json pointer", func(t *testing.T) {
		got, err := Query(doc, "/a/b/1")
		require.NoError(t, err)
		assert.Equal(t, "20", string(got))
	})

	t.Run("json pointer miss", func(t *testing.T) {
		_, err := Query(doc, "/missing")
		assert.Error(t, err)
	})

	t.Run("json path", func(t *testing.T) {
		got, err := Query(doc, "$.a.b[2]")
		require.NoError(t, err)
		assert.Equal(t, "30", string(got))
	})
}
