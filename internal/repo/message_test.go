package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	encoded, err := encodeMessage(&commitMessage{
		Summary:  "add config",
		Detail:   "longer story",
		Markup:   MarkupMarkdown,
		Revision: 7,
	})
	require.NoError(t, err)

	m, err := parseMessage(encoded)
	require.NoError(t, err)
	assert.Equal(t, "add config", m.Summary)
	assert.Equal(t, "longer story", m.Detail)
	assert.Equal(t, MarkupMarkdown, m.Markup)
	assert.Equal(t, Revision(7), m.Revision)
}

func TestMessageEncodingIsDeterministic(t *testing.T) {
	m := &commitMessage{Summary: "s", Markup: MarkupPlaintext, Revision: 1}
	a, err := encodeMessage(m)
	require.NoError(t, err)
	b, err := encodeMessage(m)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestMessagePreservesUnknownFields(t *testing.T) {
	raw := []byte(`{"summary":"s","detail":"","markup":"PLAINTEXT","revision":3,"future":{"x":1}}`)

	m, err := parseMessage(raw)
	require.NoError(t, err)
	require.Contains(t, m.extras, "future")

	reencoded, err := encodeMessage(m)
	require.NoError(t, err)
	assert.JSONEq(t, string(raw), string(reencoded))
}

func TestParseMessageDefaults(t *testing.T) {
	m, err := parseMessage([]byte(`{"summary":"s","revision":1}`))
	require.NoError(t, err)
	assert.Equal(t, MarkupPlaintext, m.Markup)
	assert.Empty(t, m.Detail)
}

func TestParseMessageMalformed(t *testing.T) {
	_, err := parseMessage([]byte(`not json`))
	assert.Error(t, err)

	_, err = parseMessage([]byte(`{"revision":"not a number"}`))
	assert.Error(t, err)
}
