// Package jsonedit compares, patches, and queries JSON documents. Documents
// are stored in canonical form so that byte equality matches structural
// equality.
package jsonedit

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/go-openapi/jsonpointer"
	"github.com/wI2L/jsondiff"
)

// ReplaceMode selects how GeneratePatch encodes replacements.
type ReplaceMode int

const (
	// ReplaceSafe guards every replace and remove with a test operation so
	// the patch fails when applied to a document that has drifted.
	ReplaceSafe ReplaceMode = iota
	// ReplaceRFC emits bare RFC 6902 operations without guards.
	ReplaceRFC
)

// Canonical re-serializes a JSON document with sorted object keys and no
// insignificant whitespace. It fails on malformed input.
func Canonical(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	return json.Marshal(v)
}

// Equal reports whether two JSON documents are structurally equal.
func Equal(a, b []byte) bool {
	return jsonpatch.Equal(a, b)
}

// GeneratePatch produces an RFC 6902 patch that transforms oldDoc into
// newDoc. The result is nil when the documents are equal.
func GeneratePatch(oldDoc, newDoc []byte, mode ReplaceMode) ([]byte, error) {
	var (
		patch jsondiff.Patch
		err   error
	)
	if mode == ReplaceSafe {
		patch, err = jsondiff.CompareJSON(oldDoc, newDoc, jsondiff.Invertible())
	} else {
		patch, err = jsondiff.CompareJSON(oldDoc, newDoc)
	}
	if err != nil {
		return nil, fmt.Errorf("compare JSON: %w", err)
	}
	if len(patch) == 0 {
		return nil, nil
	}
	return json.Marshal(patch)
}

// ApplyPatch applies an RFC 6902 patch to a document and returns the result
// in canonical form. Failed test operations and unresolvable paths are
// reported as errors.
func ApplyPatch(doc, patch []byte) ([]byte, error) {
	decoded, err := jsonpatch.DecodePatch(patch)
	if err != nil {
		return nil, fmt.Errorf("malformed JSON patch: %w", err)
	}
	patched, err := decoded.Apply(doc)
	if err != nil {
		return nil, err
	}
	return Canonical(patched)
}

// Query evaluates a JSON pointer or JSON path expression against a document
// and returns the matched fragment in canonical form. Expressions starting
// with '$' are JSON paths; everything else is a JSON pointer. An empty
// expression selects the whole document.
func Query(doc []byte, expr string) ([]byte, error) {
	if strings.HasPrefix(expr, "$") {
		return queryPath(doc, expr)
	}
	return queryPointer(doc, expr)
}

func queryPointer(doc []byte, expr string) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	if expr == "" {
		return json.Marshal(v)
	}
	ptr, err := jsonpointer.New(expr)
	if err != nil {
		return nil, fmt.Errorf("malformed JSON pointer %q: %w", expr, err)
	}
	result, _, err := ptr.Get(v)
	if err != nil {
		return nil, fmt.Errorf("JSON pointer %q: %w", expr, err)
	}
	return json.Marshal(result)
}

func queryPath(doc []byte, expr string) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(doc, &v); err != nil {
		return nil, fmt.Errorf("malformed JSON: %w", err)
	}
	result, err := jsonpath.Get(expr, v)
	if err != nil {
		return nil, fmt.Errorf("JSON path %q: %w", expr, err)
	}
	return json.Marshal(result)
}
