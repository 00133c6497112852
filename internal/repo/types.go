// Package repo implements the versioned configuration repository engine:
// a linear commit history over a content-addressed object store, with
// pattern queries, revision watching, and structured change application.
package repo

import (
	"strings"
	"time"

	"confvault/internal/apperr"
)

// Revision identifies a commit in the linear history. Revisions start at 1
// and grow by one per commit. Zero and negative values are relative to the
// head: 0 and -1 both mean the head, -2 the one before it.
type Revision int64

const (
	// Head is the latest revision marker.
	Head Revision = -1
	// Init is the first revision of every repository.
	Init Revision = 1
)

// Relative reports whether the revision needs normalization against a head.
func (r Revision) Relative() bool { return r <= 0 }

// normalize resolves a possibly relative revision against the given head.
func normalize(rev, head Revision) (Revision, error) {
	if rev > 0 {
		if rev > head {
			return 0, &apperr.RevisionNotFoundError{Revision: int64(rev), Head: int64(head)}
		}
		return rev, nil
	}
	if rev == 0 {
		return head, nil
	}
	resolved := head + rev + 1
	if resolved <= 0 {
		return 0, &apperr.RevisionNotFoundError{Revision: int64(rev), Head: int64(head)}
	}
	return resolved, nil
}

// Author identifies who made a commit.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UnknownAuthor is used when no author information is available.
var UnknownAuthor = Author{Name: "unknown", Email: "nobody@localhost"}

// Markup declares how a commit detail is rendered.
type Markup string

const (
	MarkupPlaintext Markup = "PLAINTEXT"
	MarkupMarkdown  Markup = "MARKDOWN"
)

// EntryType classifies a repository entry.
type EntryType string

const (
	EntryJSON      EntryType = "JSON"
	EntryText      EntryType = "TEXT"
	EntryDirectory EntryType = "DIRECTORY"
)

// EntryTypeFromPath guesses the entry type of a file path.
func EntryTypeFromPath(path string) EntryType {
	if strings.HasSuffix(path, ".json") {
		return EntryJSON
	}
	return EntryText
}

// Entry is a file or directory at a specific revision. Content is the
// canonical JSON document for JSON entries and the sanitized text for text
// entries; directories have no content.
type Entry struct {
	Path     string
	Type     EntryType
	Content  string
	Revision Revision
}

// HasContent reports whether the entry carries content.
func (e Entry) HasContent() bool { return e.Type != EntryDirectory }

// ChangeType enumerates the mutations a commit can carry.
type ChangeType string

const (
	ChangeUpsertJSON     ChangeType = "UPSERT_JSON"
	ChangeUpsertText     ChangeType = "UPSERT_TEXT"
	ChangeRemove         ChangeType = "REMOVE"
	ChangeRename         ChangeType = "RENAME"
	ChangeApplyJSONPatch ChangeType = "APPLY_JSON_PATCH"
	ChangeApplyTextPatch ChangeType = "APPLY_TEXT_PATCH"
)

// Change is a single mutation. Content holds the document for upserts and
// the patch for patch changes; NewPath is only set for renames.
type Change struct {
	Type    ChangeType
	Path    string
	Content string
	NewPath string
}

// UpsertJSON creates or replaces a JSON document.
func UpsertJSON(path, content string) Change {
	return Change{Type: ChangeUpsertJSON, Path: path, Content: content}
}

// UpsertText creates or replaces a text document.
func UpsertText(path, content string) Change {
	return Change{Type: ChangeUpsertText, Path: path, Content: content}
}

// Remove deletes a file or a directory subtree.
func Remove(path string) Change {
	return Change{Type: ChangeRemove, Path: path}
}

// Rename moves a file or a directory subtree.
func Rename(path, newPath string) Change {
	return Change{Type: ChangeRename, Path: path, NewPath: newPath}
}

// ApplyJSONPatch applies an RFC 6902 patch to a JSON document.
func ApplyJSONPatch(path, patch string) Change {
	return Change{Type: ChangeApplyJSONPatch, Path: path, Content: patch}
}

// ApplyTextPatch applies a unified diff to a text document.
func ApplyTextPatch(path, patch string) Change {
	return Change{Type: ChangeApplyTextPatch, Path: path, Content: patch}
}

// Commit is the recorded metadata of one revision.
type Commit struct {
	Revision Revision
	Author   Author
	When     time.Time
	Summary  string
	Detail   string
	Markup   Markup
}

// RevisionRange is a normalized, inclusive revision interval plus the
// order the caller asked for.
type RevisionRange struct {
	From, To  Revision
	Ascending bool
}
