// Package apperr defines the structural error kinds surfaced by the
// repository engine. Callers are expected to branch with errors.As rather
// than matching on message text.
package apperr

import (
	"fmt"
	"time"
)

// RevisionNotFoundError is returned when a revision cannot be normalized
// against the current head.
type RevisionNotFoundError struct {
	Revision int64
	Head     int64
}

func (e *RevisionNotFoundError) Error() string {
	return fmt.Sprintf("revision not found: %d (head: %d)", e.Revision, e.Head)
}

// RepositoryNotFoundError is returned when opening a directory that does not
// contain a repository.
type RepositoryNotFoundError struct {
	Dir string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository not found at: %s", e.Dir)
}

// EntryNotFoundError is returned when a path does not exist at the given
// revision.
type EntryNotFoundError struct {
	Revision int64
	Path     string
}

func (e *EntryNotFoundError) Error() string {
	return fmt.Sprintf("entry not found: %s (revision: %d)", e.Path, e.Revision)
}

// ChangeConflictError is returned for a stale base revision, a rename whose
// target exists, a removal or rename of a missing entry, or a patch that
// failed to apply.
type ChangeConflictError struct {
	Reason string
	Path   string
	Err    error
}

func (e *ChangeConflictError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("change conflict at %s: %s", e.Path, e.Reason)
	}
	return "change conflict: " + e.Reason
}

func (e *ChangeConflictError) Unwrap() error { return e.Err }

// RedundantChangeError is returned when a commit would not change anything
// and empty commits are not allowed.
type RedundantChangeError struct {
	Revision int64
	Reason   string
}

func (e *RedundantChangeError) Error() string {
	return fmt.Sprintf("redundant change at revision %d: %s", e.Revision, e.Reason)
}

// ShuttingDownError is returned for operations issued after close began.
type ShuttingDownError struct {
	Repository string
}

func (e *ShuttingDownError) Error() string {
	if e.Repository != "" {
		return "repository is shutting down: " + e.Repository
	}
	return "repository is shutting down"
}

// StorageError wraps an I/O failure or a broken storage invariant. It is
// reported up unchanged; the engine does not attempt local recovery.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
	}
	return "storage: " + e.Op
}

func (e *StorageError) Unwrap() error { return e.Err }

// TimeoutError is returned when the caller's deadline elapsed before the
// operation could start.
type TimeoutError struct {
	Op      string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out before start: %s", e.Op)
}
