// Package objstore implements a content-addressed object store for the
// repository engine. Objects are blobs, trees, and commits identified by the
// SHA-256 of a type-and-length header followed by the object body.
package objstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Type classifies a stored object.
type Type string

const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
)

// ID is the lowercase hex SHA-256 identity of an object. The zero value
// stands for the empty tree.
type ID string

// ZeroID is the absent object, used as the empty tree in comparisons.
const ZeroID ID = ""

var (
	ErrNotFound  = errors.New("object not found")
	ErrInvalidID = errors.New("invalid object id")
)

// ComputeID hashes an object body under its type header.
func ComputeID(typ Type, content []byte) ID {
	h := sha256.New()
	fmt.Fprintf(h, "%s %d\x00", typ, len(content))
	h.Write(content)
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// ParseID validates the textual form of an object id.
func ParseID(s string) (ID, error) {
	if len(s) != 64 {
		return ZeroID, ErrInvalidID
	}
	if _, err := hex.DecodeString(s); err != nil {
		return ZeroID, ErrInvalidID
	}
	return ID(s), nil
}

// Raw returns the 32 binary digest bytes of the id.
func (id ID) Raw() ([]byte, error) {
	b, err := hex.DecodeString(string(id))
	if err != nil || len(b) != 32 {
		return nil, ErrInvalidID
	}
	return b, nil
}

// IDFromRaw converts 32 digest bytes into an ID.
func IDFromRaw(b []byte) (ID, error) {
	if len(b) != 32 {
		return ZeroID, ErrInvalidID
	}
	return ID(hex.EncodeToString(b)), nil
}

func (id ID) String() string { return string(id) }

// Short returns the abbreviated id used in log output.
func (id ID) Short() string {
	if len(id) < 8 {
		return string(id)
	}
	return string(id[:8])
}
