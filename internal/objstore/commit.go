package objstore

import (
	"encoding/json"
	"fmt"
)

// CommitObject is the stored form of a commit. Message is the opaque JSON
// commit message; the engine layers meaning onto it elsewhere.
type CommitObject struct {
	Tree        ID              `json:"tree"`
	Parent      ID              `json:"parent,omitempty"`
	AuthorName  string          `json:"author_name"`
	AuthorEmail string          `json:"author_email"`
	// When is the commit time in seconds since the Unix epoch.
	When    int64           `json:"when"`
	Message json.RawMessage `json:"message"`
}

// PutCommit stores a commit object and returns its id.
func PutCommit(s *Store, c *CommitObject) (ID, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return ZeroID, err
	}
	return s.Put(TypeCommit, data)
}

// GetCommit loads a commit object.
func GetCommit(s *Store, id ID) (*CommitObject, error) {
	data, err := s.GetTyped(TypeCommit, id)
	if err != nil {
		return nil, err
	}
	var c CommitObject
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
	}
	return &c, nil
}
