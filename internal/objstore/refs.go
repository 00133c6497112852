package objstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"confvault/internal/apperr"
)

// HeadRef is the branch every repository commits to.
const HeadRef = "refs/heads/master"

const headFile = "HEAD"

// RefStore keeps branch heads as files under the repository directory.
// Updates are restricted to ref creation and fast-forwards; anything else
// is a broken storage invariant.
type RefStore struct {
	dir string
}

// InitRefStore creates the ref layout for a new repository.
func InitRefStore(dir string) (*RefStore, error) {
	rs := &RefStore{dir: dir}
	if err := os.MkdirAll(filepath.Dir(rs.refPath(HeadRef)), 0o755); err != nil {
		return nil, fmt.Errorf("creating refs directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, headFile), []byte("ref: "+HeadRef+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing HEAD: %w", err)
	}
	return rs, nil
}

// OpenRefStore opens the ref layout of an existing repository.
func OpenRefStore(dir string) (*RefStore, error) {
	if _, err := os.Stat(filepath.Join(dir, headFile)); err != nil {
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}
	return &RefStore{dir: dir}, nil
}

// Resolve returns the id a ref points at. Symbolic refs are followed until
// a ref holding an id is reached. The second result is false when the ref
// does not exist yet.
func (rs *RefStore) Resolve(name string) (ID, bool, error) {
	data, err := os.ReadFile(rs.refPath(name))
	if os.IsNotExist(err) {
		return ZeroID, false, nil
	}
	if err != nil {
		return ZeroID, false, fmt.Errorf("reading ref %s: %w", name, err)
	}

	value := strings.TrimSpace(string(data))
	if target, ok := strings.CutPrefix(value, "ref: "); ok {
		return rs.Resolve(target)
	}
	id, err := ParseID(value)
	if err != nil {
		return ZeroID, false, fmt.Errorf("ref %s: malformed id %q", name, value)
	}
	return id, true, nil
}

// Head resolves the current branch head.
func (rs *RefStore) Head() (ID, bool, error) {
	return rs.Resolve(headFile)
}

// Update moves a ref to id. The ref must either not exist yet (with a zero
// parent) or currently point at parent; a ref that already points at id is
// left as it is. Any other transition is rejected.
func (rs *RefStore) Update(name string, id, parent ID) error {
	cur, exists, err := rs.Resolve(name)
	if err != nil {
		return err
	}
	switch {
	case !exists && parent == ZeroID:
		// New ref.
	case exists && cur == id:
		return nil
	case exists && cur == parent:
		// Fast-forward.
	default:
		return &apperr.StorageError{
			Op: fmt.Sprintf("unexpected ref update of %s: current %s, expected %s", name, cur.Short(), parent.Short()),
		}
	}

	path := rs.refPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating ref directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(string(id)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing ref %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing ref %s: %w", name, err)
	}
	return nil
}

func (rs *RefStore) refPath(name string) string {
	return filepath.Join(rs.dir, filepath.FromSlash(name))
}
