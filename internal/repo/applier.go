package repo

import (
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"confvault/internal/apperr"
	"confvault/internal/jsonedit"
	"confvault/internal/objstore"
	"confvault/internal/text"
)

// workingTree is the mutable flat view of a tree that changes are applied
// to. Keys are storage paths, slash-separated without a leading slash.
type workingTree struct {
	store *objstore.Store
	files map[string]objstore.ID
}

func newWorkingTree(store *objstore.Store, files map[string]objstore.ID) *workingTree {
	if files == nil {
		files = map[string]objstore.ID{}
	}
	return &workingTree{store: store, files: files}
}

func (wt *workingTree) clone() *workingTree {
	files := make(map[string]objstore.ID, len(wt.files))
	for k, v := range wt.files {
		files[k] = v
	}
	return &workingTree{store: wt.store, files: files}
}

// write stores the tree hierarchy and returns the root tree id.
func (wt *workingTree) write() (objstore.ID, error) {
	return objstore.WriteFlat(wt.store, wt.files)
}

func storagePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (wt *workingTree) isDir(spath string) bool {
	prefix := spath + "/"
	for p := range wt.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func (wt *workingTree) content(spath string) ([]byte, error) {
	id, ok := wt.files[spath]
	if !ok {
		return nil, nil
	}
	return wt.store.GetTyped(objstore.TypeBlob, id)
}

// apply mutates the tree with the given changes and returns the paths that
// actually changed, with a leading slash. Changes that would not alter the
// tree are skipped; an empty result means the whole commit was redundant.
func (wt *workingTree) apply(changes []Change) ([]string, error) {
	seen := map[string]bool{}
	var changed []string

	for _, c := range changes {
		if seen[c.Path] {
			return nil, &apperr.ChangeConflictError{Reason: "duplicate change path", Path: c.Path}
		}
		seen[c.Path] = true

		paths, err := wt.applyOne(c)
		if err != nil {
			return nil, err
		}
		changed = append(changed, paths...)
	}
	return changed, nil
}

func (wt *workingTree) applyOne(c Change) ([]string, error) {
	spath := storagePath(c.Path)

	switch c.Type {
	case ChangeUpsertJSON:
		canonical, err := jsonedit.Canonical([]byte(c.Content))
		if err != nil {
			return nil, &apperr.ChangeConflictError{Reason: "malformed JSON content", Path: c.Path, Err: err}
		}
		return wt.setContent(c.Path, spath, canonical, true)

	case ChangeUpsertText:
		sanitized := text.Sanitize(c.Content)
		return wt.setContent(c.Path, spath, []byte(sanitized), false)

	case ChangeRemove:
		if _, ok := wt.files[spath]; ok {
			delete(wt.files, spath)
			return []string{c.Path}, nil
		}
		if wt.isDir(spath) {
			return wt.removeDir(spath), nil
		}
		return nil, &apperr.ChangeConflictError{Reason: "cannot remove a non-existent entry", Path: c.Path}

	case ChangeRename:
		return wt.rename(c)

	case ChangeApplyJSONPatch:
		old, err := wt.content(spath)
		if err != nil {
			return nil, err
		}
		existed := old != nil
		if !existed {
			// Patches against an absent document see a JSON null.
			old = []byte("null")
		}
		patched, err := jsonedit.ApplyPatch(old, []byte(c.Content))
		if err != nil {
			return nil, &apperr.ChangeConflictError{Reason: "failed to apply JSON patch", Path: c.Path, Err: err}
		}
		if existed && jsonedit.Equal(old, patched) {
			return nil, nil
		}
		return wt.putBlob(c.Path, spath, patched)

	case ChangeApplyTextPatch:
		old, err := wt.content(spath)
		if err != nil {
			return nil, err
		}
		existed := old != nil
		patched, err := text.ApplyPatch(string(old), c.Content)
		if err != nil {
			return nil, &apperr.ChangeConflictError{Reason: "failed to apply text patch", Path: c.Path, Err: err}
		}
		if existed && patched == string(old) {
			return nil, nil
		}
		return wt.putBlob(c.Path, spath, []byte(patched))
	}
	return nil, &apperr.ChangeConflictError{Reason: "unknown change type", Path: c.Path}
}

// setContent stores an upsert, skipping it when the stored document is
// already equal.
func (wt *workingTree) setContent(path, spath string, content []byte, isJSON bool) ([]string, error) {
	if old, err := wt.content(spath); err != nil {
		return nil, err
	} else if old != nil {
		if isJSON && jsonedit.Equal(old, content) {
			return nil, nil
		}
		if !isJSON && string(old) == string(content) {
			return nil, nil
		}
	}
	return wt.putBlob(path, spath, content)
}

func (wt *workingTree) putBlob(path, spath string, content []byte) ([]string, error) {
	id, err := wt.store.Put(objstore.TypeBlob, content)
	if err != nil {
		return nil, err
	}
	wt.files[spath] = id
	return []string{path}, nil
}

func (wt *workingTree) removeDir(spath string) []string {
	prefix := spath + "/"
	keys := maps.Keys(wt.files)
	slices.Sort(keys)

	var changed []string
	for _, p := range keys {
		if strings.HasPrefix(p, prefix) {
			delete(wt.files, p)
			changed = append(changed, "/"+p)
		}
	}
	return changed
}

func (wt *workingTree) rename(c Change) ([]string, error) {
	if c.Path == c.NewPath {
		// Renaming onto itself changes nothing.
		return nil, nil
	}
	oldSpath, newSpath := storagePath(c.Path), storagePath(c.NewPath)

	_, oldIsFile := wt.files[oldSpath]
	oldIsDir := wt.isDir(oldSpath)
	if !oldIsFile && !oldIsDir {
		return nil, &apperr.ChangeConflictError{Reason: "cannot rename a non-existent entry", Path: c.Path}
	}
	if _, ok := wt.files[newSpath]; ok {
		return nil, &apperr.ChangeConflictError{Reason: "rename target already exists", Path: c.NewPath}
	}
	if wt.isDir(newSpath) {
		return nil, &apperr.ChangeConflictError{Reason: "rename target already exists as a directory", Path: c.NewPath}
	}

	var changed []string
	if oldIsFile {
		wt.files[newSpath] = wt.files[oldSpath]
		delete(wt.files, oldSpath)
		changed = append(changed, c.Path, c.NewPath)
		return changed, nil
	}

	prefix := oldSpath + "/"
	keys := maps.Keys(wt.files)
	slices.Sort(keys)
	for _, p := range keys {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		moved := newSpath + "/" + strings.TrimPrefix(p, prefix)
		wt.files[moved] = wt.files[p]
		delete(wt.files, p)
		changed = append(changed, "/"+p, "/"+moved)
	}
	return changed, nil
}
