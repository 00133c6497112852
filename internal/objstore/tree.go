package objstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TreeEntry names a child of a tree. Type is TypeBlob for files and
// TypeTree for directories.
type TreeEntry struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
	ID   ID     `json:"id"`
}

// Tree is a directory object. Entries are kept sorted by name.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// ErrStopWalk aborts a Walk early without reporting an error.
var ErrStopWalk = errors.New("stop walk")

// Lookup finds a child by name.
func (t *Tree) Lookup(name string) (TreeEntry, bool) {
	i := sort.Search(len(t.Entries), func(i int) bool { return t.Entries[i].Name >= name })
	if i < len(t.Entries) && t.Entries[i].Name == name {
		return t.Entries[i], true
	}
	return TreeEntry{}, false
}

// PutTree stores a tree object. Entries are sorted so equal trees always
// hash to the same id.
func PutTree(s *Store, t *Tree) (ID, error) {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	data, err := json.Marshal(&Tree{Entries: entries})
	if err != nil {
		return ZeroID, err
	}
	return s.Put(TypeTree, data)
}

// GetTree loads a tree object. The zero id yields the empty tree.
func GetTree(s *Store, id ID) (*Tree, error) {
	if id == ZeroID {
		return &Tree{}, nil
	}
	data, err := s.GetTyped(TypeTree, id)
	if err != nil {
		return nil, err
	}
	var t Tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("tree %s: %w", id.Short(), err)
	}
	return &t, nil
}

// WriteFlat stores the tree hierarchy for a flat path-to-blob mapping and
// returns the root tree id. Paths are slash-separated without a leading
// slash.
func WriteFlat(s *Store, files map[string]ID) (ID, error) {
	type node struct {
		children map[string]*node
		blob     ID
	}
	root := &node{children: map[string]*node{}}

	for path, id := range files {
		cur := root
		segments := strings.Split(path, "/")
		for _, seg := range segments[:len(segments)-1] {
			child, ok := cur.children[seg]
			if !ok {
				child = &node{children: map[string]*node{}}
				cur.children[seg] = child
			}
			cur = child
		}
		cur.children[segments[len(segments)-1]] = &node{blob: id}
	}

	var write func(n *node) (ID, error)
	write = func(n *node) (ID, error) {
		t := &Tree{}
		for name, child := range n.children {
			if child.children == nil {
				t.Entries = append(t.Entries, TreeEntry{Name: name, Type: TypeBlob, ID: child.blob})
				continue
			}
			id, err := write(child)
			if err != nil {
				return ZeroID, err
			}
			t.Entries = append(t.Entries, TreeEntry{Name: name, Type: TypeTree, ID: id})
		}
		return PutTree(s, t)
	}
	return write(root)
}

// Flatten expands a tree into a flat path-to-blob mapping.
func Flatten(s *Store, id ID) (map[string]ID, error) {
	files := map[string]ID{}
	err := Walk(s, id, func(path string, entry TreeEntry) (bool, error) {
		if entry.Type == TypeBlob {
			files[path] = entry.ID
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Walk visits every entry of a tree in depth-first name order. The callback
// receives the slash-separated path without a leading slash; returning false
// for a directory entry skips its subtree. Returning ErrStopWalk aborts the
// walk without error.
func Walk(s *Store, id ID, fn func(path string, entry TreeEntry) (bool, error)) error {
	err := walkDir(s, "", id, fn)
	if err == ErrStopWalk {
		return nil
	}
	return err
}

func walkDir(s *Store, prefix string, id ID, fn func(path string, entry TreeEntry) (bool, error)) error {
	t, err := GetTree(s, id)
	if err != nil {
		return err
	}
	for _, entry := range t.Entries {
		path := prefix + entry.Name
		descend, err := fn(path, entry)
		if err != nil {
			return err
		}
		if entry.Type == TypeTree && descend {
			if err := walkDir(s, path+"/", entry.ID, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiffKind classifies a tree difference.
type DiffKind int

const (
	DiffAdd DiffKind = iota
	DiffModify
	DiffDelete
)

// DiffEntry is one changed file between two trees. Modify carries both
// paths even though the comparison never detects renames.
type DiffEntry struct {
	Kind    DiffKind
	OldPath string
	NewPath string
	OldID   ID
	NewID   ID
}

// Path returns the path a diff entry is about: the new path for additions
// and the old path otherwise.
func (d DiffEntry) Path() string {
	if d.Kind == DiffAdd {
		return d.NewPath
	}
	return d.OldPath
}

// DiffTrees compares two trees and returns the changed files in path order.
// Unchanged subtrees are pruned by id without being loaded.
func DiffTrees(s *Store, oldID, newID ID) ([]DiffEntry, error) {
	var out []DiffEntry
	if err := diffDir(s, "", oldID, newID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffDir(s *Store, prefix string, oldID, newID ID, out *[]DiffEntry) error {
	if oldID == newID {
		return nil
	}
	oldTree, err := GetTree(s, oldID)
	if err != nil {
		return err
	}
	newTree, err := GetTree(s, newID)
	if err != nil {
		return err
	}

	i, j := 0, 0
	for i < len(oldTree.Entries) || j < len(newTree.Entries) {
		switch {
		case j >= len(newTree.Entries) || (i < len(oldTree.Entries) && oldTree.Entries[i].Name < newTree.Entries[j].Name):
			if err := collectDir(s, prefix, oldTree.Entries[i], DiffDelete, out); err != nil {
				return err
			}
			i++
		case i >= len(oldTree.Entries) || oldTree.Entries[i].Name > newTree.Entries[j].Name:
			if err := collectDir(s, prefix, newTree.Entries[j], DiffAdd, out); err != nil {
				return err
			}
			j++
		default:
			oldEntry, newEntry := oldTree.Entries[i], newTree.Entries[j]
			i++
			j++
			if oldEntry.ID == newEntry.ID && oldEntry.Type == newEntry.Type {
				continue
			}
			path := prefix + oldEntry.Name
			switch {
			case oldEntry.Type == TypeTree && newEntry.Type == TypeTree:
				if err := diffDir(s, path+"/", oldEntry.ID, newEntry.ID, out); err != nil {
					return err
				}
			case oldEntry.Type == TypeBlob && newEntry.Type == TypeBlob:
				*out = append(*out, DiffEntry{
					Kind:    DiffModify,
					OldPath: path,
					NewPath: path,
					OldID:   oldEntry.ID,
					NewID:   newEntry.ID,
				})
			default:
				// A file replaced by a directory or the reverse.
				if err := collectDir(s, prefix, oldEntry, DiffDelete, out); err != nil {
					return err
				}
				if err := collectDir(s, prefix, newEntry, DiffAdd, out); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// collectDir records every file under an added or deleted entry.
func collectDir(s *Store, prefix string, entry TreeEntry, kind DiffKind, out *[]DiffEntry) error {
	if entry.Type == TypeBlob {
		d := DiffEntry{Kind: kind}
		if kind == DiffAdd {
			d.NewPath, d.NewID = prefix+entry.Name, entry.ID
		} else {
			d.OldPath, d.OldID = prefix+entry.Name, entry.ID
		}
		*out = append(*out, d)
		return nil
	}
	return Walk(s, entry.ID, func(path string, child TreeEntry) (bool, error) {
		if child.Type == TypeBlob {
			d := DiffEntry{Kind: kind}
			full := prefix + entry.Name + "/" + path
			if kind == DiffAdd {
				d.NewPath, d.NewID = full, child.ID
			} else {
				d.OldPath, d.OldID = full, child.ID
			}
			*out = append(*out, d)
		}
		return true, nil
	})
}
