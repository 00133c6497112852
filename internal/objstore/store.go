package objstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// objMeta is the badger record kept per object.
type objMeta struct {
	Type       Type  `json:"type"`
	Size       int64 `json:"size"`
	Compressed bool  `json:"compressed"`
}

// Store is a content-addressed object store. Object bodies live as files
// under the root directory; per-object metadata lives in the badger DB
// shared with the owning repository.
type Store struct {
	root    string
	db      *badger.DB
	cache   *lru.Cache[ID, []byte]
	cm      *compressionManager
	sharded bool
	logger  *zap.Logger
}

// Options configures a Store.
type Options struct {
	// Root is the directory object files are written under.
	Root string
	// CacheSize is the number of decoded objects kept in memory.
	CacheSize int
	// Sharded selects the two-level id-prefix directory layout. Flat
	// layout is kept for repositories created before sharding existed.
	Sharded bool
	// MinCompressSize is the smallest body the store will try to
	// compress. Zero selects the default.
	MinCompressSize int
	Logger          *zap.Logger
}

// New creates a Store over an existing badger DB.
func New(db *badger.DB, opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("root directory is required")
	}
	if err := os.MkdirAll(opts.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating root directory: %w", err)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 1024
	}
	if opts.MinCompressSize <= 0 {
		opts.MinCompressSize = 512
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cache, err := lru.New[ID, []byte](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	cm, err := newCompressionManager(opts.MinCompressSize)
	if err != nil {
		return nil, err
	}

	return &Store{
		root:    opts.Root,
		db:      db,
		cache:   cache,
		cm:      cm,
		sharded: opts.Sharded,
		logger:  opts.Logger,
	}, nil
}

// Put stores an object body and returns its id. Storing an existing object
// is a no-op.
func (s *Store) Put(typ Type, content []byte) (ID, error) {
	if content == nil {
		content = []byte{}
	}
	id := ComputeID(typ, content)

	exists, err := s.Exists(id)
	if err != nil {
		return ZeroID, fmt.Errorf("checking existence: %w", err)
	}
	if exists {
		return id, nil
	}

	body, compressed := s.cm.compress(content)

	path := s.objectPath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ZeroID, fmt.Errorf("creating object directory: %w", err)
	}
	// Write through a temp file so a crash never leaves a truncated
	// object under its final name.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return ZeroID, fmt.Errorf("writing object file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return ZeroID, fmt.Errorf("publishing object file: %w", err)
	}

	meta := objMeta{Type: typ, Size: int64(len(content)), Compressed: compressed}
	if err := s.putMeta(id, meta); err != nil {
		os.Remove(path)
		return ZeroID, fmt.Errorf("storing object metadata: %w", err)
	}

	s.cache.Add(id, content)
	s.logger.Debug("stored object",
		zap.String("id", id.Short()),
		zap.String("type", string(typ)),
		zap.Int64("size", meta.Size),
		zap.Bool("compressed", compressed))
	return id, nil
}

// Get retrieves an object body and its type.
func (s *Store) Get(id ID) (Type, []byte, error) {
	if _, err := ParseID(string(id)); err != nil {
		return "", nil, err
	}

	meta, err := s.getMeta(id)
	if err != nil {
		return "", nil, err
	}

	if content, ok := s.cache.Get(id); ok {
		return meta.Type, content, nil
	}

	body, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, ErrNotFound
		}
		return "", nil, fmt.Errorf("reading object: %w", err)
	}

	content := body
	if meta.Compressed {
		if content, err = s.cm.decompress(body); err != nil {
			return "", nil, fmt.Errorf("decompressing object: %w", err)
		}
	}

	if ComputeID(meta.Type, content) != id {
		return "", nil, fmt.Errorf("object %s: content hash mismatch", id.Short())
	}

	s.cache.Add(id, content)
	return meta.Type, content, nil
}

// GetTyped retrieves an object and verifies its type.
func (s *Store) GetTyped(typ Type, id ID) ([]byte, error) {
	actual, content, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if actual != typ {
		return nil, fmt.Errorf("object %s: expected %s, found %s", id.Short(), typ, actual)
	}
	return content, nil
}

// Exists reports whether an object is stored.
func (s *Store) Exists(id ID) (bool, error) {
	if _, err := ParseID(string(id)); err != nil {
		return false, err
	}
	if s.cache.Contains(id) {
		return true, nil
	}
	_, err := s.getMeta(id)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close releases the store's resources. The badger DB is owned by the
// caller and stays open.
func (s *Store) Close() {
	s.cache.Purge()
	s.cm.close()
}

func (s *Store) objectPath(id ID) string {
	if s.sharded {
		return filepath.Join(s.root, string(id[:2]), string(id[2:]))
	}
	return filepath.Join(s.root, string(id))
}

func metaKey(id ID) []byte {
	return []byte("obj:" + string(id))
}

func (s *Store) putMeta(id ID, meta objMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey(id), data)
	})
}

func (s *Store) getMeta(id ID) (objMeta, error) {
	var meta objMeta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})
	})
	return meta, err
}
