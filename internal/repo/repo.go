package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"confvault/internal/apperr"
	"confvault/internal/objstore"
)

const (
	metaFile   = "repository.json"
	dbDir      = "db"
	objectsDir = "objects"
	indexFile  = "commits.idx"

	// formatVersion 0 stored objects in a flat directory; 1 shards them
	// by id prefix. New repositories are always written at the latest
	// version, old ones stay readable.
	formatVersion = 1
)

// repoMeta is the small JSON marker identifying a repository directory.
type repoMeta struct {
	FormatVersion int `json:"format_version"`
}

// Options configures a Repository independent of its directory.
type Options struct {
	Project string
	Name    string
	// WorkerCount bounds the number of concurrently running blocking
	// operations. Zero selects a default of 8.
	WorkerCount int
	// ObjectCacheSize is the per-repository object cache capacity.
	ObjectCacheSize int
	// DiffCache is the shared tree comparison cache. Nil disables
	// comparison caching.
	DiffCache *DiffCache
	Logger    *zap.Logger
}

func (o *Options) fill() {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 8
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Repository is a single versioned configuration repository: a linear
// commit history with one writer and many concurrent readers.
type Repository struct {
	project string
	name    string
	dir     string

	db      *badger.DB
	store   *objstore.Store
	refs    *objstore.RefStore
	index   *commitIndex
	diffs   *DiffCache
	watcher *commitWatchers
	workers *semaphore.Weighted
	logger  *zap.Logger

	// mu serializes commits against everything else. head mirrors the
	// index head so normalization does not need the lock.
	mu   sync.RWMutex
	head atomic.Int64

	closePending atomic.Pointer[func() error]
	closed       chan struct{}
}

// Create initializes a new repository at dir and writes its initial commit.
func Create(dir string, opts Options, author Author) (*Repository, error) {
	opts.fill()
	if err := ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
		return nil, fmt.Errorf("repository already exists at %s", dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &apperr.StorageError{Op: "create repository directory", Err: err}
	}

	meta, err := json.Marshal(repoMeta{FormatVersion: formatVersion})
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), meta, 0o644); err != nil {
		return nil, &apperr.StorageError{Op: "write repository metadata", Err: err}
	}

	r, err := assemble(dir, opts, formatVersion)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	if author == (Author{}) {
		author = UnknownAuthor
	}
	r.mu.Lock()
	_, _, err = r.commit0(author, "Create a new repository", "", MarkupPlaintext, nil, true, time.Now())
	r.mu.Unlock()
	if err != nil {
		r.closeNow()
		os.RemoveAll(dir)
		return nil, err
	}

	r.logger.Info("created repository", zap.String("dir", dir))
	return r, nil
}

// Open opens an existing repository, repairing the commit index when it
// disagrees with the head ref.
func Open(dir string, opts Options) (*Repository, error) {
	opts.fill()

	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if os.IsNotExist(err) {
		return nil, &apperr.RepositoryNotFoundError{Dir: dir}
	}
	if err != nil {
		return nil, &apperr.StorageError{Op: "read repository metadata", Err: err}
	}
	var meta repoMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, &apperr.StorageError{Op: "parse repository metadata", Err: err}
	}
	if meta.FormatVersion < 0 || meta.FormatVersion > formatVersion {
		return nil, &apperr.StorageError{
			Op: fmt.Sprintf("unsupported repository format version %d", meta.FormatVersion),
		}
	}

	r, err := assemble(dir, opts, meta.FormatVersion)
	if err != nil {
		return nil, err
	}

	headID, exists, err := r.refs.Head()
	if err != nil {
		r.closeNow()
		return nil, &apperr.StorageError{Op: "resolve head ref", Err: err}
	}
	if !exists {
		r.closeNow()
		return nil, &apperr.StorageError{Op: "repository has no head ref"}
	}
	headCommit, err := objstore.GetCommit(r.store, headID)
	if err != nil {
		r.closeNow()
		return nil, &apperr.StorageError{Op: "load head commit", Err: err}
	}
	msg, err := parseMessage(headCommit.Message)
	if err != nil {
		r.closeNow()
		return nil, &apperr.StorageError{Op: "parse head commit message", Err: err}
	}

	if r.index.headRevision() != msg.Revision {
		r.logger.Warn("commit index out of sync, rebuilding",
			zap.Int64("indexHead", int64(r.index.headRevision())),
			zap.Int64("refHead", int64(msg.Revision)))
		if err := r.index.rebuild(r.store, headID); err != nil {
			r.closeNow()
			return nil, err
		}
	}
	r.head.Store(int64(msg.Revision))

	r.logger.Info("opened repository",
		zap.String("dir", dir), zap.Int64("head", int64(msg.Revision)))
	return r, nil
}

func assemble(dir string, opts Options, version int) (*Repository, error) {
	badgerOpts := badger.DefaultOptions(filepath.Join(dir, dbDir))
	badgerOpts.Logger = nil
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, &apperr.StorageError{Op: "open metadata database", Err: err}
	}

	store, err := objstore.New(db, objstore.Options{
		Root:      filepath.Join(dir, objectsDir),
		CacheSize: opts.ObjectCacheSize,
		Sharded:   version >= 1,
		Logger:    opts.Logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	var refs *objstore.RefStore
	if _, statErr := os.Stat(filepath.Join(dir, "HEAD")); statErr == nil {
		refs, err = objstore.OpenRefStore(dir)
	} else {
		refs, err = objstore.InitRefStore(dir)
	}
	if err != nil {
		store.Close()
		db.Close()
		return nil, &apperr.StorageError{Op: "open ref store", Err: err}
	}

	index, err := openIndex(filepath.Join(dir, indexFile))
	if err != nil {
		store.Close()
		db.Close()
		return nil, err
	}

	r := &Repository{
		project: opts.Project,
		name:    opts.Name,
		dir:     dir,
		db:      db,
		store:   store,
		refs:    refs,
		index:   index,
		diffs:   opts.DiffCache,
		watcher: newCommitWatchers(),
		workers: semaphore.NewWeighted(int64(opts.WorkerCount)),
		logger:  opts.Logger,
		closed:  make(chan struct{}),
	}
	r.head.Store(int64(index.headRevision()))
	return r, nil
}

// Project returns the name of the owning project.
func (r *Repository) Project() string { return r.project }

// Name returns the repository name.
func (r *Repository) Name() string { return r.name }

// Dir returns the storage directory.
func (r *Repository) Dir() string { return r.dir }

// Head returns the current head revision.
func (r *Repository) Head() Revision { return Revision(r.head.Load()) }

// Normalize resolves a possibly relative revision against the current head.
func (r *Repository) Normalize(rev Revision) (Revision, error) {
	return normalize(rev, r.Head())
}

func (r *Repository) repoKey() string {
	return r.project + "/" + r.name
}

// closeError returns the failure every operation should be completed with
// once closing has begun, nil otherwise.
func (r *Repository) closeError() error {
	if supplier := r.closePending.Load(); supplier != nil {
		return (*supplier)()
	}
	return nil
}

// acquireWorker claims a worker slot, failing fast when the repository is
// closing or the caller's deadline elapses first.
func (r *Repository) acquireWorker(ctx context.Context, op string) (func(), error) {
	if err := r.closeError(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := r.workers.Acquire(ctx, 1); err != nil {
		return nil, &apperr.TimeoutError{Op: op, Elapsed: time.Since(start)}
	}
	if err := r.closeError(); err != nil {
		r.workers.Release(1)
		return nil, err
	}
	return func() { r.workers.Release(1) }, nil
}

// Close shuts the repository down. In-flight operations are waited for up
// to the context deadline; pending watchers fail with ShuttingDownError.
func (r *Repository) Close(ctx context.Context) error {
	cause := func() error {
		return &apperr.ShuttingDownError{Repository: r.repoKey()}
	}
	r.beginClose(cause)
	select {
	case <-r.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeNow is used on construction failures where nothing can be in flight.
func (r *Repository) closeNow() {
	cause := func() error {
		return &apperr.ShuttingDownError{Repository: r.repoKey()}
	}
	r.beginClose(cause)
	<-r.closed
}

func (r *Repository) beginClose(cause func() error) {
	if !r.closePending.CompareAndSwap(nil, &cause) {
		return
	}
	go func() {
		// The write lock drains the readers and the single writer.
		r.mu.Lock()
		if err := r.index.close(); err != nil {
			r.logger.Warn("closing commit index", zap.Error(err))
		}
		r.store.Close()
		if err := r.db.Close(); err != nil {
			r.logger.Warn("closing metadata database", zap.Error(err))
		}
		r.mu.Unlock()

		r.watcher.close(cause())
		close(r.closed)
		r.logger.Info("closed repository")
	}()
}
