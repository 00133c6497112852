// Package project groups repositories under a project directory and wires
// the shared pieces they need: configuration, the diff cache, and logging.
package project

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"confvault/internal/apperr"
	"confvault/internal/config"
	"confvault/internal/repo"
)

const reposDir = "repos"

// Project owns the repositories under one directory.
type Project struct {
	name   string
	dir    string
	cfg    *config.Config
	diffs  *repo.DiffCache
	logger *zap.Logger

	mu    sync.Mutex
	repos map[string]*repo.Repository
}

// Initialize creates the directory layout of a new project.
func Initialize(dir string) error {
	if err := os.MkdirAll(filepath.Join(dir, reposDir), 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}
	return nil
}

// New opens a project, creating its layout when missing.
func New(dir string, cfg *config.Config, logger *zap.Logger) (*Project, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for %s: %w", dir, err)
	}
	if err := Initialize(absDir); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var diffs *repo.DiffCache
	if cfg.Storage.DiffCacheSize > 0 {
		if diffs, err = repo.NewDiffCache(cfg.Storage.DiffCacheSize); err != nil {
			return nil, err
		}
	}

	return &Project{
		name:   filepath.Base(absDir),
		dir:    absDir,
		cfg:    cfg,
		diffs:  diffs,
		logger: logger,
		repos:  map[string]*repo.Repository{},
	}, nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

func (p *Project) repoOptions(name string) repo.Options {
	return repo.Options{
		Project:         p.name,
		Name:            name,
		WorkerCount:     p.cfg.Storage.WorkerCount,
		ObjectCacheSize: p.cfg.Storage.ObjectCacheSize,
		DiffCache:       p.diffs,
		Logger:          p.logger.With(zap.String("project", p.name), zap.String("repository", name)),
	}
}

// CreateRepository creates and opens a new repository.
func (p *Project) CreateRepository(name string) (*repo.Repository, error) {
	if err := repo.ValidateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.repos[name]; ok {
		return nil, fmt.Errorf("repository already open: %s", name)
	}

	author := repo.Author{Name: p.cfg.Author.Name, Email: p.cfg.Author.Email}
	r, err := repo.Create(p.repoDir(name), p.repoOptions(name), author)
	if err != nil {
		return nil, err
	}
	p.repos[name] = r
	return r, nil
}

// OpenRepository opens an existing repository, reusing an already open one.
func (p *Project) OpenRepository(name string) (*repo.Repository, error) {
	if err := repo.ValidateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.repos[name]; ok {
		return r, nil
	}

	r, err := repo.Open(p.repoDir(name), p.repoOptions(name))
	if err != nil {
		return nil, err
	}
	p.repos[name] = r
	return r, nil
}

// RemoveRepository closes a repository and deletes its storage.
func (p *Project) RemoveRepository(ctx context.Context, name string) error {
	p.mu.Lock()
	r, open := p.repos[name]
	delete(p.repos, name)
	p.mu.Unlock()

	if open {
		if err := r.Close(ctx); err != nil {
			return err
		}
	} else if _, err := os.Stat(p.repoDir(name)); os.IsNotExist(err) {
		return &apperr.RepositoryNotFoundError{Dir: p.repoDir(name)}
	}
	if err := os.RemoveAll(p.repoDir(name)); err != nil {
		return &apperr.StorageError{Op: "remove repository", Err: err}
	}
	p.logger.Info("removed repository",
		zap.String("project", p.name), zap.String("repository", name))
	return nil
}

// List returns the names of all repositories in the project, open or not.
func (p *Project) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(p.dir, reposDir))
	if err != nil {
		return nil, &apperr.StorageError{Op: "list repositories", Err: err}
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close closes every open repository. The context bounds the total wait.
func (p *Project) Close(ctx context.Context) error {
	p.mu.Lock()
	repos := make([]*repo.Repository, 0, len(p.repos))
	for _, r := range p.repos {
		repos = append(repos, r)
	}
	p.repos = map[string]*repo.Repository{}
	p.mu.Unlock()

	var firstErr error
	for _, r := range repos {
		if err := r.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Project) repoDir(name string) string {
	return filepath.Join(p.dir, reposDir, name)
}
