package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// Store implements cookbook.Store using in-memory maps. Every mutating
// operation runs under one lock, so a created package is never observable
// without its artifact binding.
type Store struct {
	mu              sync.RWMutex
	artifacts       map[uuid.UUID]*cookbook.Artifact
	packages        map[uuid.UUID]*cookbook.PackageContent
	repositories    map[uuid.UUID]*cookbook.Repository
	versions        map[uuid.UUID]*cookbook.RepositoryVersion
	versionsByRepo  map[uuid.UUID][]uuid.UUID
	versionPackages map[uuid.UUID][]uuid.UUID
	publishers      map[uuid.UUID]*cookbook.Publisher
	tasks           map[uuid.UUID]*cookbook.Task
	publications    map[uuid.UUID]*cookbook.Publication
}

// New creates a new in-memory store
func New() *Store {
	return &Store{
		artifacts:       make(map[uuid.UUID]*cookbook.Artifact),
		packages:        make(map[uuid.UUID]*cookbook.PackageContent),
		repositories:    make(map[uuid.UUID]*cookbook.Repository),
		versions:        make(map[uuid.UUID]*cookbook.RepositoryVersion),
		versionsByRepo:  make(map[uuid.UUID][]uuid.UUID),
		versionPackages: make(map[uuid.UUID][]uuid.UUID),
		publishers:      make(map[uuid.UUID]*cookbook.Publisher),
		tasks:           make(map[uuid.UUID]*cookbook.Task),
		publications:    make(map[uuid.UUID]*cookbook.Publication),
	}
}

// Artifact operations

func (s *Store) CreateArtifact(ctx context.Context, artifact *cookbook.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	artifactCopy := *artifact
	s.artifacts[artifact.ID] = &artifactCopy
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*cookbook.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, exists := s.artifacts[id]
	if !exists {
		return nil, cookbook.ErrArtifactNotFound
	}
	artifactCopy := *artifact
	return &artifactCopy, nil
}

// Package operations

func (s *Store) CreatePackage(ctx context.Context, pkg *cookbook.PackageContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[pkg.ArtifactID]; !exists {
		return cookbook.ErrArtifactNotFound
	}
	s.packages[pkg.ID] = copyPackage(pkg)
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id uuid.UUID) (*cookbook.PackageContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, exists := s.packages[id]
	if !exists {
		return nil, cookbook.ErrPackageNotFound
	}
	return copyPackage(pkg), nil
}

func (s *Store) ListPackages(ctx context.Context, filter cookbook.PackageFilter) ([]*cookbook.PackageContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*cookbook.PackageContent
	for _, pkg := range s.packages {
		if filter.Name != "" && pkg.Name != filter.Name {
			continue
		}
		if filter.Version != "" && pkg.Version != filter.Version {
			continue
		}
		result = append(result, copyPackage(pkg))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Repository and version operations

func (s *Store) CreateRepository(ctx context.Context, repo *cookbook.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repoCopy := *repo
	s.repositories[repo.ID] = &repoCopy
	return nil
}

func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (*cookbook.Repository, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	repo, exists := s.repositories[id]
	if !exists {
		return nil, cookbook.ErrRepositoryNotFound
	}
	repoCopy := *repo
	return &repoCopy, nil
}

func (s *Store) CreateRepositoryVersion(ctx context.Context, version *cookbook.RepositoryVersion, packageIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.repositories[version.RepositoryID]; !exists {
		return cookbook.ErrRepositoryNotFound
	}
	for _, packageID := range packageIDs {
		if _, exists := s.packages[packageID]; !exists {
			return cookbook.ErrPackageNotFound
		}
	}

	versionCopy := *version
	s.versions[version.ID] = &versionCopy
	s.versionsByRepo[version.RepositoryID] = append(s.versionsByRepo[version.RepositoryID], version.ID)
	s.versionPackages[version.ID] = append([]uuid.UUID(nil), packageIDs...)
	return nil
}

func (s *Store) GetRepositoryVersion(ctx context.Context, id uuid.UUID) (*cookbook.RepositoryVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	version, exists := s.versions[id]
	if !exists {
		return nil, cookbook.ErrRepositoryVersionNotFound
	}
	versionCopy := *version
	return &versionCopy, nil
}

func (s *Store) LatestVersion(ctx context.Context, repositoryID uuid.UUID) (*cookbook.RepositoryVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.versionsByRepo[repositoryID]
	if len(ids) == 0 {
		return nil, cookbook.ErrRepositoryVersionNotFound
	}

	var latest *cookbook.RepositoryVersion
	for _, id := range ids {
		version := s.versions[id]
		if latest == nil || version.Number > latest.Number {
			latest = version
		}
	}
	latestCopy := *latest
	return &latestCopy, nil
}

func (s *Store) ListVersionPackages(ctx context.Context, versionID uuid.UUID) ([]*cookbook.PackageContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, exists := s.versions[versionID]; !exists {
		return nil, cookbook.ErrRepositoryVersionNotFound
	}

	ids := s.versionPackages[versionID]
	result := make([]*cookbook.PackageContent, 0, len(ids))
	for _, id := range ids {
		if pkg, exists := s.packages[id]; exists {
			result = append(result, copyPackage(pkg))
		}
	}
	return result, nil
}

// Publisher operations

func (s *Store) CreatePublisher(ctx context.Context, publisher *cookbook.Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	publisherCopy := *publisher
	s.publishers[publisher.ID] = &publisherCopy
	return nil
}

func (s *Store) GetPublisher(ctx context.Context, id uuid.UUID) (*cookbook.Publisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	publisher, exists := s.publishers[id]
	if !exists {
		return nil, cookbook.ErrPublisherNotFound
	}
	publisherCopy := *publisher
	return &publisherCopy, nil
}

// Task operations

func (s *Store) CreateTask(ctx context.Context, task *cookbook.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taskCopy := *task
	s.tasks[task.ID] = &taskCopy
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*cookbook.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, exists := s.tasks[id]
	if !exists {
		return nil, cookbook.ErrTaskNotFound
	}
	taskCopy := *task
	return &taskCopy, nil
}

func (s *Store) UpdateTask(ctx context.Context, task *cookbook.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[task.ID]; !exists {
		return cookbook.ErrTaskNotFound
	}
	taskCopy := *task
	s.tasks[task.ID] = &taskCopy
	return nil
}

// Publication operations

func (s *Store) CreatePublication(ctx context.Context, pub *cookbook.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pubCopy := *pub
	s.publications[pub.ID] = &pubCopy
	return nil
}

func (s *Store) GetPublication(ctx context.Context, id uuid.UUID) (*cookbook.Publication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, exists := s.publications[id]
	if !exists {
		return nil, cookbook.ErrPublicationNotFound
	}
	pubCopy := *pub
	return &pubCopy, nil
}

// copyPackage deep-copies the dependency map so callers cannot mutate
// stored state.
func copyPackage(pkg *cookbook.PackageContent) *cookbook.PackageContent {
	pkgCopy := *pkg
	if pkg.Dependencies != nil {
		deps := make(map[string]string, len(pkg.Dependencies))
		for k, v := range pkg.Dependencies {
			deps[k] = v
		}
		pkgCopy.Dependencies = deps
	}
	return &pkgCopy
}
