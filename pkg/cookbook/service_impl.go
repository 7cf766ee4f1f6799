package cookbook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	store          Store
	blobStores     map[string]BlobStore
	defaultBackend string
	extractor      MetadataExtractor
	dispatcher     Dispatcher
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the persistence store for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithBlobStore adds a blob storage backend
func WithBlobStore(name string, backend BlobStore) Option {
	return func(s *service) {
		if s.blobStores == nil {
			s.blobStores = make(map[string]BlobStore)
		}
		s.blobStores[name] = backend
	}
}

// WithDefaultBackend sets the backend used when a request does not name one
func WithDefaultBackend(name string) Option {
	return func(s *service) {
		s.defaultBackend = name
	}
}

// WithMetadataExtractor sets the cookbook descriptor extractor
func WithMetadataExtractor(extractor MetadataExtractor) Option {
	return func(s *service) {
		s.extractor = extractor
	}
}

// WithDispatcher sets the asynchronous task dispatch backend
func WithDispatcher(dispatcher Dispatcher) Option {
	return func(s *service) {
		s.dispatcher = dispatcher
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		blobStores: make(map[string]BlobStore),
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}

	return s, nil
}

// Storage backend operations

func (s *service) RegisterBackend(name string, backend BlobStore) {
	s.blobStores[name] = backend
}

func (s *service) GetBackend(name string) (BlobStore, error) {
	backend, ok := s.blobStores[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStorageBackendNotFound, name)
	}
	return backend, nil
}

// Artifact operations

func (s *service) CreateArtifact(ctx context.Context, req CreateArtifactRequest) (*Artifact, error) {
	backendName := req.StorageBackendName
	if backendName == "" {
		backendName = s.defaultBackend
	}
	backend, err := s.GetBackend(backendName)
	if err != nil {
		return nil, err
	}
	if req.Reader == nil {
		return nil, NewFieldError("file", "this field is required", ErrMissingField)
	}

	id := uuid.New()
	objectKey := req.ObjectKey
	if objectKey == "" {
		objectKey = "artifacts/" + id.String()
	}

	if err := backend.Upload(ctx, objectKey, req.Reader); err != nil {
		return nil, fmt.Errorf("upload artifact: %w", err)
	}

	artifact := &Artifact{
		ID:                 id,
		StorageBackendName: backendName,
		ObjectKey:          objectKey,
		Size:               req.Size,
		Checksum:           req.Checksum,
		CreatedAt:          time.Now().UTC(),
	}
	if artifact.Size == 0 {
		if meta, err := backend.GetObjectMeta(ctx, objectKey); err == nil {
			artifact.Size = meta.Size
		}
	}

	if err := s.store.CreateArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("persist artifact: %w", err)
	}

	return artifact, nil
}

func (s *service) GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error) {
	return s.store.GetArtifact(ctx, id)
}

// Content admission

// AdmitContent validates an uploaded cookbook tarball against the
// caller-declared fields and creates the package record. Validation is
// fail-fast: the record is persisted in a single store call only after
// every rule has passed, so rejected requests leave no partial state.
func (s *service) AdmitContent(ctx context.Context, req AdmitContentRequest) (*PackageContent, error) {
	if req.ArtifactID == uuid.Nil {
		return nil, NewFieldError("artifact", "this field is required", ErrMissingField)
	}
	if req.Name == "" {
		return nil, NewFieldError("name", "this field is required", ErrMissingField)
	}

	artifact, err := s.store.GetArtifact(ctx, req.ArtifactID)
	if err != nil {
		if errors.Is(err, ErrArtifactNotFound) {
			return nil, NewFieldError("artifact", "artifact not found", ErrArtifactNotFound)
		}
		return nil, fmt.Errorf("resolve artifact: %w", err)
	}

	if s.extractor == nil {
		return nil, fmt.Errorf("metadata extractor is required")
	}

	backend, err := s.GetBackend(artifact.StorageBackendName)
	if err != nil {
		return nil, err
	}
	blob, err := backend.Download(ctx, artifact.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	defer blob.Close()

	metadata, err := s.extractor.Extract(ctx, blob, req.Name)
	if err != nil {
		if errors.Is(err, ErrInvalidArtifact) {
			return nil, NewFieldError("artifact", "no metadata.json found in cookbook tar", err)
		}
		return nil, fmt.Errorf("extract cookbook metadata: %w", err)
	}

	if req.Version != "" && req.Version != metadata.Version {
		return nil, NewFieldError("version", "version does not correspond to version in cookbook tar", ErrVersionMismatch)
	}

	// The extracted version is authoritative regardless of what the
	// caller declared.
	pkg := &PackageContent{
		ID:           uuid.New(),
		Name:         req.Name,
		Version:      metadata.Version,
		Dependencies: metadata.Dependencies,
		ArtifactID:   artifact.ID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.CreatePackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("persist cookbook package: %w", err)
	}

	return pkg, nil
}

func (s *service) GetPackage(ctx context.Context, id uuid.UUID) (*PackageContent, error) {
	return s.store.GetPackage(ctx, id)
}

func (s *service) ListPackages(ctx context.Context, filter PackageFilter) ([]*PackageContent, error) {
	return s.store.ListPackages(ctx, filter)
}

// Repository operations

func (s *service) CreateRepository(ctx context.Context, req CreateRepositoryRequest) (*Repository, error) {
	if req.Name == "" {
		return nil, NewFieldError("name", "this field is required", ErrMissingField)
	}
	repo := &Repository{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRepository(ctx, repo); err != nil {
		return nil, fmt.Errorf("persist repository: %w", err)
	}
	return repo, nil
}

func (s *service) GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error) {
	return s.store.GetRepository(ctx, id)
}

func (s *service) CreateRepositoryVersion(ctx context.Context, req CreateRepositoryVersionRequest) (*RepositoryVersion, error) {
	if req.RepositoryID == uuid.Nil {
		return nil, NewFieldError("repository", "this field is required", ErrMissingField)
	}
	if _, err := s.store.GetRepository(ctx, req.RepositoryID); err != nil {
		return nil, err
	}

	number := 1
	if latest, err := s.store.LatestVersion(ctx, req.RepositoryID); err == nil {
		number = latest.Number + 1
	} else if !errors.Is(err, ErrRepositoryVersionNotFound) {
		return nil, err
	}

	version := &RepositoryVersion{
		ID:           uuid.New(),
		RepositoryID: req.RepositoryID,
		Number:       number,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateRepositoryVersion(ctx, version, req.PackageIDs); err != nil {
		return nil, fmt.Errorf("persist repository version: %w", err)
	}
	return version, nil
}

func (s *service) GetRepositoryVersion(ctx context.Context, id uuid.UUID) (*RepositoryVersion, error) {
	return s.store.GetRepositoryVersion(ctx, id)
}

// Publisher operations

func (s *service) CreatePublisher(ctx context.Context, req CreatePublisherRequest) (*Publisher, error) {
	if req.Name == "" {
		return nil, NewFieldError("name", "this field is required", ErrMissingField)
	}
	publisher := &Publisher{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreatePublisher(ctx, publisher); err != nil {
		return nil, fmt.Errorf("persist publisher: %w", err)
	}
	return publisher, nil
}

func (s *service) GetPublisher(ctx context.Context, id uuid.UUID) (*Publisher, error) {
	return s.store.GetPublisher(ctx, id)
}

// Publish workflow

// ResolvePublishTarget normalizes a publish request into exactly one
// immutable repository version. The rule order is observable: "neither"
// and "both" are explicit ambiguity rejections, a bare version reference
// passes through, and a bare repository reference resolves to its latest
// version.
func (s *service) ResolvePublishTarget(ctx context.Context, req PublishRequest) (*RepositoryVersion, error) {
	hasRepository := req.RepositoryID != uuid.Nil
	hasVersion := req.RepositoryVersionID != uuid.Nil

	switch {
	case !hasRepository && !hasVersion:
		return nil, NewValidationError(
			"either 'repository' or 'repository_version' needs to be specified",
			ErrAmbiguousTarget)

	case !hasRepository && hasVersion:
		version, err := s.store.GetRepositoryVersion(ctx, req.RepositoryVersionID)
		if err != nil {
			if errors.Is(err, ErrRepositoryVersionNotFound) {
				return nil, NewFieldError("repository_version", "repository version not found", err)
			}
			return nil, fmt.Errorf("resolve repository version: %w", err)
		}
		return version, nil

	case hasRepository && !hasVersion:
		if _, err := s.store.GetRepository(ctx, req.RepositoryID); err != nil {
			if errors.Is(err, ErrRepositoryNotFound) {
				return nil, NewFieldError("repository", "repository not found", err)
			}
			return nil, fmt.Errorf("resolve repository: %w", err)
		}
		version, err := s.store.LatestVersion(ctx, req.RepositoryID)
		if err != nil {
			if errors.Is(err, ErrRepositoryVersionNotFound) {
				return nil, NewValidationError(
					"repository has no version available to publish",
					ErrNoVersionAvailable)
			}
			return nil, fmt.Errorf("resolve latest version: %w", err)
		}
		return version, nil

	default:
		return nil, NewValidationError(
			"either 'repository' or 'repository_version' needs to be specified but not both",
			ErrAmbiguousTarget)
	}
}

// Publish resolves the target version and enqueues a publish task
// reserved against the (repository, publisher) pair. It returns the task
// handle immediately; callers poll it through GetTask.
func (s *service) Publish(ctx context.Context, publisherID uuid.UUID, req PublishRequest) (*Task, error) {
	publisher, err := s.store.GetPublisher(ctx, publisherID)
	if err != nil {
		return nil, err
	}

	version, err := s.ResolvePublishTarget(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.dispatcher == nil {
		return nil, fmt.Errorf("%w: no dispatcher configured", ErrDispatchFailed)
	}

	task := &Task{
		ID:        uuid.New(),
		Name:      TaskNamePublish,
		State:     TaskStateWaiting,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}

	descriptor := TaskDescriptor{
		TaskID: task.ID,
		Name:   TaskNamePublish,
		Args: map[string]string{
			"publisher_id":          publisher.ID.String(),
			"repository_version_id": version.ID.String(),
		},
		Keys: []ReservationKey{
			{Kind: "repository", ID: version.RepositoryID},
			{Kind: "publisher", ID: publisher.ID},
		},
	}

	if err := s.dispatcher.Enqueue(ctx, descriptor); err != nil {
		now := time.Now().UTC()
		task.State = TaskStateFailed
		task.Error = err.Error()
		task.FinishedAt = &now
		_ = s.store.UpdateTask(ctx, task)
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	return task, nil
}

func (s *service) GetTask(ctx context.Context, id uuid.UUID) (*Task, error) {
	return s.store.GetTask(ctx, id)
}

func (s *service) GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error) {
	return s.store.GetPublication(ctx, id)
}
