package cookbook

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for cookbook persistence.
type Store interface {
	// Artifact operations
	CreateArtifact(ctx context.Context, artifact *Artifact) error
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)

	// Package operations
	CreatePackage(ctx context.Context, pkg *PackageContent) error
	GetPackage(ctx context.Context, id uuid.UUID) (*PackageContent, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]*PackageContent, error)

	// Repository and version operations
	CreateRepository(ctx context.Context, repo *Repository) error
	GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error)
	CreateRepositoryVersion(ctx context.Context, version *RepositoryVersion, packageIDs []uuid.UUID) error
	GetRepositoryVersion(ctx context.Context, id uuid.UUID) (*RepositoryVersion, error)
	// LatestVersion returns the highest-numbered version of a repository,
	// ErrRepositoryVersionNotFound when the repository has none.
	LatestVersion(ctx context.Context, repositoryID uuid.UUID) (*RepositoryVersion, error)
	ListVersionPackages(ctx context.Context, versionID uuid.UUID) ([]*PackageContent, error)

	// Publisher operations
	CreatePublisher(ctx context.Context, publisher *Publisher) error
	GetPublisher(ctx context.Context, id uuid.UUID) (*Publisher, error)

	// Task operations
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) error

	// Publication operations
	CreatePublication(ctx context.Context, pub *Publication) error
	GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error)
}

// BlobStore defines the interface for artifact storage backends.
type BlobStore interface {
	// Upload uploads content directly
	Upload(ctx context.Context, objectKey string, reader io.Reader) error

	// Download downloads content directly
	Download(ctx context.Context, objectKey string) (io.ReadCloser, error)

	// Delete deletes content
	Delete(ctx context.Context, objectKey string) error

	// GetDownloadURL returns a URL for downloading content
	GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error)

	// GetObjectMeta retrieves metadata for a stored object
	GetObjectMeta(ctx context.Context, objectKey string) (*ObjectMeta, error)
}

// ObjectMeta contains metadata about an object in storage.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	UpdatedAt   time.Time
	ETag        string
	Metadata    map[string]string
}

// MetadataExtractor locates and parses the cookbook descriptor embedded
// in an artifact blob. Implementations return an error wrapping
// ErrInvalidArtifact when no descriptor for the declared name exists.
type MetadataExtractor interface {
	Extract(ctx context.Context, r io.Reader, name string) (*Metadata, error)
}

// ReservationKey identifies a resource a dispatched task must hold
// exclusively while it runs.
type ReservationKey struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (k ReservationKey) String() string {
	return k.Kind + ":" + k.ID.String()
}

// TaskDescriptor carries a deferred task's durable parameters. Args hold
// identifiers rather than live references; the executor re-resolves them
// since the task may run arbitrarily later.
type TaskDescriptor struct {
	TaskID uuid.UUID         `json:"task_id"`
	Name   string            `json:"name"`
	Args   map[string]string `json:"args"`
	Keys   []ReservationKey  `json:"keys"`
}

// Dispatcher hands deferred tasks to an asynchronous execution backend.
// Two enqueued tasks sharing any reservation key are never executed
// concurrently; the second queues behind the first.
type Dispatcher interface {
	Enqueue(ctx context.Context, task TaskDescriptor) error
}

// PublicationWriter serializes a published repository version to a
// distribution target. The wire format of the output is the writer's
// concern.
type PublicationWriter interface {
	WritePublication(ctx context.Context, pub *Publication, packages []*PackageContent) error
}
