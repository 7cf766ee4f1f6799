package cookbook

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the main interface for the simple-cookbook library
type Service interface {
	// Artifact operations
	CreateArtifact(ctx context.Context, req CreateArtifactRequest) (*Artifact, error)
	GetArtifact(ctx context.Context, id uuid.UUID) (*Artifact, error)

	// Content admission
	AdmitContent(ctx context.Context, req AdmitContentRequest) (*PackageContent, error)
	GetPackage(ctx context.Context, id uuid.UUID) (*PackageContent, error)
	ListPackages(ctx context.Context, filter PackageFilter) ([]*PackageContent, error)

	// Repository operations
	CreateRepository(ctx context.Context, req CreateRepositoryRequest) (*Repository, error)
	GetRepository(ctx context.Context, id uuid.UUID) (*Repository, error)
	CreateRepositoryVersion(ctx context.Context, req CreateRepositoryVersionRequest) (*RepositoryVersion, error)
	GetRepositoryVersion(ctx context.Context, id uuid.UUID) (*RepositoryVersion, error)

	// Publisher operations
	CreatePublisher(ctx context.Context, req CreatePublisherRequest) (*Publisher, error)
	GetPublisher(ctx context.Context, id uuid.UUID) (*Publisher, error)

	// Publish workflow
	ResolvePublishTarget(ctx context.Context, req PublishRequest) (*RepositoryVersion, error)
	Publish(ctx context.Context, publisherID uuid.UUID, req PublishRequest) (*Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	GetPublication(ctx context.Context, id uuid.UUID) (*Publication, error)

	// Storage backend operations
	RegisterBackend(name string, backend BlobStore)
	GetBackend(name string) (BlobStore, error)
}
