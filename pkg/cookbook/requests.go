package cookbook

import (
	"io"

	"github.com/google/uuid"
)

// Request/Response DTOs

// CreateArtifactRequest contains parameters for storing an artifact blob.
// ObjectKey is generated from the artifact ID when empty.
type CreateArtifactRequest struct {
	StorageBackendName string
	ObjectKey          string
	Reader             io.Reader
	Size               int64
	Checksum           string
}

// AdmitContentRequest contains parameters for admitting a cookbook
// package. Version is optional; when set it must match the version
// embedded in the artifact. The zero uuid means "not provided" for
// ArtifactID.
type AdmitContentRequest struct {
	Name       string
	Version    string
	ArtifactID uuid.UUID
}

// CreateRepositoryRequest contains parameters for creating a repository.
type CreateRepositoryRequest struct {
	Name string
}

// CreateRepositoryVersionRequest contains parameters for snapshotting a
// repository. PackageIDs is the content set frozen into the version.
type CreateRepositoryVersionRequest struct {
	RepositoryID uuid.UUID
	PackageIDs   []uuid.UUID
}

// CreatePublisherRequest contains parameters for creating a publisher.
type CreatePublisherRequest struct {
	Name string
}

// PublishRequest names the target of a publish operation. Exactly one of
// RepositoryID or RepositoryVersionID must be set (the zero uuid means
// "not provided"); the resolver normalizes it to one concrete version.
type PublishRequest struct {
	RepositoryID        uuid.UUID
	RepositoryVersionID uuid.UUID
}
