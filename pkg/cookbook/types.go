package cookbook

import (
	"time"

	"github.com/google/uuid"
)

// TaskState is the domain type for task lifecycle states.
type TaskState string

// Task state constants (typed).
const (
	TaskStateWaiting   TaskState = "waiting"
	TaskStateRunning   TaskState = "running"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// TaskNamePublish is the task type dispatched by Service.Publish.
const TaskNamePublish = "cookbook.publish"

// Artifact references a binary blob stored in a storage backend.
// Immutable once stored; the content layer only ever holds the reference.
type Artifact struct {
	ID                 uuid.UUID `json:"id"`
	StorageBackendName string    `json:"storage_backend_name"`
	ObjectKey          string    `json:"object_key"`
	Size               int64     `json:"size,omitempty"`
	Checksum           string    `json:"checksum,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Metadata is the descriptor extracted from a cookbook tarball's
// metadata.json. It is derived on each admission attempt and never
// persisted independently of the package record it produces.
type Metadata struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// PackageContent is the logical cookbook unit bound to exactly one
// artifact. Version always equals the version found inside the bound
// artifact; the two are never allowed to diverge. Records are created
// once during admission and are immutable afterward.
type PackageContent struct {
	ID           uuid.UUID         `json:"id"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	ArtifactID   uuid.UUID         `json:"artifact_id"`
	CreatedAt    time.Time         `json:"created_at"`
}

// Repository is a named, mutable container of ordered versions.
type Repository struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RepositoryVersion is an immutable snapshot of a repository's content
// set. Number is assigned in creation order; the highest number is the
// repository's latest version.
type RepositoryVersion struct {
	ID           uuid.UUID `json:"id"`
	RepositoryID uuid.UUID `json:"repository_id"`
	Number       int       `json:"number"`
	CreatedAt    time.Time `json:"created_at"`
}

// Publisher describes how a repository version is rendered for
// distribution. The content layer treats it as an opaque identifier plus
// one half of the publish reservation key.
type Publisher struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Task is the postponed-operation handle returned by Publish. Callers
// poll it for completion; the dispatch backend moves it through its
// states.
type Task struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	State      TaskState  `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Publication records the outcome of a completed publish task.
type Publication struct {
	ID                  uuid.UUID `json:"id"`
	PublisherID         uuid.UUID `json:"publisher_id"`
	RepositoryVersionID uuid.UUID `json:"repository_version_id"`
	PackageCount        int       `json:"package_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// PackageFilter narrows ListPackages results. Zero-value fields match
// everything.
type PackageFilter struct {
	Name    string
	Version string
}
