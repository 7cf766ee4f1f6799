package cookbook

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error types
var (
	// ErrArtifactNotFound indicates an artifact reference does not exist
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrPackageNotFound indicates a cookbook package was not found
	ErrPackageNotFound = errors.New("cookbook package not found")

	// ErrRepositoryNotFound indicates a repository was not found
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrRepositoryVersionNotFound indicates a repository version was not found
	ErrRepositoryVersionNotFound = errors.New("repository version not found")

	// ErrPublisherNotFound indicates a publisher was not found
	ErrPublisherNotFound = errors.New("publisher not found")

	// ErrTaskNotFound indicates a task was not found
	ErrTaskNotFound = errors.New("task not found")

	// ErrPublicationNotFound indicates a publication was not found
	ErrPublicationNotFound = errors.New("publication not found")

	// ErrStorageBackendNotFound indicates a storage backend was not found
	ErrStorageBackendNotFound = errors.New("storage backend not found")

	// ErrMissingField indicates a required request field was absent
	ErrMissingField = errors.New("this field is required")

	// ErrInvalidArtifact indicates the artifact blob does not contain a
	// parseable cookbook metadata descriptor
	ErrInvalidArtifact = errors.New("no metadata found in archive")

	// ErrVersionMismatch indicates the declared version contradicts the
	// version embedded in the cookbook tarball
	ErrVersionMismatch = errors.New("version does not correspond to version in cookbook tar")

	// ErrAmbiguousTarget indicates a publish request under- or
	// over-specifies its target
	ErrAmbiguousTarget = errors.New("ambiguous publish target")

	// ErrNoVersionAvailable indicates the repository has no version to publish
	ErrNoVersionAvailable = errors.New("repository has no version available to publish")

	// ErrDispatchFailed indicates the publish task could not be enqueued
	ErrDispatchFailed = errors.New("publish task could not be enqueued")
)

// ValidationError is a user-correctable request rejection. Fields carries
// per-field messages for field-level violations; Message is used for
// violations that are not attributable to a single field. Err holds the
// sentinel the rejection wraps, so callers can test with errors.Is.
type ValidationError struct {
	Message string
	Fields  map[string]string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewFieldError builds a ValidationError rejecting a single field.
func NewFieldError(field, message string, err error) *ValidationError {
	return &ValidationError{
		Fields: map[string]string{field: message},
		Err:    err,
	}
}

// NewValidationError builds a ValidationError not tied to one field.
func NewValidationError(message string, err error) *ValidationError {
	return &ValidationError{Message: message, Err: err}
}

// TaskError represents a failure inside an asynchronous task.
type TaskError struct {
	TaskName string
	Op       string
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed during %s: %v", e.TaskName, e.Op, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}
