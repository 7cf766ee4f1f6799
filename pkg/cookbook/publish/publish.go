// Package publish executes dispatched publish tasks: it materializes a
// repository version's package set into a publication through a
// PublicationWriter.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// Runner executes publish tasks produced by Service.Publish.
type Runner struct {
	store  cookbook.Store
	writer cookbook.PublicationWriter
	logger *slog.Logger
}

// NewRunner creates a publish task runner.
func NewRunner(store cookbook.Store, writer cookbook.PublicationWriter) *Runner {
	return &Runner{
		store:  store,
		writer: writer,
		logger: slog.Default(),
	}
}

// Run executes one publish task. Arguments carry identifiers only; the
// publisher and version are loaded fresh since the task may run long
// after it was enqueued.
func (r *Runner) Run(ctx context.Context, task cookbook.TaskDescriptor) error {
	publisherID, err := parseArg(task, "publisher_id")
	if err != nil {
		return err
	}
	versionID, err := parseArg(task, "repository_version_id")
	if err != nil {
		return err
	}

	publisher, err := r.store.GetPublisher(ctx, publisherID)
	if err != nil {
		return &cookbook.TaskError{TaskName: task.Name, Op: "load publisher", Err: err}
	}

	version, err := r.store.GetRepositoryVersion(ctx, versionID)
	if err != nil {
		return &cookbook.TaskError{TaskName: task.Name, Op: "load repository version", Err: err}
	}

	packages, err := r.store.ListVersionPackages(ctx, version.ID)
	if err != nil {
		return &cookbook.TaskError{TaskName: task.Name, Op: "list version packages", Err: err}
	}

	pub := &cookbook.Publication{
		ID:                  uuid.New(),
		PublisherID:         publisher.ID,
		RepositoryVersionID: version.ID,
		PackageCount:        len(packages),
		CreatedAt:           time.Now().UTC(),
	}

	if err := r.writer.WritePublication(ctx, pub, packages); err != nil {
		return &cookbook.TaskError{TaskName: task.Name, Op: "write publication", Err: err}
	}

	if err := r.store.CreatePublication(ctx, pub); err != nil {
		return &cookbook.TaskError{TaskName: task.Name, Op: "record publication", Err: err}
	}

	r.logger.Info("published repository version",
		"publisher", publisher.Name,
		"repository_version_id", version.ID,
		"version_number", version.Number,
		"packages", len(packages))

	return nil
}

func parseArg(task cookbook.TaskDescriptor, name string) (uuid.UUID, error) {
	raw, ok := task.Args[name]
	if !ok {
		return uuid.Nil, &cookbook.TaskError{
			TaskName: task.Name,
			Op:       "parse arguments",
			Err:      fmt.Errorf("missing argument %q", name),
		}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &cookbook.TaskError{
			TaskName: task.Name,
			Op:       "parse arguments",
			Err:      fmt.Errorf("invalid argument %q: %w", name, err),
		}
	}
	return id, nil
}

// NoopWriter discards publications. Useful when only the publication
// record matters.
type NoopWriter struct{}

func (NoopWriter) WritePublication(ctx context.Context, pub *cookbook.Publication, packages []*cookbook.PackageContent) error {
	return nil
}

// RecorderWriter captures each publication it receives. It is a test
// double for observing publish output.
type RecorderWriter struct {
	Publications []*cookbook.Publication
	Packages     [][]*cookbook.PackageContent
}

func (w *RecorderWriter) WritePublication(ctx context.Context, pub *cookbook.Publication, packages []*cookbook.PackageContent) error {
	w.Publications = append(w.Publications, pub)
	w.Packages = append(w.Packages, packages)
	return nil
}
