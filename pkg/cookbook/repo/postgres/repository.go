package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements cookbook.Store using PostgreSQL
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL store with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Error handling helper
func (s *Store) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("record not found")
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// Artifact operations

func (s *Store) CreateArtifact(ctx context.Context, artifact *cookbook.Artifact) error {
	query := `
		INSERT INTO cookbook_artifact (
			id, storage_backend_name, object_key, size, checksum, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		artifact.ID, artifact.StorageBackendName, artifact.ObjectKey,
		artifact.Size, artifact.Checksum, artifact.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create artifact", err)
	}
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, id uuid.UUID) (*cookbook.Artifact, error) {
	query := `
		SELECT id, storage_backend_name, object_key, size, checksum, created_at
		FROM cookbook_artifact WHERE id = $1`

	var artifact cookbook.Artifact
	err := s.db.QueryRow(ctx, query, id).Scan(
		&artifact.ID, &artifact.StorageBackendName, &artifact.ObjectKey,
		&artifact.Size, &artifact.Checksum, &artifact.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrArtifactNotFound
		}
		return nil, s.handlePostgresError("get artifact", err)
	}
	return &artifact, nil
}

// Package operations

func (s *Store) CreatePackage(ctx context.Context, pkg *cookbook.PackageContent) error {
	deps, err := json.Marshal(pkg.Dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}

	query := `
		INSERT INTO cookbook_package (
			id, name, version, dependencies, artifact_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = s.db.Exec(ctx, query,
		pkg.ID, pkg.Name, pkg.Version, deps, pkg.ArtifactID, pkg.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create package", err)
	}
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id uuid.UUID) (*cookbook.PackageContent, error) {
	query := `
		SELECT id, name, version, dependencies, artifact_id, created_at
		FROM cookbook_package WHERE id = $1`

	pkg, err := scanPackage(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrPackageNotFound
		}
		return nil, s.handlePostgresError("get package", err)
	}
	return pkg, nil
}

func (s *Store) ListPackages(ctx context.Context, filter cookbook.PackageFilter) ([]*cookbook.PackageContent, error) {
	query := `
		SELECT id, name, version, dependencies, artifact_id, created_at
		FROM cookbook_package`

	var conditions []string
	var args []interface{}
	if filter.Name != "" {
		args = append(args, filter.Name)
		conditions = append(conditions, fmt.Sprintf("name = $%d", len(args)))
	}
	if filter.Version != "" {
		args = append(args, filter.Version)
		conditions = append(conditions, fmt.Sprintf("version = $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, s.handlePostgresError("list packages", err)
	}
	defer rows.Close()

	var packages []*cookbook.PackageContent
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, s.handlePostgresError("list packages", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

func scanPackage(row pgx.Row) (*cookbook.PackageContent, error) {
	var pkg cookbook.PackageContent
	var deps []byte
	if err := row.Scan(&pkg.ID, &pkg.Name, &pkg.Version, &deps, &pkg.ArtifactID, &pkg.CreatedAt); err != nil {
		return nil, err
	}
	if len(deps) > 0 {
		if err := json.Unmarshal(deps, &pkg.Dependencies); err != nil {
			return nil, fmt.Errorf("decode dependencies: %w", err)
		}
	}
	if pkg.Dependencies == nil {
		pkg.Dependencies = map[string]string{}
	}
	return &pkg, nil
}

// Repository and version operations

func (s *Store) CreateRepository(ctx context.Context, repo *cookbook.Repository) error {
	query := `INSERT INTO cookbook_repository (id, name, created_at) VALUES ($1, $2, $3)`

	_, err := s.db.Exec(ctx, query, repo.ID, repo.Name, repo.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create repository", err)
	}
	return nil
}

func (s *Store) GetRepository(ctx context.Context, id uuid.UUID) (*cookbook.Repository, error) {
	query := `SELECT id, name, created_at FROM cookbook_repository WHERE id = $1`

	var repo cookbook.Repository
	err := s.db.QueryRow(ctx, query, id).Scan(&repo.ID, &repo.Name, &repo.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrRepositoryNotFound
		}
		return nil, s.handlePostgresError("get repository", err)
	}
	return &repo, nil
}

func (s *Store) CreateRepositoryVersion(ctx context.Context, version *cookbook.RepositoryVersion, packageIDs []uuid.UUID) error {
	query := `
		INSERT INTO cookbook_repository_version (id, repository_id, number, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.Exec(ctx, query,
		version.ID, version.RepositoryID, version.Number, version.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create repository version", err)
	}

	for _, packageID := range packageIDs {
		_, err := s.db.Exec(ctx,
			`INSERT INTO cookbook_version_package (version_id, package_id) VALUES ($1, $2)`,
			version.ID, packageID)
		if err != nil {
			return s.handlePostgresError("add package to version", err)
		}
	}
	return nil
}

func (s *Store) GetRepositoryVersion(ctx context.Context, id uuid.UUID) (*cookbook.RepositoryVersion, error) {
	query := `
		SELECT id, repository_id, number, created_at
		FROM cookbook_repository_version WHERE id = $1`

	var version cookbook.RepositoryVersion
	err := s.db.QueryRow(ctx, query, id).Scan(
		&version.ID, &version.RepositoryID, &version.Number, &version.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrRepositoryVersionNotFound
		}
		return nil, s.handlePostgresError("get repository version", err)
	}
	return &version, nil
}

func (s *Store) LatestVersion(ctx context.Context, repositoryID uuid.UUID) (*cookbook.RepositoryVersion, error) {
	query := `
		SELECT id, repository_id, number, created_at
		FROM cookbook_repository_version
		WHERE repository_id = $1
		ORDER BY number DESC LIMIT 1`

	var version cookbook.RepositoryVersion
	err := s.db.QueryRow(ctx, query, repositoryID).Scan(
		&version.ID, &version.RepositoryID, &version.Number, &version.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrRepositoryVersionNotFound
		}
		return nil, s.handlePostgresError("get latest version", err)
	}
	return &version, nil
}

func (s *Store) ListVersionPackages(ctx context.Context, versionID uuid.UUID) ([]*cookbook.PackageContent, error) {
	query := `
		SELECT p.id, p.name, p.version, p.dependencies, p.artifact_id, p.created_at
		FROM cookbook_package p
		JOIN cookbook_version_package vp ON vp.package_id = p.id
		WHERE vp.version_id = $1
		ORDER BY p.name, p.version`

	rows, err := s.db.Query(ctx, query, versionID)
	if err != nil {
		return nil, s.handlePostgresError("list version packages", err)
	}
	defer rows.Close()

	var packages []*cookbook.PackageContent
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, s.handlePostgresError("list version packages", err)
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// Publisher operations

func (s *Store) CreatePublisher(ctx context.Context, publisher *cookbook.Publisher) error {
	query := `INSERT INTO cookbook_publisher (id, name, created_at) VALUES ($1, $2, $3)`

	_, err := s.db.Exec(ctx, query, publisher.ID, publisher.Name, publisher.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create publisher", err)
	}
	return nil
}

func (s *Store) GetPublisher(ctx context.Context, id uuid.UUID) (*cookbook.Publisher, error) {
	query := `SELECT id, name, created_at FROM cookbook_publisher WHERE id = $1`

	var publisher cookbook.Publisher
	err := s.db.QueryRow(ctx, query, id).Scan(&publisher.ID, &publisher.Name, &publisher.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrPublisherNotFound
		}
		return nil, s.handlePostgresError("get publisher", err)
	}
	return &publisher, nil
}

// Task operations

func (s *Store) CreateTask(ctx context.Context, task *cookbook.Task) error {
	query := `
		INSERT INTO cookbook_task (id, name, state, error, created_at, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.Exec(ctx, query,
		task.ID, task.Name, string(task.State), task.Error,
		task.CreatedAt, task.StartedAt, task.FinishedAt)
	if err != nil {
		return s.handlePostgresError("create task", err)
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (*cookbook.Task, error) {
	query := `
		SELECT id, name, state, error, created_at, started_at, finished_at
		FROM cookbook_task WHERE id = $1`

	var task cookbook.Task
	var state string
	err := s.db.QueryRow(ctx, query, id).Scan(
		&task.ID, &task.Name, &state, &task.Error,
		&task.CreatedAt, &task.StartedAt, &task.FinishedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrTaskNotFound
		}
		return nil, s.handlePostgresError("get task", err)
	}
	task.State = cookbook.TaskState(state)
	return &task, nil
}

func (s *Store) UpdateTask(ctx context.Context, task *cookbook.Task) error {
	query := `
		UPDATE cookbook_task SET
			state = $2, error = $3, started_at = $4, finished_at = $5
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query,
		task.ID, string(task.State), task.Error, task.StartedAt, task.FinishedAt)
	if err != nil {
		return s.handlePostgresError("update task", err)
	}
	if tag.RowsAffected() == 0 {
		return cookbook.ErrTaskNotFound
	}
	return nil
}

// Publication operations

func (s *Store) CreatePublication(ctx context.Context, pub *cookbook.Publication) error {
	query := `
		INSERT INTO cookbook_publication (
			id, publisher_id, repository_version_id, package_count, created_at
		) VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query,
		pub.ID, pub.PublisherID, pub.RepositoryVersionID, pub.PackageCount, pub.CreatedAt)
	if err != nil {
		return s.handlePostgresError("create publication", err)
	}
	return nil
}

func (s *Store) GetPublication(ctx context.Context, id uuid.UUID) (*cookbook.Publication, error) {
	query := `
		SELECT id, publisher_id, repository_version_id, package_count, created_at
		FROM cookbook_publication WHERE id = $1`

	var pub cookbook.Publication
	err := s.db.QueryRow(ctx, query, id).Scan(
		&pub.ID, &pub.PublisherID, &pub.RepositoryVersionID, &pub.PackageCount, &pub.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, cookbook.ErrPublicationNotFound
		}
		return nil, s.handlePostgresError("get publication", err)
	}
	return &pub, nil
}
