package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
	dispatchmemory "github.com/tendant/simple-cookbook/pkg/cookbook/dispatch/memory"
	dispatchnats "github.com/tendant/simple-cookbook/pkg/cookbook/dispatch/nats"
	"github.com/tendant/simple-cookbook/pkg/cookbook/metadata"
	"github.com/tendant/simple-cookbook/pkg/cookbook/publish"
	memoryrepo "github.com/tendant/simple-cookbook/pkg/cookbook/repo/memory"
	repopg "github.com/tendant/simple-cookbook/pkg/cookbook/repo/postgres"
	fsstorage "github.com/tendant/simple-cookbook/pkg/cookbook/storage/fs"
	memorystorage "github.com/tendant/simple-cookbook/pkg/cookbook/storage/memory"
	s3storage "github.com/tendant/simple-cookbook/pkg/cookbook/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                  "8080",
		Environment:           "development",
		DatabaseType:          "memory",
		DBSchema:              "cookbook",
		QueueType:             "memory",
		DefaultStorageBackend: "memory",
		PublicationPrefix:     "publications",
		StorageBackends: []StorageBackendConfig{
			{
				Name:   "memory",
				Type:   "memory",
				Config: map[string]interface{}{},
			},
		},
	}
}

// ServerConfig represents server configuration for the cookbook service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: cookbook)

	// Task queue configuration
	QueueType string // "memory", "nats"
	QueueURL  string // NATS server URL when QueueType is "nats"

	// Storage configuration
	DefaultStorageBackend string
	StorageBackends       []StorageBackendConfig

	// Key prefix for uploaded publication indexes
	PublicationPrefix string
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Name   string
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.QueueType != "memory" && c.QueueType != "nats" {
		return errors.New("queue_type must be 'memory' or 'nats'")
	}

	found := false
	for _, backend := range c.StorageBackends {
		if backend.Name == c.DefaultStorageBackend {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("default storage backend '%s' not found in configured backends", c.DefaultStorageBackend)
	}

	return nil
}

// App bundles the assembled service with the resources behind it.
type App struct {
	Service    cookbook.Service
	Dispatcher cookbook.Dispatcher

	closers []func() error
}

// Close releases the app's dispatcher and database resources.
func (a *App) Close() error {
	var errs []error
	for _, close := range a.closers {
		if err := close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService assembles the full service: persistence, storage
// backends, metadata extraction, and the publish task pipeline.
func (c *ServerConfig) BuildService(ctx context.Context) (*App, error) {
	app := &App{}

	store, err := c.buildStore(app)
	if err != nil {
		return nil, fmt.Errorf("failed to build store: %w", err)
	}

	options := []cookbook.Option{
		cookbook.WithStore(store),
		cookbook.WithDefaultBackend(c.DefaultStorageBackend),
		cookbook.WithMetadataExtractor(metadata.NewExtractor()),
	}

	var defaultBackend cookbook.BlobStore
	for _, backendConfig := range c.StorageBackends {
		backend, err := c.buildStorageBackend(backendConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build storage backend %s: %w", backendConfig.Name, err)
		}
		if backendConfig.Name == c.DefaultStorageBackend {
			defaultBackend = backend
		}
		options = append(options, cookbook.WithBlobStore(backendConfig.Name, backend))
	}

	runner := publish.NewRunner(store, publish.NewUniverseWriter(defaultBackend, c.PublicationPrefix))

	dispatcher, err := c.buildDispatcher(ctx, app, store, runner)
	if err != nil {
		return nil, fmt.Errorf("failed to build dispatcher: %w", err)
	}
	options = append(options, cookbook.WithDispatcher(dispatcher))

	svc, err := cookbook.New(options...)
	if err != nil {
		return nil, err
	}

	app.Service = svc
	app.Dispatcher = dispatcher
	return app, nil
}

// buildStore creates a Store based on the configuration
func (c *ServerConfig) buildStore(app *App) (cookbook.Store, error) {
	switch c.DatabaseType {
	case "memory":
		return memoryrepo.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		app.closers = append(app.closers, func() error {
			pool.Close()
			return nil
		})
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildDispatcher creates the task queue backend and registers the
// publish runner on it
func (c *ServerConfig) buildDispatcher(ctx context.Context, app *App, store cookbook.Store, runner *publish.Runner) (cookbook.Dispatcher, error) {
	switch c.QueueType {
	case "memory":
		dispatcher := dispatchmemory.New(store)
		dispatcher.Register(cookbook.TaskNamePublish, runner.Run)
		return dispatcher, nil

	case "nats":
		dispatcher, err := dispatchnats.New(dispatchnats.Config{URL: c.QueueURL}, store)
		if err != nil {
			return nil, err
		}
		if err := dispatcher.Register(ctx, cookbook.TaskNamePublish, runner.Run); err != nil {
			dispatcher.Close()
			return nil, err
		}
		app.closers = append(app.closers, dispatcher.Close)
		return dispatcher, nil

	default:
		return nil, fmt.Errorf("unsupported queue type: %s", c.QueueType)
	}
}

// buildStorageBackend creates a BlobStore based on the backend
// configuration
func (c *ServerConfig) buildStorageBackend(config StorageBackendConfig) (cookbook.BlobStore, error) {
	switch config.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(config.Config, "base_dir", "./data/storage"),
			URLPrefix: getString(config.Config, "url_prefix", ""),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(config.Config, "region", "us-east-1"),
			Bucket:                 getString(config.Config, "bucket", ""),
			AccessKeyID:            getString(config.Config, "access_key_id", ""),
			SecretAccessKey:        getString(config.Config, "secret_access_key", ""),
			Endpoint:               getString(config.Config, "endpoint", ""),
			UsePathStyle:           getBool(config.Config, "use_path_style", false),
			PresignDuration:        getInt(config.Config, "presign_duration", 3600),
			CreateBucketIfNotExist: getBool(config.Config, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
