package cookbook_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
	dispatchmemory "github.com/tendant/simple-cookbook/pkg/cookbook/dispatch/memory"
	"github.com/tendant/simple-cookbook/pkg/cookbook/metadata"
	memoryrepo "github.com/tendant/simple-cookbook/pkg/cookbook/repo/memory"
	memorystorage "github.com/tendant/simple-cookbook/pkg/cookbook/storage/memory"
)

type testEnv struct {
	svc        cookbook.Service
	store      *memoryrepo.Store
	dispatcher *dispatchmemory.Dispatcher
}

func setupTestService(t *testing.T) *testEnv {
	t.Helper()

	store := memoryrepo.New()
	dispatcher := dispatchmemory.New(store)

	svc, err := cookbook.New(
		cookbook.WithStore(store),
		cookbook.WithBlobStore("memory", memorystorage.New()),
		cookbook.WithDefaultBackend("memory"),
		cookbook.WithMetadataExtractor(metadata.NewExtractor()),
		cookbook.WithDispatcher(dispatcher),
	)
	require.NoError(t, err)

	return &testEnv{svc: svc, store: store, dispatcher: dispatcher}
}

// cookbookTarball builds a gzipped tar carrying <name>/metadata.json.
func cookbookTarball(t *testing.T, name, version string, deps map[string]string) []byte {
	t.Helper()

	descriptor, err := json.Marshal(map[string]interface{}{
		"name":         name,
		"version":      version,
		"dependencies": deps,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gw)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name: name + "/metadata.json",
		Mode: 0644,
		Size: int64(len(descriptor)),
	}))
	_, err = tw.Write(descriptor)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gw.Close())

	return buf.Bytes()
}

func uploadCookbook(t *testing.T, env *testEnv, name, version string, deps map[string]string) *cookbook.Artifact {
	t.Helper()
	tarball := cookbookTarball(t, name, version, deps)
	artifact, err := env.svc.CreateArtifact(context.Background(), cookbook.CreateArtifactRequest{
		Reader: bytes.NewReader(tarball),
		Size:   int64(len(tarball)),
	})
	require.NoError(t, err)
	return artifact
}

func TestAdmitContent(t *testing.T) {
	ctx := context.Background()

	t.Run("extracted version is authoritative", func(t *testing.T) {
		env := setupTestService(t)
		artifact := uploadCookbook(t, env, "apache2", "1.2.3", map[string]string{"openssl": ">= 2.0"})

		pkg, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			ArtifactID: artifact.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "apache2", pkg.Name)
		assert.Equal(t, "1.2.3", pkg.Version)
		assert.Equal(t, ">= 2.0", pkg.Dependencies["openssl"])
		assert.Equal(t, artifact.ID, pkg.ArtifactID)

		stored, err := env.svc.GetPackage(ctx, pkg.ID)
		require.NoError(t, err)
		assert.Equal(t, pkg.Version, stored.Version)
	})

	t.Run("matching declared version accepted", func(t *testing.T) {
		env := setupTestService(t)
		artifact := uploadCookbook(t, env, "apache2", "1.2.3", nil)

		pkg, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			Version:    "1.2.3",
			ArtifactID: artifact.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, "1.2.3", pkg.Version)
	})

	t.Run("version mismatch rejected without partial state", func(t *testing.T) {
		env := setupTestService(t)
		artifact := uploadCookbook(t, env, "apache2", "1.2.3", nil)

		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			Version:    "9.9.9",
			ArtifactID: artifact.ID,
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, cookbook.ErrVersionMismatch)

		var verr *cookbook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "version")

		packages, err := env.svc.ListPackages(ctx, cookbook.PackageFilter{})
		require.NoError(t, err)
		assert.Empty(t, packages, "rejected admission must not leave a package record")
	})

	t.Run("missing artifact field", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{Name: "apache2"})
		assert.ErrorIs(t, err, cookbook.ErrMissingField)

		var verr *cookbook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Fields, "artifact")
	})

	t.Run("missing name field", func(t *testing.T) {
		env := setupTestService(t)
		artifact := uploadCookbook(t, env, "apache2", "1.2.3", nil)

		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{ArtifactID: artifact.ID})
		assert.ErrorIs(t, err, cookbook.ErrMissingField)
	})

	t.Run("unknown artifact", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			ArtifactID: uuid.New(),
		})
		assert.ErrorIs(t, err, cookbook.ErrArtifactNotFound)
	})

	t.Run("tarball without descriptor rejected", func(t *testing.T) {
		env := setupTestService(t)

		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		tw := tar.NewWriter(gw)
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: "apache2/recipes/default.rb", Mode: 0644, Size: 0}))
		require.NoError(t, tw.Close())
		require.NoError(t, gw.Close())

		artifact, err := env.svc.CreateArtifact(ctx, cookbook.CreateArtifactRequest{Reader: &buf})
		require.NoError(t, err)

		_, err = env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			ArtifactID: artifact.ID,
		})
		assert.ErrorIs(t, err, cookbook.ErrInvalidArtifact)
	})

	t.Run("descriptor under a different cookbook name rejected", func(t *testing.T) {
		env := setupTestService(t)
		artifact := uploadCookbook(t, env, "nginx", "1.0.0", nil)

		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{
			Name:       "apache2",
			ArtifactID: artifact.ID,
		})
		assert.ErrorIs(t, err, cookbook.ErrInvalidArtifact)
	})
}

func seedRepositoryVersion(t *testing.T, env *testEnv, pkgNames ...string) (*cookbook.Repository, *cookbook.RepositoryVersion) {
	t.Helper()
	ctx := context.Background()

	repo, err := env.svc.CreateRepository(ctx, cookbook.CreateRepositoryRequest{Name: "cookbooks"})
	require.NoError(t, err)

	var packageIDs []uuid.UUID
	for _, name := range pkgNames {
		artifact := uploadCookbook(t, env, name, "1.0.0", nil)
		pkg, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{Name: name, ArtifactID: artifact.ID})
		require.NoError(t, err)
		packageIDs = append(packageIDs, pkg.ID)
	}

	version, err := env.svc.CreateRepositoryVersion(ctx, cookbook.CreateRepositoryVersionRequest{
		RepositoryID: repo.ID,
		PackageIDs:   packageIDs,
	})
	require.NoError(t, err)
	return repo, version
}

func TestResolvePublishTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit version passes through", func(t *testing.T) {
		env := setupTestService(t)
		_, version := seedRepositoryVersion(t, env, "apache2")

		resolved, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{
			RepositoryVersionID: version.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, version.ID, resolved.ID)
	})

	t.Run("repository resolves to latest version", func(t *testing.T) {
		env := setupTestService(t)
		repo, first := seedRepositoryVersion(t, env, "apache2")

		second, err := env.svc.CreateRepositoryVersion(ctx, cookbook.CreateRepositoryVersionRequest{
			RepositoryID: repo.ID,
		})
		require.NoError(t, err)
		require.Equal(t, first.Number+1, second.Number)

		resolved, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{
			RepositoryID: repo.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, second.ID, resolved.ID)
	})

	t.Run("neither reference rejected", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{})
		assert.ErrorIs(t, err, cookbook.ErrAmbiguousTarget)
	})

	t.Run("both references rejected", func(t *testing.T) {
		env := setupTestService(t)
		repo, version := seedRepositoryVersion(t, env, "apache2")

		_, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{
			RepositoryID:        repo.ID,
			RepositoryVersionID: version.ID,
		})
		assert.ErrorIs(t, err, cookbook.ErrAmbiguousTarget)

		var verr *cookbook.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "not both")
	})

	t.Run("repository with no versions", func(t *testing.T) {
		env := setupTestService(t)
		repo, err := env.svc.CreateRepository(ctx, cookbook.CreateRepositoryRequest{Name: "empty"})
		require.NoError(t, err)

		_, err = env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{RepositoryID: repo.ID})
		assert.ErrorIs(t, err, cookbook.ErrNoVersionAvailable)
	})

	t.Run("unknown repository", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{RepositoryID: uuid.New()})
		assert.ErrorIs(t, err, cookbook.ErrRepositoryNotFound)
	})

	t.Run("unknown repository version", func(t *testing.T) {
		env := setupTestService(t)

		_, err := env.svc.ResolvePublishTarget(ctx, cookbook.PublishRequest{RepositoryVersionID: uuid.New()})
		assert.ErrorIs(t, err, cookbook.ErrRepositoryVersionNotFound)
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	t.Run("returns pollable task", func(t *testing.T) {
		env := setupTestService(t)
		repo, _ := seedRepositoryVersion(t, env, "apache2", "nginx")

		publisher, err := env.svc.CreatePublisher(ctx, cookbook.CreatePublisherRequest{Name: "chef-server"})
		require.NoError(t, err)

		env.dispatcher.Register(cookbook.TaskNamePublish, func(ctx context.Context, task cookbook.TaskDescriptor) error {
			return nil
		})

		task, err := env.svc.Publish(ctx, publisher.ID, cookbook.PublishRequest{RepositoryID: repo.ID})
		require.NoError(t, err)
		assert.Equal(t, cookbook.TaskNamePublish, task.Name)

		env.dispatcher.Wait()

		polled, err := env.svc.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, cookbook.TaskStateCompleted, polled.State)
	})

	t.Run("reservation keys cover repository and publisher", func(t *testing.T) {
		env := setupTestService(t)
		repo, version := seedRepositoryVersion(t, env, "apache2")

		publisher, err := env.svc.CreatePublisher(ctx, cookbook.CreatePublisherRequest{Name: "chef-server"})
		require.NoError(t, err)

		var captured cookbook.TaskDescriptor
		env.dispatcher.Register(cookbook.TaskNamePublish, func(ctx context.Context, task cookbook.TaskDescriptor) error {
			captured = task
			return nil
		})

		_, err = env.svc.Publish(ctx, publisher.ID, cookbook.PublishRequest{RepositoryVersionID: version.ID})
		require.NoError(t, err)
		env.dispatcher.Wait()

		require.Len(t, captured.Keys, 2)
		assert.Contains(t, captured.Keys, cookbook.ReservationKey{Kind: "repository", ID: repo.ID})
		assert.Contains(t, captured.Keys, cookbook.ReservationKey{Kind: "publisher", ID: publisher.ID})
		assert.Equal(t, publisher.ID.String(), captured.Args["publisher_id"])
		assert.Equal(t, version.ID.String(), captured.Args["repository_version_id"])
	})

	t.Run("unknown publisher", func(t *testing.T) {
		env := setupTestService(t)
		_, version := seedRepositoryVersion(t, env, "apache2")

		_, err := env.svc.Publish(ctx, uuid.New(), cookbook.PublishRequest{RepositoryVersionID: version.ID})
		assert.ErrorIs(t, err, cookbook.ErrPublisherNotFound)
	})

	t.Run("resolution failure precedes dispatch", func(t *testing.T) {
		env := setupTestService(t)

		publisher, err := env.svc.CreatePublisher(ctx, cookbook.CreatePublisherRequest{Name: "chef-server"})
		require.NoError(t, err)

		_, err = env.svc.Publish(ctx, publisher.ID, cookbook.PublishRequest{})
		assert.ErrorIs(t, err, cookbook.ErrAmbiguousTarget)
	})

	t.Run("dispatch failure marks task failed", func(t *testing.T) {
		env := setupTestService(t)
		_, version := seedRepositoryVersion(t, env, "apache2")

		publisher, err := env.svc.CreatePublisher(ctx, cookbook.CreatePublisherRequest{Name: "chef-server"})
		require.NoError(t, err)

		svc, err := cookbook.New(
			cookbook.WithStore(env.store),
			cookbook.WithDispatcher(failingDispatcher{}),
		)
		require.NoError(t, err)

		_, err = svc.Publish(ctx, publisher.ID, cookbook.PublishRequest{RepositoryVersionID: version.ID})
		assert.ErrorIs(t, err, cookbook.ErrDispatchFailed)
	})
}

type failingDispatcher struct{}

func (failingDispatcher) Enqueue(ctx context.Context, task cookbook.TaskDescriptor) error {
	return errors.New("queue unavailable")
}

func TestCreateRepositoryVersionNumbers(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t)

	repo, err := env.svc.CreateRepository(ctx, cookbook.CreateRepositoryRequest{Name: "cookbooks"})
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		version, err := env.svc.CreateRepositoryVersion(ctx, cookbook.CreateRepositoryVersionRequest{
			RepositoryID: repo.ID,
		})
		require.NoError(t, err)
		assert.Equal(t, want, version.Number)
	}
}

func TestListPackagesFilter(t *testing.T) {
	ctx := context.Background()
	env := setupTestService(t)

	for _, name := range []string{"apache2", "nginx"} {
		artifact := uploadCookbook(t, env, name, "1.0.0", nil)
		_, err := env.svc.AdmitContent(ctx, cookbook.AdmitContentRequest{Name: name, ArtifactID: artifact.ID})
		require.NoError(t, err)
	}

	all, err := env.svc.ListPackages(ctx, cookbook.PackageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := env.svc.ListPackages(ctx, cookbook.PackageFilter{Name: "nginx"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "nginx", filtered[0].Name)
}

func TestGetTaskNotFound(t *testing.T) {
	env := setupTestService(t)

	task, err := env.svc.GetTask(context.Background(), uuid.New())
	assert.Nil(t, task)
	assert.ErrorIs(t, err, cookbook.ErrTaskNotFound)
}
