package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// UniverseWriter renders a publication as a universe index: a JSON
// document mapping each cookbook name to its published versions and
// their dependency constraints. The index is uploaded to a blob store
// under the publication's key prefix.
type UniverseWriter struct {
	backend   cookbook.BlobStore
	keyPrefix string
}

// NewUniverseWriter creates a writer that uploads universe indexes to
// the given backend under keyPrefix.
func NewUniverseWriter(backend cookbook.BlobStore, keyPrefix string) *UniverseWriter {
	if keyPrefix == "" {
		keyPrefix = "publications"
	}
	return &UniverseWriter{backend: backend, keyPrefix: keyPrefix}
}

// universeEntry describes one published cookbook version.
type universeEntry struct {
	LocationType string            `json:"location_type"`
	LocationPath string            `json:"location_path"`
	Dependencies map[string]string `json:"dependencies"`
}

func (w *UniverseWriter) WritePublication(ctx context.Context, pub *cookbook.Publication, packages []*cookbook.PackageContent) error {
	universe := make(map[string]map[string]universeEntry)
	for _, pkg := range packages {
		versions, ok := universe[pkg.Name]
		if !ok {
			versions = make(map[string]universeEntry)
			universe[pkg.Name] = versions
		}
		deps := pkg.Dependencies
		if deps == nil {
			deps = map[string]string{}
		}
		versions[pkg.Version] = universeEntry{
			LocationType: "uri",
			LocationPath: fmt.Sprintf("cookbook_files/%s/%s", pkg.Name, pkg.Version),
			Dependencies: deps,
		}
	}

	data, err := json.Marshal(universe)
	if err != nil {
		return fmt.Errorf("failed to encode universe: %w", err)
	}

	key := path.Join(w.keyPrefix, pub.ID.String(), "universe")
	if err := w.backend.Upload(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to upload universe: %w", err)
	}
	return nil
}
