// Package metadata extracts the cookbook descriptor embedded in a
// cookbook tarball.
//
// Cookbook archives produced by packaging tools contain a single
// top-level directory named after the cookbook, with the descriptor at
// <name>/metadata.json. The extractor streams the (optionally gzipped)
// tar archive and parses the first matching descriptor.
package metadata

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

const maxDescriptorBytes = 4 << 20

// Extractor implements cookbook.MetadataExtractor for tar and tar.gz
// cookbook archives.
type Extractor struct{}

// NewExtractor creates a tarball metadata extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

type descriptor struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}

// Extract scans the archive for <name>/metadata.json and returns the
// parsed descriptor. A missing or unparseable descriptor yields an error
// wrapping cookbook.ErrInvalidArtifact.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, name string) (*cookbook.Metadata, error) {
	tr, err := newTarReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cookbook.ErrInvalidArtifact, err)
	}

	want := name + "/metadata.json"
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cookbook.ErrInvalidArtifact, err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if cleanEntryName(hdr.Name) != want {
			continue
		}
		if hdr.Size > maxDescriptorBytes {
			return nil, fmt.Errorf("%w: metadata.json exceeds %d bytes", cookbook.ErrInvalidArtifact, maxDescriptorBytes)
		}
		return parseDescriptor(io.LimitReader(tr, maxDescriptorBytes))
	}

	return nil, fmt.Errorf("%w: %s", cookbook.ErrInvalidArtifact, want)
}

func parseDescriptor(r io.Reader) (*cookbook.Metadata, error) {
	var desc descriptor
	if err := json.NewDecoder(r).Decode(&desc); err != nil {
		return nil, fmt.Errorf("%w: parse metadata.json: %v", cookbook.ErrInvalidArtifact, err)
	}
	if desc.Version == "" {
		return nil, fmt.Errorf("%w: metadata.json has no version", cookbook.ErrInvalidArtifact)
	}
	if desc.Dependencies == nil {
		desc.Dependencies = map[string]string{}
	}
	return &cookbook.Metadata{
		Version:      desc.Version,
		Dependencies: desc.Dependencies,
	}, nil
}

// newTarReader sniffs the gzip magic so plain and gzipped tarballs are
// both accepted.
func newTarReader(r io.Reader) (*tar.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, fmt.Errorf("read archive: %v", err)
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("read gzip archive: %v", err)
		}
		return tar.NewReader(gz), nil
	}
	return tar.NewReader(br), nil
}

// cleanEntryName normalizes tar entry names such as "./name/metadata.json".
func cleanEntryName(name string) string {
	return strings.TrimPrefix(path.Clean(name), "./")
}
