// Package cookbook provides a library for managing Chef cookbook package
// artifacts with pluggable persistence, blob storage, and task dispatch
// backends.
//
// It exposes a single Service interface covering the two structurally
// interesting paths of a cookbook repository: validated admission of an
// uploaded cookbook tarball against its embedded metadata.json, and the
// asynchronous publish workflow that resolves a publish request to exactly
// one immutable repository version and enqueues a publish task under a
// reservation that serializes concurrent publishes against the same
// (repository, publisher) pair.
package cookbook
