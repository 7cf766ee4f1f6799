package api

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// ArtifactHandler handles HTTP requests for uploaded cookbook artifacts
type ArtifactHandler struct {
	service cookbook.Service
}

// NewArtifactHandler creates a new artifact handler
func NewArtifactHandler(service cookbook.Service) *ArtifactHandler {
	return &ArtifactHandler{service: service}
}

// Routes returns the routes for artifacts
func (h *ArtifactHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.UploadArtifact)
	r.Get("/{id}", h.GetArtifact)
	r.Get("/{id}/download", h.DownloadArtifact)

	return r
}

// ArtifactResponse is the response body for an artifact
type ArtifactResponse struct {
	ID                 string    `json:"id"`
	StorageBackendName string    `json:"storage_backend_name"`
	ObjectKey          string    `json:"object_key"`
	Size               int64     `json:"size"`
	Checksum           string    `json:"checksum,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

func artifactResponse(artifact *cookbook.Artifact) ArtifactResponse {
	return ArtifactResponse{
		ID:                 artifact.ID.String(),
		StorageBackendName: artifact.StorageBackendName,
		ObjectKey:          artifact.ObjectKey,
		Size:               artifact.Size,
		Checksum:           artifact.Checksum,
		CreatedAt:          artifact.CreatedAt,
	}
}

// UploadArtifact stores the request body as a new artifact blob. The
// optional storage_backend query parameter selects a backend.
func (h *ArtifactHandler) UploadArtifact(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	artifact, err := h.service.CreateArtifact(r.Context(), cookbook.CreateArtifactRequest{
		StorageBackendName: r.URL.Query().Get("storage_backend"),
		Reader:             r.Body,
		Size:               r.ContentLength,
		Checksum:           r.Header.Get("X-Checksum-Sha256"),
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, artifactResponse(artifact))
}

// GetArtifact retrieves artifact details by ID
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	artifact, err := h.service.GetArtifact(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, artifactResponse(artifact))
}

// DownloadArtifact streams the artifact blob back to the caller
func (h *ArtifactHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	artifact, err := h.service.GetArtifact(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	backend, err := h.service.GetBackend(artifact.StorageBackendName)
	if err != nil {
		renderError(w, r, err)
		return
	}

	blob, err := backend.Download(r.Context(), artifact.ObjectKey)
	if err != nil {
		renderError(w, r, err)
		return
	}
	defer blob.Close()

	w.Header().Set("Content-Type", "application/gzip")
	if _, err := io.Copy(w, blob); err != nil {
		// Headers are already written; nothing to do but log.
		slog.Error("failed to stream artifact", "artifact_id", id, "error", err)
	}
}
