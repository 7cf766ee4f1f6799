package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// RepositoryHandler handles HTTP requests for repositories and their
// versions
type RepositoryHandler struct {
	service cookbook.Service
}

// NewRepositoryHandler creates a new repository handler
func NewRepositoryHandler(service cookbook.Service) *RepositoryHandler {
	return &RepositoryHandler{service: service}
}

// Routes returns the routes for repositories
func (h *RepositoryHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateRepository)
	r.Get("/{id}", h.GetRepository)
	r.Post("/{id}/versions", h.CreateVersion)
	r.Get("/versions/{versionID}", h.GetVersion)

	return r
}

// CreateRepositoryRequest is the request body for creating a repository
type CreateRepositoryRequest struct {
	Name string `json:"name"`
}

// RepositoryResponse is the response body for a repository
type RepositoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateVersionRequest is the request body for creating a repository
// version
type CreateVersionRequest struct {
	PackageIDs []string `json:"packages"`
}

// VersionResponse is the response body for a repository version
type VersionResponse struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository"`
	Number       int       `json:"number"`
	CreatedAt    time.Time `json:"created_at"`
}

func versionResponse(version *cookbook.RepositoryVersion) VersionResponse {
	return VersionResponse{
		ID:           version.ID.String(),
		RepositoryID: version.RepositoryID.String(),
		Number:       version.Number,
		CreatedAt:    version.CreatedAt,
	}
}

// CreateRepository creates a new repository
func (h *RepositoryHandler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req CreateRepositoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	repo, err := h.service.CreateRepository(r.Context(), cookbook.CreateRepositoryRequest{Name: req.Name})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RepositoryResponse{
		ID:        repo.ID.String(),
		Name:      repo.Name,
		CreatedAt: repo.CreatedAt,
	})
}

// GetRepository retrieves a repository by ID
func (h *RepositoryHandler) GetRepository(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	repo, err := h.service.GetRepository(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, RepositoryResponse{
		ID:        repo.ID.String(),
		Name:      repo.Name,
		CreatedAt: repo.CreatedAt,
	})
}

// CreateVersion creates a new immutable version of a repository
func (h *RepositoryHandler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req CreateVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	packageIDs := make([]uuid.UUID, 0, len(req.PackageIDs))
	for _, raw := range req.PackageIDs {
		pkgID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid package id: "+raw, http.StatusBadRequest)
			return
		}
		packageIDs = append(packageIDs, pkgID)
	}

	version, err := h.service.CreateRepositoryVersion(r.Context(), cookbook.CreateRepositoryVersionRequest{
		RepositoryID: id,
		PackageIDs:   packageIDs,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, versionResponse(version))
}

// GetVersion retrieves a repository version by ID
func (h *RepositoryHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "versionID"))
	if !ok {
		return
	}

	version, err := h.service.GetRepositoryVersion(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, versionResponse(version))
}
