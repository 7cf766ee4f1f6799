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

// CookbookHandler handles HTTP requests for cookbook packages
type CookbookHandler struct {
	service cookbook.Service
}

// NewCookbookHandler creates a new cookbook package handler
func NewCookbookHandler(service cookbook.Service) *CookbookHandler {
	return &CookbookHandler{service: service}
}

// Routes returns the routes for cookbook packages
func (h *CookbookHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.AdmitContent)
	r.Get("/", h.ListPackages)
	r.Get("/{id}", h.GetPackage)

	return r
}

// AdmitContentRequest is the request body for admitting a cookbook package
type AdmitContentRequest struct {
	Name       string `json:"name"`
	Version    string `json:"version,omitempty"`
	ArtifactID string `json:"artifact"`
}

// PackageResponse is the response body for a cookbook package
type PackageResponse struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
	ArtifactID   string            `json:"artifact"`
	CreatedAt    time.Time         `json:"created_at"`
}

func packageResponse(pkg *cookbook.PackageContent) PackageResponse {
	return PackageResponse{
		ID:           pkg.ID.String(),
		Name:         pkg.Name,
		Version:      pkg.Version,
		Dependencies: pkg.Dependencies,
		ArtifactID:   pkg.ArtifactID.String(),
		CreatedAt:    pkg.CreatedAt,
	}
}

// AdmitContent validates an uploaded cookbook artifact and creates the
// package record
func (h *CookbookHandler) AdmitContent(w http.ResponseWriter, r *http.Request) {
	var req AdmitContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	artifactID := uuid.Nil
	if req.ArtifactID != "" {
		parsed, err := uuid.Parse(req.ArtifactID)
		if err != nil {
			http.Error(w, "invalid artifact id", http.StatusBadRequest)
			return
		}
		artifactID = parsed
	}

	pkg, err := h.service.AdmitContent(r.Context(), cookbook.AdmitContentRequest{
		Name:       req.Name,
		Version:    req.Version,
		ArtifactID: artifactID,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/cookbooks/"+pkg.ID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, packageResponse(pkg))
}

// GetPackage retrieves a cookbook package by ID
func (h *CookbookHandler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	pkg, err := h.service.GetPackage(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, packageResponse(pkg))
}

// ListPackages lists cookbook packages, optionally filtered by name and
// version query parameters
func (h *CookbookHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	filter := cookbook.PackageFilter{
		Name:    r.URL.Query().Get("name"),
		Version: r.URL.Query().Get("version"),
	}

	packages, err := h.service.ListPackages(r.Context(), filter)
	if err != nil {
		renderError(w, r, err)
		return
	}

	resp := make([]PackageResponse, 0, len(packages))
	for _, pkg := range packages {
		resp = append(resp, packageResponse(pkg))
	}
	render.JSON(w, r, resp)
}
