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

// PublishHandler handles HTTP requests for publishers, publish
// dispatch, and the resulting tasks and publications
type PublishHandler struct {
	service cookbook.Service
}

// NewPublishHandler creates a new publish handler
func NewPublishHandler(service cookbook.Service) *PublishHandler {
	return &PublishHandler{service: service}
}

// Routes returns the routes for publishers
func (h *PublishHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreatePublisher)
	r.Get("/{id}", h.GetPublisher)
	r.Post("/{id}/publish", h.Publish)

	return r
}

// TaskRoutes returns the routes for task polling
func (h *PublishHandler) TaskRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.GetTask)
	return r
}

// PublicationRoutes returns the routes for publications
func (h *PublishHandler) PublicationRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}", h.GetPublication)
	return r
}

// CreatePublisherRequest is the request body for creating a publisher
type CreatePublisherRequest struct {
	Name string `json:"name"`
}

// PublisherResponse is the response body for a publisher
type PublisherResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// PublishRequest is the request body for dispatching a publish. Exactly
// one of repository or repository_version must be set.
type PublishRequest struct {
	RepositoryID        string `json:"repository,omitempty"`
	RepositoryVersionID string `json:"repository_version,omitempty"`
}

// PublishResponse is the response body for an accepted publish
type PublishResponse struct {
	Task string `json:"task"`
	Href string `json:"_href"`
}

// TaskResponse is the response body for a task
type TaskResponse struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	State      string     `json:"state"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// PublicationResponse is the response body for a publication
type PublicationResponse struct {
	ID                  string    `json:"id"`
	PublisherID         string    `json:"publisher"`
	RepositoryVersionID string    `json:"repository_version"`
	PackageCount        int       `json:"package_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// CreatePublisher creates a new publisher
func (h *PublishHandler) CreatePublisher(w http.ResponseWriter, r *http.Request) {
	var req CreatePublisherRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	publisher, err := h.service.CreatePublisher(r.Context(), cookbook.CreatePublisherRequest{Name: req.Name})
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, PublisherResponse{
		ID:        publisher.ID.String(),
		Name:      publisher.Name,
		CreatedAt: publisher.CreatedAt,
	})
}

// GetPublisher retrieves a publisher by ID
func (h *PublishHandler) GetPublisher(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	publisher, err := h.service.GetPublisher(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, PublisherResponse{
		ID:        publisher.ID.String(),
		Name:      publisher.Name,
		CreatedAt: publisher.CreatedAt,
	})
}

// Publish dispatches an asynchronous publish for the publisher and
// responds 202 with a pollable task reference
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	publishReq := cookbook.PublishRequest{}
	if req.RepositoryID != "" {
		repoID, err := uuid.Parse(req.RepositoryID)
		if err != nil {
			http.Error(w, "invalid repository id", http.StatusBadRequest)
			return
		}
		publishReq.RepositoryID = repoID
	}
	if req.RepositoryVersionID != "" {
		versionID, err := uuid.Parse(req.RepositoryVersionID)
		if err != nil {
			http.Error(w, "invalid repository version id", http.StatusBadRequest)
			return
		}
		publishReq.RepositoryVersionID = versionID
	}

	task, err := h.service.Publish(r.Context(), id, publishReq)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, PublishResponse{
		Task: task.ID.String(),
		Href: "/api/v1/tasks/" + task.ID.String(),
	})
}

// GetTask retrieves a task by ID for polling
func (h *PublishHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	task, err := h.service.GetTask(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, TaskResponse{
		ID:         task.ID.String(),
		Name:       task.Name,
		State:      string(task.State),
		Error:      task.Error,
		CreatedAt:  task.CreatedAt,
		StartedAt:  task.StartedAt,
		FinishedAt: task.FinishedAt,
	})
}

// GetPublication retrieves a publication by ID
func (h *PublishHandler) GetPublication(w http.ResponseWriter, r *http.Request) {
	id, ok := parsePathID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	pub, err := h.service.GetPublication(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, PublicationResponse{
		ID:                  pub.ID.String(),
		PublisherID:         pub.PublisherID.String(),
		RepositoryVersionID: pub.RepositoryVersionID.String(),
		PackageCount:        pub.PackageCount,
		CreatedAt:           pub.CreatedAt,
	})
}
