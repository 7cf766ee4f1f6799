package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-cookbook/pkg/cookbook"
)

// renderError maps service errors onto HTTP responses. Validation
// failures become 400s carrying the per-field messages; unknown
// references become 404s.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *cookbook.ValidationError
	if errors.As(err, &verr) {
		render.Status(r, http.StatusBadRequest)
		if len(verr.Fields) > 0 {
			render.JSON(w, r, map[string]interface{}{"errors": verr.Fields})
			return
		}
		render.JSON(w, r, map[string]interface{}{"errors": []string{verr.Message}})
		return
	}

	switch {
	case errors.Is(err, cookbook.ErrArtifactNotFound),
		errors.Is(err, cookbook.ErrPackageNotFound),
		errors.Is(err, cookbook.ErrRepositoryNotFound),
		errors.Is(err, cookbook.ErrRepositoryVersionNotFound),
		errors.Is(err, cookbook.ErrPublisherNotFound),
		errors.Is(err, cookbook.ErrTaskNotFound),
		errors.Is(err, cookbook.ErrPublicationNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"detail": err.Error()})

	case errors.Is(err, cookbook.ErrDispatchFailed):
		slog.Error("dispatch failed", "error", err)
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"detail": err.Error()})

	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"detail": "internal server error"})
	}
}

func parsePathID(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
