// Package api implements the HTTP REST API for picinplace.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/asetapen/picinplace/internal/models"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctrl   Controller
	events EventBus
}

// Controller is the interface the handlers use to interact with the frame.
type Controller interface {
	Upload(ctx context.Context, raw []byte, filename string) (models.StoredImage, *models.AppError)
	State() models.FrameState
	GetConfig() models.Config
	UpdateConfig(upd models.ConfigUpdate) (models.Config, *models.AppError)
	Cycle(action string) *models.AppError
	JumpTo(ctx context.Context, index int) (models.StoredImage, *models.AppError)
	Thumbnail(name string) ([]byte, *models.AppError)
	HEICSupported() bool
}

// EventBus is the interface for subscribing to frame state events.
type EventBus interface {
	Subscribe(id string) <-chan models.FrameState
	Unsubscribe(id string)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an AppError as a JSON response.
func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	if appErr, ok := err.(*models.AppError); ok {
		w.WriteHeader(appErr.Status)
		_ = json.NewEncoder(w).Encode(appErr)
		return
	}
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(models.ErrInternal(err.Error()))
}

// intParam reads an integer path parameter by name.
func intParam(r *http.Request, name string) (int, error) {
	s := chi.URLParam(r, name)
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, models.ErrBadRequest("invalid " + name + " parameter")
	}
	return n, nil
}
