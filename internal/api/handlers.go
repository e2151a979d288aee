package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/asetapen/picinplace/internal/models"
)

// Upload size cap: phone photos top out well below this.
const maxUploadBytes = 64 << 20

// upload accepts an image as a multipart form (field "file") or as a raw
// request body with a ?filename= query parameter.
func (h *Handlers) upload(w http.ResponseWriter, r *http.Request) {
	raw, filename, err := readUpload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	img, appErr := h.ctrl.Upload(r.Context(), raw, filename)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Image uploaded successfully",
		"filename": img.Name,
	})
}

func readUpload(r *http.Request) ([]byte, string, error) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, "", models.ErrBadRequest("failed to parse multipart form: " + err.Error())
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", models.ErrBadRequest("missing image in form field 'file': " + err.Error())
		}
		defer file.Close()
		raw, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, "", models.ErrBadRequest("failed to read upload: " + err.Error())
		}
		return raw, header.Filename, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return nil, "", models.ErrBadRequest("failed to read upload: " + err.Error())
	}
	if len(raw) == 0 {
		return nil, "", models.ErrBadRequest("empty upload body")
	}
	return raw, r.URL.Query().Get("filename"), nil
}

func (h *Handlers) getImages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

// configResponse augments the tunable config with the fixed panel geometry.
type configResponse struct {
	models.Config
	DisplayWidth  int `json:"display_width"`
	DisplayHeight int `json:"display_height"`
}

func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		Config:        h.ctrl.GetConfig(),
		DisplayWidth:  models.DisplayWidth,
		DisplayHeight: models.DisplayHeight,
	})
}

func (h *Handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var upd models.ConfigUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, models.ErrBadRequest("invalid JSON: "+err.Error()))
		return
	}
	cfg, appErr := h.ctrl.UpdateConfig(upd)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, configResponse{
		Config:        cfg,
		DisplayWidth:  models.DisplayWidth,
		DisplayHeight: models.DisplayHeight,
	})
}

func (h *Handlers) cycle(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	if appErr := h.ctrl.Cycle(action); appErr != nil {
		writeError(w, appErr)
		return
	}
	msg := "Cycling started"
	if action == "stop" {
		msg = "Cycling stopped"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// displayImage renders the image at the given index immediately, without
// resetting the cycle timer.
func (h *Handlers) displayImage(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		writeError(w, err)
		return
	}
	img, appErr := h.ctrl.JumpTo(r.Context(), index)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message":  "Image displayed",
		"filename": img.Name,
	})
}

func (h *Handlers) heicSupport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"supported": h.ctrl.HEICSupported()})
}

func (h *Handlers) thumbnail(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	data, appErr := h.ctrl.Thumbnail(name)
	if appErr != nil {
		writeError(w, appErr)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
