package handler

import (
	"encoding/json"
	"net/http"

	"github.com/greeneye/companion/internal/localapi/response"
	"github.com/greeneye/companion/internal/settings"
)

// SettingsHandler handles agent settings endpoints.
type SettingsHandler struct {
	store *settings.Store
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(store *settings.Store) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings handles GET /v1/settings.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, h.store.Get(r.Context()))
}

// UpdateSettings handles PUT /v1/settings with a full settings blob.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var input settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	saved, err := h.store.Put(r.Context(), input)
	if err != nil {
		response.InternalError(w, r, "saving settings failed")
		return
	}
	response.JSON(w, r, http.StatusOK, saved)
}

// ApplyModeRequest is the request body for POST /v1/settings/mode.
type ApplyModeRequest struct {
	Mode string `json:"mode"`
}

// ApplyMode handles POST /v1/settings/mode. Switching the operation
// mode rewrites the interval knobs from the mode's preset.
func (h *SettingsHandler) ApplyMode(w http.ResponseWriter, r *http.Request) {
	var input ApplyModeRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	saved, err := h.store.ApplyMode(r.Context(), input.Mode)
	if err != nil {
		response.BadRequest(w, r, err.Error())
		return
	}
	response.JSON(w, r, http.StatusOK, saved)
}
