package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greeneye/companion/internal/control"
	"github.com/greeneye/companion/internal/devicecode"
	"github.com/greeneye/companion/internal/localapi/response"
)

// ControlHandler handles actuator toggle endpoints.
type ControlHandler struct {
	panel *control.Panel
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(panel *control.Panel) *ControlHandler {
	return &ControlHandler{panel: panel}
}

// ControlStateResponse maps actuator names to their toggle state.
type ControlStateResponse map[string]control.Toggle

// GetControls handles GET /v1/devices/{code}/control.
func (h *ControlHandler) GetControls(w http.ResponseWriter, r *http.Request) {
	code := devicecode.Canonicalize(chi.URLParam(r, "code"))
	if code == "" {
		response.BadRequest(w, r, "device identifier is empty")
		return
	}

	out := ControlStateResponse{}
	for _, a := range control.Actuators {
		out[string(a)] = h.panel.Get(code, a)
	}
	response.JSON(w, r, http.StatusOK, out)
}

// ControlFlipRequest is the request body for POST /v1/devices/{code}/control.
type ControlFlipRequest struct {
	Actuator string `json:"actuator"`
}

// FlipControl handles POST /v1/devices/{code}/control. It toggles the
// named actuator and reports the committed state, or 409 when an
// earlier toggle for the same actuator is still pending.
func (h *ControlHandler) FlipControl(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var input ControlFlipRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	toggle, err := h.panel.Flip(r.Context(), code, control.Actuator(input.Actuator))
	switch {
	case err == nil:
		response.JSON(w, r, http.StatusOK, toggle)
	case errors.Is(err, control.ErrUnknownActuator):
		response.BadRequest(w, r, "unknown actuator "+input.Actuator)
	case errors.Is(err, control.ErrEmptyDevice):
		response.BadRequest(w, r, "device identifier is empty")
	case errors.Is(err, control.ErrTogglePending):
		response.Conflict(w, r, "a toggle for this actuator is already pending")
	default:
		// The toggle was rolled back; report the restored state with
		// the failure so the UI can re-render the old position.
		response.JSON(w, r, http.StatusBadGateway, toggle)
	}
}
