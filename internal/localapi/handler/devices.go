// Package handler contains the HTTP handlers for the agent API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/greeneye/companion/internal/localapi/response"
	"github.com/greeneye/companion/internal/registry"
)

// DeviceService is the registry surface the device endpoints need.
type DeviceService interface {
	Reconcile(ctx context.Context) []registry.DeviceRecord
	Register(ctx context.Context, rec registry.DeviceRecord, thumb string) (registry.RegisterOutcome, error)
	Delete(ctx context.Context, code, rawCode string) (registry.DeleteOutcome, error)
}

// DeviceHandler handles device registry endpoints.
type DeviceHandler struct {
	devices DeviceService
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(devices DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

// DeviceListResponse is the response body for GET /v1/devices.
type DeviceListResponse struct {
	Items []registry.DeviceRecord `json:"items"`
	Count int                     `json:"count"`
}

// ListDevices handles GET /v1/devices. It always succeeds: with the
// backend unreachable the list degrades to the locally known devices.
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	items := h.devices.Reconcile(r.Context())
	if items == nil {
		items = []registry.DeviceRecord{}
	}
	response.JSON(w, r, http.StatusOK, DeviceListResponse{Items: items, Count: len(items)})
}

// DeviceRegisterRequest is the request body for POST /v1/devices.
type DeviceRegisterRequest struct {
	MAC         string `json:"mac"`
	Name        string `json:"name"`
	Room        string `json:"room"`
	Species     string `json:"species"`
	ImageBase64 string `json:"imageBase64"`
}

// DeviceRegisterResponse is the response body for POST /v1/devices.
type DeviceRegisterResponse struct {
	Code string `json:"code"`

	// Remote reports whether the backend accepted the registration.
	// False means the device is stored locally pending sync.
	Remote bool `json:"remote"`
}

// RegisterDevice handles POST /v1/devices.
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var input DeviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body")
		return
	}

	rec := registry.DeviceRecord{
		RawCode: input.MAC,
		Name:    input.Name,
		Room:    input.Room,
		Species: input.Species,
	}
	out, err := h.devices.Register(r.Context(), rec, input.ImageBase64)
	if err != nil {
		if errors.Is(err, registry.ErrEmptyCode) {
			response.BadRequest(w, r, "device identifier is empty")
			return
		}
		response.InternalError(w, r, "device registration failed")
		return
	}

	response.JSON(w, r, http.StatusCreated, DeviceRegisterResponse{Code: out.Code, Remote: out.Remote})
}

// DeviceDeleteResponse is the response body for DELETE /v1/devices/{code}.
type DeviceDeleteResponse struct {
	Code string `json:"code"`

	// Remote reports whether any identifier variant was accepted by
	// the backend. False means the device is only hidden client-side.
	Remote bool `json:"remote"`

	Attempted []string `json:"attempted"`
}

// DeleteDevice handles DELETE /v1/devices/{code}. The optional raw
// query parameter carries the device's original identifier, which is
// tried against the backend before the normalized variants.
func (h *DeviceHandler) DeleteDevice(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	raw := r.URL.Query().Get("raw")

	out, err := h.devices.Delete(r.Context(), code, raw)
	if err != nil {
		if errors.Is(err, registry.ErrEmptyCode) {
			response.BadRequest(w, r, "device identifier is empty")
			return
		}
		response.InternalError(w, r, "device delete failed")
		return
	}

	response.JSON(w, r, http.StatusOK, DeviceDeleteResponse{
		Code:      out.Code,
		Remote:    out.Remote,
		Attempted: out.Attempted,
	})
}
