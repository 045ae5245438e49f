package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/devicecode"
	"github.com/greeneye/companion/internal/localapi/response"
	"github.com/greeneye/companion/internal/sensor"
)

// SnapshotSource fetches the latest sensor snapshot for a device.
type SnapshotSource interface {
	LatestSnapshot(ctx context.Context, deviceID string) (sensor.Snapshot, error)
}

// SnapshotHandler serves sensor readings, falling back to deterministic
// simulated readings when the backend has none.
type SnapshotHandler struct {
	source SnapshotSource
	logger zerolog.Logger
}

// NewSnapshotHandler creates a new SnapshotHandler. source may be nil,
// in which case every reading is simulated.
func NewSnapshotHandler(source SnapshotSource, logger zerolog.Logger) *SnapshotHandler {
	return &SnapshotHandler{source: source, logger: logger}
}

// GetSnapshot handles GET /v1/devices/{code}/snapshot.
func (h *SnapshotHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	code := devicecode.Canonicalize(chi.URLParam(r, "code"))
	if code == "" {
		response.BadRequest(w, r, "device identifier is empty")
		return
	}

	if h.source != nil {
		snap, err := h.source.LatestSnapshot(r.Context(), code)
		if err == nil && snap.Timestamp != "" {
			response.JSON(w, r, http.StatusOK, snap)
			return
		}
		if err != nil {
			h.logger.Debug().Err(err).Str("device", code).Msg("backend snapshot unavailable, simulating")
		}
	}

	snap := sensor.Simulate(code, time.Now(), sensor.DefaultInterval)
	response.JSON(w, r, http.StatusOK, snap)
}
