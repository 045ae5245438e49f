package registry

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ServerSource lists the backend's devices. The backend is
// authoritative for existence and ownership but may be stale or
// unreachable.
type ServerSource interface {
	ListDevices(ctx context.Context) ([]DeviceRecord, error)
}

// RemoteDeleter deletes one device identifier variant on the backend.
type RemoteDeleter interface {
	DeleteDevice(ctx context.Context, variant string) error
}

// Registration is the payload for registering a device with the
// backend.
type Registration struct {
	MAC         string
	Name        string
	Room        string
	Species     string
	ImageBase64 string
}

// RemoteRegistrar registers a device with the backend.
type RemoteRegistrar interface {
	RegisterDevice(ctx context.Context, reg Registration) error
}

// CameraPreference clears the camera-target preference when it points
// at the given code.
type CameraPreference interface {
	ClearCameraTarget(ctx context.Context, code string) error
}

// Service ties the namespace's stores to the backend and implements
// reconciliation and the register/delete workflows.
type Service struct {
	store  *Store
	server ServerSource
	remote RemoteDeleter
	regist RemoteRegistrar
	prefs  CameraPreference
	logger zerolog.Logger
	tracer trace.Tracer
}

// ServiceConfig holds dependencies for a Service. Server, Remote,
// Registrar and Prefs are optional; a nil dependency degrades to the
// local-only behavior.
type ServiceConfig struct {
	Store     *Store
	Server    ServerSource
	Remote    RemoteDeleter
	Registrar RemoteRegistrar
	Prefs     CameraPreference
	Logger    zerolog.Logger
}

// NewService creates a registry service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:  cfg.Store,
		server: cfg.Server,
		remote: cfg.Remote,
		regist: cfg.Registrar,
		prefs:  cfg.Prefs,
		logger: cfg.Logger.With().Str("component", "registry").Logger(),
		tracer: otel.Tracer("greeneye/registry"),
	}
}

// Store returns the underlying namespace store.
func (s *Service) Store() *Store { return s.store }

// Reconcile merges the backend list, the local list, the legacy list
// and the auxiliary stores into the device view, applying tombstone
// filtering and source precedence local -> legacy -> server. It never
// fails: an unreachable backend degrades to the local-only view.
func (s *Service) Reconcile(ctx context.Context) []DeviceRecord {
	ctx, span := s.tracer.Start(ctx, "registry.reconcile")
	defer span.End()

	var server []DeviceRecord
	if s.server != nil {
		list, err := s.server.ListDevices(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("device list fetch failed, using local view")
		} else {
			server = list
		}
	}

	out := s.merge(ctx, server)
	span.SetAttributes(attribute.Int("devices", len(out)))
	return out
}

// merge is the synchronous core of reconciliation, operating on an
// already-fetched (possibly nil) server list.
func (s *Service) merge(ctx context.Context, server []DeviceRecord) []DeviceRecord {
	locals := normalizeAll(s.store.Devices(ctx))
	legacy := normalizeAll(s.store.LegacyDevices(ctx))

	// Re-registration always wins over a prior delete: any code in the
	// local store is cleared from the tombstone set before filtering.
	deleted := s.store.Deleted(ctx)
	undeleted := false
	for _, d := range locals {
		if _, ok := deleted[d.DeviceCode]; ok {
			delete(deleted, d.DeviceCode)
			undeleted = true
		}
	}
	if undeleted {
		if err := s.store.setDeletedQuiet(ctx, deleted); err != nil {
			s.logger.Warn().Err(err).Msg("persisting auto-undelete failed")
		}
	}

	merged := make(map[string]DeviceRecord)
	var order []string
	for _, source := range [][]DeviceRecord{locals, legacy, normalizeAll(server)} {
		for _, d := range source {
			if d.DeviceCode == "" {
				continue
			}
			if _, gone := deleted[d.DeviceCode]; gone {
				continue
			}
			prev, seen := merged[d.DeviceCode]
			if !seen {
				order = append(order, d.DeviceCode)
			}
			merged[d.DeviceCode] = prev.mergedWith(d)
		}
	}

	// Auxiliary stores hold the user's most recent explicit edits and
	// override whatever value the sources carried.
	thumbs := s.store.Thumbs(ctx)
	meta := s.store.Metadata(ctx)

	out := make([]DeviceRecord, 0, len(order))
	for _, code := range order {
		d := merged[code]
		if img, ok := thumbs[code]; ok && img != "" {
			d.ImageURL = img
		}
		if m, ok := meta[code]; ok {
			if m.Species != "" {
				d.Species = m.Species
			}
			if m.Room != "" {
				d.Room = m.Room
			}
		}
		// Display fallback, applied only after every source has had its
		// say: a device no source named shows its code.
		if d.Name == "" {
			d.Name = d.DeviceCode
		}
		out = append(out, d)
	}
	return out
}

func normalizeAll(in []DeviceRecord) []DeviceRecord {
	out := make([]DeviceRecord, 0, len(in))
	for _, d := range in {
		out = append(out, d.normalized())
	}
	return out
}
