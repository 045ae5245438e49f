// Package localapi provides the loopback HTTP API the GreenEye UI talks
// to. It exposes the reconciled device registry, sensor snapshots,
// actuator toggles, agent settings and the backend session.
package localapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/control"
	"github.com/greeneye/companion/internal/identity"
	"github.com/greeneye/companion/internal/localapi/handler"
	"github.com/greeneye/companion/internal/localapi/middleware"
	"github.com/greeneye/companion/internal/settings"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Version   string
	BuildTime string
	Logger    zerolog.Logger

	Devices  handler.DeviceService
	Snapshot handler.SnapshotSource
	Panel    *control.Panel
	Settings *settings.Store
	Session  *identity.Session

	// OnSessionChange runs after the auth token is set or cleared,
	// once the new namespace is active.
	OnSessionChange func()
}

// NewRouter creates a chi router with all agent API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware, order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing())
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)

	deviceHandler := handler.NewDeviceHandler(cfg.Devices)
	snapshotHandler := handler.NewSnapshotHandler(cfg.Snapshot, cfg.Logger)
	controlHandler := handler.NewControlHandler(cfg.Panel)
	settingsHandler := handler.NewSettingsHandler(cfg.Settings)
	sessionHandler := handler.NewSessionHandler(cfg.Session, cfg.OnSessionChange)
	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime)

	controlRateLimit := middleware.RateLimitByIP(middleware.ControlRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Get("/healthz", opsHandler.HealthCheck)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/devices", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", deviceHandler.ListDevices)
			r.Post("/", deviceHandler.RegisterDevice)
			r.Route("/{code}", func(r chi.Router) {
				r.Delete("/", deviceHandler.DeleteDevice)
				r.Get("/snapshot", snapshotHandler.GetSnapshot)
				r.Get("/control", controlHandler.GetControls)
				r.With(controlRateLimit).Post("/control", controlHandler.FlipControl)
			})
		})

		r.Route("/settings", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", settingsHandler.GetSettings)
			r.Put("/", settingsHandler.UpdateSettings)
			r.Post("/mode", settingsHandler.ApplyMode)
		})

		r.Route("/session", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", sessionHandler.GetSession)
			r.Put("/", sessionHandler.SetSession)
			r.Delete("/", sessionHandler.ClearSession)
		})
	})

	return r
}
