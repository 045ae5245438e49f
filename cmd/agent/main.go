// Package main provides the entrypoint for the GreenEye companion agent.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/backend"
	"github.com/greeneye/companion/internal/config"
	"github.com/greeneye/companion/internal/control"
	"github.com/greeneye/companion/internal/identity"
	"github.com/greeneye/companion/internal/localapi"
	"github.com/greeneye/companion/internal/poll"
	"github.com/greeneye/companion/internal/registry"
	"github.com/greeneye/companion/internal/settings"
	"github.com/greeneye/companion/internal/storage"
	"github.com/greeneye/companion/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// registryHub owns the active registry service and rebinds it when the
// session namespace changes, so a login or logout atomically switches
// which account's device stores the API serves.
type registryHub struct {
	mu       sync.RWMutex
	svc      *registry.Service
	kv       storage.KV
	notifier *registry.Notifier
	session  *identity.Session
	client   *backend.Client
	prefs    *settings.Store
	logger   zerolog.Logger
}

func (h *registryHub) rebind() {
	ns := h.session.Namespace()
	store := registry.NewStore(h.kv, ns, h.notifier, h.logger)
	svc := registry.NewService(registry.ServiceConfig{
		Store:     store,
		Server:    h.client,
		Remote:    h.client,
		Registrar: h.client,
		Prefs:     h.prefs,
		Logger:    h.logger,
	})

	h.mu.Lock()
	h.svc = svc
	h.mu.Unlock()
	h.logger.Info().Str("namespace", ns).Msg("registry bound to namespace")
}

func (h *registryHub) current() *registry.Service {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.svc
}

func (h *registryHub) Reconcile(ctx context.Context) []registry.DeviceRecord {
	return h.current().Reconcile(ctx)
}

func (h *registryHub) Register(ctx context.Context, rec registry.DeviceRecord, thumb string) (registry.RegisterOutcome, error) {
	return h.current().Register(ctx, rec, thumb)
}

func (h *registryHub) Delete(ctx context.Context, code, rawCode string) (registry.DeleteOutcome, error) {
	return h.current().Delete(ctx, code, rawCode)
}

// watching reports whether an externally changed storage key belongs to
// the active namespace's stores or to the settings blob.
func (h *registryHub) watching(key string) bool {
	if key == settings.Key {
		return true
	}
	svc := h.current()
	if svc == nil {
		return false
	}
	for _, k := range svc.Store().WatchedKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func main() {
	const serviceName = "greeneye-agent"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting GreenEye companion agent")

	cfg := config.Load()
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	// External state changes (another agent process, manual edits) and
	// session switches both funnel into a scheduler wake. The file
	// watcher starts delivering before the scheduler exists, so the
	// callback loads it through an atomic pointer that stays nil until
	// wiring is complete.
	var scheduler atomic.Pointer[poll.Scheduler]
	hub := &registryHub{logger: log}

	kv, err := openStorage(ctx, cfg, log, func(key string) {
		s := scheduler.Load()
		if s != nil && hub.watching(key) {
			log.Debug().Str("key", key).Msg("external state change")
			s.Wake()
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open state storage")
	}
	defer func() {
		if closeErr := kv.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("failed to close state storage")
		}
	}()
	log.Info().Str("backend", cfg.Storage).Msg("state storage ready")

	session := identity.NewSession(cfg.Token)
	settingsStore := settings.NewStore(kv, log)
	client := backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.BackendBaseURL,
		Session: session,
		Logger:  log,
	})

	hub.kv = kv
	hub.notifier = registry.NewNotifier()
	hub.session = session
	hub.client = client
	hub.prefs = settingsStore
	hub.rebind()

	panel := control.NewPanel(client, log)

	sched := poll.NewScheduler(poll.Config{
		Interval: func(ctx context.Context) time.Duration {
			return settingsStore.Get(ctx).SensingInterval()
		},
		Refresh: func(ctx context.Context) {
			hub.Reconcile(ctx)
		},
		Logger: log,
	})
	scheduler.Store(sched)
	settingsStore.Subscribe(sched.Wake)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go sched.Run(runCtx)

	router := localapi.NewRouter(localapi.RouterConfig{
		Version:   Version,
		BuildTime: BuildTime,
		Logger:    log,
		Devices:   hub,
		Snapshot:  client,
		Panel:     panel,
		Settings:  settingsStore,
		Session:   session,
		OnSessionChange: func() {
			hub.rebind()
			sched.Wake()
		},
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("agent API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down agent")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("agent stopped")
}

// openStorage selects the state backend from configuration.
func openStorage(ctx context.Context, cfg config.Config, log zerolog.Logger, onChange func(string)) (storage.KV, error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "postgres":
		return storage.NewPostgresStore(ctx, storage.PostgresConfigFromEnv())
	default:
		return storage.NewFileStore(storage.FileStoreConfig{
			Dir:      cfg.StateDir,
			OnChange: onChange,
			Logger:   log,
		})
	}
}
