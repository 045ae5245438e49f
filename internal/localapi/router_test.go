package localapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greeneye/companion/internal/control"
	"github.com/greeneye/companion/internal/identity"
	"github.com/greeneye/companion/internal/localapi"
	"github.com/greeneye/companion/internal/localapi/handler"
	"github.com/greeneye/companion/internal/registry"
	"github.com/greeneye/companion/internal/sensor"
	"github.com/greeneye/companion/internal/settings"
	"github.com/greeneye/companion/internal/storage"
)

type fakeBackend struct {
	devices   []registry.DeviceRecord
	listErr   error
	deleted   []string
	deleteErr error
	snapshots map[string]sensor.Snapshot
	commands  []map[string]int
}

func (f *fakeBackend) ListDevices(context.Context) ([]registry.DeviceRecord, error) {
	return f.devices, f.listErr
}

func (f *fakeBackend) DeleteDevice(_ context.Context, variant string) error {
	f.deleted = append(f.deleted, variant)
	return f.deleteErr
}

func (f *fakeBackend) RegisterDevice(context.Context, registry.Registration) error {
	return nil
}

func (f *fakeBackend) LatestSnapshot(_ context.Context, deviceID string) (sensor.Snapshot, error) {
	snap, ok := f.snapshots[deviceID]
	if !ok {
		return sensor.Snapshot{}, errors.New("no data")
	}
	return snap, nil
}

func (f *fakeBackend) ControlDevice(_ context.Context, _ string, payload map[string]int) error {
	f.commands = append(f.commands, payload)
	return nil
}

type testEnv struct {
	backend  *fakeBackend
	settings *settings.Store
	router   http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	backend := &fakeBackend{snapshots: map[string]sensor.Snapshot{}}
	kv := storage.NewMemoryStore()
	logger := zerolog.Nop()

	settingsStore := settings.NewStore(kv, logger)
	store := registry.NewStore(kv, identity.GuestNamespace, registry.NewNotifier(), logger)
	svc := registry.NewService(registry.ServiceConfig{
		Store:     store,
		Server:    backend,
		Remote:    backend,
		Registrar: backend,
		Prefs:     settingsStore,
		Logger:    logger,
	})

	router := localapi.NewRouter(localapi.RouterConfig{
		Version:  "test",
		Logger:   logger,
		Devices:  svc,
		Snapshot: backend,
		Panel:    control.NewPanel(backend, logger),
		Settings: settingsStore,
		Session:  identity.NewSession(""),
	})

	return &testEnv{backend: backend, settings: settingsStore, router: router}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var health handler.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestListDevicesMergesBackend(t *testing.T) {
	env := newTestEnv(t)
	env.backend.devices = []registry.DeviceRecord{
		{DeviceCode: "ge-sd-6c18", RawCode: "AA:BB:CC:DD:6C:18", Name: "Basil"},
	}

	rec := doJSON(t, env.router, http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out handler.DeviceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "ge-sd-6c18", out.Items[0].DeviceCode)
	assert.Equal(t, "Basil", out.Items[0].Name)
}

func TestListDevicesDegradesWhenBackendDown(t *testing.T) {
	env := newTestEnv(t)
	env.backend.listErr = errors.New("connection refused")

	rec := doJSON(t, env.router, http.MethodGet, "/v1/devices", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out handler.DeviceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 0, out.Count)
	assert.NotNil(t, out.Items)
}

func TestRegisterThenListAndDelete(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/v1/devices", handler.DeviceRegisterRequest{
		MAC:  "AA:BB:CC:DD:6C:18",
		Name: "Basil",
		Room: "Kitchen",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var reg handler.DeviceRegisterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reg))
	assert.Equal(t, "ge-sd-6c18", reg.Code)
	assert.True(t, reg.Remote)

	rec = doJSON(t, env.router, http.MethodGet, "/v1/devices", nil)
	var list handler.DeviceListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)

	rec = doJSON(t, env.router, http.MethodDelete, "/v1/devices/ge-sd-6c18?raw=AA:BB:CC:DD:6C:18", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var del handler.DeviceDeleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &del))
	assert.Equal(t, "ge-sd-6c18", del.Code)
	assert.True(t, del.Remote)
	assert.Equal(t, []string{"AA:BB:CC:DD:6C:18"}, del.Attempted)

	rec = doJSON(t, env.router, http.MethodGet, "/v1/devices", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 0, list.Count)
}

func TestRegisterEmptyCodeRejected(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/v1/devices", handler.DeviceRegisterRequest{Name: "Ghost"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestSnapshotFromBackend(t *testing.T) {
	env := newTestEnv(t)
	env.backend.snapshots["ge-sd-6c18"] = sensor.Snapshot{
		Temperature: sensor.Reading{Value: 23.4, Status: sensor.StatusMiddle},
		Timestamp:   "2026-08-29T10:00:00Z",
	}

	rec := doJSON(t, env.router, http.MethodGet, "/v1/devices/6C18/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap sensor.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.False(t, snap.Simulated)
	assert.InDelta(t, 23.4, snap.Temperature.Value, 0.001)
}

func TestSnapshotFallsBackToSimulation(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/v1/devices/ge-sd-ffff/snapshot", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap sensor.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.True(t, snap.Simulated)
	assert.NotEmpty(t, snap.Timestamp)
}

func TestFlipControl(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/v1/devices/ge-sd-6c18/control", handler.ControlFlipRequest{
		Actuator: string(control.ActuatorWaterPump),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var toggle control.Toggle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &toggle))
	assert.True(t, toggle.On)

	require.Len(t, env.backend.commands, 1)
	assert.Equal(t, 1, env.backend.commands[0]["water_pump_action"])
	assert.Equal(t, 3, env.backend.commands[0]["water_pump_duration"])
}

func TestFlipControlUnknownActuator(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodPost, "/v1/devices/ge-sd-6c18/control", handler.ControlFlipRequest{
		Actuator: "laser",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSettingsRoundTripAndMode(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/v1/settings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got settings.Settings
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "normal", got.OperationMode)

	got.SensingIntervalMinutes = 15
	rec = doJSON(t, env.router, http.MethodPut, "/v1/settings", got)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, env.router, http.MethodPost, "/v1/settings/mode", handler.ApplyModeRequest{Mode: "ultra_high"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 10, got.SensingIntervalMinutes)
	assert.Equal(t, 30, got.CaptureIntervalMinutes)

	rec = doJSON(t, env.router, http.MethodPost, "/v1/settings/mode", handler.ApplyModeRequest{Mode: "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := doJSON(t, env.router, http.MethodGet, "/v1/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var sess handler.SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.True(t, sess.Guest)
	assert.Equal(t, identity.GuestNamespace, sess.Namespace)

	rec = doJSON(t, env.router, http.MethodPut, "/v1/session", handler.SetSessionRequest{Token: "opaque-token"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.False(t, sess.Guest)
	assert.NotEqual(t, identity.GuestNamespace, sess.Namespace)

	rec = doJSON(t, env.router, http.MethodDelete, "/v1/session", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
}
