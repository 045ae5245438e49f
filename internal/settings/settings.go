package settings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/devicecode"
	"github.com/greeneye/companion/internal/registry"
	"github.com/greeneye/companion/internal/storage"
)

// Key is the storage key for agent settings. Settings are global, not
// namespaced per account: they describe this installation, not a login.
const Key = "settings"

// minSensing is the floor applied to the sensing interval so a bogus or
// zero value can never spin the poller.
const minSensing = 5 * time.Second

// ModePreset bundles the interval knobs for one operation mode.
type ModePreset struct {
	Label          string
	CCUMinutes     int
	SensingMinutes int
	CaptureMinutes int
	BatteryDays    int
}

// ModePresets maps operation mode names to their interval presets.
// BatteryDays is the estimated battery life shown alongside each mode.
var ModePresets = map[string]ModePreset{
	"ultra_low":  {Label: "Ultra low power", CCUMinutes: 10, SensingMinutes: 120, CaptureMinutes: 240, BatteryDays: 40},
	"low":        {Label: "Low power", CCUMinutes: 10, SensingMinutes: 60, CaptureMinutes: 120, BatteryDays: 38},
	"normal":     {Label: "Normal", CCUMinutes: 10, SensingMinutes: 30, CaptureMinutes: 60, BatteryDays: 34},
	"high":       {Label: "High frequency", CCUMinutes: 10, SensingMinutes: 15, CaptureMinutes: 60, BatteryDays: 32},
	"ultra_high": {Label: "Ultra high frequency", CCUMinutes: 10, SensingMinutes: 10, CaptureMinutes: 30, BatteryDays: 30},
}

// Settings holds the agent configuration that users can change at runtime.
type Settings struct {
	OperationMode          string `json:"operationMode"`
	CCUIntervalMinutes     int    `json:"ccuIntervalMinutes"`
	SensingIntervalMinutes int    `json:"sensingIntervalMinutes"`
	CaptureIntervalMinutes int    `json:"captureIntervalMinutes"`
	NightMode              string `json:"nightMode"`
	CameraTargetDevice     string `json:"cameraTargetDevice"`
}

// Defaults returns the settings used before the user has saved anything.
func Defaults() Settings {
	p := ModePresets["normal"]
	return Settings{
		OperationMode:          "normal",
		CCUIntervalMinutes:     p.CCUMinutes,
		SensingIntervalMinutes: p.SensingMinutes,
		CaptureIntervalMinutes: p.CaptureMinutes,
		NightMode:              "night_on",
	}
}

// SensingInterval converts the sensing minutes to a duration, clamped to
// the 5 second floor.
func (s Settings) SensingInterval() time.Duration {
	d := time.Duration(s.SensingIntervalMinutes) * time.Minute
	if d < minSensing {
		return minSensing
	}
	return d
}

// Store persists settings in the key-value store and notifies subscribers
// after every change.
type Store struct {
	mu       sync.Mutex
	kv       storage.KV
	notifier *registry.Notifier
	logger   zerolog.Logger
}

func NewStore(kv storage.KV, logger zerolog.Logger) *Store {
	return &Store{
		kv:       kv,
		notifier: registry.NewNotifier(),
		logger:   logger.With().Str("component", "settings").Logger(),
	}
}

// Subscribe registers fn to run after every settings change. The returned
// cancel func is idempotent.
func (s *Store) Subscribe(fn func()) func() {
	return s.notifier.Subscribe(fn)
}

// Get loads the stored settings, filling any missing field from the
// defaults. Absent or malformed state yields the defaults.
func (s *Store) Get(ctx context.Context) Settings {
	var stored Settings
	if !storage.GetJSON(ctx, s.kv, Key, &stored) {
		return Defaults()
	}
	return withDefaults(stored)
}

// Put persists the full settings blob and notifies subscribers.
func (s *Store) Put(ctx context.Context, v Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v = withDefaults(v)
	if err := storage.SetJSON(ctx, s.kv, Key, v); err != nil {
		return Settings{}, fmt.Errorf("saving settings: %w", err)
	}
	s.logger.Debug().Str("mode", v.OperationMode).Int("sensing_minutes", v.SensingIntervalMinutes).Msg("settings saved")
	s.notifier.Notify()
	return v, nil
}

// ApplyMode switches to a named operation mode and overwrites the three
// interval knobs with the mode's preset values.
func (s *Store) ApplyMode(ctx context.Context, mode string) (Settings, error) {
	p, ok := ModePresets[mode]
	if !ok {
		return Settings{}, fmt.Errorf("unknown operation mode %q", mode)
	}
	cur := s.Get(ctx)
	cur.OperationMode = mode
	cur.CCUIntervalMinutes = p.CCUMinutes
	cur.SensingIntervalMinutes = p.SensingMinutes
	cur.CaptureIntervalMinutes = p.CaptureMinutes
	return s.Put(ctx, cur)
}

// SetCameraTarget points the camera preference at the given device code.
func (s *Store) SetCameraTarget(ctx context.Context, code string) error {
	cur := s.Get(ctx)
	cur.CameraTargetDevice = devicecode.Canonicalize(code)
	_, err := s.Put(ctx, cur)
	return err
}

// ClearCameraTarget drops the camera preference when it points at the
// given device. Called after a device is deleted so the preference never
// references a device that no longer exists.
func (s *Store) ClearCameraTarget(ctx context.Context, code string) error {
	cur := s.Get(ctx)
	if cur.CameraTargetDevice == "" || !devicecode.Same(cur.CameraTargetDevice, code) {
		return nil
	}
	cur.CameraTargetDevice = ""
	_, err := s.Put(ctx, cur)
	return err
}

func withDefaults(v Settings) Settings {
	def := Defaults()
	if v.OperationMode == "" {
		v.OperationMode = def.OperationMode
	}
	if v.CCUIntervalMinutes <= 0 {
		v.CCUIntervalMinutes = def.CCUIntervalMinutes
	}
	if v.SensingIntervalMinutes <= 0 {
		v.SensingIntervalMinutes = def.SensingIntervalMinutes
	}
	if v.CaptureIntervalMinutes <= 0 {
		v.CaptureIntervalMinutes = def.CaptureIntervalMinutes
	}
	if v.NightMode == "" {
		v.NightMode = def.NightMode
	}
	return v
}
