package registry

import (
	"context"
	"errors"

	"github.com/greeneye/companion/internal/devicecode"
)

// ErrEmptyCode is returned for workflows invoked with an identifier
// that canonicalizes to nothing.
var ErrEmptyCode = errors.New("registry: device code is empty")

// RegisterOutcome reports how a registration went.
type RegisterOutcome struct {
	// Code is the canonical code the device was stored under.
	Code string

	// Remote is true when the backend accepted the registration. A
	// false value means the device is local-only pending sync.
	Remote bool
}

// Register stores a device locally (device list, thumbnail, metadata)
// and registers it with the backend on a best-effort basis. A backend
// failure leaves the device in the local store as pending-sync rather
// than failing the workflow.
func (s *Service) Register(ctx context.Context, rec DeviceRecord, thumb string) (RegisterOutcome, error) {
	rec = rec.normalized()
	if rec.DeviceCode == "" {
		return RegisterOutcome{}, ErrEmptyCode
	}
	out := RegisterOutcome{Code: rec.DeviceCode}

	if s.regist != nil {
		reg := Registration{
			MAC:         rec.DeviceCode,
			Name:        rec.Name,
			Room:        rec.Room,
			Species:     rec.Species,
			ImageBase64: thumb,
		}
		if err := s.regist.RegisterDevice(ctx, reg); err != nil {
			s.logger.Warn().Err(err).Str("device", rec.DeviceCode).
				Msg("backend registration failed, keeping device local-only")
		} else {
			out.Remote = true
		}
	}

	if thumb != "" {
		if err := s.store.SetThumb(ctx, rec.DeviceCode, thumb); err != nil {
			return out, err
		}
		rec.ImageURL = thumb
	}
	if rec.Species != "" || rec.Room != "" {
		if err := s.store.SetMeta(ctx, rec.DeviceCode, Meta{Species: rec.Species, Room: rec.Room}); err != nil {
			return out, err
		}
	}
	// Upsert last: it clears any tombstone on the next reconcile and
	// fires the event subscribers rebuild the view from.
	if err := s.store.Upsert(ctx, rec); err != nil {
		return out, err
	}
	return out, nil
}

// DeleteOutcome reports how a delete went.
type DeleteOutcome struct {
	// Code is the canonical code that was tombstoned.
	Code string

	// Remote is true when some identifier variant was accepted by the
	// backend. False means the delete is a client-side hide only.
	Remote bool

	// Attempted lists the identifier variants tried against the
	// backend, in order.
	Attempted []string
}

// Delete removes a device everywhere the client knows about it. The
// backend delete is attempted with progressively normalized identifier
// variants (raw, then 4-char tail, then full canonical form) because
// the backend's expected format is not guaranteed; remote failure is
// non-fatal and every local cleanup step still runs.
func (s *Service) Delete(ctx context.Context, code, rawCode string) (DeleteOutcome, error) {
	can := devicecode.Canonicalize(firstNonEmpty(code, rawCode))
	if can == "" {
		return DeleteOutcome{}, ErrEmptyCode
	}
	if rawCode == "" {
		rawCode = firstNonEmpty(code, can)
	}
	out := DeleteOutcome{Code: can}

	if s.remote != nil {
		for _, variant := range deleteVariants(rawCode) {
			out.Attempted = append(out.Attempted, variant)
			if err := s.remote.DeleteDevice(ctx, variant); err == nil {
				out.Remote = true
				break
			}
		}
		if !out.Remote {
			s.logger.Warn().Str("device", can).Strs("variants", out.Attempted).
				Msg("backend delete failed or unsupported, applying client-side hide")
		}
	}

	// Local cleanup runs regardless of the remote outcome. Tombstone
	// first so a concurrent reconcile never resurrects the device
	// between steps.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(s.store.AddDeleted(ctx, can))
	keep(s.store.RemoveDevice(ctx, can))
	keep(s.store.UnsetThumb(ctx, can))
	keep(s.store.UnsetMeta(ctx, can))
	if s.prefs != nil {
		keep(s.prefs.ClearCameraTarget(ctx, can))
	}
	keep(s.store.PurgeLegacy(ctx, can))

	return out, firstErr
}

// deleteVariants returns the identifier variants to try against the
// backend, most-original first, de-duplicated.
func deleteVariants(raw string) []string {
	var variants []string
	seen := map[string]struct{}{}
	add := func(v string) {
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
	}
	add(raw)
	add(devicecode.Tail4(raw))
	add(devicecode.Canonicalize(raw))
	return variants
}
