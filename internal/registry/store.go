package registry

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/greeneye/companion/internal/devicecode"
	"github.com/greeneye/companion/internal/storage"
)

// Storage key prefixes. Every per-user key is "<prefix><namespace>";
// the legacy device list predates namespacing and is a bare key.
const (
	keyPrefixDevices = "devices:"
	keyPrefixThumbs  = "thumbs:"
	keyPrefixMeta    = "meta:"
	keyPrefixDeleted = "deleted:"

	// KeyLegacyDevices is the pre-namespacing device list, read for
	// migration and purged on delete, never written otherwise.
	KeyLegacyDevices = "devices:legacy"
)

// Store exposes one namespace's client-local device state: the local
// device list, thumbnail and metadata maps, and the tombstone set.
// Every mutation persists first, then fires the change notifier; that
// event is the only coupling between stores and the reconciler.
//
// Storage read failures degrade to empty defaults; the UI would rather
// see an incomplete list than an error.
type Store struct {
	kv        storage.KV
	namespace string
	notifier  *Notifier
	logger    zerolog.Logger
}

// NewStore creates a Store scoped to the given namespace.
func NewStore(kv storage.KV, namespace string, notifier *Notifier, logger zerolog.Logger) *Store {
	return &Store{
		kv:        kv,
		namespace: namespace,
		notifier:  notifier,
		logger:    logger.With().Str("component", "registry-store").Str("namespace", namespace).Logger(),
	}
}

// Namespace returns the namespace this store is scoped to.
func (s *Store) Namespace() string { return s.namespace }

// WatchedKeys returns the storage keys whose external modification
// should trigger re-reconciliation for this namespace.
func (s *Store) WatchedKeys() []string {
	return []string{
		keyPrefixDevices + s.namespace,
		keyPrefixThumbs + s.namespace,
		keyPrefixMeta + s.namespace,
		keyPrefixDeleted + s.namespace,
		KeyLegacyDevices,
	}
}

/* ── local device list ── */

// Devices returns the locally-registered device list.
func (s *Store) Devices(ctx context.Context) []DeviceRecord {
	var list []DeviceRecord
	storage.GetJSON(ctx, s.kv, keyPrefixDevices+s.namespace, &list)
	return list
}

// Upsert inserts or merges a device into the local list, keyed by
// canonical code. When a record with the same code exists, the new
// record's non-empty fields win; otherwise the record is appended as
// the most recent entry.
func (s *Store) Upsert(ctx context.Context, rec DeviceRecord) error {
	rec = rec.normalized()
	if rec.DeviceCode == "" {
		s.logger.Warn().Str("raw", rec.RawCode).Msg("dropping upsert with empty canonical code")
		return nil
	}

	list := s.Devices(ctx)
	replaced := false
	for i, d := range list {
		if devicecode.Same(d.DeviceCode, rec.DeviceCode) {
			list[i] = d.normalized().mergedWith(rec)
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, rec)
	}

	if err := storage.SetJSON(ctx, s.kv, keyPrefixDevices+s.namespace, list); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

// RemoveDevice deletes local entries matching code.
func (s *Store) RemoveDevice(ctx context.Context, code string) error {
	list := s.Devices(ctx)
	next := list[:0]
	for _, d := range list {
		if !devicecode.Same(d.DeviceCode, code) {
			next = append(next, d)
		}
	}
	if err := storage.SetJSON(ctx, s.kv, keyPrefixDevices+s.namespace, next); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

/* ── thumbnails ── */

// Thumbs returns the deviceCode -> image reference map.
func (s *Store) Thumbs(ctx context.Context) map[string]string {
	m := map[string]string{}
	storage.GetJSON(ctx, s.kv, keyPrefixThumbs+s.namespace, &m)
	return m
}

// SetThumb stores an image reference for a device.
func (s *Store) SetThumb(ctx context.Context, code, image string) error {
	can := devicecode.Canonicalize(code)
	if can == "" || image == "" {
		return nil
	}
	m := s.Thumbs(ctx)
	m[can] = image
	if err := storage.SetJSON(ctx, s.kv, keyPrefixThumbs+s.namespace, m); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

// UnsetThumb removes every thumbnail keyed by an identifier equal to
// code.
func (s *Store) UnsetThumb(ctx context.Context, code string) error {
	m := s.Thumbs(ctx)
	for k := range m {
		if devicecode.Same(k, code) {
			delete(m, k)
		}
	}
	if err := storage.SetJSON(ctx, s.kv, keyPrefixThumbs+s.namespace, m); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

/* ── metadata ── */

// Metadata returns the deviceCode -> Meta map.
func (s *Store) Metadata(ctx context.Context) map[string]Meta {
	m := map[string]Meta{}
	storage.GetJSON(ctx, s.kv, keyPrefixMeta+s.namespace, &m)
	return m
}

// SetMeta merges meta's non-empty fields into the stored entry for
// code.
func (s *Store) SetMeta(ctx context.Context, code string, meta Meta) error {
	can := devicecode.Canonicalize(code)
	if can == "" {
		return nil
	}
	m := s.Metadata(ctx)
	cur := m[can]
	if meta.Species != "" {
		cur.Species = meta.Species
	}
	if meta.Room != "" {
		cur.Room = meta.Room
	}
	if meta.OwnerEmail != "" {
		cur.OwnerEmail = meta.OwnerEmail
	}
	m[can] = cur
	if err := storage.SetJSON(ctx, s.kv, keyPrefixMeta+s.namespace, m); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

// UnsetMeta removes metadata entries matching code.
func (s *Store) UnsetMeta(ctx context.Context, code string) error {
	m := s.Metadata(ctx)
	for k := range m {
		if devicecode.Same(k, code) {
			delete(m, k)
		}
	}
	if err := storage.SetJSON(ctx, s.kv, keyPrefixMeta+s.namespace, m); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

/* ── tombstones ── */

// Deleted returns the tombstone set: canonical codes the user deleted,
// kept to suppress reappearance from stale backend data.
func (s *Store) Deleted(ctx context.Context) map[string]struct{} {
	var list []string
	storage.GetJSON(ctx, s.kv, keyPrefixDeleted+s.namespace, &list)
	set := make(map[string]struct{}, len(list))
	for _, c := range list {
		set[c] = struct{}{}
	}
	return set
}

// AddDeleted tombstones the canonical form of code.
func (s *Store) AddDeleted(ctx context.Context, code string) error {
	set := s.Deleted(ctx)
	set[devicecode.Canonicalize(code)] = struct{}{}
	if err := s.writeDeleted(ctx, set); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

// RemoveDeleted clears the tombstone for code.
func (s *Store) RemoveDeleted(ctx context.Context, code string) error {
	set := s.Deleted(ctx)
	delete(set, devicecode.Canonicalize(code))
	if err := s.writeDeleted(ctx, set); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

// setDeletedQuiet persists a tombstone set without firing the change
// notifier. Used by the reconciler's auto-undelete step, which runs
// inside a reconciliation and must not schedule another one.
func (s *Store) setDeletedQuiet(ctx context.Context, set map[string]struct{}) error {
	return s.writeDeleted(ctx, set)
}

func (s *Store) writeDeleted(ctx context.Context, set map[string]struct{}) error {
	list := make([]string, 0, len(set))
	for c := range set {
		list = append(list, c)
	}
	sort.Strings(list)
	return storage.SetJSON(ctx, s.kv, keyPrefixDeleted+s.namespace, list)
}

/* ── legacy list ── */

// LegacyDevices reads the pre-namespacing device list.
func (s *Store) LegacyDevices(ctx context.Context) []DeviceRecord {
	var list []DeviceRecord
	storage.GetJSON(ctx, s.kv, KeyLegacyDevices, &list)
	return list
}

// PurgeLegacy removes entries matching code from the legacy list. This
// is the only write the legacy key ever sees.
func (s *Store) PurgeLegacy(ctx context.Context, code string) error {
	list := s.LegacyDevices(ctx)
	next := list[:0]
	for _, d := range list {
		if !devicecode.Same(firstNonEmpty(d.DeviceCode, d.RawCode), code) {
			next = append(next, d)
		}
	}
	if err := storage.SetJSON(ctx, s.kv, KeyLegacyDevices, next); err != nil {
		return err
	}
	s.notifier.Notify()
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
