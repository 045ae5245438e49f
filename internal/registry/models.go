// Package registry maintains the client-side view of a user's sensor
// devices: local stores for offline-registered devices, thumbnails,
// metadata and delete tombstones, and the reconciler that merges those
// with the backend's device list into one consistent, de-duplicated
// view for the UI.
package registry

import (
	"encoding/json"
	"strings"

	"github.com/greeneye/companion/internal/devicecode"
)

// DeviceRecord is one sensor unit as known to the client.
type DeviceRecord struct {
	// DeviceCode is the canonical identifier and the unique merge key.
	DeviceCode string `json:"deviceCode"`

	// RawCode is the identifier as originally reported by this record's
	// source, kept for backend calls that expect the original form.
	RawCode string `json:"rawCode,omitempty"`

	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Room     string `json:"room,omitempty"`
	Species  string `json:"species,omitempty"`
}

// Meta is the user-edited auxiliary data for a device, kept separately
// from the device records so it survives list churn.
type Meta struct {
	Species    string `json:"species,omitempty"`
	Room       string `json:"room,omitempty"`
	OwnerEmail string `json:"ownerEmail,omitempty"`
}

// Field alias lists for ingestion, in precedence order. The backend and
// the legacy cache use several historical field names for the same
// thing; any subset may be present.
var (
	codeAliases  = []string{"deviceCode", "device_id", "device_code", "mac"}
	nameAliases  = []string{"name", "friendly_name"}
	imageAliases = []string{"imageUrl", "thumbnail_url", "photoUrl", "image_filename"}
)

// Normalize maps a loosely-shaped device object onto a DeviceRecord:
// the first present alias wins per field and the identifier is
// canonicalized. An absent name stays empty here; filling it with the
// code would make the record's name "non-empty" and let it shadow a
// real name from another source during the merge. The reconciler
// applies the name fallback on its output instead. A record with no
// usable identifier comes back with an empty DeviceCode; the
// reconciler discards those.
func Normalize(raw map[string]any) DeviceRecord {
	rawCode := strings.TrimSpace(firstString(raw, codeAliases))
	code := devicecode.Canonicalize(rawCode)
	if rawCode == "" {
		rawCode = code
	}

	return DeviceRecord{
		DeviceCode: code,
		RawCode:    rawCode,
		Name:       firstString(raw, nameAliases),
		ImageURL:   firstString(raw, imageAliases),
		Room:       stringValue(raw["room"]),
		Species:    stringValue(raw["species"]),
	}
}

// NormalizeList normalizes a decoded JSON array. Non-object elements
// are skipped; a non-array payload yields nil.
func NormalizeList(raw []byte) []DeviceRecord {
	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	out := make([]DeviceRecord, 0, len(arr))
	for _, m := range arr {
		out = append(out, Normalize(m))
	}
	return out
}

// normalized re-derives the canonical code for a record that is
// already in DeviceRecord shape (stored local and legacy entries may
// predate canonicalization). The name is left as stored, empty or not,
// for the same merge-precedence reason as in Normalize.
func (d DeviceRecord) normalized() DeviceRecord {
	rawCode := strings.TrimSpace(d.RawCode)
	if rawCode == "" {
		rawCode = strings.TrimSpace(d.DeviceCode)
	}
	code := devicecode.Canonicalize(rawCode)
	if rawCode == "" {
		rawCode = code
	}

	return DeviceRecord{
		DeviceCode: code,
		RawCode:    rawCode,
		Name:       d.Name,
		ImageURL:   d.ImageURL,
		Room:       d.Room,
		Species:    d.Species,
	}
}

// mergedWith overlays the non-empty fields of over onto d. Precedence
// is per field, not per record: a field the later source left blank
// never blanks out a previously-set value.
func (d DeviceRecord) mergedWith(over DeviceRecord) DeviceRecord {
	out := d
	if over.DeviceCode != "" {
		out.DeviceCode = over.DeviceCode
	}
	if over.RawCode != "" {
		out.RawCode = over.RawCode
	}
	if over.Name != "" {
		out.Name = over.Name
	}
	if over.ImageURL != "" {
		out.ImageURL = over.ImageURL
	}
	if over.Room != "" {
		out.Room = over.Room
	}
	if over.Species != "" {
		out.Species = over.Species
	}
	return out
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		if s := stringValue(m[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
