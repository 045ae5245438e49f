package registry_test

import (
	"testing"

	"github.com/greeneye/companion/internal/registry"
)

func TestNormalize_FieldAliases(t *testing.T) {
	cases := []struct {
		name string
		in   map[string]any
		want registry.DeviceRecord
	}{
		{
			name: "server shape",
			in: map[string]any{
				"device_id":     "GE-SD-6C18",
				"friendly_name": "Balcony basil",
				"thumbnail_url": "https://img/1.jpg",
				"room":          "Balcony",
				"species":       "Basil",
			},
			want: registry.DeviceRecord{
				DeviceCode: "ge-sd-6c18",
				RawCode:    "GE-SD-6C18",
				Name:       "Balcony basil",
				ImageURL:   "https://img/1.jpg",
				Room:       "Balcony",
				Species:    "Basil",
			},
		},
		{
			name: "mac variant, absent name stays empty",
			in:   map[string]any{"mac": "aa:bb:cc:dd:0a:1b"},
			want: registry.DeviceRecord{
				DeviceCode: "ge-sd-0a1b",
				RawCode:    "aa:bb:cc:dd:0a:1b",
			},
		},
		{
			name: "alias precedence: deviceCode beats mac",
			in:   map[string]any{"deviceCode": "ge-sd-1111", "mac": "ge-sd-2222"},
			want: registry.DeviceRecord{
				DeviceCode: "ge-sd-1111",
				RawCode:    "ge-sd-1111",
			},
		},
		{
			name: "no identifier at all",
			in:   map[string]any{"name": "ghost"},
			want: registry.DeviceRecord{Name: "ghost"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := registry.Normalize(tc.in)
			if got != tc.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestNormalizeList(t *testing.T) {
	raw := []byte(`[
		{"device_id": "GE-SD-6C18", "friendly_name": "One"},
		{"mac": "ge_sd_0a1b"}
	]`)
	out := registry.NormalizeList(raw)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2", len(out))
	}
	if out[0].DeviceCode != "ge-sd-6c18" || out[1].DeviceCode != "ge-sd-0a1b" {
		t.Errorf("codes = %q, %q", out[0].DeviceCode, out[1].DeviceCode)
	}
}

func TestNormalizeList_Malformed(t *testing.T) {
	if out := registry.NormalizeList([]byte(`{"not":"an array"}`)); out != nil {
		t.Errorf("malformed payload should yield nil, got %+v", out)
	}
	if out := registry.NormalizeList([]byte(`garbage`)); out != nil {
		t.Errorf("garbage payload should yield nil, got %+v", out)
	}
}
