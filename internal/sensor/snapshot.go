// Package sensor models periodic sensor snapshots for a device and
// decodes the two payload generations the backend emits, plus a
// deterministic simulator used when the backend has no data.
package sensor

import (
	"encoding/json"
	"strconv"
)

// Status classifies a reading against the plant's healthy range.
type Status string

const (
	StatusLow     Status = "low"
	StatusMiddle  Status = "middle"
	StatusHigh    Status = "high"
	StatusUnknown Status = "unknown"
)

// Range is a healthy min/max band for a reading, when the backend
// provides one.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Reading is one measured value with its classification.
type Reading struct {
	Value  float64 `json:"value"`
	Status Status  `json:"status"`
	Range  *Range  `json:"range,omitempty"`
}

// Snapshot is one periodic reading set for a device.
type Snapshot struct {
	Temperature  Reading `json:"temperature"`
	Humidity     Reading `json:"humidity"`
	LightLux     Reading `json:"light_lux"`
	SoilTemp     Reading `json:"soil_temp"`
	SoilMoisture Reading `json:"soil_moisture"`
	SoilEC       Reading `json:"soil_ec"`
	Battery      Reading `json:"battery"`

	PlantType string `json:"plant_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	AINote    string `json:"ai_note,omitempty"`

	// Simulated marks a locally generated snapshot.
	Simulated bool `json:"simulated,omitempty"`
}

// Legacy flat-payload aliases, first present wins.
var legacyAliases = map[string][]string{
	"temperature":   {"temperature", "amb_temp"},
	"humidity":      {"humidity", "amb_humi"},
	"light_lux":     {"light_lux", "amb_light"},
	"soil_temp":     {"soil_temp"},
	"soil_moisture": {"soil_moisture", "soil_humi"},
	"soil_ec":       {"soil_ec"},
	"battery":       {"battery", "bat_level"},
}

// ParsePayload decodes a sensor payload in either backend shape: the
// structured form with a "values" object of {value,status,range} per
// field, or the legacy flat form with its historical aliases.
// Unparseable bodies and non-numeric values decode to zeroes with
// unknown status, never an error.
func ParsePayload(raw []byte) Snapshot {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return zeroSnapshot()
	}

	var snap Snapshot
	if values, ok := body["values"].(map[string]any); ok {
		snap = Snapshot{
			Temperature:  parseReading(values["temperature"]),
			Humidity:     parseReading(values["humidity"]),
			LightLux:     parseReading(values["light_lux"]),
			SoilTemp:     parseReading(values["soil_temp"]),
			SoilMoisture: parseReading(values["soil_moisture"]),
			SoilEC:       parseReading(values["soil_ec"]),
			Battery:      parseReading(values["battery"]),
		}
	} else {
		snap = Snapshot{
			Temperature:  legacyReading(body, "temperature"),
			Humidity:     legacyReading(body, "humidity"),
			LightLux:     legacyReading(body, "light_lux"),
			SoilTemp:     legacyReading(body, "soil_temp"),
			SoilMoisture: legacyReading(body, "soil_moisture"),
			SoilEC:       legacyReading(body, "soil_ec"),
			Battery:      legacyReading(body, "battery"),
		}
	}

	snap.PlantType, _ = body["plant_type"].(string)
	snap.Timestamp, _ = body["timestamp"].(string)
	snap.AINote = parseAINote(body["ai_diagnosis"])
	return snap
}

func parseReading(v any) Reading {
	m, ok := v.(map[string]any)
	if !ok {
		return Reading{Status: StatusUnknown}
	}
	r := Reading{
		Value:  toNum(m["value"]),
		Status: parseStatus(m["status"]),
	}
	if rng, ok := m["range"].(map[string]any); ok {
		r.Range = &Range{Min: toNum(rng["min"]), Max: toNum(rng["max"])}
	}
	return r
}

func legacyReading(body map[string]any, field string) Reading {
	for _, alias := range legacyAliases[field] {
		if v, ok := body[alias]; ok {
			return Reading{Value: toNum(v), Status: StatusUnknown}
		}
	}
	return Reading{Status: StatusUnknown}
}

func parseStatus(v any) Status {
	switch Status(stringOf(v)) {
	case StatusLow:
		return StatusLow
	case StatusMiddle:
		return StatusMiddle
	case StatusHigh:
		return StatusHigh
	default:
		return StatusUnknown
	}
}

// The AI note arrives either as a bare string or nested under
// comment/note.
func parseAINote(v any) string {
	switch note := v.(type) {
	case string:
		return note
	case map[string]any:
		if s := stringOf(note["comment"]); s != "" {
			return s
		}
		return stringOf(note["note"])
	default:
		return ""
	}
}

func zeroSnapshot() Snapshot {
	unknown := Reading{Status: StatusUnknown}
	return Snapshot{
		Temperature: unknown, Humidity: unknown, LightLux: unknown,
		SoilTemp: unknown, SoilMoisture: unknown, SoilEC: unknown,
		Battery: unknown,
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func toNum(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
