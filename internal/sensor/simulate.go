package sensor

import (
	"math"
	"strconv"
	"time"
)

// The simulator is a keyed PRNG, not a statistical one: the same
// device and time bucket must always produce the same snapshot, so
// readings stay stable across UI refreshes within one sensing
// interval and drift plausibly across intervals. Seeding is FNV-1a
// over "<id-tail>|<bucket>", draws are a 32-bit LCG.
const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619

	lcgMul = 1664525
	lcgAdd = 1013904223
)

// DefaultInterval is the bucket width used when no sensing interval is
// configured.
const DefaultInterval = time.Minute

type lcg struct{ state uint32 }

func (g *lcg) next() float64 {
	g.state = g.state*lcgMul + lcgAdd
	return float64(g.state) / float64(1<<32)
}

func fnv1a(s string) uint32 {
	h := uint32(fnvOffset32)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// idTail keeps the last 4 alphanumeric characters of the raw id,
// case-preserving.
func idTail(raw string) string {
	var keep []byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			keep = append(keep, c)
		}
	}
	if len(keep) > 4 {
		keep = keep[len(keep)-4:]
	}
	return string(keep)
}

// Simulate produces the deterministic snapshot for deviceID in the
// time bucket containing at. Bucket width is interval (DefaultInterval
// when zero or negative).
func Simulate(deviceID string, at time.Time, interval time.Duration) Snapshot {
	if interval <= 0 {
		interval = DefaultInterval
	}
	id := idTail(deviceID)
	bucket := at.UnixMilli() / interval.Milliseconds()

	// Per-bucket jitter stream.
	jitter := &lcg{state: fnvOffset32 ^ fnv1a(id+"|"+strconv.FormatInt(bucket, 10))}

	// Per-device stable base values, one draw each in fixed order.
	base := &lcg{state: fnv1a(id)}
	baseTemp := 20 + base.next()*10
	baseHumi := 35 + base.next()*40
	baseLux := 200 + base.next()*800
	baseSoilTemp := 18 + base.next()*8
	baseSoilMoist := 20 + base.next()*50
	baseSoilEC := 0.5 + base.next()*2.0
	baseBattery := 40 + base.next()*55

	unknown := func(v float64) Reading { return Reading{Value: v, Status: StatusUnknown} }

	snap := Snapshot{
		Temperature:  unknown(round1(clamp(baseTemp+(jitter.next()-0.5)*2.0, 15, 35))),
		Humidity:     unknown(math.Round(clamp(baseHumi+(jitter.next()-0.5)*4.0, 0, 100))),
		LightLux:     unknown(math.Round(clamp(baseLux+(jitter.next()-0.5)*60, 0, 2000))),
		SoilTemp:     unknown(round1(clamp(baseSoilTemp+(jitter.next()-0.5)*1.0, 10, 40))),
		SoilMoisture: unknown(math.Round(clamp(baseSoilMoist+(jitter.next()-0.5)*5.0, 0, 100))),
		SoilEC:       unknown(round2(clamp(baseSoilEC+(jitter.next()-0.5)*0.1, 0.1, 5.0))),
		Battery:      unknown(math.Round(clamp(baseBattery-jitter.next()*0.3, 0, 100))),
		Simulated:    true,
	}
	snap.Timestamp = at.UTC().Format(time.RFC3339)
	return snap
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
