// Package devicecode normalizes the many identifier formats a GreenEye
// sensor unit can arrive under (raw MAC strings, bracketed or
// underscore-delimited IDs, already-canonical codes) into a single
// canonical form used as the identity key everywhere in the client.
package devicecode

import "strings"

// Prefix is the canonical device code prefix. A full canonical code is
// Prefix followed by a 4-character lowercase hex tail, e.g. "ge-sd-6c18".
const Prefix = "ge-sd-"

// Alnum lowercases s and strips every character outside [0-9a-z].
func Alnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Tail4 returns the last 4 alphanumeric characters of s, or the whole
// alphanumeric remainder when shorter.
func Tail4(s string) string {
	a := Alnum(s)
	if len(a) > 4 {
		return a[len(a)-4:]
	}
	return a
}

// Canonicalize normalizes an arbitrary device identifier. When the
// alphanumeric tail looks like a 4-digit hex suffix the result is
// Prefix+tail; otherwise the bare alphanumeric form is returned as-is.
//
// The fallback path means two differently formatted identifiers can in
// principle collide on the same alphanumeric string. The upstream data
// never guards against this and neither do we.
func Canonicalize(s string) string {
	tail := Tail4(s)
	if isHex4(tail) {
		return Prefix + tail
	}
	return Alnum(s)
}

// Same reports whether two raw identifiers refer to the same device.
// All identity comparisons go through here; raw string equality is
// unreliable for identifiers that arrive in mixed formats.
func Same(a, b string) bool {
	return Canonicalize(a) == Canonicalize(b)
}

// Valid reports whether s is already a full canonical code.
func Valid(s string) bool {
	return strings.HasPrefix(s, Prefix) && isHex4(strings.TrimPrefix(s, Prefix))
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
