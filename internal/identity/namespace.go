// Package identity derives per-account storage namespaces from the
// current bearer token, so that switching accounts in the same agent
// instance never leaks or merges one user's cached device data into
// another's.
package identity

import "strconv"

// GuestNamespace is the namespace used when no token is present.
const GuestNamespace = "guest"

// FNV-1a 32-bit parameters.
const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619
)

// Namespace returns a stable short namespace for the given bearer token:
// a 32-bit FNV-1a hash of the token rendered in base 36, or
// GuestNamespace when the token is empty.
//
// The 32-bit width makes collisions between distinct tokens possible but
// vanishingly rare; the namespace isolates cached data between accounts
// and is not a security boundary.
func Namespace(token string) string {
	if token == "" {
		return GuestNamespace
	}
	h := uint32(fnvOffset32)
	for i := 0; i < len(token); i++ {
		h ^= uint32(token[i])
		h *= fnvPrime32
	}
	return strconv.FormatUint(uint64(h), 36)
}
