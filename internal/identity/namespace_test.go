package identity_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/greeneye/companion/internal/identity"
)

func TestNamespace_Guest(t *testing.T) {
	if got := identity.Namespace(""); got != identity.GuestNamespace {
		t.Errorf("Namespace(\"\") = %q, want %q", got, identity.GuestNamespace)
	}
}

func TestNamespace_Stable(t *testing.T) {
	a := identity.Namespace("some-bearer-token")
	b := identity.Namespace("some-bearer-token")
	if a != b {
		t.Errorf("same token produced different namespaces: %q vs %q", a, b)
	}
	if a == identity.GuestNamespace {
		t.Error("non-empty token must not map to the guest namespace")
	}
}

func TestNamespace_DistinctTokens(t *testing.T) {
	if identity.Namespace("token-a") == identity.Namespace("token-b") {
		t.Error("distinct tokens unexpectedly collided")
	}
}

func TestNamespace_Base36(t *testing.T) {
	ns := identity.Namespace("abc")
	for _, r := range ns {
		if !((r >= '0' && r <= '9') || (r >= 'a' && r <= 'z')) {
			t.Fatalf("namespace %q contains non-base36 rune %q", ns, r)
		}
	}
}

func TestSession_TokenSwapChangesNamespace(t *testing.T) {
	s := identity.NewSession("first-token")
	first := s.Namespace()

	s.SetToken("second-token")
	if s.Namespace() == first {
		t.Error("expected namespace to change with the token")
	}

	s.Clear()
	if s.Namespace() != identity.GuestNamespace {
		t.Errorf("cleared session namespace = %q, want guest", s.Namespace())
	}
}

func TestSession_JWTExpiry(t *testing.T) {
	claims := jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("signing test token: %v", err)
	}

	s := identity.NewSession(signed)
	if !s.Expired(time.Now()) {
		t.Error("expected session with past exp claim to report expired")
	}
}

func TestSession_OpaqueTokenNeverExpires(t *testing.T) {
	s := identity.NewSession("not-a-jwt")
	if s.Expired(time.Now().Add(1000 * time.Hour)) {
		t.Error("opaque token must not report expired")
	}
}
