package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "zen-notes", time.Hour)

	token, err := tm.Issue("user-1", "alice")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := tm.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" || claims.Subject != "user-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.ID == "" {
		t.Fatalf("expected a token id")
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("expected 1h lifetime, got %v", got)
	}
}

func TestTokenExpired(t *testing.T) {
	tm := NewTokenManager("secret", "", 0)

	token, err := tm.GenerateToken("user-1", "alice", -time.Minute)
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if _, err := tm.ValidateToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenInvalid(t *testing.T) {
	tm := NewTokenManager("secret", "zen-notes", time.Hour)
	other := NewTokenManager("other-secret", "zen-notes", time.Hour)
	foreignIssuer := NewTokenManager("secret", "someone-else", time.Hour)

	forged, _ := other.Issue("user-1", "alice")
	wrongIssuer, _ := foreignIssuer.Issue("user-1", "alice")
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "user-1", "iss": "zen-notes"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"garbage":      "not-a-token",
		"wrong secret": forged,
		"wrong issuer": wrongIssuer,
		"alg none":     none,
		"empty":        "",
	} {
		if _, err := tm.ValidateToken(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", name, err)
		}
	}
}

func TestGenerateTokenRequiresIdentity(t *testing.T) {
	tm := NewTokenManager("secret", "", time.Hour)
	if _, err := tm.GenerateToken("", "alice", time.Hour); err == nil {
		t.Fatalf("expected error for missing user id")
	}
}

func TestExtractToken(t *testing.T) {
	cases := map[string]string{
		"Bearer abc": "abc",
		"bearer xyz": "xyz",
	}
	for header, want := range cases {
		got, err := ExtractToken(header)
		if err != nil || got != want {
			t.Fatalf("ExtractToken(%q) = %q, %v", header, got, err)
		}
	}
	for _, header := range []string{"", "Bearer", "Basic abc", "abc", "Bearer a b"} {
		if _, err := ExtractToken(header); !errors.Is(err, ErrTokenMissing) {
			t.Fatalf("ExtractToken(%q): expected ErrTokenMissing, got %v", header, err)
		}
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	hash, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	if hash == "secret1" || !strings.HasPrefix(hash, "$2") {
		t.Fatalf("expected a bcrypt hash, got %q", hash)
	}
	if !h.Verify(hash, "secret1") {
		t.Fatalf("expected password to verify")
	}
	if h.Verify(hash, "secret2") {
		t.Fatalf("expected wrong password to fail")
	}
	if h.NeedsRehash(hash) {
		t.Fatalf("hash at the configured cost should not need a rehash")
	}
	if !NewPasswordHasher(bcrypt.MinCost + 1).NeedsRehash(hash) {
		t.Fatalf("hash at a lower cost should need a rehash")
	}

	again, _ := h.Hash("secret1")
	if again == hash {
		t.Fatalf("expected a fresh salt per hash")
	}
}

func TestPasswordHasherCostFallback(t *testing.T) {
	if NewPasswordHasher(0).cost != DefaultBcryptCost {
		t.Fatalf("expected default cost for out of range input")
	}
}
