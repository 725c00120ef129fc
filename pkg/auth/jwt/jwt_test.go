package jwt

import (
	"context"
	"net/http"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/codeloop-dev/codeloop/pkg/auth"
)

const testSecret = "test-secret-do-not-use"

func signToken(t *testing.T, secret string, claims jwtlib.MapClaims) string {
	t.Helper()
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func requestWithToken(token string) *http.Request {
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

func TestValidToken(t *testing.T) {
	a := New(Config{Secret: testSecret})
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"sub":   "service-account",
		"scope": "tasks:read tasks:write",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	result := a.Authenticate(context.Background(), requestWithToken(token))

	if result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}
	if result.Identity.Subject != "service-account" {
		t.Errorf("Subject = %q", result.Identity.Subject)
	}
	if len(result.Identity.Scopes) != 2 || result.Identity.Scopes[0] != "tasks:read" {
		t.Errorf("Scopes = %v", result.Identity.Scopes)
	}
}

func TestExpiredToken(t *testing.T) {
	a := New(Config{Secret: testSecret})
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), requestWithToken(token)); result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (expired)", result.Decision)
	}
}

func TestMissingExpiry(t *testing.T) {
	a := New(Config{Secret: testSecret})
	token := signToken(t, testSecret, jwtlib.MapClaims{"sub": "x"})

	if result := a.Authenticate(context.Background(), requestWithToken(token)); result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (no exp claim)", result.Decision)
	}
}

func TestWrongSecret(t *testing.T) {
	a := New(Config{Secret: testSecret})
	token := signToken(t, "other-secret", jwtlib.MapClaims{
		"sub": "x",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), requestWithToken(token)); result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (bad signature)", result.Decision)
	}
}

func TestIssuerValidation(t *testing.T) {
	a := New(Config{Secret: testSecret, Issuer: "codeloop"})

	good := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "x",
		"iss": "codeloop",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if result := a.Authenticate(context.Background(), requestWithToken(good)); result.Decision != auth.Yes {
		t.Fatalf("Decision = %d, want Yes (err: %v)", result.Decision, result.Err)
	}

	bad := signToken(t, testSecret, jwtlib.MapClaims{
		"sub": "x",
		"iss": "someone-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if result := a.Authenticate(context.Background(), requestWithToken(bad)); result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (wrong issuer)", result.Decision)
	}
}

func TestMissingSubject(t *testing.T) {
	a := New(Config{Secret: testSecret})
	token := signToken(t, testSecret, jwtlib.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	if result := a.Authenticate(context.Background(), requestWithToken(token)); result.Decision != auth.No {
		t.Fatalf("Decision = %d, want No (no sub)", result.Decision)
	}
}

func TestOpaqueTokenAbstains(t *testing.T) {
	a := New(Config{Secret: testSecret})
	r, _ := http.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "Bearer sk-not-a-jwt")

	if result := a.Authenticate(context.Background(), r); result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain (opaque token)", result.Decision)
	}
}

func TestNoHeaderAbstains(t *testing.T) {
	a := New(Config{Secret: testSecret})
	r, _ := http.NewRequest("GET", "/", nil)

	if result := a.Authenticate(context.Background(), r); result.Decision != auth.Abstain {
		t.Fatalf("Decision = %d, want Abstain", result.Decision)
	}
}
