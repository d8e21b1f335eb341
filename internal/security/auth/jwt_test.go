package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func newHMACVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(context.Background(), VerifierConfig{Secret: testSecret, Audience: RoleAuthenticated})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func TestVerifyGeneratedToken(t *testing.T) {
	tm := NewTokenManager(testSecret, "")
	tok, err := tm.GenerateToken("user-1", "a@b.com", "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := newHMACVerifier(t).Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if claims.Subject != "user-1" || claims.Email != "a@b.com" || claims.Role != RoleAuthenticated {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.ExpiresAt.IsZero() {
		t.Fatal("ExpiresAt not populated")
	}
}

func TestVerifyRejects(t *testing.T) {
	v := newHMACVerifier(t)
	sign := func(secret string, claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	future := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name  string
		token string
	}{
		{"expired", sign(testSecret, jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"wrong secret", sign("another-secret-that-is-long-enough-0000", jwt.MapClaims{"sub": "u", "aud": "authenticated", "exp": future})},
		{"missing sub", sign(testSecret, jwt.MapClaims{"aud": "authenticated", "exp": future})},
		{"authenticated without sub", sign(testSecret, jwt.MapClaims{"aud": "authenticated", "role": RoleAuthenticated, "exp": future})},
		{"missing exp", sign(testSecret, jwt.MapClaims{"sub": "u", "aud": "authenticated"})},
		{"wrong audience", sign(testSecret, jwt.MapClaims{"sub": "u", "aud": "anon", "exp": future})},
		{"alg none", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u", "exp": future}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			return s
		}()},
		{"garbage", "not.a.jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); err == nil {
				t.Fatalf("Verify() accepted %s token", tt.name)
			}
		})
	}
}

func TestNewVerifierRequiresKeyMaterial(t *testing.T) {
	if _, err := NewVerifier(context.Background(), VerifierConfig{}); err == nil {
		t.Fatal("expected error without secret or JWKS URL")
	}
}

func TestVerifierWithJWKSStillAcceptsSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []any{}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	v, err := NewVerifier(ctx, VerifierConfig{Secret: testSecret, JWKSURL: srv.URL})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	tok, _ := NewTokenManager(testSecret, "").GenerateToken("user-2", "", "", time.Minute)
	if _, err := v.Verify(tok); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer abc", "abc", false},
		{"bearer abc", "abc", false},
		{"Basic abc", "", true},
		{"Bearer", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ExtractToken(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ExtractToken(%q) = %q, %v", tt.header, got, err)
		}
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" {
		t.Fatal("empty context should have no user")
	}
	ctx = WithClaims(ctx, &Claims{Subject: "u-9"})
	if UserIDFromContext(ctx) != "u-9" {
		t.Fatalf("UserIDFromContext() = %q", UserIDFromContext(ctx))
	}
}

func TestVerifyAcceptsServiceKeyWithoutSub(t *testing.T) {
	v, err := NewVerifier(context.Background(), VerifierConfig{Secret: testSecret})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	key, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss":  "supabase",
		"ref":  "abcdefghijklmnop",
		"role": RoleServiceRole,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	claims, err := v.Verify(key)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if !claims.ServiceKey() || claims.Subject != "" {
		t.Fatalf("claims = %+v, want subject-less service key", claims)
	}
	if (&Claims{Subject: "u", Role: RoleServiceRole}).ServiceKey() {
		t.Fatal("a service_role token with a subject is not a project key")
	}
}
