package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serveAdmin(t *testing.T, auth *AdminAuth, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/admin/contract-balance", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdminAuthAcceptsValidToken(t *testing.T) {
	auth := NewAdminAuth(AdminAuthConfig{HMACSecret: "topsecret", Issuer: "x402gate", Audience: "admin"}, nil)
	token := signToken(t, "topsecret", jwt.MapClaims{
		"iss": "x402gate",
		"aud": "admin",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	rec := serveAdmin(t, auth, "Bearer "+token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected passthrough, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminAuthRejections(t *testing.T) {
	auth := NewAdminAuth(AdminAuthConfig{HMACSecret: "topsecret", Issuer: "x402gate"}, nil)
	expired := signToken(t, "topsecret", jwt.MapClaims{
		"iss": "x402gate",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, "other-secret", jwt.MapClaims{
		"iss": "x402gate",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	wrongIssuer := signToken(t, "topsecret", jwt.MapClaims{
		"iss": "somebody-else",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	cases := []struct {
		name          string
		authorization string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc123"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"wrong issuer", "Bearer " + wrongIssuer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveAdmin(t, auth, tc.authorization)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestAdminAuthWithoutSecretRejectsEverything(t *testing.T) {
	auth := NewAdminAuth(AdminAuthConfig{}, nil)
	token := signToken(t, "whatever", jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	rec := serveAdmin(t, auth, "Bearer "+token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 when no secret is configured, got %d", rec.Code)
	}
}
