package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return Config{JWTSecret: "test-secret", AdminPasswordHash: string(hash), TokenDuration: time.Hour}
}

func TestAuthenticate(t *testing.T) {
	cfg := testConfig(t)

	token, expires, err := Authenticate(cfg, "s3cret")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if !expires.After(time.Now()) {
		t.Errorf("expiry should be in the future, got %v", expires)
	}
	userID, err := ValidateToken(token, cfg.JWTSecret)
	if err != nil || userID != "admin" {
		t.Fatalf("ValidateToken = %q, %v", userID, err)
	}

	if _, _, err := Authenticate(cfg, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := Authenticate(Config{}, ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unconfigured auth must reject, got %v", err)
	}
}

func TestValidateToken_RejectsForeignSecretAndExpired(t *testing.T) {
	token, err := GenerateToken("admin", "other-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "test-secret"); err == nil {
		t.Error("token signed with another secret must be rejected")
	}

	expired, err := GenerateToken("admin", "test-secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(expired, "test-secret"); err == nil {
		t.Error("expired token must be rejected")
	}
}

func TestAuthMiddleware(t *testing.T) {
	cfg := testConfig(t)
	token, _, err := Authenticate(cfg, "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	protected := AuthMiddleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := GetUserIDFromContext(r.Context()); !ok || id != "admin" {
			t.Errorf("user id missing from context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/issues", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
