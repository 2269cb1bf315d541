package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func runJWT(t *testing.T, issuer *TokenIssuer, store RevocationStore, header string, handler echo.HandlerFunc) (echo.Context, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if handler == nil {
		handler = func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	}
	return c, JWTMiddleware(issuer, store)(handler)(c)
}

func requireHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	_, err := runJWT(t, issuer, nil, "", nil)
	requireHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	tests := []struct {
		name   string
		header string
	}{
		{"unknown scheme", "Token abc123"},
		{"empty bearer", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
		{"bare garbage", "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runJWT(t, issuer, nil, tt.header, nil)
			requireHTTPStatus(t, err, http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_BearerAndBareToken(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	token, _, err := issuer.Issue("doc-1", RoleDoctor)
	if err != nil {
		t.Fatal(err)
	}

	for _, header := range []string{"Bearer " + token, "bearer " + token, token} {
		var got Identity
		c, err := runJWT(t, issuer, nil, header, func(c echo.Context) error {
			got, _ = IdentityFromContext(c.Request().Context())
			return nil
		})
		if err != nil {
			t.Fatalf("header %q: unexpected error: %v", header[:6], err)
		}
		if got.Subject != "doc-1" || got.Role != RoleDoctor || got.JTI == "" {
			t.Errorf("unexpected identity: %+v", got)
		}
		if got.ExpiresAt.IsZero() {
			t.Error("expected expiry on identity")
		}
		if c.Get(UserIDKey) != "doc-1" || c.Get(UserRoleKey) != "doctor" {
			t.Errorf("expected echo context values, got %v/%v", c.Get(UserIDKey), c.Get(UserRoleKey))
		}
	}
}

func TestJWTMiddleware_ExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	issuer.now = func() time.Time { return time.Now().Add(-3 * time.Hour) }
	token, _, _ := issuer.Issue("u", RolePatient)
	issuer.now = time.Now

	_, err := runJWT(t, issuer, nil, "Bearer "+token, nil)
	requireHTTPStatus(t, err, http.StatusUnauthorized)
}

func TestJWTMiddleware_RevokedToken(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	store := NewMemoryRevocationStore()
	defer store.Close()

	token, claims, _ := issuer.Issue("u", RolePatient)
	if _, err := runJWT(t, issuer, store, "Bearer "+token, nil); err != nil {
		t.Fatalf("expected token to be accepted before revocation: %v", err)
	}

	store.Revoke(context.Background(), claims.ID, claims.ExpiresAt.Time)
	_, err := runJWT(t, issuer, store, "Bearer "+token, nil)
	requireHTTPStatus(t, err, http.StatusUnauthorized)
}

type failingStore struct{}

func (failingStore) Revoke(context.Context, string, time.Time) error { return errors.New("down") }
func (failingStore) IsRevoked(context.Context, string) (bool, error) {
	return false, errors.New("down")
}

func TestJWTMiddleware_RevocationStoreDown(t *testing.T) {
	issuer := NewTokenIssuer(testSigningKey, time.Hour)
	token, _, _ := issuer.Issue("u", RolePatient)
	_, err := runJWT(t, issuer, failingStore{}, "Bearer "+token, nil)
	requireHTTPStatus(t, err, http.StatusServiceUnavailable)
}
