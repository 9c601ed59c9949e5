package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joeydtaylor/steeze-lua/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newHMAC(t *testing.T) *Middleware {
	t.Helper()
	cfg := manifest.Default()
	cfg.Auth.Enabled = true
	cfg.Auth.HMACSecret = secret
	cfg.Auth.Issuer = "steeze-test"
	m, err := ProvideAuthentication(cfg)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func probe(m *Middleware) (http.Handler, *User) {
	var seen User
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = m.GetUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestDisabledProvidesNil(t *testing.T) {
	m, err := ProvideAuthentication(manifest.Default())
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.False(t, m.IsAdmin(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestBearerAssertion(t *testing.T) {
	m := newHMAC(t)
	h, seen := probe(m)

	tok := sign(t, jwt.MapClaims{
		"uid":  "ada",
		"role": "ops",
		"iss":  "steeze-test",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Minute).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "ada", seen.Username)
	assert.Equal(t, "ops", seen.Role.Name)
	assert.Equal(t, "assert", seen.AuthenticationSource.Provider)
}

func TestCookieAssertionWrongIssuer(t *testing.T) {
	m := newHMAC(t)
	h, _ := probe(m)

	tok := sign(t, jwt.MapClaims{"sub": "ada", "iss": "elsewhere"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "assert", Value: tok})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAnonymousPassesThrough(t *testing.T) {
	m := newHMAC(t)
	h, seen := probe(m)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, seen.Username)
}

func TestDevBypass(t *testing.T) {
	t.Setenv("AUTH_DEV_BYPASS", "true")
	m := newHMAC(t)
	h, seen := probe(m)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Dev-User", "grace")
	req.Header.Set("X-Dev-Role", "admin")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "grace", seen.Username)
	assert.Equal(t, "admin", seen.Role.Name)
}
