package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectio/canon/pkg/auth"
	"github.com/lectio/canon/pkg/observability"
)

func testTokens() *auth.TokenManager {
	return auth.NewTokenManager([]byte("test-signing-key"), "canon-test")
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func authHandler(t *testing.T, captured **auth.Identity) http.Handler {
	t.Helper()
	return Auth(testTokens(), testLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			require.True(t, ok)
			*captured = identity
			w.WriteHeader(http.StatusOK)
		}))
}

func TestAuth_MissingCredential(t *testing.T) {
	handler := Auth(testTokens(), testLogger())(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

	req := httptest.NewRequest(http.MethodGet, "/testaments/all", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Unauthenticated")
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := Auth(testTokens(), testLogger())(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_ValidBearerToken(t *testing.T) {
	token, err := testTokens().Generate("user-1", "u@example.com")
	require.NoError(t, err)

	var identity *auth.Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	authHandler(t, &identity).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "u@example.com", identity.Email)
}

func TestAuth_CookieFallback(t *testing.T) {
	token, err := testTokens().Generate("user-2", "c@example.com")
	require.NoError(t, err)

	var identity *auth.Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: token})
	rec := httptest.NewRecorder()
	authHandler(t, &identity).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, identity)
	assert.Equal(t, "user-2", identity.UserID)
}

func TestAuth_HeaderWinsOverCookie(t *testing.T) {
	headerToken, err := testTokens().Generate("header-user", "h@example.com")
	require.NoError(t, err)
	cookieToken, err := testTokens().Generate("cookie-user", "c@example.com")
	require.NoError(t, err)

	var identity *auth.Identity
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+headerToken)
	req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: cookieToken})
	rec := httptest.NewRecorder()
	authHandler(t, &identity).ServeHTTP(rec, req)

	require.NotNil(t, identity)
	assert.Equal(t, "header-user", identity.UserID)
}
