package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func protected(apiKey string) http.Handler {
	return Auth(apiKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	protected("").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	rec := httptest.NewRecorder()

	protected("sekrit").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthAPIKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	req.Header.Set("X-API-Key", "sekrit")
	rec := httptest.NewRecorder()

	protected("sekrit").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthMissingToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	rec := httptest.NewRecorder()

	protected("sekrit").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthWrongToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()

	protected("sekrit").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthBasicSchemeRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/trades", nil)
	req.Header.Set("Authorization", "Basic c2Vrcml0")
	rec := httptest.NewRecorder()

	protected("sekrit").ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
