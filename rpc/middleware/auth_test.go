package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func serveWithToken(handler http.Handler, token string) int {
	req := httptest.NewRequest(http.MethodPost, "/v1/transactions", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res.Code
}

func TestAuthenticatorScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "shadowpay"}, nil)
	var subject string
	handler := auth.Middleware(ScopeSubmit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, _ = r.Context().Value(ContextKeySubject).(string)
		w.WriteHeader(http.StatusOK)
	}))
	exp := time.Now().Add(time.Hour).Unix()

	require.Equal(t, http.StatusUnauthorized, serveWithToken(handler, ""))
	require.Equal(t, http.StatusUnauthorized, serveWithToken(handler, "garbage"))
	require.Equal(t, http.StatusUnauthorized, serveWithToken(handler,
		signToken(t, "other-secret", jwt.MapClaims{"iss": "shadowpay", "scope": ScopeSubmit, "exp": exp})))
	require.Equal(t, http.StatusUnauthorized, serveWithToken(handler,
		signToken(t, testSecret, jwt.MapClaims{"iss": "elsewhere", "scope": ScopeSubmit, "exp": exp})))
	require.Equal(t, http.StatusForbidden, serveWithToken(handler,
		signToken(t, testSecret, jwt.MapClaims{"iss": "shadowpay", "scope": "read", "exp": exp})))
	require.Equal(t, http.StatusOK, serveWithToken(handler,
		signToken(t, testSecret, jwt.MapClaims{"iss": "shadowpay", "sub": "merchant-1", "scope": "read " + ScopeSubmit, "exp": exp})))
	require.Equal(t, "merchant-1", subject)
}

func TestAuthenticatorDisabled(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{}, nil)
	handler := auth.Middleware(ScopeSubmit)(okHandler())
	require.Equal(t, http.StatusOK, serveWithToken(handler, ""))
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "abc", extractBearer("bearer abc"))
	require.Equal(t, "", extractBearer("Basic abc"))
	require.Equal(t, "", extractBearer("Bearer"))
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{AllowedOrigins: []string{"https://shop.example"}})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/v1/program", nil)
	req.Header.Set("Origin", "https://shop.example")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, "https://shop.example", res.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/program", nil)
	req.Header.Set("Origin", "https://evil.example")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)
	require.Empty(t, res.Header().Get("Access-Control-Allow-Origin"))
}
